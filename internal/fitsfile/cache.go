package fitsfile

import (
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"wcscal/internal/table"
)

// Cache opens reference tables by name and keeps them in memory until the
// file on disk changes.
type Cache struct {
	resolve func(name string) (string, error)
	load    func(path string) (*table.Table, error)
	log     *slog.Logger

	mu      sync.Mutex
	tables  map[string]*table.Table
	watched map[string]bool
	watcher *fsnotify.Watcher
	done    chan struct{}
}

// NewCache creates a table cache. resolve maps a reference name such as
// "jref$idc.fits" to a path; nil uses names as paths.
func NewCache(resolve func(string) (string, error), log *slog.Logger) (*Cache, error) {
	return newCache(resolve, ReadTable, log)
}

func newCache(resolve func(string) (string, error), load func(string) (*table.Table, error), log *slog.Logger) (*Cache, error) {
	if resolve == nil {
		resolve = func(name string) (string, error) { return name, nil }
	}
	if log == nil {
		log = slog.Default()
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	c := &Cache{
		resolve: resolve,
		load:    load,
		log:     log,
		tables:  make(map[string]*table.Table),
		watched: make(map[string]bool),
		watcher: w,
		done:    make(chan struct{}),
	}
	go c.processEvents()
	return c, nil
}

// Open returns the table for name, reading it on first use.
func (c *Cache) Open(name string) (*table.Table, error) {
	path, err := c.resolve(name)
	if err != nil {
		return nil, err
	}
	path = filepath.Clean(path)

	c.mu.Lock()
	t, ok := c.tables[path]
	c.mu.Unlock()
	if ok {
		return t, nil
	}

	t, err = c.load(path)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.tables[path] = t
	dir := filepath.Dir(path)
	if !c.watched[dir] {
		if err := c.watcher.Add(dir); err != nil {
			c.log.Warn("cannot watch reference directory", "dir", dir, "error", err)
		} else {
			c.watched[dir] = true
		}
	}
	return t, nil
}

// Evict drops a cached table.
func (c *Cache) Evict(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	path = filepath.Clean(path)
	if _, ok := c.tables[path]; ok {
		delete(c.tables, path)
		c.log.Debug("reference table evicted", "path", path)
	}
}

// Len returns the number of cached tables.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.tables)
}

// Close stops watching for changes.
func (c *Cache) Close() error {
	close(c.done)
	return c.watcher.Close()
}

func (c *Cache) processEvents() {
	for {
		select {
		case event, ok := <-c.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Remove|fsnotify.Rename|fsnotify.Create) != 0 {
				c.Evict(event.Name)
			}
		case err, ok := <-c.watcher.Errors:
			if !ok {
				return
			}
			c.log.Warn("reference watcher error", "error", err)
		case <-c.done:
			return
		}
	}
}

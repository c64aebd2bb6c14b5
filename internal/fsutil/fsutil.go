package fsutil

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

var fitsExts = map[string]struct{}{
	".fits": {},
	".fit":  {},
	".fts":  {},
}

// ListImages returns all FITS files under root.
func ListImages(root string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if IsFITSFile(d.Name()) {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}

// FirstExisting returns the first path that exists.
func FirstExisting(paths ...string) string {
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// IsFITSFile checks the file extension.
func IsFITSFile(path string) bool {
	_, ok := fitsExts[strings.ToLower(filepath.Ext(path))]
	return ok
}

// ExpandRef resolves a reference-file pointer such as "jref$table.fits".
// The prefix names an environment variable or, failing that, an entry of
// dirs. A plain relative name that does not exist is looked up in dirs in
// prefix order; otherwise plain paths are returned unchanged.
func ExpandRef(ref string, dirs map[string]string) (string, error) {
	prefix, name, ok := strings.Cut(ref, "$")
	if !ok {
		if filepath.IsAbs(ref) || len(dirs) == 0 {
			return ref, nil
		}
		prefixes := make([]string, 0, len(dirs))
		for p := range dirs {
			prefixes = append(prefixes, p)
		}
		sort.Strings(prefixes)
		candidates := []string{ref}
		for _, p := range prefixes {
			candidates = append(candidates, filepath.Join(dirs[p], ref))
		}
		return FirstNonEmpty(FirstExisting(candidates...), ref), nil
	}
	dir := FirstNonEmpty(os.Getenv(prefix), os.Getenv(strings.ToUpper(prefix)), dirs[prefix])
	if dir == "" {
		return "", fmt.Errorf("reference directory %q is not set; define the %s environment variable or paths.reference_dirs[%q]", prefix, prefix, prefix)
	}
	return filepath.Join(dir, name), nil
}

// FirstNonEmpty returns the first non-empty string.
func FirstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

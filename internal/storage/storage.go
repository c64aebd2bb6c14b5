package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"wcscal/internal/header"
	"wcscal/internal/shiftext"
)

// Store wraps SQLite-backed persistence for jobs and image metadata blocks.
type Store struct {
	DB *sql.DB // Export for direct database access
}

// New opens (or creates) the database at path and ensures schema.
func New(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// a single connection keeps block sequence updates serialized
	db.SetMaxOpenConns(1)
	s := &Store{DB: db}
	if err := s.ensureSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureSchema() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS processing_jobs (
            id TEXT PRIMARY KEY,
            job_type TEXT NOT NULL,
            status TEXT NOT NULL,
            inputs_json TEXT,
            options_json TEXT,
            created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
            started_at TIMESTAMP,
            completed_at TIMESTAMP,
            error_message TEXT
        );`,
		`CREATE TABLE IF NOT EXISTS job_results (
            job_id TEXT,
            meta_json TEXT,
            created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
        );`,
		`CREATE TABLE IF NOT EXISTS metadata_blocks (
            image_path TEXT NOT NULL,
            seq INTEGER NOT NULL,
            extname TEXT NOT NULL,
            header_json TEXT NOT NULL,
            created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
            PRIMARY KEY (image_path, seq)
        );`,
		`CREATE INDEX IF NOT EXISTS idx_metadata_blocks_extname ON metadata_blocks(extname);`,
	}
	for _, stmt := range stmts {
		if _, err := s.DB.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the underlying DB.
func (s *Store) Close() error {
	if s == nil || s.DB == nil {
		return nil
	}
	return s.DB.Close()
}

// JobRecord captures persisted job info.
type JobRecord struct {
	ID          string
	JobType     string
	Status      string
	Inputs      []string
	OptionsJSON string
	Error       string
	CreatedAt   time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time
}

// RecordJobQueued inserts a pending job.
func (s *Store) RecordJobQueued(rec JobRecord) error {
	if s == nil {
		return nil
	}
	inputs, err := json.Marshal(rec.Inputs)
	if err != nil {
		return err
	}
	_, err = s.DB.Exec(`INSERT OR REPLACE INTO processing_jobs (id, job_type, status, inputs_json, options_json) VALUES (?, ?, ?, ?, ?);`,
		rec.ID, rec.JobType, rec.Status, string(inputs), rec.OptionsJSON)
	return err
}

// RecordJobStart marks a job as running.
func (s *Store) RecordJobStart(id string) error {
	if s == nil {
		return nil
	}
	_, err := s.DB.Exec(`UPDATE processing_jobs SET status='running', started_at=CURRENT_TIMESTAMP WHERE id=?;`, id)
	return err
}

// RecordJobResult finalizes a job with status and meta.
func (s *Store) RecordJobResult(id string, status string, meta map[string]any, errMsg string) error {
	if s == nil {
		return nil
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("marshal meta: %w", err)
	}
	_, err = s.DB.Exec(`UPDATE processing_jobs SET status=?, completed_at=CURRENT_TIMESTAMP, error_message=? WHERE id=?;`, status, errMsg, id)
	if err != nil {
		return err
	}
	_, err = s.DB.Exec(`INSERT INTO job_results (job_id, meta_json) VALUES (?, ?);`, id, string(metaJSON))
	return err
}

// RecentJobs returns the latest jobs up to limit.
func (s *Store) RecentJobs(limit int) ([]JobRecord, error) {
	if s == nil {
		return nil, errors.New("store not initialized")
	}
	rows, err := s.DB.Query(`SELECT id, job_type, status, inputs_json, options_json, created_at, started_at, completed_at, error_message FROM processing_jobs ORDER BY created_at DESC, rowid DESC LIMIT ?;`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []JobRecord
	for rows.Next() {
		var rec JobRecord
		var inputs, options, errorMsg sql.NullString
		var started, completed sql.NullTime
		if err := rows.Scan(&rec.ID, &rec.JobType, &rec.Status, &inputs, &options, &rec.CreatedAt, &started, &completed, &errorMsg); err != nil {
			return nil, err
		}
		if inputs.Valid && inputs.String != "" {
			if err := json.Unmarshal([]byte(inputs.String), &rec.Inputs); err != nil {
				return nil, fmt.Errorf("job %s inputs: %w", rec.ID, err)
			}
		}
		rec.OptionsJSON = options.String
		if started.Valid {
			rec.StartedAt = &started.Time
		}
		if completed.Valid {
			rec.CompletedAt = &completed.Time
		}
		if errorMsg.Valid {
			rec.Error = errorMsg.String
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// JobMeta fetches the last meta blob for a job.
func (s *Store) JobMeta(id string) (map[string]any, error) {
	if s == nil {
		return nil, errors.New("store not initialized")
	}
	var metaJSON string
	err := s.DB.QueryRow(`SELECT meta_json FROM job_results WHERE job_id=? ORDER BY created_at DESC, rowid DESC LIMIT 1;`, id).Scan(&metaJSON)
	if err != nil {
		return nil, err
	}
	var meta map[string]any
	if err := json.Unmarshal([]byte(metaJSON), &meta); err != nil {
		return nil, fmt.Errorf("unmarshal meta: %w", err)
	}
	return meta, nil
}

// Image returns the persisted metadata block list of the image at path.
func (s *Store) Image(path string) *ImageBlocks {
	return &ImageBlocks{store: s, path: path}
}

// ImageBlocks is an image's ordered metadata block list kept in the
// metadata_blocks table. It satisfies shiftext.Image.
type ImageBlocks struct {
	store *Store
	path  string
}

var _ shiftext.Image = (*ImageBlocks)(nil)

// Blocks returns the blocks in insertion order.
func (b *ImageBlocks) Blocks() ([]shiftext.Block, error) {
	if b.store == nil {
		return nil, errors.New("store not initialized")
	}
	rows, err := b.store.DB.Query(`SELECT extname, header_json FROM metadata_blocks WHERE image_path=? ORDER BY seq;`, b.path)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []shiftext.Block
	for rows.Next() {
		var name, raw string
		if err := rows.Scan(&name, &raw); err != nil {
			return nil, err
		}
		h := header.New()
		if err := json.Unmarshal([]byte(raw), &h); err != nil {
			return nil, fmt.Errorf("block %s of %s: %w", name, b.path, err)
		}
		out = append(out, shiftext.Block{Name: name, Header: h})
	}
	return out, rows.Err()
}

// DeleteBlock removes the block at index.
func (b *ImageBlocks) DeleteBlock(index int) error {
	if b.store == nil {
		return errors.New("store not initialized")
	}
	if index < 0 {
		return fmt.Errorf("block index %d out of range", index)
	}
	var seq int64
	err := b.store.DB.QueryRow(`SELECT seq FROM metadata_blocks WHERE image_path=? ORDER BY seq LIMIT 1 OFFSET ?;`, b.path, index).Scan(&seq)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("block index %d out of range", index)
	}
	if err != nil {
		return err
	}
	_, err = b.store.DB.Exec(`DELETE FROM metadata_blocks WHERE image_path=? AND seq=?;`, b.path, seq)
	return err
}

// AppendBlock adds blk after the existing blocks.
func (b *ImageBlocks) AppendBlock(blk shiftext.Block) error {
	if b.store == nil {
		return errors.New("store not initialized")
	}
	raw, err := json.Marshal(blk.Header)
	if err != nil {
		return fmt.Errorf("marshal block %s: %w", blk.Name, err)
	}
	_, err = b.store.DB.Exec(`INSERT INTO metadata_blocks (image_path, seq, extname, header_json)
        SELECT ?, COALESCE(MAX(seq), 0) + 1, ?, ? FROM metadata_blocks WHERE image_path=?;`,
		b.path, blk.Name, string(raw), b.path)
	return err
}

// ImagePaths lists the images that carry at least one block named extname.
func (s *Store) ImagePaths(extname string) ([]string, error) {
	if s == nil {
		return nil, errors.New("store not initialized")
	}
	rows, err := s.DB.Query(`SELECT DISTINCT image_path FROM metadata_blocks WHERE extname=? COLLATE NOCASE ORDER BY image_path;`, extname)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

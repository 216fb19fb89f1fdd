// Package manifest records conversion runs and per-page outcomes in SQLite so
// failed pages can be reported and retried later.
package manifest

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id           TEXT PRIMARY KEY,
	dialect      TEXT NOT NULL,
	source       TEXT NOT NULL,
	started_at   TEXT NOT NULL,
	finished_at  TEXT,
	pages        INTEGER NOT NULL DEFAULT 0,
	converted    INTEGER NOT NULL DEFAULT 0,
	failed       INTEGER NOT NULL DEFAULT 0,
	unrecognized INTEGER NOT NULL DEFAULT 0,
	images       INTEGER NOT NULL DEFAULT 0,
	files        INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS pages (
	run_id       TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	seq          INTEGER NOT NULL,
	section      TEXT NOT NULL,
	name         TEXT NOT NULL,
	page_id      TEXT NOT NULL DEFAULT '',
	title        TEXT NOT NULL DEFAULT '',
	ok           INTEGER NOT NULL,
	error        TEXT NOT NULL DEFAULT '',
	unrecognized INTEGER NOT NULL DEFAULT 0,
	content_hash TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (run_id, seq)
);
CREATE INDEX IF NOT EXISTS idx_pages_failed ON pages(run_id, ok);
`

var pragmas = []string{
	"PRAGMA foreign_keys = ON",
	"PRAGMA journal_mode = WAL",
	"PRAGMA busy_timeout = 10000",
	"PRAGMA synchronous = NORMAL",
}

// Store is a manifest database.
type Store struct {
	db *sql.DB
}

// Open opens or creates the manifest at path.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("manifest: mkdir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("manifest: open: %w", err)
	}
	// Pragmas are per connection.
	db.SetMaxOpenConns(1)

	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("manifest: %s: %w", p, err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("manifest: exec schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Page is one recorded page outcome.
type Page struct {
	Section      string `json:"section"`
	Name         string `json:"name"`
	PageID       string `json:"page_id,omitempty"`
	Title        string `json:"title,omitempty"`
	OK           bool   `json:"ok"`
	Error        string `json:"error,omitempty"`
	Unrecognized int    `json:"unrecognized"`
	ContentHash  string `json:"content_hash"`
}

// Totals are the counters stored when a run finishes.
type Totals struct {
	Pages        int `json:"pages"`
	Converted    int `json:"converted"`
	Failed       int `json:"failed"`
	Unrecognized int `json:"unrecognized"`
	Images       int `json:"images"`
	Files        int `json:"files"`
}

// RunInfo describes a stored run.
type RunInfo struct {
	ID         string     `json:"id"`
	Dialect    string     `json:"dialect"`
	Source     string     `json:"source"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Totals
}

// Run appends page outcomes to one stored run. It is safe for concurrent
// use.
type Run struct {
	store *Store
	ID    string

	mu  sync.Mutex
	seq int
}

// BeginRun inserts a new run row.
func (s *Store) BeginRun(ctx context.Context, id, dialect, source string) (*Run, error) {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, dialect, source, started_at) VALUES (?, ?, ?, ?)`,
		id, dialect, source, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return nil, fmt.Errorf("manifest: begin run: %w", err)
	}
	return &Run{store: s, ID: id}, nil
}

// RecordPage stores one page outcome.
func (r *Run) RecordPage(ctx context.Context, p Page) error {
	r.mu.Lock()
	r.seq++
	seq := r.seq
	r.mu.Unlock()

	_, err := r.store.db.ExecContext(ctx,
		`INSERT INTO pages (run_id, seq, section, name, page_id, title, ok, error, unrecognized, content_hash)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, seq, p.Section, p.Name, p.PageID, p.Title, p.OK, p.Error, p.Unrecognized, p.ContentHash)
	if err != nil {
		return fmt.Errorf("manifest: record page %s: %w", p.Name, err)
	}
	return nil
}

// Finish stores the run totals and its finish time.
func (r *Run) Finish(ctx context.Context, t Totals) error {
	_, err := r.store.db.ExecContext(ctx,
		`UPDATE runs SET finished_at = ?, pages = ?, converted = ?, failed = ?, unrecognized = ?, images = ?, files = ?
		 WHERE id = ?`,
		time.Now().UTC().Format(time.RFC3339Nano),
		t.Pages, t.Converted, t.Failed, t.Unrecognized, t.Images, t.Files, r.ID)
	if err != nil {
		return fmt.Errorf("manifest: finish run: %w", err)
	}
	return nil
}

// LastRun returns the most recently started run, or nil when there is none.
func (s *Store) LastRun(ctx context.Context) (*RunInfo, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, dialect, source, started_at, finished_at, pages, converted, failed, unrecognized, images, files
		 FROM runs ORDER BY started_at DESC, rowid DESC LIMIT 1`)

	var (
		info     RunInfo
		started  string
		finished sql.NullString
	)
	err := row.Scan(&info.ID, &info.Dialect, &info.Source, &started, &finished,
		&info.Pages, &info.Converted, &info.Failed, &info.Unrecognized, &info.Images, &info.Files)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("manifest: last run: %w", err)
	}

	if info.StartedAt, err = time.Parse(time.RFC3339Nano, started); err != nil {
		return nil, fmt.Errorf("manifest: started_at: %w", err)
	}
	if finished.Valid {
		t, err := time.Parse(time.RFC3339Nano, finished.String)
		if err != nil {
			return nil, fmt.Errorf("manifest: finished_at: %w", err)
		}
		info.FinishedAt = &t
	}
	return &info, nil
}

// Pages lists the recorded pages of a run in recording order.
func (s *Store) Pages(ctx context.Context, runID string, failedOnly bool) ([]Page, error) {
	q := `SELECT section, name, page_id, title, ok, error, unrecognized, content_hash
	      FROM pages WHERE run_id = ?`
	if failedOnly {
		q += ` AND ok = 0`
	}
	q += ` ORDER BY seq`

	rows, err := s.db.QueryContext(ctx, q, runID)
	if err != nil {
		return nil, fmt.Errorf("manifest: pages: %w", err)
	}
	defer rows.Close()

	var pages []Page
	for rows.Next() {
		var p Page
		if err := rows.Scan(&p.Section, &p.Name, &p.PageID, &p.Title, &p.OK, &p.Error, &p.Unrecognized, &p.ContentHash); err != nil {
			return nil, fmt.Errorf("manifest: scan page: %w", err)
		}
		pages = append(pages, p)
	}
	return pages, rows.Err()
}

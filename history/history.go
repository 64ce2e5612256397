// Package history records finished lookup runs in a local sqlite file so
// past queries can be reviewed without re-driving the portals.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS lookups (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	kind         TEXT NOT NULL,
	input        TEXT NOT NULL,
	site_results TEXT NOT NULL,
	note         TEXT NOT NULL DEFAULT '',
	created_at   TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS lookups_created_at ON lookups(created_at);
`

// Entry is one recorded lookup run.
type Entry struct {
	ID          int64
	Kind        string
	Input       string
	SiteResults string
	Note        string
	CreatedAt   time.Time
}

// Store wraps the sqlite history database.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the history database at path. WAL mode
// and a busy timeout keep concurrent lookup and history commands from
// tripping over each other.
func Open(path string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?%s", path, url.Values{
		"_pragma": []string{
			"journal_mode(WAL)",
			"busy_timeout(5000)",
			"synchronous(NORMAL)",
		},
	}.Encode())
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("history: opening %s: %w", path, err)
	}
	// The driver serializes writes anyway; one connection avoids
	// SQLITE_BUSY storms on short-lived CLI runs.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("history: applying schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Record stores one finished run.
func (s *Store) Record(ctx context.Context, e Entry) error {
	created := e.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO lookups (kind, input, site_results, note, created_at) VALUES (?, ?, ?, ?, ?)`,
		e.Kind, e.Input, e.SiteResults, e.Note, created.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("history: recording lookup: %w", err)
	}
	return nil
}

// Recent returns up to limit entries, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, kind, input, site_results, note, created_at
		 FROM lookups ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("history: querying lookups: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var created string
		if err := rows.Scan(&e.ID, &e.Kind, &e.Input, &e.SiteResults, &e.Note, &created); err != nil {
			return nil, fmt.Errorf("history: scanning row: %w", err)
		}
		if t, perr := time.Parse(time.RFC3339, created); perr == nil {
			e.CreatedAt = t
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history: iterating rows: %w", err)
	}
	return out, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

package journal

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

// Store persists decision records to SQLite so decisions survive restarts and
// can be queried by the status API.
type Store struct {
	db *sql.DB
}

// OpenStore opens (and creates if needed) the journal database at path.
func OpenStore(path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("journal store path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create journal directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite prefers single writer.
	db.SetConnMaxLifetime(time.Hour)

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS decisions (
			id      INTEGER PRIMARY KEY AUTOINCREMENT,
			ts      TEXT NOT NULL,
			kind    TEXT NOT NULL,
			name    TEXT NOT NULL,
			context TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_decisions_ts ON decisions(ts);
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create decisions table: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying DB handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Insert appends one record.
func (s *Store) Insert(rec Record) error {
	_, err := s.db.Exec(
		`INSERT INTO decisions (ts, kind, name, context) VALUES (?, ?, ?, ?)`,
		rec.Time.Format(time.RFC3339Nano), rec.Kind, rec.Name, marshalContext(rec.Context),
	)
	return err
}

// Recent returns the newest records, newest first.
func (s *Store) Recent(limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.Query(
		`SELECT ts, kind, name, context FROM decisions ORDER BY id DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var (
			ts, kind, name string
			ctx            sql.NullString
		)
		if err := rows.Scan(&ts, &kind, &name, &ctx); err != nil {
			return nil, err
		}
		rec := Record{Kind: kind, Name: name}
		rec.Time, _ = time.Parse(time.RFC3339Nano, ts)
		if ctx.Valid && ctx.String != "" {
			_ = json.Unmarshal([]byte(ctx.String), &rec.Context)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package store persists the run ledger: which papers have been seen,
// their download outcomes, and canonical-id collisions across listings.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/sesla/securipaperbot/pkg/types"
)

const dbFile = "securipaperbot.db"

// Store manages the ledger SQLite database.
type Store struct {
	db *sql.DB
}

// Open opens or creates the ledger database under dir, creating the
// schema if it does not exist.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating ledger directory: %w", err)
	}

	dbPath := filepath.Join(dir, dbFile)
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("opening ledger database: %w", err)
	}

	s := &Store{db: db}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return s, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS papers (
			canonical_id TEXT PRIMARY KEY,
			conference TEXT NOT NULL,
			year TEXT NOT NULL,
			title TEXT,
			detail_url TEXT,
			pdf_path TEXT,
			first_seen TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS downloads (
			rowid INTEGER PRIMARY KEY AUTOINCREMENT,
			canonical_id TEXT NOT NULL REFERENCES papers(canonical_id),
			state TEXT NOT NULL,
			attempts INTEGER,
			error_kind TEXT,
			finished_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_downloads_canonical_id ON downloads(canonical_id)`,
		`CREATE TABLE IF NOT EXISTS collisions (
			canonical_id TEXT NOT NULL,
			detail_url TEXT NOT NULL,
			seen_at TEXT NOT NULL
		)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}
	return nil
}

// RecordPaper registers a record, keeping the first-seen row canonical.
// A later record with the same canonical id but a different detail URL is
// logged into the collisions table instead of overwriting. Returns true
// when the record collided with an existing one.
func (s *Store) RecordPaper(ctx context.Context, rec types.PaperRecord, pdfPath string) (collided bool, err error) {
	now := time.Now().UTC().Format(time.RFC3339)

	var existingDetail string
	err = s.db.QueryRowContext(ctx,
		`SELECT detail_url FROM papers WHERE canonical_id = ?`, rec.CanonicalID,
	).Scan(&existingDetail)

	switch {
	case err == sql.ErrNoRows:
		_, err = s.db.ExecContext(ctx,
			`INSERT INTO papers (canonical_id, conference, year, title, detail_url, pdf_path, first_seen)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			rec.CanonicalID, rec.Conference, rec.Year, rec.Title, rec.DetailURL, pdfPath, now,
		)
		return false, err
	case err != nil:
		return false, fmt.Errorf("querying paper: %w", err)
	}

	if existingDetail != rec.DetailURL {
		_, err = s.db.ExecContext(ctx,
			`INSERT INTO collisions (canonical_id, detail_url, seen_at) VALUES (?, ?, ?)`,
			rec.CanonicalID, rec.DetailURL, now,
		)
		return true, err
	}

	if pdfPath != "" {
		_, err = s.db.ExecContext(ctx,
			`UPDATE papers SET pdf_path = ? WHERE canonical_id = ?`, pdfPath, rec.CanonicalID)
	}
	return false, err
}

// RecordDownload appends one download outcome for a paper.
func (s *Store) RecordDownload(ctx context.Context, canonicalID, state string, attempts int, errorKind string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO downloads (canonical_id, state, attempts, error_kind, finished_at)
		 VALUES (?, ?, ?, ?, ?)`,
		canonicalID, state, attempts, errorKind, time.Now().UTC().Format(time.RFC3339),
	)
	return err
}

// Summary aggregates the ledger for the status command.
type Summary struct {
	Papers     int
	Collisions int
	ByState    map[string]int
}

// Summarize reports paper and download counts across all runs.
func (s *Store) Summarize(ctx context.Context) (Summary, error) {
	summary := Summary{ByState: make(map[string]int)}

	if err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM papers`).Scan(&summary.Papers); err != nil {
		return summary, fmt.Errorf("counting papers: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM collisions`).Scan(&summary.Collisions); err != nil {
		return summary, fmt.Errorf("counting collisions: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT state, count(*) FROM downloads GROUP BY state`)
	if err != nil {
		return summary, fmt.Errorf("counting downloads: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var state string
		var n int
		if err := rows.Scan(&state, &n); err != nil {
			return summary, err
		}
		summary.ByState[state] = n
	}
	return summary, rows.Err()
}

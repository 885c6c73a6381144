// Package store archives finished runs in a SQLite database so earlier
// results can be listed and reloaded. It is not crawl state: an interrupted
// crawl is not resumed from it.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/williampepple1/site-scraper/pkg/models"
)

// FileName is the database file created inside the store directory.
const FileName = "runs.db"

// ErrRunNotFound is returned by Result for an unknown run id.
var ErrRunNotFound = errors.New("run not found")

// DB is the run archive.
type DB struct {
	db   *sql.DB
	path string
}

// Run summarises one archived run.
type Run struct {
	ID        int64
	Mode      models.Mode
	URL       string
	CreatedAt time.Time
	Pages     int
}

// Open opens or creates the archive in dir.
func Open(dir string) (*DB, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}
	path := filepath.Join(dir, FileName)

	db, err := sql.Open("sqlite", path+"?mode=rwc")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	s := &DB{db: db, path: path}
	if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if err := s.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return s, nil
}

// Path returns the database file path.
func (s *DB) Path() string { return s.path }

// Close closes the database connection.
func (s *DB) Close() error {
	return s.db.Close()
}

func (s *DB) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		mode TEXT NOT NULL,
		url TEXT NOT NULL,
		created_at TEXT NOT NULL,
		result_json TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_runs_url ON runs(url);

	CREATE TABLE IF NOT EXISTS pages (
		run_id INTEGER NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		url TEXT NOT NULL,
		title TEXT,
		visited_at TEXT NOT NULL,
		PRIMARY KEY (run_id, url)
	);
	`
	_, err := s.db.ExecContext(context.Background(), schema)
	return err
}

// SaveRun stores out and, for crawl modes, one row per visited page. It
// returns the new run id.
func (s *DB) SaveRun(ctx context.Context, out *models.Output) (int64, error) {
	result, err := json.Marshal(out.Payload())
	if err != nil {
		return 0, fmt.Errorf("failed to serialize result: %w", err)
	}
	created := out.StartedAt
	if created.IsZero() {
		created = time.Now()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO runs (mode, url, created_at, result_json) VALUES (?, ?, ?, ?)`,
		string(out.Mode), out.URL, created.UTC().Format(time.RFC3339Nano), string(result))
	if err != nil {
		return 0, fmt.Errorf("failed to insert run: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get run id: %w", err)
	}

	if report := out.Pages(); report != nil {
		stmt, err := tx.PrepareContext(ctx, `INSERT INTO pages (run_id, url, title, visited_at) VALUES (?, ?, ?, ?)`)
		if err != nil {
			return 0, fmt.Errorf("failed to prepare page insert: %w", err)
		}
		defer stmt.Close()
		for u, rec := range report.Pages {
			var title sql.NullString
			if rec.Title != nil {
				title = sql.NullString{String: *rec.Title, Valid: true}
			}
			if _, err := stmt.ExecContext(ctx, id, u, title, rec.VisitedAt.UTC().Format(time.RFC3339Nano)); err != nil {
				return 0, fmt.Errorf("failed to insert page %s: %w", u, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit run: %w", err)
	}
	return id, nil
}

// ListRuns returns up to limit runs, newest first. A limit of zero or less
// returns every run.
func (s *DB) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = -1
	}
	query := `
	SELECT r.id, r.mode, r.url, r.created_at, COUNT(p.url)
	FROM runs r LEFT JOIN pages p ON p.run_id = r.id
	GROUP BY r.id
	ORDER BY r.id DESC
	LIMIT ?
	`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			r       Run
			mode    string
			created string
		)
		if err := rows.Scan(&r.ID, &mode, &r.URL, &created, &r.Pages); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		r.Mode = models.Mode(mode)
		r.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Result returns the stored JSON payload of run id.
func (s *DB) Result(ctx context.Context, id int64) (json.RawMessage, error) {
	var result string
	err := s.db.QueryRowContext(ctx, `SELECT result_json FROM runs WHERE id = ?`, id).Scan(&result)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %d", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return json.RawMessage(result), nil
}

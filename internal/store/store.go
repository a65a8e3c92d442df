// Package store is the console's local SQLite cache of run history and
// audit results, used when the backend cannot be reached.
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

	_ "github.com/mattn/go-sqlite3"

	"github.com/silkyclouds/Autokong/internal/models"
)

// ErrNotFound is returned when a cached record does not exist.
var ErrNotFound = errors.New("store: not found")

const schema = `
CREATE TABLE IF NOT EXISTS history (
	id           TEXT PRIMARY KEY,
	started_at   TEXT NOT NULL,
	finished_at  TEXT,
	status       TEXT NOT NULL,
	scope        TEXT,
	summary_json TEXT,
	cached_at    TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_history_started ON history(started_at DESC);

CREATE TABLE IF NOT EXISTS audits (
	job_id      TEXT PRIMARY KEY,
	result_json TEXT NOT NULL,
	cached_at   TIMESTAMP NOT NULL
);
`

// Store wraps the cache database.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the cache at path. ":memory:" gives a
// private in-memory cache.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
			return nil, fmt.Errorf("failed to create cache directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache: %w", err)
	}
	// one connection keeps ":memory:" a single database and serializes writers
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open cache: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize cache schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// withTransaction commits on success and rolls back on error.
func (s *Store) withTransaction(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// SaveHistory upserts entries.
func (s *Store) SaveHistory(ctx context.Context, entries []models.HistoryEntry) error {
	now := time.Now().UTC()
	return s.withTransaction(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO history (id, started_at, finished_at, status, scope, summary_json, cached_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				started_at = excluded.started_at,
				finished_at = excluded.finished_at,
				status = excluded.status,
				scope = excluded.scope,
				summary_json = excluded.summary_json,
				cached_at = excluded.cached_at
		`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, e := range entries {
			var summary sql.NullString
			if e.Summary != nil {
				data, err := json.Marshal(e.Summary)
				if err != nil {
					return fmt.Errorf("failed to encode summary for %s: %w", e.ID, err)
				}
				summary = sql.NullString{String: string(data), Valid: true}
			}
			if _, err := stmt.ExecContext(ctx,
				e.ID,
				e.StartedAt,
				nullString(e.FinishedAt),
				string(e.Status),
				e.Scope,
				summary,
				now,
			); err != nil {
				return fmt.Errorf("failed to cache history entry %s: %w", e.ID, err)
			}
		}
		return nil
	})
}

// LoadHistory returns up to limit cached entries, newest first.
func (s *Store) LoadHistory(ctx context.Context, limit int) ([]models.HistoryEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, started_at, finished_at, status, scope, summary_json
		FROM history
		ORDER BY started_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []models.HistoryEntry
	for rows.Next() {
		var (
			e        models.HistoryEntry
			finished sql.NullString
			scope    sql.NullString
			summary  sql.NullString
			status   string
		)
		if err := rows.Scan(&e.ID, &e.StartedAt, &finished, &status, &scope, &summary); err != nil {
			return nil, err
		}
		e.FinishedAt = finished.String
		e.Scope = scope.String
		e.Status = models.RunStatus(status)
		if summary.Valid {
			var p models.SummaryPayload
			if err := json.Unmarshal([]byte(summary.String), &p); err == nil {
				e.Summary = &p
			}
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// SaveAudit caches a mapped audit result for jobID.
func (s *Store) SaveAudit(ctx context.Context, jobID string, result *models.AuditResult) error {
	if result == nil {
		return nil
	}
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to encode audit: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO audits (job_id, result_json, cached_at) VALUES (?, ?, ?)
		ON CONFLICT(job_id) DO UPDATE SET result_json = excluded.result_json, cached_at = excluded.cached_at
	`, jobID, string(data), time.Now().UTC())
	return err
}

// LoadAudit returns the cached audit for jobID, or ErrNotFound.
func (s *Store) LoadAudit(ctx context.Context, jobID string) (*models.AuditResult, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT result_json FROM audits WHERE job_id = ?`, jobID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var result models.AuditResult
	if err := json.Unmarshal([]byte(data), &result); err != nil {
		return nil, fmt.Errorf("failed to decode cached audit: %w", err)
	}
	return &result, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

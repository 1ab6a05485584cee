// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package store persists sources, papers, chunks with their embeddings,
// ingest jobs, and cached query embeddings in SQLite.
//
// The database runs in WAL mode with a busy timeout so concurrent jobs wait
// on each other instead of failing. Papers are unique on
// (source_id, external_id); concurrent inserts of the same record converge
// on that constraint.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/HiNala/bio-hack-sub000/internal/apperr"
	"github.com/HiNala/bio-hack-sub000/internal/logger"
	"github.com/HiNala/bio-hack-sub000/pkg/types"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// busyRetryDelay is the pause before the single retry of a busy or locked
// operation.
var busyRetryDelay = 100 * time.Millisecond

// sourceURLs records the base URL stored with each catalog row.
var sourceURLs = map[string]string{
	types.SourceOpenAlex:        "https://api.openalex.org",
	types.SourceSemanticScholar: "https://api.semanticscholar.org",
}

// Store manages the SQLite database.
type Store struct {
	db  *sql.DB
	log *zap.Logger

	mu      sync.Mutex
	sources map[string]string // name → id
}

// New opens or creates the database at cfg.Path and creates the schema if
// it does not exist.
func New(cfg types.StoreConfig, log *zap.Logger) (*Store, error) {
	if cfg.Path == "" {
		return nil, apperr.Validation("store.path", "required")
	}
	if dir := filepath.Dir(cfg.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", cfg.Path+"?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=5000&_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Store{
		db:      db,
		log:     logger.OrNop(log),
		sources: make(map[string]string),
	}
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
		`CREATE TABLE IF NOT EXISTS sources (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL UNIQUE,
			base_url TEXT,
			is_active INTEGER NOT NULL DEFAULT 1,
			created_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS ingest_jobs (
			id TEXT PRIMARY KEY,
			status TEXT NOT NULL,
			original_query TEXT NOT NULL,
			parsed_queries TEXT,
			progress TEXT,
			error_message TEXT,
			failed_stage TEXT,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			completed_at TEXT,
			request TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_ingest_jobs_status ON ingest_jobs(status)`,
		`CREATE TABLE IF NOT EXISTS papers (
			id TEXT PRIMARY KEY,
			source_id TEXT NOT NULL REFERENCES sources(id),
			ingest_job_id TEXT REFERENCES ingest_jobs(id),
			external_id TEXT NOT NULL,
			doi TEXT,
			title TEXT NOT NULL,
			abstract TEXT,
			authors TEXT,
			year INTEGER,
			venue TEXT,
			topics TEXT,
			fields_of_study TEXT,
			citation_count INTEGER NOT NULL DEFAULT 0,
			pdf_url TEXT,
			landing_url TEXT,
			is_chunked INTEGER NOT NULL DEFAULT 0,
			is_embedded INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			UNIQUE(source_id, external_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_papers_doi ON papers(doi)`,
		`CREATE INDEX IF NOT EXISTS idx_papers_job ON papers(ingest_job_id)`,
		`CREATE TABLE IF NOT EXISTS chunks (
			id TEXT PRIMARY KEY,
			paper_id TEXT NOT NULL REFERENCES papers(id) ON DELETE CASCADE,
			text TEXT NOT NULL,
			chunk_index INTEGER NOT NULL,
			section TEXT,
			token_count INTEGER NOT NULL,
			char_count INTEGER NOT NULL,
			overlap_chars INTEGER NOT NULL DEFAULT 0,
			embedding BLOB,
			created_at TEXT NOT NULL,
			UNIQUE(paper_id, chunk_index)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_chunks_paper ON chunks(paper_id)`,
		`CREATE TABLE IF NOT EXISTS query_embeddings (
			key TEXT PRIMARY KEY,
			model TEXT NOT NULL,
			embedding BLOB NOT NULL,
			created_at TEXT NOT NULL
		)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}
	return s.addColumn("ingest_jobs", "request", "TEXT")
}

// addColumn adds column to a table created before the column existed.
func (s *Store) addColumn(table, column, decl string) error {
	rows, err := s.db.Query(`SELECT name FROM pragma_table_info(?)`, table)
	if err != nil {
		return fmt.Errorf("reading %s columns: %w", table, err)
	}
	defer rows.Close()
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return fmt.Errorf("reading %s columns: %w", table, err)
		}
		if name == column {
			return nil
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("reading %s columns: %w", table, err)
	}
	rows.Close()
	if _, err := s.db.Exec(fmt.Sprintf(`ALTER TABLE %s ADD COLUMN %s %s`, table, column, decl)); err != nil {
		return fmt.Errorf("adding %s.%s: %w", table, column, err)
	}
	return nil
}

// withRetry runs fn and retries it once when SQLite reports the database as
// busy or locked. Any remaining error is wrapped as a DatabaseError.
func (s *Store) withRetry(ctx context.Context, op string, fn func() error) error {
	err := fn()
	if transient(err) {
		s.log.Warn("database busy, retrying", zap.String("op", op), zap.Error(err))
		select {
		case <-ctx.Done():
			return apperr.Database(op, errors.Join(err, ctx.Err()))
		case <-time.After(busyRetryDelay):
		}
		err = fn()
	}
	if err == nil || errors.Is(err, ErrNotFound) {
		return err
	}
	return apperr.Database(op, err)
}

func transient(err error) bool {
	var se sqlite3.Error
	if !errors.As(err, &se) {
		return false
	}
	return se.Code == sqlite3.ErrBusy || se.Code == sqlite3.ErrLocked
}

// withTx runs fn inside a transaction, retrying the whole transaction once
// on a busy or locked database.
func (s *Store) withTx(ctx context.Context, op string, fn func(tx *sql.Tx) error) error {
	return s.withRetry(ctx, op, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("beginning transaction: %w", err)
		}
		defer tx.Rollback()
		if err := fn(tx); err != nil {
			return err
		}
		return tx.Commit()
	})
}

// ensureSource returns the id of the named catalog row, creating it on
// first use.
func (s *Store) ensureSource(ctx context.Context, name string) (string, error) {
	s.mu.Lock()
	id, ok := s.sources[name]
	s.mu.Unlock()
	if ok {
		return id, nil
	}

	err := s.withRetry(ctx, "ensure source", func() error {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO sources (id, name, base_url, is_active, created_at) VALUES (?, ?, ?, 1, ?)
			 ON CONFLICT(name) DO NOTHING`,
			newID(), name, nullString(sourceURLs[name]), formatTime(time.Now()))
		if err != nil {
			return fmt.Errorf("creating source %s: %w", name, err)
		}
		return s.db.QueryRowContext(ctx, `SELECT id FROM sources WHERE name = ?`, name).Scan(&id)
	})
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	s.sources[name] = id
	s.mu.Unlock()
	return id, nil
}

// Scope selects papers either by ingest job or by explicit ids. An empty
// scope selects every paper.
type Scope struct {
	JobID    string
	PaperIDs []string
}

// ForJob scopes to the papers stored by one job.
func ForJob(jobID string) Scope { return Scope{JobID: jobID} }

// ForPapers scopes to the given papers.
func ForPapers(ids ...string) Scope { return Scope{PaperIDs: ids} }

// where returns a condition on the papers alias p, always non-empty.
func (sc Scope) where() (string, []any) {
	var (
		conds []string
		args  []any
	)
	if sc.JobID != "" {
		conds = append(conds, "p.ingest_job_id = ?")
		args = append(args, sc.JobID)
	}
	if sc.PaperIDs != nil {
		if len(sc.PaperIDs) == 0 {
			conds = append(conds, "0")
		} else {
			conds = append(conds, "p.id IN ("+placeholders(len(sc.PaperIDs))+")")
			for _, id := range sc.PaperIDs {
				args = append(args, id)
			}
		}
	}
	if len(conds) == 0 {
		return "1=1", nil
	}
	return strings.Join(conds, " AND "), args
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat("?,", n-1) + "?"
}

// timeLayout keeps a fixed fraction width so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(v string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}
	}
	return t
}

func marshalList(v []string) string {
	if len(v) == 0 {
		return "[]"
	}
	data, _ := json.Marshal(v)
	return string(data)
}

func unmarshalList(v sql.NullString) []string {
	if !v.Valid || v.String == "" {
		return nil
	}
	var out []string
	if err := json.Unmarshal([]byte(v.String), &out); err != nil {
		return nil
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func nullString(v string) sql.NullString {
	return sql.NullString{String: v, Valid: v != ""}
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

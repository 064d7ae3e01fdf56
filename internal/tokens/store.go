// Package tokens implements the durable job-token store: one live record
// per external analysis job, linking the job id to its single-use
// orchestrator callback token. Backed by SQLite with TTL expiry as the
// safety net for jobs whose last shard never arrives.
package tokens

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

var (
	// ErrNotFound is returned by Get when no live token exists for a job.
	ErrNotFound = errors.New("job token not found")
	// ErrDuplicate is returned by Put when a live token already exists.
	ErrDuplicate = errors.New("job token already exists")
)

// JobToken links an external job id to a single-use orchestrator callback.
type JobToken struct {
	JobID          string
	CallbackToken  string
	FileType       string
	WorkflowID     string
	UserID         string
	SourceLocation string
	ExpiresAt      time.Time
}

// Store persists job tokens in SQLite.
type Store struct {
	db  *sql.DB
	log *slog.Logger

	// now is swappable for TTL tests.
	now func() time.Time
}

const schema = `
CREATE TABLE IF NOT EXISTS job_tokens (
	job_id          TEXT PRIMARY KEY,
	callback_token  TEXT NOT NULL,
	file_type       TEXT NOT NULL DEFAULT '',
	workflow_id     TEXT NOT NULL DEFAULT '',
	user_id         TEXT NOT NULL DEFAULT '',
	source_location TEXT NOT NULL DEFAULT '',
	expires_at      INTEGER NOT NULL
);
`

// Open opens (creating if needed) a token store at path.
func Open(path string, logger *slog.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open token store: %w", err)
	}
	// Single writer avoids SQLITE_BUSY under concurrent event handling.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to init token store schema: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: db, log: logger, now: time.Now}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Put inserts a token. It fails with ErrDuplicate when a live token already
// exists for the job id. An expired leftover row does not block insertion.
func (s *Store) Put(ctx context.Context, tok JobToken) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin token insert: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM job_tokens WHERE job_id = ? AND expires_at <= ?`,
		tok.JobID, s.now().Unix(),
	); err != nil {
		return fmt.Errorf("failed to clear expired token: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO job_tokens
		 (job_id, callback_token, file_type, workflow_id, user_id, source_location, expires_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		tok.JobID, tok.CallbackToken, tok.FileType, tok.WorkflowID,
		tok.UserID, tok.SourceLocation, tok.ExpiresAt.Unix(),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return fmt.Errorf("job %s: %w", tok.JobID, ErrDuplicate)
		}
		return fmt.Errorf("failed to insert token: %w", err)
	}
	return tx.Commit()
}

// Get returns the live token for jobID, or ErrNotFound when absent or
// expired.
func (s *Store) Get(ctx context.Context, jobID string) (JobToken, error) {
	var tok JobToken
	var exp int64
	err := s.db.QueryRowContext(ctx,
		`SELECT job_id, callback_token, file_type, workflow_id, user_id, source_location, expires_at
		 FROM job_tokens WHERE job_id = ? AND expires_at > ?`,
		jobID, s.now().Unix(),
	).Scan(&tok.JobID, &tok.CallbackToken, &tok.FileType, &tok.WorkflowID,
		&tok.UserID, &tok.SourceLocation, &exp)
	if errors.Is(err, sql.ErrNoRows) {
		return JobToken{}, fmt.Errorf("job %s: %w", jobID, ErrNotFound)
	}
	if err != nil {
		return JobToken{}, fmt.Errorf("failed to read token: %w", err)
	}
	tok.ExpiresAt = time.Unix(exp, 0)
	return tok, nil
}

// Delete removes the token for jobID. Deleting an absent key is not an
// error.
func (s *Store) Delete(ctx context.Context, jobID string) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM job_tokens WHERE job_id = ?`, jobID,
	); err != nil {
		return fmt.Errorf("failed to delete token: %w", err)
	}
	return nil
}

// Claim conditionally deletes the token for jobID and reports whether this
// caller removed it. It is the best-effort single-use gate: of two
// concurrent completions, only one observes claimed=true.
func (s *Store) Claim(ctx context.Context, jobID string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM job_tokens WHERE job_id = ?`, jobID,
	)
	if err != nil {
		return false, fmt.Errorf("failed to claim token: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read claim result: %w", err)
	}
	return n > 0, nil
}

// PurgeExpired removes all expired tokens and returns how many were
// reclaimed. Jobs reclaimed here never signaled; the orchestrator-level
// timeout is the authoritative failure path for them.
func (s *Store) PurgeExpired(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM job_tokens WHERE expires_at <= ?`, s.now().Unix(),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to purge expired tokens: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read purge result: %w", err)
	}
	if n > 0 {
		s.log.Info("purged expired job tokens", "count", n)
	}
	return n, nil
}

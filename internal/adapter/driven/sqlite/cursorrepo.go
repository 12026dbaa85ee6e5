package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/crewbot-dev/crewbot/internal/domain/model"
	"github.com/crewbot-dev/crewbot/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.CursorStore = (*CursorRepo)(nil)

// CursorRepo is the SQLite implementation of the CursorStore port interface.
type CursorRepo struct {
	db *DB
}

// NewCursorRepo creates a new CursorRepo backed by the given DB.
func NewCursorRepo(db *DB) *CursorRepo {
	return &CursorRepo{db: db}
}

// Get returns the poll cursor for a repository. A repository that has never
// been polled yields a zero cursor with RepoID set and RateRemaining -1.
func (r *CursorRepo) Get(ctx context.Context, repoID string) (model.PollCursor, error) {
	const query = `SELECT repo_id, open_etag, closed_etag, last_merged_at, last_poll_at, rate_remaining, rate_reset_at
		FROM poll_cursors WHERE repo_id = ?`

	var cursor model.PollCursor
	var lastMergedAt, lastPollAt, rateResetAt string

	err := r.db.Reader.QueryRowContext(ctx, query, repoID).Scan(
		&cursor.RepoID, &cursor.OpenETag, &cursor.ClosedETag,
		&lastMergedAt, &lastPollAt, &cursor.RateRemaining, &rateResetAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return model.PollCursor{RepoID: repoID, RateRemaining: -1}, nil
	}
	if err != nil {
		return model.PollCursor{}, fmt.Errorf("get cursor %s: %w", repoID, err)
	}

	if cursor.LastMergedAt, err = parseTimeOrZero(lastMergedAt); err != nil {
		return model.PollCursor{}, fmt.Errorf("parse last_merged_at: %w", err)
	}
	if cursor.LastPollAt, err = parseTimeOrZero(lastPollAt); err != nil {
		return model.PollCursor{}, fmt.Errorf("parse last_poll_at: %w", err)
	}
	if cursor.RateResetAt, err = parseTimeOrZero(rateResetAt); err != nil {
		return model.PollCursor{}, fmt.Errorf("parse rate_reset_at: %w", err)
	}

	return cursor, nil
}

// Put inserts or replaces the poll cursor for a repository. Called after
// every poll attempt regardless of outcome.
func (r *CursorRepo) Put(ctx context.Context, cursor model.PollCursor) error {
	const query = `
		INSERT INTO poll_cursors (repo_id, open_etag, closed_etag, last_merged_at, last_poll_at, rate_remaining, rate_reset_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(repo_id) DO UPDATE SET
			open_etag = excluded.open_etag,
			closed_etag = excluded.closed_etag,
			last_merged_at = excluded.last_merged_at,
			last_poll_at = excluded.last_poll_at,
			rate_remaining = excluded.rate_remaining,
			rate_reset_at = excluded.rate_reset_at
	`

	_, err := r.db.Writer.ExecContext(ctx, query,
		cursor.RepoID, cursor.OpenETag, cursor.ClosedETag,
		formatTimeOrEmpty(cursor.LastMergedAt), formatTimeOrEmpty(cursor.LastPollAt),
		cursor.RateRemaining, formatTimeOrEmpty(cursor.RateResetAt),
	)
	if err != nil {
		return fmt.Errorf("put cursor %s: %w", cursor.RepoID, err)
	}

	return nil
}

package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/crewbot-dev/crewbot/internal/domain/model"
	"github.com/crewbot-dev/crewbot/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.LeaseStore = (*LeaseRepo)(nil)

// LeaseRepo is the SQLite implementation of the LeaseStore port interface.
// Acquisition is a single upsert whose conflict clause only fires when the
// existing lease has expired, so the exactly-one-unexpired-lease invariant
// holds under concurrent acquisition from independent processes.
type LeaseRepo struct {
	db *DB

	// now is swappable for expiry tests.
	now func() time.Time
}

// NewLeaseRepo creates a new LeaseRepo backed by the given DB.
func NewLeaseRepo(db *DB) *LeaseRepo {
	return &LeaseRepo{db: db, now: time.Now}
}

// leaseTimeFormat is fixed-width UTC so the SQL expiry predicate can compare
// timestamps lexicographically.
const leaseTimeFormat = "2006-01-02T15:04:05.000000000Z"

// Acquire attempts to take the repository lease for ttl. It is a single
// non-blocking compare-and-swap: on success it returns a fresh holder token;
// when an unexpired lease exists it returns ErrLeaseBusy immediately.
func (r *LeaseRepo) Acquire(ctx context.Context, repoID string, ttl time.Duration) (string, error) {
	const query = `
		INSERT INTO leases (repo_id, holder_token, acquired_at, expires_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(repo_id) DO UPDATE SET
			holder_token = excluded.holder_token,
			acquired_at = excluded.acquired_at,
			expires_at = excluded.expires_at
		WHERE leases.expires_at <= excluded.acquired_at
	`

	token := uuid.NewString()
	now := r.now().UTC()

	result, err := r.db.Writer.ExecContext(ctx, query,
		repoID, token, now.Format(leaseTimeFormat), now.Add(ttl).Format(leaseTimeFormat))
	if err != nil {
		return "", fmt.Errorf("acquire lease %s: %w", repoID, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return "", fmt.Errorf("check rows affected: %w", err)
	}
	if rows == 0 {
		return "", fmt.Errorf("acquire lease %s: %w", repoID, driven.ErrLeaseBusy)
	}

	return token, nil
}

// Release destroys the lease if holderToken still owns it. A stale token
// (the lease expired and a new holder acquired) is a no-op, never an error.
func (r *LeaseRepo) Release(ctx context.Context, repoID, holderToken string) error {
	const query = `DELETE FROM leases WHERE repo_id = ? AND holder_token = ?`

	if _, err := r.db.Writer.ExecContext(ctx, query, repoID, holderToken); err != nil {
		return fmt.Errorf("release lease %s: %w", repoID, err)
	}
	return nil
}

// Get returns the current lease row for a repository, expired or not.
// Returns nil, nil when no lease row exists.
func (r *LeaseRepo) Get(ctx context.Context, repoID string) (*model.Lease, error) {
	const query = `SELECT repo_id, holder_token, acquired_at, expires_at FROM leases WHERE repo_id = ?`

	var lease model.Lease
	var acquiredAt, expiresAt string
	err := r.db.Reader.QueryRowContext(ctx, query, repoID).Scan(&lease.RepoID, &lease.HolderToken, &acquiredAt, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get lease %s: %w", repoID, err)
	}

	if lease.AcquiredAt, err = parseTime(acquiredAt); err != nil {
		return nil, fmt.Errorf("parse acquired_at: %w", err)
	}
	if lease.ExpiresAt, err = parseTime(expiresAt); err != nil {
		return nil, fmt.Errorf("parse expires_at: %w", err)
	}

	return &lease, nil
}

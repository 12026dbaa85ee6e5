package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/crewbot-dev/crewbot/internal/domain/model"
	"github.com/crewbot-dev/crewbot/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.DeliveryStore = (*DeliveryRepo)(nil)

// DeliveryRepo is the SQLite implementation of the DeliveryStore port: a
// write-once append log keyed by (repo_id, delivery_id). The primary key
// backs the at-most-once invariant under concurrent writers.
type DeliveryRepo struct {
	db *DB
}

// NewDeliveryRepo creates a new DeliveryRepo backed by the given DB.
func NewDeliveryRepo(db *DB) *DeliveryRepo {
	return &DeliveryRepo{db: db}
}

// Get returns the record for a processed delivery, or nil when the delivery
// is novel.
func (r *DeliveryRepo) Get(ctx context.Context, repoID, deliveryID string) (*model.DeliveryRecord, error) {
	const query = `SELECT repo_id, delivery_id, fingerprint, outcome, processed_at
		FROM deliveries WHERE repo_id = ? AND delivery_id = ?`

	rec, err := scanDelivery(r.db.Reader.QueryRowContext(ctx, query, repoID, deliveryID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get delivery %s/%s: %w", repoID, deliveryID, err)
	}

	return rec, nil
}

// Record appends a processed delivery. The insert is do-nothing on conflict:
// when a concurrent writer already recorded the delivery, the winner's
// record is returned with inserted=false and the caller replays its outcome.
func (r *DeliveryRepo) Record(ctx context.Context, rec model.DeliveryRecord) (*model.DeliveryRecord, bool, error) {
	const query = `
		INSERT INTO deliveries (repo_id, delivery_id, fingerprint, outcome, processed_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(repo_id, delivery_id) DO NOTHING
	`

	processedAt := rec.ProcessedAt
	if processedAt.IsZero() {
		processedAt = time.Now().UTC()
	}

	result, err := r.db.Writer.ExecContext(ctx, query,
		rec.RepoID, rec.DeliveryID, rec.Fingerprint, rec.Outcome, processedAt.UTC())
	if err != nil {
		return nil, false, fmt.Errorf("record delivery %s/%s: %w", rec.RepoID, rec.DeliveryID, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("check rows affected: %w", err)
	}
	if rows == 1 {
		return nil, true, nil
	}

	existing, err := r.Get(ctx, rec.RepoID, rec.DeliveryID)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

func scanDelivery(s scanner) (*model.DeliveryRecord, error) {
	var rec model.DeliveryRecord
	var processedAt string

	err := s.Scan(&rec.RepoID, &rec.DeliveryID, &rec.Fingerprint, &rec.Outcome, &processedAt)
	if err != nil {
		return nil, err
	}

	if rec.ProcessedAt, err = parseTime(processedAt); err != nil {
		return nil, fmt.Errorf("parse processed_at: %w", err)
	}

	return &rec, nil
}

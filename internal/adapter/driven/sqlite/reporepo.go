package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/crewbot-dev/crewbot/internal/domain/model"
	"github.com/crewbot-dev/crewbot/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.RepoStore = (*RepoRepo)(nil)

// RepoRepo is the SQLite implementation of the RepoStore port interface.
type RepoRepo struct {
	db *DB
}

// NewRepoRepo creates a new RepoRepo backed by the given DB.
func NewRepoRepo(db *DB) *RepoRepo {
	return &RepoRepo{db: db}
}

const repoColumns = `id, owner, name, default_branch, mode, webhook_secret, created_at, updated_at`

// Register inserts a new repository configuration. Returns ErrDuplicateRepo
// when a repository with the same owner/name (or derived id) already exists.
func (r *RepoRepo) Register(ctx context.Context, cfg model.RepoConfig) (model.RepoConfig, error) {
	const query = `INSERT INTO repos (id, owner, name, default_branch, mode, webhook_secret, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	now := time.Now().UTC()
	cfg.ID = model.DeriveRepoID(cfg.Owner, cfg.Name)
	if cfg.DefaultBranch == "" {
		cfg.DefaultBranch = "main"
	}
	if cfg.Mode == "" {
		cfg.Mode = model.ModeObserve
	}
	cfg.CreatedAt = now
	cfg.UpdatedAt = now

	_, err := r.db.Writer.ExecContext(ctx, query,
		cfg.ID, cfg.Owner, cfg.Name, cfg.DefaultBranch, string(cfg.Mode), cfg.WebhookSecret,
		cfg.CreatedAt, cfg.UpdatedAt,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint") {
			return model.RepoConfig{}, fmt.Errorf("register repository %s: %w", cfg.FullName(), driven.ErrDuplicateRepo)
		}
		return model.RepoConfig{}, fmt.Errorf("register repository %s: %w", cfg.FullName(), err)
	}

	return cfg, nil
}

// Get retrieves a repository configuration by id. Returns ErrRepoNotFound
// when the id is not registered.
func (r *RepoRepo) Get(ctx context.Context, id string) (*model.RepoConfig, error) {
	query := `SELECT ` + repoColumns + ` FROM repos WHERE id = ?`

	cfg, err := scanRepoConfig(r.db.Reader.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get repository %s: %w", id, driven.ErrRepoNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get repository %s: %w", id, err)
	}

	return cfg, nil
}

// List returns all registered repositories ordered by id.
func (r *RepoRepo) List(ctx context.Context) ([]model.RepoConfig, error) {
	query := `SELECT ` + repoColumns + ` FROM repos ORDER BY id`

	rows, err := r.db.Reader.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list repositories: %w", err)
	}
	defer rows.Close()

	var repos []model.RepoConfig
	for rows.Next() {
		cfg, err := scanRepoConfig(rows)
		if err != nil {
			return nil, fmt.Errorf("scan repository: %w", err)
		}
		repos = append(repos, *cfg)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate repositories: %w", err)
	}

	return repos, nil
}

// Patch updates the mutable fields of a registered repository. Nil fields
// are left unchanged. Owner and name are immutable post-registration.
func (r *RepoRepo) Patch(ctx context.Context, id string, mode *model.RepoMode, webhookSecret *string) (*model.RepoConfig, error) {
	sets := []string{"updated_at = ?"}
	args := []any{time.Now().UTC()}

	if mode != nil {
		sets = append(sets, "mode = ?")
		args = append(args, string(*mode))
	}
	if webhookSecret != nil {
		sets = append(sets, "webhook_secret = ?")
		args = append(args, *webhookSecret)
	}
	args = append(args, id)

	query := `UPDATE repos SET ` + strings.Join(sets, ", ") + ` WHERE id = ?`

	result, err := r.db.Writer.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("patch repository %s: %w", id, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("check rows affected: %w", err)
	}
	if rows == 0 {
		return nil, fmt.Errorf("patch repository %s: %w", id, driven.ErrRepoNotFound)
	}

	return r.Get(ctx, id)
}

// SetMode changes only the operating mode of a repository. The new mode
// takes effect on the next trigger.
func (r *RepoRepo) SetMode(ctx context.Context, id string, mode model.RepoMode) error {
	_, err := r.Patch(ctx, id, &mode, nil)
	return err
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanRepoConfig(s scanner) (*model.RepoConfig, error) {
	var cfg model.RepoConfig
	var mode, createdAt, updatedAt string

	err := s.Scan(&cfg.ID, &cfg.Owner, &cfg.Name, &cfg.DefaultBranch, &mode, &cfg.WebhookSecret, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	cfg.Mode = model.RepoMode(mode)

	if cfg.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if cfg.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}

	return &cfg, nil
}

// parseTime tries multiple SQLite datetime formats.
func parseTime(s string) (time.Time, error) {
	formats := []string{
		"2006-01-02T15:04:05Z",
		"2006-01-02 15:04:05",
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05.000",
		time.RFC3339,
		time.RFC3339Nano,
	}

	for _, format := range formats {
		if t, err := time.Parse(format, s); err == nil {
			return t, nil
		}
	}

	return time.Time{}, fmt.Errorf("unrecognized time format: %s", s)
}

// parseTimeOrZero treats the empty string as the zero time; used for
// nullable watermark columns.
func parseTimeOrZero(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return parseTime(s)
}

// formatTimeOrEmpty renders t as RFC3339 UTC, or "" for the zero time.
func formatTimeOrEmpty(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

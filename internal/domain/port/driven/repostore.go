// Package driven defines the outbound port interfaces the application layer
// depends on, implemented by the sqlite and github adapters.
package driven

import (
	"context"
	"errors"

	"github.com/crewbot-dev/crewbot/internal/domain/model"
)

// Sentinel errors returned by RepoStore implementations.
var (
	// ErrRepoNotFound indicates the requested repository is not registered.
	ErrRepoNotFound = errors.New("repository not found")

	// ErrDuplicateRepo indicates a repository with the same owner/name is
	// already registered.
	ErrDuplicateRepo = errors.New("repository already registered")
)

// RepoStore is the durable catalog of tracked repositories. Register returns
// ErrDuplicateRepo on an owner/name collision; Get and Patch return
// ErrRepoNotFound for unknown ids. Patch may change only mode and webhook
// secret; owner and name are immutable post-registration.
type RepoStore interface {
	Register(ctx context.Context, cfg model.RepoConfig) (model.RepoConfig, error)
	Get(ctx context.Context, id string) (*model.RepoConfig, error)
	List(ctx context.Context) ([]model.RepoConfig, error)
	Patch(ctx context.Context, id string, mode *model.RepoMode, webhookSecret *string) (*model.RepoConfig, error)
	SetMode(ctx context.Context, id string, mode model.RepoMode) error
}

package driven

import (
	"context"

	"github.com/crewbot-dev/crewbot/internal/domain/model"
)

// CursorStore persists one PollCursor per repository. Get returns a zero
// cursor (with RepoID set) for repositories that have never been polled.
type CursorStore interface {
	Get(ctx context.Context, repoID string) (model.PollCursor, error)
	Put(ctx context.Context, cursor model.PollCursor) error
}

package driven

import (
	"context"
	"errors"
	"time"

	"github.com/crewbot-dev/crewbot/internal/domain/model"
)

// ErrLeaseBusy indicates an unexpired lease is already held for the
// repository. It is an expected concurrency outcome, not a failure; callers
// decide whether to retry.
var ErrLeaseBusy = errors.New("repository lease held")

// LeaseStore grants mutually-exclusive, time-bounded execution rights per
// repository. Acquire is a single non-blocking compare-and-swap attempt:
// it succeeds only when no unexpired lease exists and never queues the
// caller. Release is a no-op when the token does not match the current
// holder, protecting against a timed-out holder releasing a successor's
// lease. Correctness must hold across independent processes sharing the
// store.
type LeaseStore interface {
	Acquire(ctx context.Context, repoID string, ttl time.Duration) (holderToken string, err error)
	Release(ctx context.Context, repoID, holderToken string) error
	Get(ctx context.Context, repoID string) (*model.Lease, error)
}

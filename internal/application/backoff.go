package application

import (
	"time"

	"github.com/crewbot-dev/crewbot/internal/domain/model"
)

// BackoffPolicy computes safe polling intervals from the remote rate budget
// snapshot. It is a closed-loop controller, not a fixed-rate timer: the
// interval stretches from Active toward Max as the remaining budget drops
// below Floor, and never undercuts the time left until the budget resets
// once it is exhausted.
type BackoffPolicy struct {
	Active time.Duration // interval while the budget is healthy
	Max    time.Duration // interval as the budget approaches zero
	Floor  int           // remaining-request threshold that starts the backoff
}

// NextInterval returns the suggested wait before the next poll of a repo
// with the given cursor. The result is never below Active and grows
// monotonically as RateRemaining falls below Floor. A cursor that has
// never seen rate metadata (RateRemaining < 0) polls at the active rate.
func (p BackoffPolicy) NextInterval(cursor model.PollCursor, now time.Time) time.Duration {
	if p.Floor <= 0 || cursor.RateRemaining < 0 || cursor.RateRemaining >= p.Floor {
		return p.Active
	}

	span := p.Max - p.Active
	if span < 0 {
		span = 0
	}
	used := float64(p.Floor-cursor.RateRemaining) / float64(p.Floor)
	interval := p.Active + time.Duration(used*float64(span))

	if cursor.RateRemaining == 0 {
		if wait := cursor.RateResetAt.Sub(now); wait > interval {
			interval = wait
		}
	}

	return interval
}

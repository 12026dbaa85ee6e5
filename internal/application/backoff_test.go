package application_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/crewbot-dev/crewbot/internal/application"
	"github.com/crewbot-dev/crewbot/internal/domain/model"
)

func testPolicy() application.BackoffPolicy {
	return application.BackoffPolicy{
		Active: 5 * time.Minute,
		Max:    30 * time.Minute,
		Floor:  200,
	}
}

func cursorWithRate(remaining int) model.PollCursor {
	return model.PollCursor{RepoID: "octo_widgets", RateRemaining: remaining}
}

func TestNextInterval_HealthyBudgetPollsAtActiveRate(t *testing.T) {
	p := testPolicy()
	now := time.Now()

	assert.Equal(t, p.Active, p.NextInterval(cursorWithRate(5000), now))
	assert.Equal(t, p.Active, p.NextInterval(cursorWithRate(200), now))
}

func TestNextInterval_UnknownBudgetPollsAtActiveRate(t *testing.T) {
	p := testPolicy()

	assert.Equal(t, p.Active, p.NextInterval(cursorWithRate(-1), time.Now()))
}

func TestNextInterval_NeverBelowActiveFloor(t *testing.T) {
	p := testPolicy()
	now := time.Now()

	for _, remaining := range []int{-1, 0, 1, 50, 199, 200, 5000} {
		assert.GreaterOrEqual(t, p.NextInterval(cursorWithRate(remaining), now), p.Active,
			"remaining=%d", remaining)
	}
}

func TestNextInterval_MonotonicBelowFloor(t *testing.T) {
	p := testPolicy()
	now := time.Now()

	prev := p.NextInterval(cursorWithRate(199), now)
	for remaining := 198; remaining >= 0; remaining-- {
		next := p.NextInterval(cursorWithRate(remaining), now)
		assert.GreaterOrEqual(t, next, prev, "remaining=%d", remaining)
		prev = next
	}
}

func TestNextInterval_ExhaustedBudgetWaitsForReset(t *testing.T) {
	p := testPolicy()
	now := time.Now()

	cursor := cursorWithRate(0)
	cursor.RateResetAt = now.Add(45 * time.Minute)

	assert.Equal(t, 45*time.Minute, p.NextInterval(cursor, now))
}

func TestNextInterval_ExhaustedButResetImminent(t *testing.T) {
	p := testPolicy()
	now := time.Now()

	// Reset sooner than the backed-off interval: keep the longer wait.
	cursor := cursorWithRate(0)
	cursor.RateResetAt = now.Add(time.Minute)

	assert.Equal(t, p.Max, p.NextInterval(cursor, now))
}

package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crewbot-dev/crewbot/internal/domain/model"
)

func TestCursorRepo_Get_NeverPolled(t *testing.T) {
	db := setupTestDB(t)
	repoID := registerTestRepo(t, db, "octocat", "hello-world", model.ModePR)
	cursors := NewCursorRepo(db)

	cursor, err := cursors.Get(context.Background(), repoID)
	require.NoError(t, err)
	assert.Equal(t, repoID, cursor.RepoID)
	assert.Empty(t, cursor.OpenETag)
	assert.Equal(t, -1, cursor.RateRemaining, "unknown budget is -1, not 0")
	assert.True(t, cursor.LastPollAt.IsZero())
}

func TestCursorRepo_PutRoundTrip(t *testing.T) {
	db := setupTestDB(t)
	repoID := registerTestRepo(t, db, "octocat", "hello-world", model.ModePR)
	cursors := NewCursorRepo(db)
	ctx := context.Background()

	want := model.PollCursor{
		RepoID:        repoID,
		OpenETag:      `W/"open-etag"`,
		ClosedETag:    `W/"closed-etag"`,
		LastMergedAt:  time.Date(2026, 2, 10, 12, 0, 0, 0, time.UTC),
		LastPollAt:    time.Date(2026, 2, 10, 12, 5, 0, 0, time.UTC),
		RateRemaining: 4321,
		RateResetAt:   time.Date(2026, 2, 10, 13, 0, 0, 0, time.UTC),
	}
	require.NoError(t, cursors.Put(ctx, want))

	got, err := cursors.Get(ctx, repoID)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	// Put is an upsert: a later poll overwrites in place.
	want.RateRemaining = 17
	want.LastPollAt = want.LastPollAt.Add(5 * time.Minute)
	require.NoError(t, cursors.Put(ctx, want))

	got, err = cursors.Get(ctx, repoID)
	require.NoError(t, err)
	assert.Equal(t, 17, got.RateRemaining)
	assert.Equal(t, want.LastPollAt, got.LastPollAt)
}

package sqlite

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crewbot-dev/crewbot/internal/domain/model"
	"github.com/crewbot-dev/crewbot/internal/domain/port/driven"
)

func TestTaskRepo_UpsertAndGet(t *testing.T) {
	db := setupTestDB(t)
	repoID := registerTestRepo(t, db, "octocat", "hello-world", model.ModePR)
	tasks := NewTaskRepo(db)
	ctx := context.Background()

	task := makeTask(repoID, "T-0001", "Initialize basic CI")
	task.Acceptance = []string{"CI runs on pull_request", "smoke test passes"}
	task.Estimate = "2h"
	task.AutoPolicy = "review_required"
	require.NoError(t, tasks.Upsert(ctx, task))

	got, err := tasks.Get(ctx, repoID, "T-0001")
	require.NoError(t, err)
	assert.Equal(t, "Initialize basic CI", got.Title)
	assert.Equal(t, model.StatusQueued, got.Status)
	assert.Equal(t, []string{"CI runs on pull_request", "smoke test passes"}, got.Acceptance)
	assert.Equal(t, "review_required", got.AutoPolicy)
	assert.Nil(t, got.Order)
}

func TestTaskRepo_Get_NotFound(t *testing.T) {
	db := setupTestDB(t)
	repoID := registerTestRepo(t, db, "octocat", "hello-world", model.ModePR)
	tasks := NewTaskRepo(db)

	_, err := tasks.Get(context.Background(), repoID, "T-9999")
	assert.ErrorIs(t, err, driven.ErrTaskNotFound)
}

func TestTaskRepo_SetStatus_ValidPath(t *testing.T) {
	db := setupTestDB(t)
	repoID := registerTestRepo(t, db, "octocat", "hello-world", model.ModePR)
	tasks := NewTaskRepo(db)
	ctx := context.Background()

	require.NoError(t, tasks.Upsert(ctx, makeTask(repoID, "T-0001", "Initialize basic CI")))

	require.NoError(t, tasks.SetStatus(ctx, repoID, "T-0001", model.StatusInReview))
	require.NoError(t, tasks.SetStatus(ctx, repoID, "T-0001", model.StatusDone))

	got, err := tasks.Get(ctx, repoID, "T-0001")
	require.NoError(t, err)
	assert.Equal(t, model.StatusDone, got.Status)
}

func TestTaskRepo_SetStatus_RejectsSkips(t *testing.T) {
	db := setupTestDB(t)
	repoID := registerTestRepo(t, db, "octocat", "hello-world", model.ModePR)
	tasks := NewTaskRepo(db)
	ctx := context.Background()

	require.NoError(t, tasks.Upsert(ctx, makeTask(repoID, "T-0001", "Initialize basic CI")))

	// queued -> done skips in_review.
	err := tasks.SetStatus(ctx, repoID, "T-0001", model.StatusDone)
	assert.ErrorIs(t, err, driven.ErrInvalidTransition)

	// done is terminal.
	require.NoError(t, tasks.SetStatus(ctx, repoID, "T-0001", model.StatusInReview))
	require.NoError(t, tasks.SetStatus(ctx, repoID, "T-0001", model.StatusDone))
	err = tasks.SetStatus(ctx, repoID, "T-0001", model.StatusQueued)
	assert.ErrorIs(t, err, driven.ErrInvalidTransition)
}

func TestTaskRepo_SetStatus_BlockedRoundTrip(t *testing.T) {
	db := setupTestDB(t)
	repoID := registerTestRepo(t, db, "octocat", "hello-world", model.ModePR)
	tasks := NewTaskRepo(db)
	ctx := context.Background()

	require.NoError(t, tasks.Upsert(ctx, makeTask(repoID, "T-0001", "Initialize basic CI")))

	require.NoError(t, tasks.SetStatus(ctx, repoID, "T-0001", model.StatusBlocked))
	require.NoError(t, tasks.SetStatus(ctx, repoID, "T-0001", model.StatusQueued))

	got, err := tasks.Get(ctx, repoID, "T-0001")
	require.NoError(t, err)
	assert.Equal(t, model.StatusQueued, got.Status)
}

func TestTaskRepo_ReplaceAll(t *testing.T) {
	db := setupTestDB(t)
	repoID := registerTestRepo(t, db, "octocat", "hello-world", model.ModePR)
	tasks := NewTaskRepo(db)
	ctx := context.Background()

	require.NoError(t, tasks.Upsert(ctx, makeTask(repoID, "T-0001", "old snapshot")))

	fresh := []model.Task{
		makeTask(repoID, "T-0001", "Initialize basic CI"),
		makeTask(repoID, "T-0002", "Add linting", "T-0001"),
	}
	require.NoError(t, tasks.ReplaceAll(ctx, repoID, fresh))

	all, err := tasks.ListByRepo(ctx, repoID)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "Initialize basic CI", all[0].Title)
	assert.Equal(t, []string{"T-0001"}, all[1].DependsOn)
}

func TestTaskRepo_NextID(t *testing.T) {
	db := setupTestDB(t)
	repoID := registerTestRepo(t, db, "octocat", "hello-world", model.ModePR)
	tasks := NewTaskRepo(db)
	ctx := context.Background()

	id, err := tasks.NextID(ctx, repoID)
	require.NoError(t, err)
	assert.Equal(t, "T-0001", id, "empty backlog starts at T-0001")

	require.NoError(t, tasks.Upsert(ctx, makeTask(repoID, "T-0003", "gap in ids")))

	id, err = tasks.NextID(ctx, repoID)
	require.NoError(t, err)
	assert.Equal(t, "T-0004", id, "ids are monotonic past the highest seen")
}

package sqlite

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crewbot-dev/crewbot/internal/domain/model"
	"github.com/crewbot-dev/crewbot/internal/domain/port/driven"
)

func TestLeaseRepo_AcquireRelease(t *testing.T) {
	db := setupTestDB(t)
	repoID := registerTestRepo(t, db, "octocat", "hello-world", model.ModePR)
	leases := NewLeaseRepo(db)
	ctx := context.Background()

	token, err := leases.Acquire(ctx, repoID, time.Minute)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	lease, err := leases.Get(ctx, repoID)
	require.NoError(t, err)
	require.NotNil(t, lease)
	assert.Equal(t, token, lease.HolderToken)
	assert.False(t, lease.Expired(time.Now()))

	require.NoError(t, leases.Release(ctx, repoID, token))

	lease, err = leases.Get(ctx, repoID)
	require.NoError(t, err)
	assert.Nil(t, lease, "released lease row should be gone")
}

func TestLeaseRepo_Acquire_Busy(t *testing.T) {
	db := setupTestDB(t)
	repoID := registerTestRepo(t, db, "octocat", "hello-world", model.ModePR)
	leases := NewLeaseRepo(db)
	ctx := context.Background()

	_, err := leases.Acquire(ctx, repoID, time.Minute)
	require.NoError(t, err)

	_, err = leases.Acquire(ctx, repoID, time.Minute)
	assert.ErrorIs(t, err, driven.ErrLeaseBusy)
}

func TestLeaseRepo_Acquire_AfterExpiry(t *testing.T) {
	db := setupTestDB(t)
	repoID := registerTestRepo(t, db, "octocat", "hello-world", model.ModePR)
	leases := NewLeaseRepo(db)
	ctx := context.Background()

	past := time.Now().Add(-10 * time.Minute)
	leases.now = func() time.Time { return past }
	stale, err := leases.Acquire(ctx, repoID, time.Minute)
	require.NoError(t, err)

	// The stale holder's lease lapsed; a new holder takes over without any
	// explicit release.
	leases.now = time.Now
	fresh, err := leases.Acquire(ctx, repoID, time.Minute)
	require.NoError(t, err)
	assert.NotEqual(t, stale, fresh)

	// The stale holder's late release must not evict the new holder.
	require.NoError(t, leases.Release(ctx, repoID, stale))
	lease, err := leases.Get(ctx, repoID)
	require.NoError(t, err)
	require.NotNil(t, lease)
	assert.Equal(t, fresh, lease.HolderToken)
}

func TestLeaseRepo_Acquire_Concurrent(t *testing.T) {
	db := setupTestDB(t)
	repoID := registerTestRepo(t, db, "octocat", "hello-world", model.ModePR)
	leases := NewLeaseRepo(db)
	ctx := context.Background()

	const attempts = 16
	var wg sync.WaitGroup
	results := make(chan error, attempts)

	for range attempts {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := leases.Acquire(ctx, repoID, time.Minute)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var acquired, busy int
	for err := range results {
		switch {
		case err == nil:
			acquired++
		default:
			require.ErrorIs(t, err, driven.ErrLeaseBusy)
			busy++
		}
	}

	assert.Equal(t, 1, acquired, "exactly one concurrent acquire succeeds")
	assert.Equal(t, attempts-1, busy)
}

func TestLeaseRepo_LeasesAreIndependentPerRepo(t *testing.T) {
	db := setupTestDB(t)
	repoA := registerTestRepo(t, db, "acme", "alpha", model.ModePR)
	repoB := registerTestRepo(t, db, "acme", "beta", model.ModePR)
	leases := NewLeaseRepo(db)
	ctx := context.Background()

	_, err := leases.Acquire(ctx, repoA, time.Minute)
	require.NoError(t, err)

	_, err = leases.Acquire(ctx, repoB, time.Minute)
	assert.NoError(t, err, "holding repoA's lease must not block repoB")
}

package testsupport

import (
	"context"
	"sync"
	"testing"
	"time"

	"quotereel/internal/domain/model"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPendingJob(t *testing.T, repo *MemoryRenderJobRepository) string {
	t.Helper()
	job := &model.RenderJob{ID: uuid.NewString(), State: model.JobStatePending, Payload: []byte(`{"text":"x"}`)}
	require.NoError(t, repo.Create(context.Background(), job))
	return job.ID
}

func TestClaimExclusivityUnderConcurrency(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRenderJobRepository()

	const jobs = 20
	for i := 0; i < jobs; i++ {
		newPendingJob(t, repo)
	}

	const claimants = 8
	var wg sync.WaitGroup
	var mu sync.Mutex
	seen := make(map[string]int)

	for c := 0; c < claimants; c++ {
		wg.Add(1)
		go func(workerID string) {
			defer wg.Done()
			for {
				job, err := repo.ClaimNextPending(ctx, workerID)
				if err != nil {
					t.Error(err)
					return
				}
				if job == nil {
					return
				}
				mu.Lock()
				seen[job.ID]++
				mu.Unlock()
			}
		}(uuid.NewString())
	}
	wg.Wait()

	assert.Len(t, seen, jobs)
	for id, count := range seen {
		assert.Equal(t, 1, count, "job %s claimed more than once", id)
	}
}

func TestClaimRecordsWorkerAndAttempt(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRenderJobRepository()
	id := newPendingJob(t, repo)

	job, err := repo.ClaimNextPending(ctx, "worker-a")
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, id, job.ID)
	assert.Equal(t, model.JobStateProcessing, job.State)
	require.NotNil(t, job.ClaimedBy)
	assert.Equal(t, "worker-a", *job.ClaimedBy)
	assert.NotNil(t, job.ClaimedAt)
	assert.Equal(t, 1, job.Attempts)
}

func TestTerminalWritesAreIdempotent(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRenderJobRepository()
	id := newPendingJob(t, repo)

	_, err := repo.ClaimNextPending(ctx, "worker-a")
	require.NoError(t, err)
	require.NoError(t, repo.Complete(ctx, id, "asset-1"))

	// A straggling duplicate writer must not overwrite the result or
	// regress the state.
	require.NoError(t, repo.Fail(ctx, id, "late failure"))
	require.NoError(t, repo.Complete(ctx, id, "asset-2"))

	job, err := repo.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.JobStateCompleted, job.State)
	require.NotNil(t, job.Result)
	assert.Equal(t, "asset-1", *job.Result)
	assert.Nil(t, job.Error)
}

func TestResultAndErrorAreMutuallyExclusive(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRenderJobRepository()
	id := newPendingJob(t, repo)

	_, err := repo.ClaimNextPending(ctx, "worker-a")
	require.NoError(t, err)
	require.NoError(t, repo.Fail(ctx, id, "render blew up"))

	job, err := repo.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.JobStateFailed, job.State)
	require.NotNil(t, job.Error)
	assert.Nil(t, job.Result)
}

func TestProgressWriteToNonProcessingJobIsDropped(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRenderJobRepository()
	id := newPendingJob(t, repo)

	require.NoError(t, repo.UpdateProgress(ctx, id, 50))
	job, err := repo.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Zero(t, job.Progress)
}

func TestProgressIsMonotonic(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRenderJobRepository()
	id := newPendingJob(t, repo)

	_, err := repo.ClaimNextPending(ctx, "worker-a")
	require.NoError(t, err)

	require.NoError(t, repo.UpdateProgress(ctx, id, 60))
	require.NoError(t, repo.UpdateProgress(ctx, id, 40))

	job, err := repo.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 60, job.Progress)
}

func TestReclaimStaleClearsClaim(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRenderJobRepository()
	id := newPendingJob(t, repo)

	_, err := repo.ClaimNextPending(ctx, "worker-a")
	require.NoError(t, err)
	repo.SetClaimedAt(id, time.Now().Add(-time.Hour))

	reclaimed, err := repo.ReclaimStale(ctx, time.Now().Add(-30*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(1), reclaimed)

	job, err := repo.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatePending, job.State)
	assert.Nil(t, job.ClaimedAt)
	assert.Nil(t, job.ClaimedBy)
}

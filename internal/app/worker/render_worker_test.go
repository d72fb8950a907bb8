package worker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"quotereel/internal/domain/model"
	"quotereel/internal/render"
	"quotereel/internal/testsupport"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func submitJob(t *testing.T, repo *testsupport.MemoryRenderJobRepository, text string) string {
	t.Helper()
	payload, err := json.Marshal(model.RenderPayload{Text: text})
	require.NoError(t, err)
	job := &model.RenderJob{ID: uuid.NewString(), State: model.JobStatePending, Payload: payload}
	require.NoError(t, repo.Create(context.Background(), job))
	return job.ID
}

func succeedWith(result string) render.Renderer {
	return render.Func(func(ctx context.Context, payload model.RenderPayload, progress render.ProgressFunc) (string, error) {
		return result, nil
	})
}

func alwaysFail(msg string) render.Renderer {
	return render.Func(func(ctx context.Context, payload model.RenderPayload, progress render.ProgressFunc) (string, error) {
		return "", errors.New(msg)
	})
}

func TestRunPassCompletesSubmittedJob(t *testing.T) {
	ctx := context.Background()
	repo := testsupport.NewMemoryRenderJobRepository()
	id := submitJob(t, repo, "hello")

	// Before any pass the job is pending with no result or error.
	job, err := repo.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatePending, job.State)
	assert.Nil(t, job.Result)
	assert.Nil(t, job.Error)

	w := NewRenderWorker(repo, succeedWith("asset-1"), Options{})
	summary, err := w.RunPass(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Processed)
	assert.Equal(t, 1, summary.Completed)

	job, err = repo.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.JobStateCompleted, job.State)
	require.NotNil(t, job.Result)
	assert.Equal(t, "asset-1", *job.Result)
	assert.Nil(t, job.Error)
	assert.Equal(t, 100, job.Progress)
	assert.Equal(t, 1, job.Attempts)
}

func TestRunPassEmptyQueueIsIdleNotError(t *testing.T) {
	repo := testsupport.NewMemoryRenderJobRepository()
	w := NewRenderWorker(repo, succeedWith("unused"), Options{})

	summary, err := w.RunPass(context.Background())
	require.NoError(t, err)
	assert.Zero(t, summary.Processed)
}

func TestFailingJobReachesFailedAfterExactlyMaxAttempts(t *testing.T) {
	ctx := context.Background()
	repo := testsupport.NewMemoryRenderJobRepository()
	id := submitJob(t, repo, "doomed")

	const maxAttempts = 3
	// One claim per trigger, as a cron-style scheduler would drive it.
	w := NewRenderWorker(repo, alwaysFail("encoder exploded"), Options{MaxAttempts: maxAttempts, PassMaxJobs: 1})

	for i := 1; i < maxAttempts; i++ {
		summary, err := w.RunPass(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, summary.Retried)

		job, err := repo.GetByID(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, model.JobStatePending, job.State, "attempt %d should requeue", i)
		assert.Equal(t, i, job.Attempts)
	}

	summary, err := w.RunPass(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Failed)

	job, err := repo.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.JobStateFailed, job.State)
	assert.Equal(t, maxAttempts, job.Attempts)
	require.NotNil(t, job.Error)
	assert.Contains(t, *job.Error, "encoder exploded")
	assert.Nil(t, job.Result)

	// A further trigger finds nothing to do and never resurrects the job.
	summary, err = w.RunPass(ctx)
	require.NoError(t, err)
	assert.Zero(t, summary.Processed)
	job, err = repo.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.JobStateFailed, job.State)
	assert.Equal(t, maxAttempts, job.Attempts)
}

func TestRenderTimeoutCountsAsFailedAttempt(t *testing.T) {
	ctx := context.Background()
	repo := testsupport.NewMemoryRenderJobRepository()
	id := submitJob(t, repo, "slow")

	hang := render.Func(func(ctx context.Context, payload model.RenderPayload, progress render.ProgressFunc) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})
	w := NewRenderWorker(repo, hang, Options{MaxAttempts: 1, JobTimeout: 20 * time.Millisecond})

	summary, err := w.RunPass(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Failed)

	job, err := repo.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.JobStateFailed, job.State)
	require.NotNil(t, job.Error)
	assert.Contains(t, *job.Error, "timed out")
}

func TestRunPassHonorsJobBudget(t *testing.T) {
	ctx := context.Background()
	repo := testsupport.NewMemoryRenderJobRepository()
	for i := 0; i < 3; i++ {
		submitJob(t, repo, "job")
	}

	w := NewRenderWorker(repo, succeedWith("asset"), Options{PassMaxJobs: 2})
	summary, err := w.RunPass(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Processed)

	counts, err := repo.CountByState(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, counts[model.JobStatePending])
	assert.Equal(t, 2, counts[model.JobStateCompleted])
}

func TestRunPassProcessesOldestFirst(t *testing.T) {
	ctx := context.Background()
	repo := testsupport.NewMemoryRenderJobRepository()

	base := time.Now().Add(-time.Hour)
	texts := []string{"first", "second", "third"}
	for i, text := range texts {
		id := submitJob(t, repo, text)
		repo.SetCreatedAt(id, base.Add(time.Duration(i)*time.Minute))
	}

	var mu sync.Mutex
	var order []string
	recorder := render.Func(func(ctx context.Context, payload model.RenderPayload, progress render.ProgressFunc) (string, error) {
		mu.Lock()
		order = append(order, payload.Text)
		mu.Unlock()
		return "asset", nil
	})

	w := NewRenderWorker(repo, recorder, Options{Concurrency: 1, PassMaxJobs: 10})
	summary, err := w.RunPass(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Processed)
	assert.Equal(t, texts, order)
}

func TestRunPassAbortsWhenStoreIsDown(t *testing.T) {
	repo := testsupport.NewMemoryRenderJobRepository()
	repo.Err = errors.New("connection refused")

	w := NewRenderWorker(repo, succeedWith("unused"), Options{})
	_, err := w.RunPass(context.Background())
	require.Error(t, err)
}

func TestOneJobFailureDoesNotAbortOthers(t *testing.T) {
	ctx := context.Background()
	repo := testsupport.NewMemoryRenderJobRepository()
	badID := submitJob(t, repo, "bad")
	goodID := submitJob(t, repo, "good")
	repo.SetCreatedAt(badID, time.Now().Add(-time.Hour))

	picky := render.Func(func(ctx context.Context, payload model.RenderPayload, progress render.ProgressFunc) (string, error) {
		if payload.Text == "bad" {
			return "", errors.New("corrupt input")
		}
		return "asset", nil
	})

	w := NewRenderWorker(repo, picky, Options{MaxAttempts: 1, PassMaxJobs: 10})
	summary, err := w.RunPass(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Processed)
	assert.Equal(t, 1, summary.Completed)
	assert.Equal(t, 1, summary.Failed)

	good, err := repo.GetByID(ctx, goodID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStateCompleted, good.State)
}

func TestMalformedPayloadFailsTerminally(t *testing.T) {
	ctx := context.Background()
	repo := testsupport.NewMemoryRenderJobRepository()
	job := &model.RenderJob{ID: uuid.NewString(), State: model.JobStatePending, Payload: []byte("{not json")}
	require.NoError(t, repo.Create(ctx, job))

	w := NewRenderWorker(repo, succeedWith("unused"), Options{MaxAttempts: 5})
	summary, err := w.RunPass(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Failed)

	got, err := repo.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStateFailed, got.State)
	require.NotNil(t, got.Error)
	assert.Contains(t, *got.Error, "malformed render payload")
}

type completeFailRepo struct {
	*testsupport.MemoryRenderJobRepository
}

func (r *completeFailRepo) Complete(ctx context.Context, id, result string) error {
	return errors.New("connection reset by peer")
}

func TestLostTransitionWriteAbortsAndIsNotCounted(t *testing.T) {
	ctx := context.Background()
	mem := testsupport.NewMemoryRenderJobRepository()
	repo := &completeFailRepo{MemoryRenderJobRepository: mem}
	id := submitJob(t, mem, "volatile")

	w := NewRenderWorker(repo, succeedWith("asset"), Options{})
	summary, err := w.RunPass(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")

	// The render result was never persisted, so the pass must not report a
	// completion.
	assert.Zero(t, summary.Processed)
	assert.Zero(t, summary.Completed)

	job, err := mem.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.JobStateProcessing, job.State)
	assert.Nil(t, job.Result)
}

func TestClaimWaitsForRenderSlot(t *testing.T) {
	ctx := context.Background()
	repo := testsupport.NewMemoryRenderJobRepository()
	first := submitJob(t, repo, "first")
	second := submitJob(t, repo, "second")
	repo.SetCreatedAt(first, time.Now().Add(-time.Hour))

	started := make(chan struct{})
	unblock := make(chan struct{})
	var calls atomic.Int32
	blocking := render.Func(func(ctx context.Context, payload model.RenderPayload, progress render.ProgressFunc) (string, error) {
		if calls.Add(1) == 1 {
			close(started)
			<-unblock
		}
		return "asset", nil
	})

	w := NewRenderWorker(repo, blocking, Options{Concurrency: 1, PassMaxJobs: 10})
	done := make(chan PassSummary, 1)
	go func() {
		summary, err := w.RunPass(ctx)
		if err != nil {
			t.Error(err)
		}
		done <- summary
	}()

	// While the only render slot is occupied the second job must not be
	// claimed yet; an early claim would let its claim age toward reclaim
	// before it ever starts.
	<-started
	counts, err := repo.CountByState(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, counts[model.JobStatePending])
	assert.Equal(t, 1, counts[model.JobStateProcessing])

	close(unblock)
	summary := <-done
	assert.Equal(t, 2, summary.Completed)

	job, err := repo.GetByID(ctx, second)
	require.NoError(t, err)
	assert.Equal(t, model.JobStateCompleted, job.State)
}

func TestProgressReportsAreRecorded(t *testing.T) {
	ctx := context.Background()
	repo := testsupport.NewMemoryRenderJobRepository()
	id := submitJob(t, repo, "progressive")

	var seen []int
	reporting := render.Func(func(ctx context.Context, payload model.RenderPayload, progress render.ProgressFunc) (string, error) {
		for _, p := range []int{25, 50, 75} {
			progress(p)
			job, err := repo.GetByID(ctx, id)
			if err != nil {
				return "", err
			}
			seen = append(seen, job.Progress)
		}
		return "asset", nil
	})

	w := NewRenderWorker(repo, reporting, Options{})
	_, err := w.RunPass(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int{25, 50, 75}, seen)

	job, err := repo.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 100, job.Progress)
}

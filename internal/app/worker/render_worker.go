package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"quotereel/internal/domain/model"
	"quotereel/internal/domain/repository"
	"quotereel/internal/render"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"
)

// Options tunes one worker pass. Zero values fall back to defaults; the retry
// ceiling in particular is configuration, never a hardcoded policy.
type Options struct {
	MaxAttempts int           // terminal fail once a failing job has been attempted this many times
	JobTimeout  time.Duration // wall-clock ceiling per render
	PassMaxJobs int           // claim budget for one pass
	Concurrency int           // concurrent renders within one pass
}

func (o Options) withDefaults() Options {
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 3
	}
	if o.JobTimeout <= 0 {
		o.JobTimeout = 3 * time.Minute
	}
	if o.PassMaxJobs <= 0 {
		o.PassMaxJobs = 10
	}
	if o.Concurrency <= 0 {
		o.Concurrency = 1
	}
	return o
}

// PassSummary reports what one processing pass did. Per-job errors live in the
// job records, not here.
type PassSummary struct {
	Processed int `json:"processed"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Retried   int `json:"retried"`
}

// RenderWorker drives pending render jobs to a terminal state. A pass is a
// plain re-entrant function: overlapping invocations (cron, HTTP trigger, CLI)
// are safe because all coordination happens through the store's atomic claim.
type RenderWorker struct {
	jobRepo  repository.RenderJobRepository
	renderer render.Renderer
	opts     Options
	workerID string
}

func NewRenderWorker(jobRepo repository.RenderJobRepository, renderer render.Renderer, opts Options) *RenderWorker {
	host, _ := os.Hostname()
	if host == "" {
		host = "worker"
	}
	return &RenderWorker{
		jobRepo:  jobRepo,
		renderer: renderer,
		opts:     opts.withDefaults(),
		workerID: host + "-" + uuid.NewString()[:8],
	}
}

// RunPass claims and processes jobs until the queue is empty or the pass
// budget is exhausted. An empty queue is an expected idle condition, not an
// error; only store failures abort the pass early, and they surface in the
// returned error.
func (w *RenderWorker) RunPass(ctx context.Context) (PassSummary, error) {
	var (
		summary PassSummary
		mu      sync.Mutex
		wg      sync.WaitGroup
		aborted atomic.Bool
		passErr error
	)
	abort := func(err error) {
		mu.Lock()
		if passErr == nil {
			passErr = err
		}
		mu.Unlock()
		aborted.Store(true)
	}
	sem := semaphore.NewWeighted(int64(w.opts.Concurrency))

	for claimed := 0; claimed < w.opts.PassMaxJobs; claimed++ {
		if aborted.Load() {
			break
		}
		// The slot is acquired before the claim so a claimed job never sits
		// in processing waiting for render capacity.
		if err := sem.Acquire(ctx, 1); err != nil {
			abort(err)
			break
		}
		job, err := w.jobRepo.ClaimNextPending(ctx, w.workerID)
		if err != nil {
			sem.Release(1)
			abort(fmt.Errorf("claim pending job: %w", err))
			break
		}
		if job == nil {
			sem.Release(1)
			break // queue drained
		}
		wg.Add(1)
		go func(job *model.RenderJob) {
			defer wg.Done()
			defer sem.Release(1)
			outcome, err := w.process(ctx, job)
			if err != nil {
				// The transition write did not survive the store retries;
				// the job record is unchanged and the outcome never happened.
				abort(fmt.Errorf("persist transition for job %s: %w", job.ID, err))
				return
			}
			mu.Lock()
			summary.Processed++
			switch outcome {
			case outcomeCompleted:
				summary.Completed++
			case outcomeFailed:
				summary.Failed++
			case outcomeRetried:
				summary.Retried++
			}
			mu.Unlock()
		}(job)
	}

	wg.Wait()
	mu.Lock()
	err := passErr
	mu.Unlock()
	return summary, err
}

type outcome int

const (
	outcomeCompleted outcome = iota
	outcomeFailed
	outcomeRetried
)

// process runs one claimed job to a state transition. The returned error is
// non-nil only for store failures; render failures are recorded in the job
// record and decide retry versus terminal fail.
func (w *RenderWorker) process(ctx context.Context, job *model.RenderJob) (outcome, error) {
	var payload model.RenderPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		// A payload that cannot be decoded will never succeed; fail terminally.
		msg := fmt.Sprintf("malformed render payload: %v", err)
		log.Printf("ERROR: job %s: %s", job.ID, msg)
		return outcomeFailed, w.jobRepo.Fail(ctx, job.ID, msg)
	}

	jobCtx, cancel := context.WithTimeout(ctx, w.opts.JobTimeout)
	defer cancel()

	progress := func(percent int) {
		if err := w.jobRepo.UpdateProgress(jobCtx, job.ID, percent); err != nil {
			log.Printf("WARN: progress update for job %s: %v", job.ID, err)
		}
	}

	result, renderErr := w.renderer.Render(jobCtx, payload, progress)
	if renderErr == nil {
		if err := w.jobRepo.Complete(ctx, job.ID, result); err != nil {
			log.Printf("ERROR: complete job %s: %v", job.ID, err)
			return outcomeCompleted, err
		}
		log.Printf("Render job %s completed (attempt %d)", job.ID, job.Attempts)
		return outcomeCompleted, nil
	}

	msg := renderErr.Error()
	if errors.Is(renderErr, context.DeadlineExceeded) {
		msg = fmt.Sprintf("render timed out after %s", w.opts.JobTimeout)
	}

	// The claim already incremented attempts, so job.Attempts reflects this try.
	if job.Attempts >= w.opts.MaxAttempts {
		log.Printf("Render job %s failed terminally after %d attempts: %s", job.ID, job.Attempts, msg)
		if err := w.jobRepo.Fail(ctx, job.ID, msg); err != nil {
			log.Printf("ERROR: fail job %s: %v", job.ID, err)
			return outcomeFailed, err
		}
		return outcomeFailed, nil
	}

	log.Printf("Render job %s attempt %d/%d failed, requeueing: %s", job.ID, job.Attempts, w.opts.MaxAttempts, msg)
	if err := w.jobRepo.Release(ctx, job.ID); err != nil {
		log.Printf("ERROR: release job %s: %v", job.ID, err)
		return outcomeRetried, err
	}
	return outcomeRetried, nil
}

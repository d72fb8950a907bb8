package worker

import (
	"context"
	"log"
	"time"

	"quotereel/internal/domain/repository"
)

// Reclaimer is the liveness guard against crashed or orphaned workers: jobs
// stuck in processing past the timeout go back to pending for a fresh claim.
// Their attempts counter already reflects the abandoned try, so the retry
// ceiling still applies.
type Reclaimer struct {
	jobRepo repository.RenderJobRepository
	timeout time.Duration
}

func NewReclaimer(jobRepo repository.RenderJobRepository, timeout time.Duration) *Reclaimer {
	if timeout <= 0 {
		timeout = 15 * time.Minute
	}
	return &Reclaimer{jobRepo: jobRepo, timeout: timeout}
}

// RunPass reclaims every job claimed before now-timeout. Runs on its own
// cadence, independent of worker passes.
func (r *Reclaimer) RunPass(ctx context.Context) (int64, error) {
	cutoff := time.Now().Add(-r.timeout)
	reclaimed, err := r.jobRepo.ReclaimStale(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if reclaimed > 0 {
		log.Printf("Reclaimed %d stale render job(s) to pending", reclaimed)
	}
	return reclaimed, nil
}

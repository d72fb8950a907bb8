// Package testsupport provides in-memory stand-ins for the persistence layer,
// keeping the store semantics (atomic claim, state-guarded transitions) that
// the workers rely on.
package testsupport

import (
	"context"
	"sort"
	"sync"
	"time"

	"quotereel/internal/common"
	"quotereel/internal/domain/model"
)

type memJob struct {
	job model.RenderJob
	seq int64
}

// MemoryRenderJobRepository implements repository.RenderJobRepository with the
// same transition guards as the Postgres store. All operations are atomic
// under one mutex, so concurrent claimants exercise real claim exclusivity.
type MemoryRenderJobRepository struct {
	mu   sync.Mutex
	jobs map[string]*memJob
	seq  int64

	// Err, when set, is returned by every operation. Simulates a store outage.
	Err error
}

func NewMemoryRenderJobRepository() *MemoryRenderJobRepository {
	return &MemoryRenderJobRepository{jobs: make(map[string]*memJob)}
}

func (m *MemoryRenderJobRepository) Create(ctx context.Context, job *model.RenderJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.seq++
	now := time.Now()
	stored := *job
	stored.State = model.JobStatePending
	stored.Progress = 0
	stored.Attempts = 0
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now
	}
	stored.UpdatedAt = now
	m.jobs[job.ID] = &memJob{job: stored, seq: m.seq}
	return nil
}

func (m *MemoryRenderJobRepository) GetByID(ctx context.Context, id string) (*model.RenderJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	entry, ok := m.jobs[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	job := entry.job
	return &job, nil
}

func (m *MemoryRenderJobRepository) ClaimNextPending(ctx context.Context, workerID string) (*model.RenderJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}

	var candidates []*memJob
	for _, entry := range m.jobs {
		if entry.job.State == model.JobStatePending {
			candidates = append(candidates, entry)
		}
	}
	if len(candidates) == 0 {
		return nil, nil
	}
	sort.Slice(candidates, func(i, j int) bool {
		if !candidates[i].job.CreatedAt.Equal(candidates[j].job.CreatedAt) {
			return candidates[i].job.CreatedAt.Before(candidates[j].job.CreatedAt)
		}
		return candidates[i].seq < candidates[j].seq
	})

	entry := candidates[0]
	now := time.Now()
	entry.job.State = model.JobStateProcessing
	entry.job.ClaimedAt = &now
	entry.job.ClaimedBy = &workerID
	entry.job.Attempts++
	entry.job.UpdatedAt = now
	job := entry.job
	return &job, nil
}

func (m *MemoryRenderJobRepository) UpdateProgress(ctx context.Context, id string, progress int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	entry, ok := m.jobs[id]
	if !ok || entry.job.State != model.JobStateProcessing {
		return nil // stale write
	}
	if progress > entry.job.Progress {
		entry.job.Progress = progress
	}
	entry.job.UpdatedAt = time.Now()
	return nil
}

func (m *MemoryRenderJobRepository) Complete(ctx context.Context, id string, result string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	entry, ok := m.jobs[id]
	if !ok || entry.job.State != model.JobStateProcessing {
		return nil
	}
	entry.job.State = model.JobStateCompleted
	entry.job.Result = &result
	entry.job.Error = nil
	entry.job.Progress = 100
	entry.job.UpdatedAt = time.Now()
	return nil
}

func (m *MemoryRenderJobRepository) Fail(ctx context.Context, id string, errMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	entry, ok := m.jobs[id]
	if !ok || entry.job.State != model.JobStateProcessing {
		return nil
	}
	entry.job.State = model.JobStateFailed
	entry.job.Error = &errMsg
	entry.job.Result = nil
	entry.job.UpdatedAt = time.Now()
	return nil
}

func (m *MemoryRenderJobRepository) Release(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	entry, ok := m.jobs[id]
	if !ok || entry.job.State != model.JobStateProcessing {
		return nil
	}
	entry.job.State = model.JobStatePending
	entry.job.ClaimedAt = nil
	entry.job.ClaimedBy = nil
	entry.job.Error = nil
	entry.job.Progress = 0
	entry.job.UpdatedAt = time.Now()
	return nil
}

func (m *MemoryRenderJobRepository) ReclaimStale(ctx context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return 0, m.Err
	}
	var reclaimed int64
	for _, entry := range m.jobs {
		if entry.job.State == model.JobStateProcessing && entry.job.ClaimedAt != nil && entry.job.ClaimedAt.Before(cutoff) {
			entry.job.State = model.JobStatePending
			entry.job.ClaimedAt = nil
			entry.job.ClaimedBy = nil
			entry.job.Progress = 0
			entry.job.UpdatedAt = time.Now()
			reclaimed++
		}
	}
	return reclaimed, nil
}

func (m *MemoryRenderJobRepository) CountByState(ctx context.Context) (map[model.JobState]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	counts := make(map[model.JobState]int)
	for _, entry := range m.jobs {
		counts[entry.job.State]++
	}
	return counts, nil
}

// SetCreatedAt backdates a job, used to build deterministic FIFO and reclaim
// scenarios.
func (m *MemoryRenderJobRepository) SetCreatedAt(id string, t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if entry, ok := m.jobs[id]; ok {
		entry.job.CreatedAt = t
	}
}

// SetClaimedAt backdates a claim, used to make a processing job look stale.
func (m *MemoryRenderJobRepository) SetClaimedAt(id string, t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if entry, ok := m.jobs[id]; ok {
		entry.job.ClaimedAt = &t
	}
}

package service

import (
	"context"
	"encoding/json"
	"log"
	"strings"
	"time"

	"quotereel/internal/common"
	"quotereel/internal/domain/model"
	"quotereel/internal/domain/repository"

	"github.com/google/uuid"
)

// RenderJobService owns the submission and status-query surface of the render
// queue. Submission never waits for rendering; callers poll by id.
type RenderJobService struct {
	jobRepo repository.RenderJobRepository
}

func NewRenderJobService(jobRepo repository.RenderJobRepository) *RenderJobService {
	return &RenderJobService{jobRepo: jobRepo}
}

type SubmitRenderRequest struct {
	QuoteID         string `json:"quote_id,omitempty"`
	Text            string `json:"text"`
	Author          string `json:"author,omitempty"`
	Style           string `json:"style,omitempty"`
	DurationSeconds int    `json:"duration_seconds,omitempty"`
}

const (
	maxQuoteTextLen    = 500
	maxDurationSeconds = 60
)

// Submit validates the render request and creates a pending job, returning its
// id immediately.
func (s *RenderJobService) Submit(ctx context.Context, req SubmitRenderRequest) (string, error) {
	if strings.TrimSpace(req.Text) == "" {
		return "", common.Errorf("quote text is required: %w", common.ErrValidation)
	}
	if len(req.Text) > maxQuoteTextLen {
		return "", common.Errorf("quote text exceeds %d characters: %w", maxQuoteTextLen, common.ErrValidation)
	}
	if req.DurationSeconds < 0 || req.DurationSeconds > maxDurationSeconds {
		return "", common.Errorf("duration must be between 0 and %d seconds: %w", maxDurationSeconds, common.ErrValidation)
	}

	payload, err := json.Marshal(model.RenderPayload{
		QuoteID:         req.QuoteID,
		Text:            req.Text,
		Author:          req.Author,
		Style:           req.Style,
		DurationSeconds: req.DurationSeconds,
	})
	if err != nil {
		return "", common.Errorf("failed to marshal render payload: %w", err)
	}

	job := &model.RenderJob{
		ID:      uuid.NewString(),
		State:   model.JobStatePending,
		Payload: payload,
	}
	if err := s.jobRepo.Create(ctx, job); err != nil {
		return "", common.Errorf("failed to create render job: %w", err)
	}

	log.Printf("Render job %s submitted", job.ID)
	return job.ID, nil
}

type RenderJobStatus struct {
	ID        string         `json:"id"`
	State     model.JobState `json:"state"`
	Progress  int            `json:"progress"`
	Result    *string        `json:"result,omitempty"`
	Error     *string        `json:"error,omitempty"`
	Attempts  int            `json:"attempts"`
	CreatedAt string         `json:"created_at"`
	UpdatedAt string         `json:"updated_at"`
}

// Status reads the job state verbatim from the store. It never triggers
// processing as a side effect.
func (s *RenderJobService) Status(ctx context.Context, id string) (*RenderJobStatus, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, common.Errorf("malformed job id: %w", common.ErrNotFound)
	}

	job, err := s.jobRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return &RenderJobStatus{
		ID:        job.ID,
		State:     job.State,
		Progress:  job.Progress,
		Result:    job.Result,
		Error:     job.Error,
		Attempts:  job.Attempts,
		CreatedAt: job.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt: job.UpdatedAt.UTC().Format(time.RFC3339),
	}, nil
}

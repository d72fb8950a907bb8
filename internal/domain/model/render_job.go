package model

import (
	"encoding/json"
	"time"
)

// JobState is the lifecycle state of a render job.
type JobState string

const (
	JobStatePending    JobState = "pending"
	JobStateProcessing JobState = "processing"
	JobStateCompleted  JobState = "completed"
	JobStateFailed     JobState = "failed"
)

// Terminal reports whether no further transitions can leave the state.
func (s JobState) Terminal() bool {
	return s == JobStateCompleted || s == JobStateFailed
}

// RenderJob is one unit of queued video-render work. The job record in the
// database is the single source of truth for its state; workers coordinate
// exclusively through conditional updates on it.
type RenderJob struct {
	ID        string          `json:"id"`
	State     JobState        `json:"state"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Progress  int             `json:"progress"`
	Result    *string         `json:"result,omitempty"`
	Error     *string         `json:"error,omitempty"`
	ClaimedAt *time.Time      `json:"claimed_at,omitempty"`
	ClaimedBy *string         `json:"claimed_by,omitempty"`
	Attempts  int             `json:"attempts"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// RenderPayload is the render request carried by a job. The queue itself only
// validates presence/shape; everything else is interpreted by the renderer.
type RenderPayload struct {
	QuoteID         string `json:"quote_id,omitempty"`
	Text            string `json:"text"`
	Author          string `json:"author,omitempty"`
	Style           string `json:"style,omitempty"`
	DurationSeconds int    `json:"duration_seconds,omitempty"`
}

// Package render defines the collaborator that turns a render request into a
// video asset. The queue treats it as an opaque, possibly slow, possibly
// failing operation.
package render

import (
	"context"

	"quotereel/internal/domain/model"
)

// ProgressFunc reports incremental render progress as a percentage in [0,100].
// Implementations may call it periodically; passing nil disables reporting.
type ProgressFunc func(percent int)

// Renderer produces a reference to the rendered asset for a payload.
// Implementations must honor ctx cancellation: the worker bounds every render
// with a per-job wall-clock timeout.
type Renderer interface {
	Render(ctx context.Context, payload model.RenderPayload, progress ProgressFunc) (string, error)
}

// Func adapts a plain function to the Renderer interface.
type Func func(ctx context.Context, payload model.RenderPayload, progress ProgressFunc) (string, error)

func (f Func) Render(ctx context.Context, payload model.RenderPayload, progress ProgressFunc) (string, error) {
	return f(ctx, payload, progress)
}

// Package billing declares the payment collaborator. Signature verification
// and subscription bookkeeping are owned by the external payment integration;
// this module only routes webhook events to it.
package billing

import (
	"context"

	"quotereel/internal/common"
)

// Provider verifies and records a payment event delivered by the payment
// provider's webhook. A verification failure should be returned as
// common.ErrUnauthorized; malformed events as common.ErrBadRequest.
type Provider interface {
	HandleEvent(ctx context.Context, signature string, body []byte) error
}

// Disabled rejects every event. Used when no payment integration is wired.
type Disabled struct{}

func (Disabled) HandleEvent(ctx context.Context, signature string, body []byte) error {
	return common.ErrServiceUnavailable
}

package handler

import (
	"io"
	"log"
	"net/http"

	"quotereel/internal/billing"
	"quotereel/internal/common"

	"github.com/go-chi/chi/v5"
)

// BillingHandler receives payment-provider webhooks and delegates signature
// verification and subscription bookkeeping to the billing provider.
type BillingHandler struct {
	provider billing.Provider
}

func NewBillingHandler(provider billing.Provider) *BillingHandler {
	return &BillingHandler{provider: provider}
}

func (h *BillingHandler) RegisterRoutes(r chi.Router) {
	r.Post("/payment", h.handlePaymentEvent)
}

func (h *BillingHandler) handlePaymentEvent(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		common.RespondWithError(w, http.StatusBadRequest, "Failed to read webhook body")
		return
	}
	defer r.Body.Close()

	signature := r.Header.Get("X-Payment-Signature")
	if err := h.provider.HandleEvent(r.Context(), signature, body); err != nil {
		log.Printf("ERROR: payment webhook rejected: %v", err)
		common.RespondWithError(w, common.HTTPStatusFromError(err), err.Error())
		return
	}
	common.RespondWithJSON(w, http.StatusOK, map[string]string{"message": "Payment event processed"})
}

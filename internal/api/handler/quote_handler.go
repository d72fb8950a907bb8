package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"quotereel/internal/api/middleware"
	"quotereel/internal/app/service"
	"quotereel/internal/common"

	"github.com/go-chi/chi/v5"
)

type QuoteHandler struct {
	quoteService *service.QuoteService
}

func NewQuoteHandler(qs *service.QuoteService) *QuoteHandler {
	return &QuoteHandler{quoteService: qs}
}

func (h *QuoteHandler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.listQuotes)
	r.Get("/{slug}", h.getQuote)

	r.Group(func(auth chi.Router) {
		auth.Use(middleware.Authenticator)
		auth.Post("/", h.createQuote)
	})
}

func (h *QuoteHandler) RegisterCategoryRoutes(r chi.Router) {
	r.Get("/", h.listCategories)
}

func (h *QuoteHandler) RegisterStatsRoutes(r chi.Router) {
	r.Get("/", h.getStats)
}

func (h *QuoteHandler) createQuote(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		common.RespondWithError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	var req service.CreateQuoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.RespondWithError(w, http.StatusBadRequest, "Invalid request payload: "+err.Error())
		return
	}

	quote, err := h.quoteService.CreateQuote(r.Context(), userID, req)
	if err != nil {
		common.RespondWithError(w, common.HTTPStatusFromError(err), err.Error())
		return
	}
	common.RespondWithJSON(w, http.StatusCreated, quote)
}

func (h *QuoteHandler) listQuotes(w http.ResponseWriter, r *http.Request) {
	category := r.URL.Query().Get("category")
	if category == "" {
		common.RespondWithError(w, http.StatusBadRequest, "category query parameter is required")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	quotes, err := h.quoteService.ListQuotes(r.Context(), category, limit, offset)
	if err != nil {
		common.RespondWithError(w, common.HTTPStatusFromError(err), err.Error())
		return
	}
	common.RespondWithJSON(w, http.StatusOK, quotes)
}

func (h *QuoteHandler) getQuote(w http.ResponseWriter, r *http.Request) {
	quote, err := h.quoteService.GetQuote(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		common.RespondWithError(w, common.HTTPStatusFromError(err), err.Error())
		return
	}
	common.RespondWithJSON(w, http.StatusOK, quote)
}

func (h *QuoteHandler) listCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.quoteService.ListCategories(r.Context())
	if err != nil {
		common.RespondWithError(w, common.HTTPStatusFromError(err), err.Error())
		return
	}
	common.RespondWithJSON(w, http.StatusOK, categories)
}

func (h *QuoteHandler) getStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.quoteService.GetUsageStats(r.Context())
	if err != nil {
		common.RespondWithError(w, common.HTTPStatusFromError(err), err.Error())
		return
	}
	common.RespondWithJSON(w, http.StatusOK, stats)
}

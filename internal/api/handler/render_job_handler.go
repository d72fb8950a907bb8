package handler

import (
	"encoding/json"
	"log"
	"net/http"

	"quotereel/internal/api/middleware"
	"quotereel/internal/app/service"
	"quotereel/internal/app/worker"
	"quotereel/internal/common"

	"github.com/go-chi/chi/v5"
)

type RenderJobHandler struct {
	jobService   *service.RenderJobService
	renderWorker *worker.RenderWorker
	reclaimer    *worker.Reclaimer
}

func NewRenderJobHandler(js *service.RenderJobService, rw *worker.RenderWorker, rc *worker.Reclaimer) *RenderJobHandler {
	return &RenderJobHandler{jobService: js, renderWorker: rw, reclaimer: rc}
}

func (h *RenderJobHandler) RegisterRoutes(r chi.Router) {
	// Status polling is public; a job id is an unguessable handle.
	r.Get("/{jobID}", h.status)

	r.Group(func(auth chi.Router) {
		auth.Use(middleware.Authenticator)
		auth.Post("/", h.submit)

		// Worker/reclaimer triggers are operational endpoints. The passes
		// themselves are re-entrant, so overlap with cron or CLI runs is safe.
		auth.Group(func(ops chi.Router) {
			ops.Use(middleware.AdminOnly)
			ops.Post("/process", h.process)
			ops.Post("/reclaim", h.reclaim)
		})
	})
}

func (h *RenderJobHandler) submit(w http.ResponseWriter, r *http.Request) {
	if _, ok := middleware.GetUserIDFromContext(r.Context()); !ok {
		common.RespondWithError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	var req service.SubmitRenderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.RespondWithError(w, http.StatusBadRequest, "Invalid request payload: "+err.Error())
		return
	}

	jobID, err := h.jobService.Submit(r.Context(), req)
	if err != nil {
		common.RespondWithError(w, common.HTTPStatusFromError(err), err.Error())
		return
	}
	// 202: the render happens asynchronously, poll the returned id.
	common.RespondWithJSON(w, http.StatusAccepted, map[string]string{"id": jobID})
}

func (h *RenderJobHandler) status(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")

	status, err := h.jobService.Status(r.Context(), jobID)
	if err != nil {
		common.RespondWithError(w, common.HTTPStatusFromError(err), err.Error())
		return
	}
	common.RespondWithJSON(w, http.StatusOK, status)
}

func (h *RenderJobHandler) process(w http.ResponseWriter, r *http.Request) {
	summary, err := h.renderWorker.RunPass(r.Context())
	if err != nil {
		// Per-job errors never reach here; only a store outage aborts a pass.
		log.Printf("ERROR: worker pass aborted: %v", err)
		common.RespondWithError(w, common.HTTPStatusFromError(err), err.Error())
		return
	}
	common.RespondWithJSON(w, http.StatusOK, summary)
}

func (h *RenderJobHandler) reclaim(w http.ResponseWriter, r *http.Request) {
	reclaimed, err := h.reclaimer.RunPass(r.Context())
	if err != nil {
		common.RespondWithError(w, common.HTTPStatusFromError(err), err.Error())
		return
	}
	common.RespondWithJSON(w, http.StatusOK, map[string]int64{"reclaimed": reclaimed})
}

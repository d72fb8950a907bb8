package api

import (
	"net/http"
	"time"

	"quotereel/internal/api/handler"
	"quotereel/internal/app/service"
	"quotereel/internal/app/worker"
	"quotereel/internal/billing"
	"quotereel/internal/common/security"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/jwtauth/v5"
)

func NewRouter(
	authService *service.AuthService,
	quoteService *service.QuoteService,
	jobService *service.RenderJobService,
	renderWorker *worker.RenderWorker,
	reclaimer *worker.Reclaimer,
	billingProvider billing.Provider,
) http.Handler {
	r := chi.NewRouter()

	// Base Middlewares
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Timeout(60 * time.Second))

	// Verifies a bearer token when present and puts claims in the context;
	// enforcement happens per-route via middleware.Authenticator.
	r.Use(jwtauth.Verifier(security.TokenAuth))

	// Public health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("OK"))
	})

	// API v1 Routes
	r.Route("/api/v1", func(v1 chi.Router) {
		authHandler := handler.NewAuthHandler(authService)
		v1.Group(func(publicAuth chi.Router) {
			authHandler.RegisterRoutes(publicAuth)
		})

		quoteHandler := handler.NewQuoteHandler(quoteService)
		v1.Route("/quotes", quoteHandler.RegisterRoutes)
		v1.Route("/categories", quoteHandler.RegisterCategoryRoutes)
		v1.Route("/stats", quoteHandler.RegisterStatsRoutes)

		jobHandler := handler.NewRenderJobHandler(jobService, renderWorker, reclaimer)
		v1.Route("/render-jobs", jobHandler.RegisterRoutes)

		billingHandler := handler.NewBillingHandler(billingProvider)
		v1.Route("/webhook", billingHandler.RegisterRoutes)
	})

	return r
}

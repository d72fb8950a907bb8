package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"quotereel/internal/api"
	"quotereel/internal/app/service"
	"quotereel/internal/app/worker"
	"quotereel/internal/billing"
	"quotereel/internal/common/security"
	"quotereel/internal/domain/repository"
	"quotereel/internal/platform/cache"
	"quotereel/internal/platform/config"
	"quotereel/internal/platform/database"
	"quotereel/internal/render"

	"github.com/robfig/cron/v3"
)

func main() {
	// 1. Load Configuration
	config.Load()
	log.Println("Configuration loaded")

	// 2. Initialize JWT
	security.InitJWT()

	// 3. Initialize Database
	database.Connect()
	defer database.Close()

	// 4. Initialize Redis
	cache.ConnectRedis()
	defer cache.CloseRedis()

	// 5. Initialize Repositories
	userRepo := repository.NewPgUserRepository(database.DB)
	quoteRepo := repository.NewPgQuoteRepository(database.DB)
	jobRepo := repository.NewPgRenderJobRepository(database.DB)

	// 6. Initialize Services
	cfg := config.AppConfig
	authService := service.NewAuthService(userRepo)
	quoteService := service.NewQuoteService(quoteRepo, jobRepo, cache.NewRedisCache(cache.RDB), cfg.CacheTTL)
	jobService := service.NewRenderJobService(jobRepo)

	// 7. Initialize render worker and reclaimer. Passes are plain re-entrant
	// functions; the cron entries below and the HTTP triggers may overlap
	// safely.
	renderWorker := worker.NewRenderWorker(jobRepo, render.NewCommandRenderer(cfg.RenderCommand), worker.Options{
		MaxAttempts: cfg.RenderMaxAttempts,
		JobTimeout:  cfg.RenderJobTimeout,
		PassMaxJobs: cfg.RenderPassMaxJobs,
		Concurrency: cfg.RenderPassConcurrency,
	})
	reclaimer := worker.NewReclaimer(jobRepo, cfg.RenderReclaimAfter)

	// 8. Schedule periodic worker and reclaimer passes.
	scheduler := cron.New()
	if _, err := scheduler.AddFunc(cfg.WorkerCronSpec, func() {
		summary, err := renderWorker.RunPass(context.Background())
		if err != nil {
			log.Printf("ERROR: scheduled worker pass aborted: %v", err)
			return
		}
		if summary.Processed > 0 {
			log.Printf("Worker pass: processed=%d completed=%d failed=%d retried=%d",
				summary.Processed, summary.Completed, summary.Failed, summary.Retried)
		}
	}); err != nil {
		log.Fatalf("Invalid WORKER_CRON_SPEC: %v", err)
	}
	if _, err := scheduler.AddFunc(cfg.ReclaimerCronSpec, func() {
		if _, err := reclaimer.RunPass(context.Background()); err != nil {
			log.Printf("ERROR: scheduled reclaim pass failed: %v", err)
		}
	}); err != nil {
		log.Fatalf("Invalid RECLAIMER_CRON_SPEC: %v", err)
	}
	scheduler.Start()

	// 9. Initialize Router & HTTP Server
	router := api.NewRouter(authService, quoteService, jobService, renderWorker, reclaimer, billing.Disabled{})

	server := &http.Server{
		Addr:         ":" + cfg.APIPort,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// 10. Graceful Shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	go func() {
		log.Printf("Server starting on port %s", cfg.APIPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Could not listen on %s: %v\n", cfg.APIPort, err)
		}
	}()

	<-stop // Wait for interrupt signal

	log.Println("Shutting down server...")
	cronCtx := scheduler.Stop() // Let an in-flight pass finish
	<-cronCtx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server shutdown failed: %v", err)
	}

	log.Println("Server and scheduler stopped gracefully")
}

package main

import (
	"encoding/json"
	"fmt"
	"os"

	"quotereel/internal/app/service"
	"quotereel/internal/app/worker"
	"quotereel/internal/domain/repository"
	"quotereel/internal/platform/config"
	"quotereel/internal/render"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "quotereel-jobs",
	Short: "Render queue passes and job management for quotereel",
}

func Execute(jobRepo repository.RenderJobRepository) error {
	rootCmd.AddCommand(workCmd(jobRepo))
	rootCmd.AddCommand(reclaimCmd(jobRepo))
	rootCmd.AddCommand(enqueueCmd(jobRepo))
	rootCmd.AddCommand(statusCmd(jobRepo))
	return rootCmd.Execute()
}

func workCmd(jobRepo repository.RenderJobRepository) *cobra.Command {
	return &cobra.Command{
		Use:   "work",
		Short: "Run one bounded processing pass over pending render jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.AppConfig
			w := worker.NewRenderWorker(jobRepo, render.NewCommandRenderer(cfg.RenderCommand), worker.Options{
				MaxAttempts: cfg.RenderMaxAttempts,
				JobTimeout:  cfg.RenderJobTimeout,
				PassMaxJobs: cfg.RenderPassMaxJobs,
				Concurrency: cfg.RenderPassConcurrency,
			})
			summary, err := w.RunPass(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(summary)
		},
	}
}

func reclaimCmd(jobRepo repository.RenderJobRepository) *cobra.Command {
	return &cobra.Command{
		Use:   "reclaim",
		Short: "Return render jobs stuck in processing past the timeout to pending",
		RunE: func(cmd *cobra.Command, args []string) error {
			r := worker.NewReclaimer(jobRepo, config.AppConfig.RenderReclaimAfter)
			reclaimed, err := r.RunPass(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(map[string]int64{"reclaimed": reclaimed})
		},
	}
}

func enqueueCmd(jobRepo repository.RenderJobRepository) *cobra.Command {
	var req service.SubmitRenderRequest
	cmd := &cobra.Command{
		Use:   "enqueue",
		Short: "Submit a render job directly",
		RunE: func(cmd *cobra.Command, args []string) error {
			jobService := service.NewRenderJobService(jobRepo)
			id, err := jobService.Submit(cmd.Context(), req)
			if err != nil {
				return err
			}
			return printJSON(map[string]string{"id": id})
		},
	}
	cmd.Flags().StringVar(&req.Text, "text", "", "quote text to render (required)")
	cmd.Flags().StringVar(&req.Author, "author", "", "quote author")
	cmd.Flags().StringVar(&req.Style, "style", "", "render style preset")
	cmd.Flags().IntVar(&req.DurationSeconds, "duration", 0, "clip duration in seconds")
	cmd.MarkFlagRequired("text")
	return cmd
}

func statusCmd(jobRepo repository.RenderJobRepository) *cobra.Command {
	return &cobra.Command{
		Use:   "status <job-id>",
		Short: "Show the current state of a render job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jobService := service.NewRenderJobService(jobRepo)
			status, err := jobService.Status(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(status)
		},
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return nil
}

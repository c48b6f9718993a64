package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"gwi.com/fleet-copilot/internal/agent"
	"gwi.com/fleet-copilot/internal/api"
	"gwi.com/fleet-copilot/internal/auth"
	"gwi.com/fleet-copilot/internal/config"
	"gwi.com/fleet-copilot/internal/core"
	"gwi.com/fleet-copilot/internal/media"
	"gwi.com/fleet-copilot/internal/scheduler"
	"gwi.com/fleet-copilot/internal/tools"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	ctx := cmd.Context()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	a, err := newApp(cfg, logger, reg)
	if err != nil {
		return err
	}
	defer a.Close()

	blobs, err := newBlobStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize blob store: %w", err)
	}
	mediaStore := media.NewStore(blobs, media.Options{
		Parallelism: cfg.MediaParallelism,
		Logger:      logger,
		Observer:    a.metrics,
	})

	registry := tools.NewFleetRegistry(tools.Deps{
		API:      a.client,
		Vehicles: a.store,
		Media:    mediaStore,
		Tags:     a.tags,
		Fleet:    a.vehicles,
		Logger:   logger,
	}, a.metrics)

	llm, closeLLM, err := newAgent(ctx, cfg, registry)
	if err != nil {
		return err
	}
	defer closeLLM()

	copilot := core.NewCopilotService(a.store, llm, logger, a.metrics)
	signer := auth.NewSigner(cfg.JWTSecret, auth.DefaultTokenTTL)
	apiHandler := api.NewAPIHandler(copilot, signer, blobs, logger)
	router := api.NewRouter(apiHandler, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	sched := scheduler.New(logger)
	if cfg.SyncSchedule != "" {
		if err := sched.Add(cfg.SyncSchedule, "sync-tags", forceSync(a.tags)); err != nil {
			return err
		}
		if err := sched.Add(cfg.SyncSchedule, "sync-vehicles", forceSync(a.vehicles)); err != nil {
			return err
		}
		sched.Start()
	}
	defer sched.Stop()

	serverAddr := fmt.Sprintf(":%s", cfg.HTTPPort)
	srv := &http.Server{
		Addr:         serverAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 5 * time.Minute, // a streamed turn spans several LLM rounds
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server", "addr", serverAddr, "provider", cfg.LLMProvider)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("could not listen on %s: %w", serverAddr, err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-errCh:
		return err
	}
	logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	logger.Info("server exited gracefully")
	return nil
}

func forceSync(s tools.Syncer) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		_, _, err := s.EnsureFresh(ctx, true)
		return err
	}
}

func newAgent(ctx context.Context, c *config.Config, box agent.Toolbox) (agent.Agent, func(), error) {
	switch c.LLMProvider {
	case config.ProviderOpenAI:
		return agent.NewOpenAIAgent(c.OpenAIAPIKey, c.OpenAIBaseURL, c.OpenAIModel, box, logger), func() {}, nil
	default:
		g, err := agent.NewGeminiAgent(ctx, c.GeminiAPIKey, c.GeminiModel, box, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize gemini agent: %w", err)
		}
		return g, func() { _ = g.Close() }, nil
	}
}

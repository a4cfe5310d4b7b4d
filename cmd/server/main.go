package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"timeline-orchestrator/internal/composition"
	"timeline-orchestrator/internal/orchestrator"
	"timeline-orchestrator/internal/platform/config"
	"timeline-orchestrator/internal/platform/logger"
	"timeline-orchestrator/internal/platform/metrics"
	"timeline-orchestrator/internal/registry"

	"github.com/go-chi/chi/v5"
)

const (
	shutdownTimeout = 10 * time.Second
	defaultSession  = orchestrator.SessionID("default")
)

func main() {
	_ = config.Load()
	cfg := config.FromEnv()

	log := logger.New(cfg.LogLevel, cfg.LogFormat)
	met := metrics.New()

	opts := []registry.Option{
		registry.WithLogger(log),
		registry.WithRecorder(met),
		registry.WithDependencyTimeout(cfg.DependencyTimeout),
	}
	if cfg.Strict {
		opts = append(opts, registry.WithStrict())
	}
	if cfg.AutoPlay {
		opts = append(opts, registry.WithAutoPlay())
	}

	repo := orchestrator.NewInMemoryRepository(orchestrator.NewSessionFactory(opts...))
	svc := orchestrator.NewService(repo)
	h := orchestrator.NewHandler(svc, log)

	if cfg.CompositionFile != "" {
		c, err := composition.Load(cfg.CompositionFile)
		if err != nil {
			log.Error("load composition", "path", cfg.CompositionFile, "error", err)
			os.Exit(1)
		}
		if err := svc.LoadComposition(defaultSession, c); err != nil {
			log.Error("register composition", "path", cfg.CompositionFile, "error", err)
			os.Exit(1)
		}
		log.Info("composition preloaded",
			"session_id", defaultSession,
			"name", c.Name,
			"segments", len(c.Segments),
		)
	}

	r := chi.NewRouter()
	r.Use(logger.RequestLogger(log))
	r.Use(metrics.RequestMiddleware(met))
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		met.Handler(func() { met.SetActiveSessions(svc.ActiveSessionCount()) }).ServeHTTP(w, r)
	})
	h.Routes(r)

	addr := ":" + cfg.Port
	srv := &http.Server{Addr: addr, Handler: r}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	log.Info("server starting",
		"port", cfg.Port,
		"dependency_timeout", cfg.DependencyTimeout.String(),
		"strict", cfg.Strict,
		"autoplay", cfg.AutoPlay,
		"log_level", cfg.LogLevel,
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Info("shutdown signal received, draining connections")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("shutdown error", "error", err)
		os.Exit(1)
	}

	log.Info("server stopped")
}

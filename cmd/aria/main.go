package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/giuliaserra/aria/internal/agent"
	"github.com/giuliaserra/aria/internal/archive"
	"github.com/giuliaserra/aria/internal/config"
	"github.com/giuliaserra/aria/internal/httpapi"
	"github.com/giuliaserra/aria/internal/observability"
	"github.com/giuliaserra/aria/internal/session"
	"github.com/giuliaserra/aria/internal/workflow"
)

func main() {
	// A missing .env is the normal case outside local development.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf(".env load skipped: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	ctx := context.Background()
	archiveStore, err := archive.NewStore(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("archive store init failed: %v", err)
	}
	defer archiveStore.Close()
	if cfg.DatabaseURL == "" {
		log.Printf("stage archive: in-memory (set DATABASE_URL for postgres)")
	} else {
		log.Printf("stage archive: postgres")
	}

	agents, err := agent.NewRegistry(agent.Config{
		Mode:       cfg.AgentMode,
		ReportsDir: cfg.ReportsDir,
	})
	if err != nil {
		log.Fatalf("agent registry init failed: %v", err)
	}
	log.Printf("agent mode: %s", cfg.AgentMode)

	sessions := session.NewStore(cfg.SessionInactivityTimeout)
	sessions.SetExpireHook(func(_ string) {
		metrics.SessionEvents.WithLabelValues("expired").Inc()
		metrics.ActiveSessions.Set(float64(sessions.Count()))
	})

	runner := workflow.NewRunner(agents, archiveStore, metrics, workflow.Options{
		AgentTimeout:      cfg.AgentTimeout,
		MaxUploadSizeMB:   cfg.MaxUploadSizeMB,
		AllowedExtensions: cfg.AllowedExtensions,
	})

	api := httpapi.New(cfg, sessions, runner, archiveStore, metrics)
	runner.SetNotifier(api.PublishStageEvent)

	httpServer := &http.Server{
		Addr:    cfg.BindAddr,
		Handler: api.Router(),
	}

	runCtx, runCancel := context.WithCancel(context.Background())
	defer runCancel()
	sessions.StartJanitor(runCtx, 5*time.Second)

	go func() {
		log.Printf("server listening on %s", cfg.BindAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Printf("shutdown signal received")

	runCancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
		_ = httpServer.Close()
	}

	log.Printf("shutdown complete")
}

package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/dmarchetti/streamrec/internal/broadcast"
	"github.com/dmarchetti/streamrec/internal/config"
	"github.com/dmarchetti/streamrec/internal/httpapi"
	"github.com/dmarchetti/streamrec/internal/observability"
	"github.com/dmarchetti/streamrec/internal/params"
	"github.com/dmarchetti/streamrec/internal/pipeline"
	"github.com/dmarchetti/streamrec/internal/recorder"
	"github.com/dmarchetti/streamrec/internal/session"
	"github.com/dmarchetti/streamrec/internal/signaling"
	"github.com/dmarchetti/streamrec/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	ctx := context.Background()
	recordings, err := storage.NewStore(ctx, cfg.DatabaseURL, cfg.RecordingsDir)
	if err != nil {
		log.Fatalf("recording store init failed: %v", err)
	}
	defer recordings.Close()
	if cfg.DatabaseURL != "" {
		log.Printf("recording store: postgres")
	} else {
		log.Printf("recording store: filesystem (%s)", cfg.RecordingsDir)
	}

	paramStore := params.NewStore(cfg.DefaultParams)
	sessions := session.NewRegistry(cfg.SessionIdleTimeout, paramStore)
	sessions.SetExpireHook(func(_ session.Info) {
		metrics.SessionEvents.WithLabelValues("expired").Inc()
		metrics.ActiveSessions.Set(float64(sessions.ActiveCount()))
	})

	hub := broadcast.NewHub(sessions)
	batcher := pipeline.New(sessions, paramStore)
	signaler := signaling.New(sessions, paramStore)
	finalizer := recorder.New(sessions, paramStore, recordings)

	api := httpapi.New(cfg, paramStore, sessions, hub, batcher, signaler, finalizer, recordings, metrics)
	httpServer := &http.Server{
		Addr:    cfg.BindAddr,
		Handler: api.Router(),
	}

	runCtx, runCancel := context.WithCancel(context.Background())
	defer runCancel()
	sessions.StartJanitor(runCtx, cfg.JanitorInterval)

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

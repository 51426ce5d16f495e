package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/smartflow-crm/personaplex/internal/archive"
	"github.com/smartflow-crm/personaplex/internal/callback"
	"github.com/smartflow-crm/personaplex/internal/config"
	"github.com/smartflow-crm/personaplex/internal/ctxstore"
	"github.com/smartflow-crm/personaplex/internal/engine"
	"github.com/smartflow-crm/personaplex/internal/httpapi"
	"github.com/smartflow-crm/personaplex/internal/model"
	"github.com/smartflow-crm/personaplex/internal/observability"
	"github.com/smartflow-crm/personaplex/internal/policy"
	"github.com/smartflow-crm/personaplex/internal/session"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	metrics := observability.NewMetrics(cfg.MetricsNamespace)
	window := observability.NewLatencyWindow(256)

	ctx := context.Background()
	archiveStore, err := archive.NewStore(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("archive store init failed: %v", err)
	}
	defer archiveStore.Close()
	if cfg.DatabaseURL != "" {
		log.Printf("call summary archive: postgres")
	} else {
		log.Printf("call summary archive: in-memory")
	}

	mdl := model.NewKeywordEngine(cfg.ModelName, cfg.Device)
	log.Printf("model %s ready on %s", cfg.ModelName, mdl.Device())

	gate := policy.NewKeyGate(cfg.APIKey)
	if !gate.Enabled() {
		log.Printf("warning: PERSONAPLEX_API_KEY not set, authentication disabled")
	}

	sessions := session.NewManager(cfg.MaxSessions, cfg.SessionTimeout)
	sessions.SetEvictHook(func(_ *session.Session) {
		metrics.SessionEvents.WithLabelValues("evicted_stale").Inc()
		metrics.ActiveSessions.Set(float64(sessions.ActiveCount()))
	})

	store := ctxstore.NewStore(cfg.ContextTTL)

	dispatcher := callback.NewDispatcher(cfg.CallbackWebhookURL, cfg.CallbackPath)
	if dispatcher.Configured() {
		log.Printf("end-of-call callbacks: %s", dispatcher.Endpoint())
	} else {
		log.Printf("end-of-call callbacks disabled")
	}
	notifier := callback.NewNotifier(dispatcher, store, archiveStore, metrics, window, cfg.ContextRetention)

	eng := engine.New(gate, sessions, mdl, notifier, metrics, window, engine.Options{
		HandshakeTimeout:   cfg.HandshakeTimeout,
		IdleTimeout:        cfg.SessionTimeout,
		MaxAudioChunkBytes: cfg.MaxAudioChunkBytes,
		NotifyOnIdle:       cfg.NotifyOnIdleTimeout,
	})

	api := httpapi.New(cfg, gate, sessions, store, mdl, eng, notifier, metrics, window)
	httpServer := &http.Server{
		Addr:    cfg.BindAddr,
		Handler: api.Router(),
	}

	runCtx, runCancel := context.WithCancel(context.Background())
	defer runCancel()
	sessions.StartJanitor(runCtx, cfg.SweepInterval)
	store.StartJanitor(runCtx, cfg.SweepInterval)

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

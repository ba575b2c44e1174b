package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	cshttp "github.com/vantagevoice/callscope/internal/adapter/http"
	csnats "github.com/vantagevoice/callscope/internal/adapter/nats"
	"github.com/vantagevoice/callscope/internal/adapter/openai"
	"github.com/vantagevoice/callscope/internal/adapter/otel"
	"github.com/vantagevoice/callscope/internal/adapter/postgres"
	"github.com/vantagevoice/callscope/internal/adapter/ristretto"
	"github.com/vantagevoice/callscope/internal/adapter/twilio"
	"github.com/vantagevoice/callscope/internal/adapter/ws"
	"github.com/vantagevoice/callscope/internal/config"
	"github.com/vantagevoice/callscope/internal/emitter"
	"github.com/vantagevoice/callscope/internal/logger"
	"github.com/vantagevoice/callscope/internal/resilience"
	"github.com/vantagevoice/callscope/internal/service"
	"github.com/vantagevoice/callscope/internal/tracker"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	log, logCloser := logger.New(cfg.Logging)
	defer logCloser.Close()
	slog.SetDefault(log)

	slog.Info("config loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Logging.Level,
		"pg_max_conns", cfg.Postgres.MaxConns,
	)

	ctx := context.Background()

	// --- Telemetry ---
	otelShutdown, err := otel.Init(ctx, cfg.Logging.Service, cfg.Telemetry.Endpoint)
	if err != nil {
		return fmt.Errorf("otel: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = otelShutdown(shutdownCtx)
	}()

	metrics, err := otel.NewMetrics()
	if err != nil {
		return fmt.Errorf("otel metrics: %w", err)
	}

	// --- Infrastructure ---

	// PostgreSQL
	pool, err := postgres.NewPool(ctx, cfg.Postgres)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	defer pool.Close()
	slog.Info("postgres connected")

	if err := postgres.RunMigrations(ctx, cfg.Postgres.DSN); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	slog.Info("migrations applied")

	// NATS
	queue, err := csnats.Connect(ctx, cfg.NATS.URL)
	if err != nil {
		return fmt.Errorf("nats: %w", err)
	}
	defer func() { _ = queue.Close() }()

	// In-process cache for telephony API lookups.
	cache, err := ristretto.New(cfg.Cache.MaxSizeMB << 20)
	if err != nil {
		return fmt.Errorf("cache: %w", err)
	}
	defer cache.Close()

	// --- Services ---
	hub := ws.NewHub()
	store := postgres.NewStore(pool)
	trk := tracker.New(log)
	em := emitter.New(cfg.Webhook.URL, cfg.Webhook.Token, log)

	callSvc := service.NewCallService(trk, em, store, queue, hub, log)
	callSvc.SetMetrics(metrics)

	if cfg.Twilio.AccountSID != "" && cfg.Twilio.AuthToken != "" {
		fetcher := twilio.New(cfg.Twilio.AccountSID, cfg.Twilio.AuthToken, log)
		fetcher.SetBreaker(resilience.NewBreaker(cfg.Breaker.MaxFailures, cfg.Breaker.Timeout))
		fetcher.SetCache(cache)
		callSvc.SetBilling(fetcher)
	}

	if cfg.OpenAI.APIKey != "" {
		tagClient := openai.NewClient(cfg.OpenAI.APIKey, log)
		tagClient.SetModel(cfg.OpenAI.Model)
		tagClient.SetBreaker(resilience.NewBreaker(cfg.Breaker.MaxFailures, cfg.Breaker.Timeout))
		callSvc.SetTagger(tagClient)
	}

	// Pipeline workers publish call events over NATS.
	cancelSubs, err := callSvc.StartSubscribers(ctx)
	if err != nil {
		return fmt.Errorf("subscribers: %w", err)
	}
	defer cancelSubs()

	// --- HTTP ---
	handlers := &cshttp.Handlers{Calls: callSvc}

	r := chi.NewRouter()

	r.Use(cshttp.CORS(cfg.Server.CORSOrigin))
	r.Use(cshttp.Logger)
	r.Use(otel.HTTPMiddleware(cfg.Logging.Service))
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(30 * time.Second))

	r.Get("/health", healthHandler(cfg, callSvc, queue, hub))

	// Live dashboard stream
	r.Get("/ws", hub.HandleWS)

	cshttp.MountRoutes(r, handlers, cfg.Webhook)

	addr := ":" + cfg.Server.Port

	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		slog.Info("starting server", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
		}
	}()

	<-done
	slog.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := queue.Drain(); err != nil {
		slog.Warn("nats drain failed", "error", err)
	}

	return srv.Shutdown(shutdownCtx)
}

// healthHandler returns an http.HandlerFunc that reports service health.
func healthHandler(cfg *config.Config, svc *service.CallService, queue *csnats.Queue, hub *ws.Hub) http.HandlerFunc {
	type healthStatus struct {
		Status        string `json:"status"`
		NATS          bool   `json:"nats_connected"`
		ActiveCalls   int    `json:"active_calls"`
		WSConnections int    `json:"ws_connections"`
		Webhook       bool   `json:"webhook_configured"`
		Billing       bool   `json:"billing_configured"`
	}

	return func(w http.ResponseWriter, _ *http.Request) {
		status := healthStatus{
			Status:        "ok",
			NATS:          queue.IsConnected(),
			ActiveCalls:   svc.ActiveCalls(),
			WSConnections: hub.ConnectionCount(),
			Webhook:       cfg.Webhook.URL != "",
			Billing:       cfg.Twilio.AccountSID != "",
		}
		if !status.NATS {
			status.Status = "degraded"
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(status)
	}
}

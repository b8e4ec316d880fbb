// Package main is the entry point for the reply engine API server.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/konsul-ai/reply-engine/internal/billing"
	"github.com/konsul-ai/reply-engine/internal/calendar"
	"github.com/konsul-ai/reply-engine/internal/config"
	"github.com/konsul-ai/reply-engine/internal/handler"
	"github.com/konsul-ai/reply-engine/internal/llm"
	"github.com/konsul-ai/reply-engine/internal/middleware"
	"github.com/konsul-ai/reply-engine/internal/natslog"
	"github.com/konsul-ai/reply-engine/internal/orchestrator"
	"github.com/konsul-ai/reply-engine/internal/retrieval"
	"github.com/konsul-ai/reply-engine/internal/store"
	"github.com/konsul-ai/reply-engine/internal/store/postgres"
	"github.com/konsul-ai/reply-engine/pkg/logger"
	"github.com/konsul-ai/reply-engine/pkg/tracing"
)

func main() {
	cfg := config.Load()

	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("starting reply engine")

	ctx := context.Background()
	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(ctx, "reply-engine", cfg.TracingEndpoint)
		if err != nil {
			log.Warn("failed to initialize tracing", zap.Error(err))
		} else {
			defer tracing.Shutdown(ctx, tp)
		}
	}

	// Storage: Postgres when a DSN is configured, in-memory otherwise
	// (development and tests).
	var (
		st store.Store
		db *postgres.DB
	)
	if cfg.PostgresDSN != "" {
		db, err = postgres.New(ctx, cfg.PostgresDSN, log)
		if err != nil {
			log.Error("failed to connect to postgres", zap.Error(err))
			os.Exit(1)
		}
		defer db.Close()

		if err := db.Migrate(ctx); err != nil {
			log.Error("failed to apply schema", zap.Error(err))
			os.Exit(1)
		}
		st = db
	} else {
		log.Warn("POSTGRES_DSN not set, using in-memory store")
		st = store.NewMemory()
	}

	// Message log: JetStream when NATS is configured, otherwise the store's
	// own log (Postgres messages table or memory).
	var messages store.MessageLog
	if cfg.NATSURL != "" {
		natsClient, err := natslog.Connect(ctx, natslog.Config{
			URL:      cfg.NATSURL,
			CAFile:   cfg.NATSCAFile,
			CertFile: cfg.NATSCertFile,
			KeyFile:  cfg.NATSKeyFile,
			Token:    cfg.NATSToken,
		}, log)
		if err != nil {
			log.Error("failed to connect to NATS", zap.Error(err))
			os.Exit(1)
		}
		defer natsClient.Close()

		msgLog := natslog.NewMessageLog(natsClient)
		if err := msgLog.EnsureStream(ctx); err != nil {
			log.Error("failed to ensure stream", zap.Error(err))
			os.Exit(1)
		}
		messages = msgLog
	} else {
		var ok bool
		messages, ok = st.(store.MessageLog)
		if !ok {
			log.Error("store does not provide a message log and NATS_URL is not set")
			os.Exit(1)
		}
	}

	resolver, err := llm.NewResolver(ctx, llm.Config{
		OpenAIAPIKey:    cfg.OpenAIAPIKey,
		GeminiAPIKey:    cfg.GeminiAPIKey,
		AnthropicAPIKey: cfg.AnthropicAPIKey,
		EmbeddingModel:  cfg.EmbeddingModel,
	}, log)
	if err != nil {
		log.Error("failed to initialize model providers", zap.Error(err))
		os.Exit(1)
	}

	var cal calendar.Client
	if cfg.GoogleCredentialsFile != "" {
		cal, err = calendar.NewGoogleClient(ctx, cfg.GoogleCredentialsFile)
		if err != nil {
			log.Warn("failed to create calendar client, scheduling tools disabled", zap.Error(err))
			cal = nil
		}
	}

	// Live retrieval scores by keyword overlap. The sandbox upgrades to
	// embedding similarity when an embedding-capable provider is available.
	retriever := retrieval.New(st, log)
	sandboxRetriever := retriever
	if embedder, ok := resolver.Embedder(); ok {
		sandboxRetriever = retrieval.NewSemantic(st, embedder, log)
	}

	meter := billing.NewMeter(st, log)

	engine := orchestrator.NewEngine(
		st,
		messages,
		retriever,
		sandboxRetriever,
		resolver,
		cal,
		meter,
		log,
		orchestrator.Options{
			TurnTimeout: cfg.ReplyTimeout,
			CallTimeout: cfg.ModelCallTimeout,
		},
	)

	healthHandler := handler.NewHealthHandler(pinger(db))
	replyHandler := handler.NewReplyHandler(engine, st, messages, log)

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(log))
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(nil))

	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWTSecret))
		r.Use(middleware.RateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))

		r.Route("/agents/{agentID}", func(r chi.Router) {
			r.Post("/conversations/{conversationID}/reply", replyHandler.Reply)
			r.Post("/sandbox", replyHandler.Sandbox)
		})
	})

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      r,
		ReadTimeout:  cfg.ServerReadTimeout,
		WriteTimeout: cfg.ServerWriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Info("server listening", zap.String("port", cfg.ServerPort))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", zap.Error(err))
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}

	log.Info("server stopped")
}

// pinger avoids handing the health handler a typed-nil interface when
// running on the in-memory store.
func pinger(db *postgres.DB) handler.Pinger {
	if db == nil {
		return nil
	}
	return db
}

// Package main is the entrypoint for the contract sentinel worker: the job
// API and the queue consumer that drives the review pipeline.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/kiranshivaraju/contractsentinel/internal/ai"
	"github.com/kiranshivaraju/contractsentinel/internal/api"
	"github.com/kiranshivaraju/contractsentinel/internal/api/handler"
	mw "github.com/kiranshivaraju/contractsentinel/internal/api/middleware"
	"github.com/kiranshivaraju/contractsentinel/internal/api/response"
	"github.com/kiranshivaraju/contractsentinel/internal/cache"
	"github.com/kiranshivaraju/contractsentinel/internal/config"
	"github.com/kiranshivaraju/contractsentinel/internal/document"
	"github.com/kiranshivaraju/contractsentinel/internal/inspect"
	"github.com/kiranshivaraju/contractsentinel/internal/ledger"
	"github.com/kiranshivaraju/contractsentinel/internal/metrics"
	"github.com/kiranshivaraju/contractsentinel/internal/pipeline"
	"github.com/kiranshivaraju/contractsentinel/internal/queue"
	"github.com/kiranshivaraju/contractsentinel/internal/redact"
	"github.com/kiranshivaraju/contractsentinel/internal/store"
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 30 * time.Second

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// A missing .env is fine; the environment may already be populated.
	_ = godotenv.Load()

	if err := run(); err != nil {
		slog.Error("worker failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load config, failing fast when invalid
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.Info("config loaded",
		"env", cfg.Server.Env,
		"database_driver", cfg.Database.Driver,
		"primary_provider", cfg.Primary.Provider,
		"shadow_enabled", cfg.Shadow.Enabled())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Open job store (postgres migrations run here)
	st, err := store.Open(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()
	slog.Info("database connected", "driver", cfg.Database.Driver)

	// 3. Create Redis cache
	redisCache, err := cache.NewRedisCache(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("create redis cache: %w", err)
	}
	defer redisCache.Close()

	if err := redisCache.Ping(ctx); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	slog.Info("redis connected")

	// 4. Connect to NATS
	nc, err := queue.Connect(ctx, cfg.NATS)
	if err != nil {
		return fmt.Errorf("connect nats: %w", err)
	}
	defer nc.Close()

	// 5. Create models
	primary, err := ai.NewModel(cfg.Primary)
	if err != nil {
		return fmt.Errorf("create primary model: %w", err)
	}
	shadow, err := ai.NewShadowModel(cfg.Shadow)
	if err != nil {
		return fmt.Errorf("create shadow model: %w", err)
	}
	slog.Info("models initialized", "primary", primary.Model(), "shadow_enabled", shadow != nil)

	// 6. Metrics
	reg := prom.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	recorder := metrics.NewRecorder(reg)

	// 7. Pipeline
	var inspector redact.Inspector
	if cfg.Inspector.BaseURL != "" {
		inspector = inspect.New(cfg.Inspector.BaseURL, cfg.Inspector.Timeout)
	} else {
		slog.Warn("INSPECTOR_BASE_URL not set, documents will not be redacted")
	}

	evaluator := ai.NewEvaluator(primary,
		ai.WithShadow(shadow, cfg.Analysis.ShadowTimeout),
		ai.WithInferenceTimeout(cfg.Analysis.InferenceTimeout),
		ai.WithSink(ai.MultiSink{ai.LogSink{}, recorder}),
	)
	jobLedger := ledger.New(st, redisCache, cfg.Redis.StatusTTL)
	orchestrator := pipeline.New(
		document.NewFetcher(cfg.Documents),
		redact.New(inspector, cfg.Inspector.InfoTypes),
		evaluator,
		jobLedger,
		recorder,
	)

	// 8. Build router with dependencies
	deps := api.Dependencies{
		Auth:      mw.NewAuth(st),
		RateLimit: mw.NewRateLimit(redisCache, cfg.Redis.RequestsPerMin),
		Panics:    recorder,

		HealthHandler: healthHandler(map[string]pinger{
			"database": st,
			"cache":    redisCache,
			"queue":    nc,
		}),
		MetricsHandler:   metrics.Handler(reg),
		CreateJobHandler: handler.NewCreateJobHandler(jobLedger, queue.NewPublisher(nc), evaluator.PrimaryModel()),
		GetJobHandler:    handler.NewGetJobHandler(jobLedger),
		JobStatusHandler: handler.NewJobStatusHandler(jobLedger),
	}

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      api.NewRouter(deps),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// 9. Serve HTTP and consume jobs until a signal or a fatal error
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		return queue.NewConsumer(nc, orchestrator, recorder).Run(gctx)
	})

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutdown signal received, draining connections...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}

	slog.Info("worker stopped gracefully")
	return nil
}

type pinger interface {
	Ping(ctx context.Context) error
}

// healthHandler reports each dependency as ok or degraded.
func healthHandler(deps map[string]pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := make(map[string]string, len(deps))
		degraded := false
		for name, p := range deps {
			checks[name] = "ok"
			if err := p.Ping(r.Context()); err != nil {
				slog.Warn("health check failed", "service", name, "error", err)
				checks[name] = "degraded"
				degraded = true
			}
		}

		if degraded {
			response.Error(w, http.StatusServiceUnavailable, "DEGRADED",
				"One or more services degraded", checks)
			return
		}

		response.JSON(w, map[string]any{
			"status":   "ok",
			"services": checks,
		})
	}
}

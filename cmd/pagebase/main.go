// Command pagebase runs the Pagebase core service: tenant resolution,
// admission control, and tenant administration over HTTP.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	pbhttp "github.com/pagebase/pagebase/internal/adapter/http"
	pbnats "github.com/pagebase/pagebase/internal/adapter/nats"
	"github.com/pagebase/pagebase/internal/adapter/otel"
	"github.com/pagebase/pagebase/internal/adapter/postgres"
	"github.com/pagebase/pagebase/internal/adapter/ristretto"
	"github.com/pagebase/pagebase/internal/admission"
	"github.com/pagebase/pagebase/internal/config"
	"github.com/pagebase/pagebase/internal/logger"
	"github.com/pagebase/pagebase/internal/middleware"
	"github.com/pagebase/pagebase/internal/port/messagequeue"
	"github.com/pagebase/pagebase/internal/resilience"
	"github.com/pagebase/pagebase/internal/resolver"
	"github.com/pagebase/pagebase/internal/service"
	"github.com/pagebase/pagebase/internal/usage"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "admin" {
		if err := runAdmin(os.Args[2:]); err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			os.Exit(1)
		}
		return
	}

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

	log, closeLog := logger.New(cfg.Logging)
	defer closeLog.Close()
	slog.SetDefault(log)

	slog.Info("config loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Logging.Level,
		"resolver_ttl", cfg.Resolver.TTL,
	)

	ctx := context.Background()

	// --- Infrastructure ---

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

	var queue messagequeue.Queue
	var queueStatus pbhttp.QueueStatus
	if cfg.NATS.URL != "" {
		q, err := pbnats.Connect(ctx, cfg.NATS.URL)
		if err != nil {
			return fmt.Errorf("nats: %w", err)
		}
		defer func() { _ = q.Drain() }()
		queue = q
		queueStatus = q
	}

	snapshots, err := ristretto.New(cfg.Cache.MaxSizeMB << 20)
	if err != nil {
		return fmt.Errorf("cache: %w", err)
	}
	defer snapshots.Close()

	// --- Telemetry ---

	var metrics *otel.Metrics
	if cfg.Telemetry.Enabled {
		shutdown, err := otel.Init(ctx, cfg.Logging.Service, cfg.Telemetry.Endpoint)
		if err != nil {
			return fmt.Errorf("telemetry: %w", err)
		}
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = shutdown(sctx)
		}()

		metrics, err = otel.NewMetrics()
		if err != nil {
			return fmt.Errorf("metrics: %w", err)
		}
	}

	// --- Core ---

	store := postgres.NewStore(pool)

	recorder := usage.New(store, queue, log, cfg.Rate.UsageBuffer)
	defer recorder.Close()

	breaker := resilience.NewBreaker(cfg.Breaker.MaxFailures, cfg.Breaker.Timeout)
	res := resolver.New(store, snapshots, log, resolver.Options{
		TTL:              cfg.Resolver.TTL,
		DirectoryTimeout: cfg.Resolver.DirectoryTimeout,
		Breaker:          breaker,
		Metrics:          metrics,
	})

	ctrl := admission.New(recorder)
	stopCleanup := ctrl.StartCleanup(cfg.Rate.CleanupInterval, cfg.Rate.MaxIdleTime)
	defer stopCleanup()

	tenants := service.NewTenantService(store, queue, log)

	// --- HTTP ---

	tenantCtx := middleware.NewTenantContext(res, ctrl, log, metrics)
	handlers := pbhttp.NewHandlers(tenants, queueStatus, cfg.Provision.Secret)

	r := chi.NewRouter()
	r.Use(pbhttp.CORS(cfg.Server.CORSOrigin))
	r.Use(pbhttp.SecurityHeaders)
	r.Use(pbhttp.Logger)
	r.Use(middleware.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(30 * time.Second))
	if cfg.Telemetry.Enabled {
		r.Use(otel.HTTPMiddleware(cfg.Logging.Service))
	}
	r.Use(tenantCtx.Handler)

	pbhttp.MountRoutes(r, handlers)

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// Graceful shutdown
	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(sigCtx)
	g.Go(func() error {
		slog.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down")
		shutCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})

	return g.Wait()
}

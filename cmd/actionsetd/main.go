// Package main is the entry point for the action set server. It wires all
// dependencies together and starts the HTTP server.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/tixgate/actionset/internal/actionset"
	"github.com/tixgate/actionset/internal/config"
	"github.com/tixgate/actionset/internal/dispatch"
	"github.com/tixgate/actionset/internal/flows/cart"
	"github.com/tixgate/actionset/internal/flows/event"
	"github.com/tixgate/actionset/internal/observability"
	"github.com/tixgate/actionset/internal/registry"
	"github.com/tixgate/actionset/internal/rights"
	"github.com/tixgate/actionset/internal/transport"
)

// Build-time variables set via ldflags:
//
//	go build -ldflags "-X main.version=1.0.0 -X main.commit=abc1234"
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.yaml", "path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		return 1
	}

	observability.Version = version
	observability.Commit = commit

	logger, err := observability.NewLogger(cfg.Observability)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger error: %v\n", err)
		return 1
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	tracingShutdown, err := observability.InitTracing(ctx, cfg.Observability.Tracing, "actionsetd", version)
	if err != nil {
		logger.Error("tracing initialization failed", zap.Error(err))
		return 1
	}

	metrics := observability.InitMetrics(prometheus.DefaultRegisterer)

	// Rights declaration and grant store.
	rightsCfg, err := rights.Load(cfg.Rights.PolicyFile)
	if err != nil {
		logger.Error("rights declaration load failed", zap.Error(err))
		return 1
	}

	setStore, grantStore, storeCloser, err := buildStores(ctx, cfg.Workflow.Store, logger)
	if err != nil {
		logger.Error("store initialization failed", zap.Error(err))
		return 1
	}

	rightsEngine := rights.NewEngine(rightsCfg, grantStore, logger)

	// Completion queue.
	queue, queueCloser, err := buildQueue(cfg.Dispatch, logger)
	if err != nil {
		logger.Error("dispatch queue initialization failed", zap.Error(err))
		return 1
	}

	// Workflow registry: builders produce action lists, lifecycles run the
	// completion side effects.
	carts := cart.NewMemoryStore()
	events := event.NewMemoryPublisher()

	reg := registry.New()
	for _, err := range []error{
		reg.RegisterBuilder(cart.CreateBuilder{}),
		reg.RegisterBuilder(cart.CheckoutBuilder{Carts: carts}),
		reg.RegisterBuilder(event.Builder{}),
		reg.RegisterLifecycle(cart.CreateLifecycle{Carts: carts, Logger: logger}),
		reg.RegisterLifecycle(cart.CheckoutLifecycle{Carts: carts, Logger: logger}),
		reg.RegisterLifecycle(event.Lifecycle{Events: events, Logger: logger}),
	} {
		if err != nil {
			logger.Error("workflow registration failed", zap.Error(err))
			return 1
		}
	}
	if err := reg.Validate(); err != nil {
		logger.Error("workflow registry validation failed", zap.Error(err))
		return 1
	}

	setEngine := actionset.NewEngine(setStore, reg, rightsEngine, queue, actionset.Options{
		OwnerRight:       cfg.Rights.OwnerRight,
		EditRight:        cfg.Rights.EditRight,
		SystemRight:      cfg.Rights.SystemRight,
		SystemPrincipals: cfg.Rights.SystemPrincipals,
		Metrics:          metrics,
	}, logger)

	// Completion workers.
	bgCtx, bgCancel := context.WithCancel(context.Background())
	defer bgCancel()

	var workers sync.WaitGroup
	for i := 0; i < cfg.Dispatch.Workers; i++ {
		worker := dispatch.NewWorker(queue, reg, logger, cfg.Dispatch.MaxAttempts, cfg.Dispatch.Backoff).WithMetrics(metrics)
		workers.Add(1)
		go func() {
			defer workers.Done()
			if err := worker.Run(bgCtx); err != nil && bgCtx.Err() == nil {
				logger.Error("completion worker stopped", zap.Error(err))
			}
		}()
	}

	// HTTP router.
	jwks := transport.NewJWKSClient(cfg.Identity.JWKSURL, cfg.Identity.JWKSCacheTTL, logger)

	router := transport.NewRouter(transport.Dependencies{
		Config:       cfg,
		Logger:       logger,
		Sets:         setEngine,
		Rights:       rightsEngine,
		Metrics:      metrics,
		Authenticate: transport.JWTAuthenticator(cfg.Identity, jwks),
		Ready: observability.ReadinessChecks{
			WorkflowsRegistered: func() bool { return len(reg.Names()) > 0 },
			RightsLoaded:        func() bool { return rightsCfg != nil },
			WorkflowStore:       healthChecker(setStore),
			GrantStore:          healthChecker(grantStore),
			Dispatch:            healthChecker(queue),
		},
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	logger.Info("server started",
		zap.Int("port", cfg.Server.Port),
		zap.String("version", version),
		zap.String("commit", commit),
		zap.Strings("workflows", reg.Names()),
	)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown initiated")
	case err := <-errCh:
		logger.Error("server error", zap.Error(err))
		return 1
	}

	shutdownTimeout := cfg.Server.ShutdownTimeout
	if shutdownTimeout == 0 {
		shutdownTimeout = 30 * time.Second
	}
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	// Stop accepting new connections and drain in-flight requests, then stop
	// the completion workers so no half-processed delivery is lost.
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", zap.Error(err))
	}
	bgCancel()
	workers.Wait()

	if queueCloser != nil {
		queueCloser()
	}
	if storeCloser != nil {
		storeCloser()
	}
	if err := tracingShutdown(shutdownCtx); err != nil {
		logger.Error("tracing shutdown error", zap.Error(err))
	}

	logger.Info("shutdown complete")
	return 0
}

// buildStores creates the action set store and grant store based on config.
// The postgres driver shares one connection pool between both.
func buildStores(ctx context.Context, cfg config.StoreConfig, logger *zap.Logger) (actionset.Store, rights.GrantStore, func(), error) {
	switch cfg.Driver {
	case "memory", "":
		logger.Info("using in-memory stores")
		return actionset.NewMemoryStore(), rights.NewMemoryGrantStore(), nil, nil
	case "postgres":
		dsn := os.Getenv(cfg.DSNEnv)
		if dsn == "" {
			return nil, nil, nil, fmt.Errorf("store: %s environment variable not set", cfg.DSNEnv)
		}

		poolCfg, err := pgxpool.ParseConfig(dsn)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("store: parse DSN: %w", err)
		}
		poolCfg.MaxConns = int32(cfg.MaxOpenConns)
		poolCfg.MaxConnLifetime = cfg.ConnMaxLifetime

		pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("store: connect: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, nil, nil, fmt.Errorf("store: ping: %w", err)
		}

		return actionset.NewPgStore(pool), rights.NewPgGrantStore(pool), pool.Close, nil
	default:
		return nil, nil, nil, fmt.Errorf("unsupported store driver: %q", cfg.Driver)
	}
}

// buildQueue creates the completion queue based on config.
func buildQueue(cfg config.DispatchConfig, logger *zap.Logger) (dispatch.Queue, func(), error) {
	switch cfg.Driver {
	case "memory", "":
		logger.Info("using in-memory completion queue")
		return dispatch.NewMemoryQueue(cfg.QueueSize), nil, nil
	case "redis":
		addr := os.Getenv(cfg.AddrEnv)
		if addr == "" {
			return nil, nil, fmt.Errorf("dispatch: %s environment variable not set", cfg.AddrEnv)
		}
		client := redis.NewClient(&redis.Options{Addr: addr, DB: cfg.DB})
		closer := func() {
			if err := client.Close(); err != nil {
				logger.Error("redis close error", zap.Error(err))
			}
		}
		return dispatch.NewRedisQueue(client, cfg.QueueKey), closer, nil
	default:
		return nil, nil, fmt.Errorf("unsupported dispatch driver: %q", cfg.Driver)
	}
}

// healthChecker returns v as a HealthChecker when it implements one, so
// memory-backed deployments simply skip the check.
func healthChecker(v any) observability.HealthChecker {
	hc, _ := v.(observability.HealthChecker)
	return hc
}

package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/deskforge/deskforge/pkg/access"
	"github.com/deskforge/deskforge/pkg/analytics"
	"github.com/deskforge/deskforge/pkg/api"
	"github.com/deskforge/deskforge/pkg/assignment"
	"github.com/deskforge/deskforge/pkg/audit"
	"github.com/deskforge/deskforge/pkg/cache"
	"github.com/deskforge/deskforge/pkg/config"
	"github.com/deskforge/deskforge/pkg/identity"
	"github.com/deskforge/deskforge/pkg/middleware"
	"github.com/deskforge/deskforge/pkg/observability"
	"github.com/deskforge/deskforge/pkg/tickets"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		observability.NewLogger(observability.ErrorLevel, os.Stderr).WithError(err).Error("failed to load configuration")
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)

	registry := prometheus.NewRegistry()
	var metrics *observability.Metrics
	if cfg.Observability.MetricsEnabled {
		metrics = observability.NewMetrics(registry)
	}

	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		logger.WithError(err).Error("failed to open database")
		os.Exit(1)
	}
	defer db.Close()
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.Database.ConnLifetime)
	if err := db.Ping(); err != nil {
		logger.WithError(err).Error("failed to ping database")
		os.Exit(1)
	}

	backend, err := newCacheBackend(cfg)
	if err != nil {
		logger.WithError(err).Error("failed to initialize cache backend")
		os.Exit(1)
	}
	defer backend.Close()
	resolution := cache.NewResolutionCache(backend, cfg.Cache.TTL, logger, metrics)

	var auditLogger audit.Logger = audit.NopLogger{}
	var auditSearch api.AuditSearcher
	if cfg.Audit.Sink == config.AuditSinkDatabase {
		dbLogger, err := audit.NewDBLogger(db)
		if err != nil {
			logger.WithError(err).Error("failed to initialize audit logger")
			os.Exit(1)
		}
		auditLogger = dbLogger
		auditSearch = dbLogger
	}
	defer auditLogger.Close()

	store := identity.NewPostgresStore(db)

	// An invalid permission matrix is a startup failure, never a
	// runtime fallback.
	engine, err := access.NewEngine(store, resolution, access.DefaultMatrix(), auditLogger, logger, metrics)
	if err != nil {
		logger.WithError(err).Error("invalid permission matrix")
		os.Exit(1)
	}

	ticketStore := tickets.NewStore(db)
	ticketScoper := tickets.NewScoper(engine, ticketStore, logger)
	analyticsService := analytics.NewService(db, analytics.NewScoper(engine, logger), nil, logger)
	assignments := assignment.NewService(store, engine, resolution, auditLogger, logger, metrics)

	rateLimiter := middleware.NewRateLimiter(nil)

	server := api.NewServer(api.Deps{
		Engine:        engine,
		IdentityStore: store,
		TicketStore:   ticketStore,
		TicketScoper:  ticketScoper,
		Analytics:     analyticsService,
		Assignments:   assignments,
		AuditSearch:   auditSearch,
		Logger:        logger,
		RateLimiter:   rateLimiter.Handler,
	})

	mainServer := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      server,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	healthMux := http.NewServeMux()
	healthMux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		if err := db.Ping(); err != nil {
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("ok"))
	})
	if metrics != nil {
		healthMux.Handle("/metrics", metrics.Handler())
	}
	healthServer := &http.Server{
		Addr:    cfg.Server.Host + ":" + cfg.Server.HealthPort,
		Handler: healthMux,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		logger.WithField("addr", mainServer.Addr).Info("starting API server")
		if err := mainServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	group.Go(func() error {
		logger.WithField("addr", healthServer.Addr).Info("starting health server")
		if err := healthServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := mainServer.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Warn("API server shutdown failed")
		}
		return healthServer.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil {
		logger.WithError(err).Error("server exited with error")
		os.Exit(1)
	}
	logger.Info("server stopped")
}

// newCacheBackend selects the resolution cache backend from config
func newCacheBackend(cfg *config.Config) (cache.Backend, error) {
	switch cfg.Cache.Backend {
	case config.CacheBackendRedis:
		return cache.NewRedisBackend(cfg.Cache.RedisAddr, cfg.Cache.RedisPassword, cfg.Cache.RedisDB)
	case config.CacheBackendMemory:
		return cache.NewMemoryBackend(cfg.Cache.MemorySize, cfg.Cache.TTL.MaxTTL()), nil
	default:
		return cache.NewNoopBackend(), nil
	}
}

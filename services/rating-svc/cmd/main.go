package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"busbar/api/openapi"
	"busbar/pkg/auth"
	"busbar/pkg/config"
	"busbar/pkg/logger"
	"busbar/pkg/metrics"
	"busbar/pkg/ratelimit"
	"busbar/pkg/telemetry"
	"busbar/services/rating-svc/internal/engine"
	"busbar/services/rating-svc/internal/handlers"
	"busbar/services/rating-svc/internal/repository"
	"busbar/services/rating-svc/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Init("error")
		logger.Fatal("Failed to load config", "error", err)
	}

	logger.InitWithConfig(logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		FilePath:   cfg.Log.FilePath,
		MaxSize:    cfg.Log.MaxSize,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAge:     cfg.Log.MaxAge,
		Compress:   cfg.Log.Compress,
	})

	logger.Log.Info("Starting rating service",
		"version", cfg.App.Version,
		"environment", cfg.App.Environment,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tp, err := telemetry.Init(ctx, telemetry.Config{
		Enabled:     cfg.Tracing.Enabled,
		Endpoint:    cfg.Tracing.Endpoint,
		ServiceName: cfg.Tracing.ServiceName,
		Version:     cfg.App.Version,
		Environment: cfg.App.Environment,
		SampleRate:  cfg.Tracing.SampleRate,
		Attributes:  telemetry.ServiceAttributes(
			cfg.Engine.URL, cfg.Database.Driver, cfg.ForceSearch.Enabled, cfg.Quota.Enforce),
	})
	if err != nil {
		logger.Fatal("Failed to init tracing", "error", err)
	}

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.Init(cfg.Metrics.Namespace, cfg.Metrics.Subsystem)
		m.SetServiceInfo(cfg.App.Version, cfg.App.Environment)
	}

	repos, err := repository.NewRepositories(ctx, cfg, m)
	if err != nil {
		logger.Fatal("Failed to init repositories", "error", err, "driver", cfg.Database.Driver)
	}
	defer repos.Close()

	engineOpts := []engine.Option{engine.WithMetrics(m)}
	if cfg.Engine.RateLimit.Enabled {
		limiter, err := ratelimit.New(ratelimit.FromConfig(&cfg.Engine.RateLimit))
		if err != nil {
			logger.Fatal("Failed to init engine rate limiter", "error", err)
		}
		defer limiter.Close()
		engineOpts = append(engineOpts, engine.WithLimiter(limiter))
	}

	engineClient, err := engine.NewClient(&cfg.Engine, repos.Ratings, engineOpts...)
	if err != nil {
		logger.Fatal("Failed to init engine client", "error", err)
	}

	resolver := service.NewRatingResolver(repos.Ratings, engineClient, &cfg.ForceSearch, m)

	deps := handlers.Deps{
		Resolver:     resolver,
		Products:     service.NewProductService(repos.Catalog, resolver),
		Catalog:      service.NewCatalogService(repos.Catalog, m),
		Quotas:       service.NewQuotaService(repos.Quotas, &cfg.Quota, m),
		Metrics:      m,
		EnforceQuota: cfg.Quota.Enforce,
		Ready:        repos.Ping,
		AdminRole:    cfg.Auth.AdminRole,
		CORS:         &cfg.HTTP.CORS,
		APIDoc:       openapi.MustSpec(),
	}
	if cfg.Auth.Enabled {
		tokens, err := auth.NewManager(&cfg.Auth)
		if err != nil {
			logger.Fatal("Failed to init token validation", "error", err)
		}
		deps.Validator = tokens
	} else {
		logger.Log.Warn("Authentication disabled, every route is open")
	}

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:      h2c.NewHandler(handlers.New(deps).Router(), &http2.Server{}),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	go func() {
		logger.Log.Info("Rating service listening",
			"port", cfg.HTTP.Port,
			"engine", cfg.Engine.URL,
			"force_search", cfg.ForceSearch.Enabled,
			"quota_enforced", cfg.Quota.Enforce,
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server failed", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Log.Info("Shutting down...")

	timeout := cfg.HTTP.ShutdownTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), timeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Log.Error("Server shutdown error", "error", err)
	}
	if err := tp.Shutdown(shutdownCtx); err != nil {
		logger.Log.Error("Tracer shutdown error", "error", err)
	}

	logger.Log.Info("Server stopped")
}

package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/sessions"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/ekaya-inc/cleansing-engine/pkg/audit"
	"github.com/ekaya-inc/cleansing-engine/pkg/config"
	"github.com/ekaya-inc/cleansing-engine/pkg/database"
	"github.com/ekaya-inc/cleansing-engine/pkg/handlers"
	"github.com/ekaya-inc/cleansing-engine/pkg/logging"
	"github.com/ekaya-inc/cleansing-engine/pkg/middleware"
	"github.com/ekaya-inc/cleansing-engine/pkg/repositories"
	"github.com/ekaya-inc/cleansing-engine/pkg/resultview"
	"github.com/ekaya-inc/cleansing-engine/pkg/services"
)

// Version is set at build time via ldflags
var Version = "dev"

// devSessionSecret signs view cookies in local environments only.
const devSessionSecret = "local-development-session-secret"

func main() {
	cfg, err := config.Load(Version)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	cfg.ResolveHosts()

	logger, err := logging.NewLogger(cfg.Env)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Configuration loaded",
		zap.String("version", cfg.Version),
		zap.String("base_url", cfg.BaseURL),
		zap.String("database", cfg.Database.User+"@"+cfg.Database.Host+"/"+cfg.Database.Database),
		zap.String("redis", cfg.Redis.Addr()),
		zap.String("session_store", cfg.Session.Store))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.Connect(ctx, &cfg.Database, logger)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.String("error", logging.SanitizeError(err)))
	}
	defer db.Close()

	if err := db.Migrate(database.DefaultMigrationsPath, logger); err != nil {
		logger.Fatal("Failed to run migrations", zap.Error(err))
	}

	redisClient, err := database.NewRedisClient(ctx, &cfg.Redis)
	if err != nil {
		logger.Fatal("Failed to connect to Redis", zap.String("error", logging.SanitizeError(err)))
	}
	if redisClient == nil {
		logger.Fatal("Redis is required for the cleansing results cache; set REDIS_HOST")
	}
	defer redisClient.Close()

	// Metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	httpMetrics := middleware.NewHTTPMetrics(registry)

	// Repositories and services
	labelRepo := repositories.NewLabelRepository()
	importFileRepo := repositories.NewImportFileRepository()
	cache := repositories.NewCleansingCache(redisClient, repositories.DefaultCleansingTTL)

	cleansingService := services.NewCleansingService(importFileRepo, labelRepo, cache, nil, logger)
	labelService := services.NewLabelService(labelRepo, nil, audit.NewLabelAuditor(logger), logger)

	// Session store for result view preferences
	secret := cfg.Session.Secret
	if secret == "" {
		logger.Warn("SESSION_SECRET not set, using development secret")
		secret = devSessionSecret
	}
	cookieStore := sessions.NewCookieStore([]byte(secret))
	cookieStore.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   cfg.Session.MaxAge,
		HttpOnly: true,
		Secure:   !cfg.IsLocal(),
		SameSite: http.SameSiteLaxMode,
	}
	viewRedis := redisClient
	if cfg.Session.Store != "redis" {
		viewRedis = nil
	}

	// Routes
	mux := http.NewServeMux()
	tenantMiddleware := handlers.TenantMiddleware(database.WithTenantContext(db, logger))

	handlers.NewHealthHandler(cfg, map[string]handlers.HealthCheck{
		"postgres": func(ctx context.Context) error { return db.Ping(ctx) },
		"redis":    func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
	}, logger).RegisterRoutes(mux)
	handlers.NewCleansingHandler(cleansingService, logger).RegisterRoutes(mux, tenantMiddleware)
	handlers.NewLabelsHandler(labelService, logger).RegisterRoutes(mux, tenantMiddleware)
	handlers.NewViewHandler(cleansingService, cookieStore, viewRedis, handlers.ViewConfig{
		CookieName:   cfg.Session.CookieName,
		FilterPrefix: cfg.Workflow.FilterPrefix,
		RedisTTL:     resultview.DefaultRedisTTL,
	}, logger).RegisterRoutes(mux, tenantMiddleware)

	if cfg.Metrics.Enabled {
		mux.Handle("GET "+cfg.Metrics.Path, promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	}

	server := &http.Server{
		Addr:              net.JoinHostPort(cfg.BindAddr, cfg.Port),
		Handler:           middleware.RequestLogger(logger.Named("http"), httpMetrics)(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Starting cleansing-engine",
			zap.String("addr", server.Addr),
			zap.String("version", cfg.Version))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server failed", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Graceful shutdown failed", zap.Error(err))
	}
}

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"huddle/internal/core/services"
	httphandlers "huddle/internal/handlers/http"
	"huddle/internal/infrastructure/middleware"
	"huddle/internal/infrastructure/monitoring"
	"huddle/internal/infrastructure/reliability"
	"huddle/internal/infrastructure/repositories"
	wssignal "huddle/internal/infrastructure/signal"
	"huddle/pkg/circuitbreaker"
	"huddle/pkg/config"
	"huddle/pkg/logger"
	"huddle/pkg/retry"
	"huddle/pkg/tracing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const (
	healthCheckInterval = 30 * time.Second
	healthCheckTimeout  = 2 * time.Second
	limiterIdleTTL      = 10 * time.Minute
)

func main() {
	configPath := flag.String("config", "", "path to config.yaml")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	zapLogger, err := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer zapLogger.Sync()

	log := zapLogger.Sugar()

	if err := run(cfg, log); err != nil {
		log.Fatalw("huddle server failed", "error", err)
	}
}

// loadConfig tries the explicit path first, then the usual locations.
func loadConfig(explicit string) (*config.Config, error) {
	if explicit != "" {
		return config.Load(explicit)
	}

	configPaths := []string{
		"configs/config.yaml",
		"/etc/huddle/config.yaml",
		"config.yaml",
	}
	for _, path := range configPaths {
		if _, err := os.Stat(path); err == nil {
			return config.Load(path)
		}
	}
	return config.Load("")
}

func run(cfg *config.Config, log *zap.SugaredLogger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Tracing
	tracingCfg := tracing.DefaultConfig()
	tracingCfg.Enabled = cfg.Tracing.Enabled
	tracingCfg.JaegerURL = cfg.Tracing.JaegerEndpoint
	tracingCfg.SampleRate = cfg.Tracing.SampleRate
	if env := os.Getenv("HUDDLE_ENV"); env != "" {
		tracingCfg.Environment = env
	}
	tp, err := tracing.Init(tracingCfg)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			log.Warnw("tracing shutdown failed", "error", err)
		}
	}()

	collector := monitoring.NewPrometheusCollector(nil)

	// Store
	factory, err := repositories.NewStoreFactory(ctx, cfg, log.Named("store"))
	if err != nil {
		return fmt.Errorf("create store: %w", err)
	}
	defer func() {
		if err := factory.Close(); err != nil {
			log.Errorw("error closing store", "error", err)
		}
	}()

	breakerCfg := circuitbreaker.DefaultConfig()
	breakerCfg.FailureThreshold = cfg.Store.Breaker.MaxFailures
	breakerCfg.Timeout = cfg.Store.Breaker.ResetTimeout

	store := reliability.NewStoreWrapper(factory.MessageStore(), retry.DefaultConfig(), breakerCfg, collector, log.Named("store"))

	// Core
	authService := services.NewAuthService(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTL)
	hub := services.NewHub(services.HubConfig{
		GroupCapacity:    cfg.Chat.GroupCapacity,
		MaxContentLength: cfg.Chat.MaxContentLength,
	}, store, authService, collector, log.Named("hub"))

	// Health
	checker := monitoring.NewHealthChecker(log.Named("health"))
	checker.AddCheck("store", hub.Ready, healthCheckInterval, healthCheckTimeout)
	checker.AddCheck("store_breaker", func(context.Context) error {
		if store.BreakerState() == circuitbreaker.StateOpen {
			return circuitbreaker.ErrOpen
		}
		return nil
	}, healthCheckInterval, healthCheckTimeout)
	if rc := factory.RedisClient(); rc != nil {
		checker.AddRedisCheck(rc, healthCheckInterval, healthCheckTimeout)
	}
	checker.StartBackgroundChecks(ctx)

	wsServer := wssignal.NewWebSocketServer(hub, wssignal.ServerConfigFrom(cfg), collector, log.Named("signal"))
	go evictIdleLimiters(ctx, wsServer, log)

	// HTTP
	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(middleware.RecoveryMiddleware(log))
	if cfg.Tracing.Enabled {
		router.Use(middleware.TracingMiddleware())
	}
	router.Use(middleware.RequestLoggingMiddleware(logger.NewContextLogger(log.Desugar().Named("http"))))
	router.Use(middleware.ErrorHandlerMiddleware(log))
	router.Use(middleware.NewHTTPRateLimitMiddleware(cfg))

	httphandlers.NewHealthHandler(hub, checker).SetupRoutes(router)
	httphandlers.NewAPIHandler(hub, cfg.WebRTC.ICEServers).SetupRoutes(router, middleware.AuthMiddleware(authService))
	router.GET(cfg.Signal.Path, wsServer.Handler())
	router.NoRoute(middleware.NotFoundHandler)

	if cfg.Monitoring.PrometheusEnabled {
		router.GET("/metrics", gin.WrapH(promhttp.Handler()))
		log.Info("Prometheus metrics enabled")
	}

	srv := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Infow("starting huddle server",
			"address", cfg.Server.Address,
			"store", factory.Driver(),
			"ws_path", cfg.Signal.Path,
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		return err
	case <-ctx.Done():
		log.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorw("error during server shutdown", "error", err)
		if closeErr := srv.Close(); closeErr != nil {
			log.Errorw("error force closing server", "error", closeErr)
		}
	}

	// Hijacked sockets survive srv.Shutdown.
	closed := hub.Lifecycle.CloseAll()
	log.Infow("huddle server stopped", "connections_closed", closed)
	return nil
}

func evictIdleLimiters(ctx context.Context, ws *wssignal.WebSocketServer, log *zap.SugaredLogger) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := ws.EvictIdleLimiters(limiterIdleTTL); n > 0 {
				log.Debugw("evicted idle connection limiters", "count", n)
			}
		}
	}
}

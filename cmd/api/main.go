package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/jwalitptl/brewery-notify/internal/config"
	"github.com/jwalitptl/brewery-notify/internal/handler/health"
	"github.com/jwalitptl/brewery-notify/internal/handler/prometheus"
	"github.com/jwalitptl/brewery-notify/internal/middleware"
	"github.com/jwalitptl/brewery-notify/internal/proxy"
	"github.com/jwalitptl/brewery-notify/internal/router"
	"github.com/jwalitptl/brewery-notify/pkg/logger"
	"github.com/jwalitptl/brewery-notify/pkg/metrics"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	logr := logger.New(logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
	log.Logger = logr

	gin.SetMode(gin.ReleaseMode)

	promH := prometheus.New(cfg.Monitoring.Namespace)
	m := metrics.NewMetrics(cfg.Monitoring.Namespace, "proxy", promH.Registry())

	stream := proxy.NewStreamProxy(proxy.StreamConfig{
		BackendURL: cfg.Backend.StreamURL(),
		ChunkSize:  cfg.Backend.ChunkSize,
	}, logr, m)

	rest, err := proxy.NewRESTProxy(proxy.RESTConfig{
		BackendURL: cfg.Backend.RESTURL(),
		Prefix:     "/api/notifications",
		Timeout:    cfg.Backend.Timeout,
	}, logr)
	if err != nil {
		logr.Fatal().Err(err).Msg("failed to build REST proxy")
	}

	probeClient := &http.Client{Timeout: cfg.Backend.Timeout}
	healthH := health.NewHandler(health.HTTPProbe(probeClient, cfg.Backend.HealthURL()), logr)

	cors := middleware.DefaultCORSConfig()
	if len(cfg.Security.AllowedOrigins) > 0 {
		cors.AllowOrigins = cfg.Security.AllowedOrigins
	}
	if len(cfg.Security.AllowedMethods) > 0 {
		cors.AllowMethods = cfg.Security.AllowedMethods
	}
	if len(cfg.Security.AllowedHeaders) > 0 {
		cors.AllowHeaders = cfg.Security.AllowedHeaders
	}

	r := router.NewRouter(stream, rest, healthH, promH, router.RouterConfig{
		RateLimitEnabled: cfg.RateLimit.Enabled,
		RateLimit:        rate.Limit(cfg.RateLimit.RequestsPerSecond),
		RateBurst:        cfg.RateLimit.Burst,
		CORSConfig:       cors,
		MetricsEnabled:   cfg.Monitoring.PrometheusEnabled,
		MetricsPath:      cfg.Monitoring.MetricsPath,
		Security:         middleware.DefaultSecurityConfig(),
		Logger:           logger.Component(logr, "http"),
	})
	r.Setup()

	// No WriteTimeout: it would cut every notification stream.
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           r.Engine(),
		ReadHeaderTimeout: cfg.Server.ReadTimeout,
	}

	go func() {
		logr.Info().
			Int("port", cfg.Server.Port).
			Str("backend", cfg.Backend.URL).
			Msg("notification proxy listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logr.Info().Msg("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		// Open streams never go idle; force them closed once the grace period ends.
		logr.Warn().Err(err).Msg("graceful shutdown timed out, closing remaining streams")
		_ = srv.Close()
	}

	logr.Info().Msg("server exited properly")
}

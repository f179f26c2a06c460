// Command devbackend runs an in-memory notification backend that speaks the
// same REST and stream contract as the production service, for local work
// against the proxy.
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

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/brewery-notify/internal/config"
	"github.com/jwalitptl/brewery-notify/internal/handler/health"
	notificationHandler "github.com/jwalitptl/brewery-notify/internal/handler/notification"
	"github.com/jwalitptl/brewery-notify/internal/middleware"
	"github.com/jwalitptl/brewery-notify/internal/repository/memory"
	notificationService "github.com/jwalitptl/brewery-notify/internal/service/notification"
	"github.com/jwalitptl/brewery-notify/pkg/logger"
	"github.com/jwalitptl/brewery-notify/pkg/messaging"
	"github.com/jwalitptl/brewery-notify/pkg/messaging/redis"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	logr := logger.New(logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
	log.Logger = logr

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	repo := memory.NewNotificationRepository()
	if err := memory.Seed(ctx, repo, cfg.DevBackend.SeedCount, time.Now()); err != nil {
		logr.Fatal().Err(err).Msg("failed to seed notifications")
	}

	hub := notificationService.NewHub(logr)
	svc := notificationService.NewService(repo, hub, logr)

	var broker messaging.Broker
	if cfg.Redis.URL != "" {
		broker, err = redis.NewRedisBroker(ctx, redis.Config{
			URL:          cfg.Redis.URL,
			MaxRetries:   cfg.Redis.MaxRetries,
			RetryBackoff: cfg.Redis.RetryBackoff,
			PoolSize:     cfg.Redis.PoolSize,
			MinIdleConns: cfg.Redis.MinIdleConns,
		}, logr)
		if err != nil {
			logr.Fatal().Err(err).Msg("failed to connect to Redis")
		}
		defer broker.Close()

		consumer := notificationService.NewConsumer(svc, logr)
		if err := consumer.Start(ctx, messaging.NewBrokerAdapter(broker, logr), cfg.Redis.Channel); err != nil {
			logr.Fatal().Err(err).Msg("failed to start notification consumer")
		}
	}

	healthH := health.NewHandler(health.ProbeFunc(func(ctx context.Context) error {
		_, err := svc.Stats(ctx)
		return err
	}), logr)

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(
		middleware.RequestID(),
		middleware.Recovery(logr),
		middleware.Logger(logger.Component(logr, "http")),
		middleware.ErrorHandler(logr),
	)
	healthH.RegisterRoutes(r)
	r.GET("/health", healthH.LivenessCheck)

	notificationHandler.NewHandler(svc, notificationHandler.StreamConfig{
		InitialBatch:   cfg.DevBackend.InitialBatch,
		StatsInterval:  cfg.DevBackend.StatsInterval,
		HeartbeatEvery: cfg.DevBackend.HeartbeatEvery,
	}, logr).RegisterRoutes(r.Group(""))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.DevBackend.Port),
		Handler:           r,
		ReadHeaderTimeout: cfg.Server.ReadTimeout,
	}

	go func() {
		logr.Info().
			Int("port", cfg.DevBackend.Port).
			Int("seeded", cfg.DevBackend.SeedCount).
			Bool("redis", broker != nil).
			Msg("dev notification backend listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logr.Info().Msg("shutting down dev backend...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Warn().Err(err).Msg("graceful shutdown timed out, closing remaining streams")
		_ = srv.Close()
	}
	logr.Info().Int("open_streams", hub.Subscribers()).Msg("dev backend exited")
}

// Command notify-watch follows a user's notification stream through the
// proxy and logs every change, the way the dashboard bell would see it.
//
// Send SIGUSR1 to simulate the window regaining focus (resets a stopped
// reconnect loop) and SIGUSR2 to print the current dashboard page.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/brewery-notify/internal/notification"
	"github.com/jwalitptl/brewery-notify/internal/restapi"
	"github.com/jwalitptl/brewery-notify/pkg/logger"
	"github.com/jwalitptl/brewery-notify/pkg/metrics"
)

type config struct {
	StreamURL         string        `envconfig:"STREAM_URL" default:"http://localhost:8080/api/notifications/stream"`
	RESTURL           string        `envconfig:"REST_URL" default:"http://localhost:8080/api/notifications"`
	Cookie            string        `envconfig:"COOKIE"`
	Strategy          string        `envconfig:"STRATEGY" default:"fixed"`
	ReconnectDelay    time.Duration `envconfig:"RECONNECT_DELAY" default:"3s"`
	MaxReconnects     int           `envconfig:"MAX_RECONNECTS" default:"5"`
	RequestTimeout    time.Duration `envconfig:"REQUEST_TIMEOUT" default:"15s"`
	DashboardFilter   string        `envconfig:"DASHBOARD_FILTER" default:"all"`
	DashboardPageSize int           `envconfig:"DASHBOARD_PAGE_SIZE" default:"10"`
	MetricsAddr       string        `envconfig:"METRICS_ADDR"`
	LogLevel          string        `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat         string        `envconfig:"LOG_FORMAT" default:"console"`
}

func main() {
	var cfg config
	if err := envconfig.Process("notify", &cfg); err != nil {
		log.Fatal().Err(err).Msg("failed to read NOTIFY_* environment")
	}
	filter, err := notification.ParseFilter(cfg.DashboardFilter)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid dashboard filter")
	}

	logr := logger.New(logger.Config{Level: cfg.LogLevel, Format: cfg.LogFormat, Output: os.Stderr})
	log.Logger = logr

	m := metrics.NewNop()
	if cfg.MetricsAddr != "" {
		reg := prometheus.NewRegistry()
		m = metrics.NewMetrics("brewery_notify", "client", reg)
		go serveMetrics(cfg.MetricsAddr, reg, logr)
	}

	api := restapi.NewClient(restapi.Config{
		BaseURL: cfg.RESTURL,
		Cookie:  cfg.Cookie,
		Timeout: cfg.RequestTimeout,
	})

	client := notification.NewClient(api, &notification.HTTPTransport{
		URL:    cfg.StreamURL,
		Cookie: cfg.Cookie,
	}, notification.Options{
		ReconnectDelay:       cfg.ReconnectDelay,
		MaxReconnectAttempts: cfg.MaxReconnects,
		Strategy:             cfg.Strategy,
		Logger:               logr,
		Metrics:              m,
	})
	pager := notification.NewPager(api, notification.PagerOptions{
		PageSize: cfg.DashboardPageSize,
		Filter:   filter,
		Logger:   logr,
		Metrics:  m,
		Store:    client.Store(),
	})

	var (
		mu   sync.Mutex
		last notification.State
	)
	unsubscribe := client.Subscribe(func() {
		mu.Lock()
		defer mu.Unlock()
		s := client.State()
		if s.Connection == last.Connection && s.Stats == last.Stats && s.Error == last.Error &&
			len(s.Notifications) == len(last.Notifications) {
			return
		}
		ev := logr.Info().
			Str("connection", string(s.Connection)).
			Int("unread", s.Stats.UnreadCount).
			Int("total", s.Stats.TotalCount).
			Int("feed", len(s.Notifications))
		if s.Error != "" {
			ev = ev.Str("error", s.Error)
		}
		if len(s.Notifications) > 0 && len(s.Notifications) != len(last.Notifications) {
			head := s.Notifications[0]
			ev = ev.Str("latest", head.Message).Str("link", head.Link())
		}
		ev.Msg("notifications changed")
		last = s
	})
	defer unsubscribe()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := client.Start(ctx); err != nil {
		logr.Warn().Err(err).Msg("initial load failed, waiting for the stream")
	}

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGUSR1, syscall.SIGUSR2)
	for sig := range sigs {
		switch sig {
		case syscall.SIGUSR1:
			logr.Info().Msg("focus regained")
			client.Focus()
		case syscall.SIGUSR2:
			pager.Load(ctx)
			printPage(logr, pager.View())
		default:
			logr.Info().Str("signal", sig.String()).Msg("stopping")
			client.Dispose()
			return
		}
	}
}

func printPage(logr zerolog.Logger, v notification.PageView) {
	if v.Error != "" {
		logr.Error().Str("error", v.Error).Msg("dashboard page failed")
		return
	}
	logr.Info().
		Str("filter", string(v.Filter)).
		Int("page", v.CurrentPage+1).
		Int("pages", v.TotalPages).
		Int("items", v.TotalItems).
		Msg("dashboard page")
	for _, n := range v.Items {
		logr.Info().
			Int64("id", n.ID).
			Str("type", string(n.Type)).
			Bool("read", n.IsRead).
			Str("link", n.Link()).
			Msg(n.Message)
	}
}

func serveMetrics(addr string, reg *prometheus.Registry, logr zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logr.Error().Err(err).Msg("metrics server stopped")
	}
}

package prometheus

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler owns the HTTP request metrics and exposes the registry they live
// in. Application metrics should register on Registry() too.
type Handler struct {
	metrics         *prometheus.Registry
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	errorTotal      *prometheus.CounterVec
}

func New(namespace string) *Handler {
	registry := prometheus.NewRegistry()
	h := &Handler{
		metrics: registry,
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
			},
			[]string{"method", "path", "status"},
		),
		requestTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		errorTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_errors_total",
				Help:      "Total number of HTTP errors",
			},
			[]string{"method", "path", "status"},
		),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		h.requestDuration,
		h.requestTotal,
		h.errorTotal,
	)

	return h
}

func (h *Handler) Registry() *prometheus.Registry { return h.metrics }

// Middleware records every request under its route template, so ids in the
// path do not explode label cardinality. Stream requests are observed when
// the stream ends.
func (h *Handler) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		status := strconv.Itoa(c.Writer.Status())
		labels := []string{c.Request.Method, path, status}

		h.requestDuration.WithLabelValues(labels...).Observe(time.Since(start).Seconds())
		h.requestTotal.WithLabelValues(labels...).Inc()
		if c.Writer.Status() >= 500 {
			h.errorTotal.WithLabelValues(labels...).Inc()
		}
	}
}

func (h *Handler) Handler() gin.HandlerFunc {
	return gin.WrapH(promhttp.HandlerFor(h.metrics, promhttp.HandlerOpts{}))
}

package health

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"
)

const (
	probeKey = "backend"
	probeTTL = 5 * time.Second
)

// Prober checks whether a dependency can serve traffic.
type Prober interface {
	Probe(ctx context.Context) error
}

// ProbeFunc adapts a function to Prober.
type ProbeFunc func(ctx context.Context) error

func (f ProbeFunc) Probe(ctx context.Context) error { return f(ctx) }

// HTTPProbe reports healthy when url answers 2xx.
func HTTPProbe(client *http.Client, url string) Prober {
	return ProbeFunc(func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		resp, err := client.Do(req)
		if err != nil {
			return err
		}
		resp.Body.Close()
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return fmt.Errorf("backend health responded with %d", resp.StatusCode)
		}
		return nil
	})
}

// Handler serves liveness and readiness. Readiness results are cached so
// frequent probes do not hammer the backend.
type Handler struct {
	backend Prober
	results *cache.Cache
	timeout time.Duration
	logger  zerolog.Logger
}

func NewHandler(backend Prober, logger zerolog.Logger) *Handler {
	return &Handler{
		backend: backend,
		results: cache.New(probeTTL, time.Minute),
		timeout: 2 * time.Second,
		logger:  logger.With().Str("component", "health").Logger(),
	}
}

func (h *Handler) RegisterRoutes(r gin.IRouter) {
	health := r.Group("/health")
	{
		health.GET("/live", h.LivenessCheck)
		health.GET("/ready", h.ReadinessCheck)
	}
}

func (h *Handler) LivenessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "UP"})
}

func (h *Handler) ReadinessCheck(c *gin.Context) {
	if err := h.probe(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "DOWN",
			"reason": "Notification backend unreachable",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "UP"})
}

func (h *Handler) probe(ctx context.Context) error {
	if v, ok := h.results.Get(probeKey); ok {
		if v == nil {
			return nil
		}
		return v.(error)
	}

	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	err := h.backend.Probe(ctx)
	if err != nil {
		h.logger.Warn().Err(err).Msg("backend readiness probe failed")
		h.results.SetDefault(probeKey, err)
	} else {
		h.results.SetDefault(probeKey, nil)
	}
	return err
}

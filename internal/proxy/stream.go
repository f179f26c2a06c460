package proxy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/jwalitptl/brewery-notify/internal/middleware"
	"github.com/jwalitptl/brewery-notify/pkg/metrics"
)

const defaultChunkSize = 4096

type StreamConfig struct {
	// BackendURL is the absolute URL of the backend notification stream.
	BackendURL string
	ChunkSize  int
	// Transport overrides the outbound round tripper; nil uses the default.
	Transport http.RoundTripper
}

// StreamProxy relays the backend notification event stream to the browser.
// Every inbound request gets its own outbound request and relay loop; nothing
// is shared between connections.
type StreamProxy struct {
	client     *http.Client
	backendURL string
	chunkSize  int
	logger     zerolog.Logger
	metrics    *metrics.Metrics
}

func NewStreamProxy(cfg StreamConfig, logger zerolog.Logger, m *metrics.Metrics) *StreamProxy {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = defaultChunkSize
	}
	if m == nil {
		m = metrics.NewNop()
	}
	return &StreamProxy{
		client: &http.Client{
			Transport: cfg.Transport,
			// Redirects are surfaced to the caller as a non-success status.
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		backendURL: cfg.BackendURL,
		chunkSize:  cfg.ChunkSize,
		logger:     logger.With().Str("component", "stream_proxy").Logger(),
		metrics:    m,
	}
}

// Handle serves GET /api/notifications/stream.
func (p *StreamProxy) Handle(c *gin.Context) {
	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	log := p.logger.With().Str("request_id", c.GetString(middleware.ContextRequestID)).Logger()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.backendURL, nil)
	if err != nil {
		log.Error().Err(err).Msg("failed to build backend stream request")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to connect to notification stream"})
		return
	}
	if cookie := c.GetHeader("Cookie"); cookie != "" {
		req.Header.Set("Cookie", cookie)
	}
	if id := c.GetHeader("Last-Event-ID"); id != "" {
		req.Header.Set("Last-Event-ID", id)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	start := time.Now()
	resp, err := p.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			log.Debug().Err(err).Msg("client went away before the backend stream opened")
			p.metrics.StreamsTotal.WithLabelValues(metrics.OutcomeClientClosed).Inc()
			return
		}
		log.Error().Err(err).Str("backend_url", p.backendURL).Msg("failed to connect to backend stream")
		p.metrics.StreamsTotal.WithLabelValues(metrics.OutcomeUnreachable).Inc()
		c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to connect to notification stream"})
		return
	}
	defer resp.Body.Close()
	p.metrics.BackendConnectDelay.Observe(time.Since(start).Seconds())

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		log.Warn().Int("status", resp.StatusCode).Msg("backend rejected stream request")
		p.metrics.StreamsTotal.WithLabelValues(metrics.OutcomeRejected).Inc()
		c.JSON(resp.StatusCode, gin.H{"error": fmt.Sprintf("Backend responded with %d", resp.StatusCode)})
		return
	}

	h := c.Writer.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	c.Writer.WriteHeaderNow()
	c.Writer.Flush()

	p.metrics.StreamsActive.Inc()
	defer p.metrics.StreamsActive.Dec()

	log.Info().Msg("notification stream opened")

	n, err := p.relay(ctx, c.Writer, resp.Body)
	p.metrics.StreamBytesRelayed.Add(float64(n))

	switch {
	case err == nil:
		p.metrics.StreamsTotal.WithLabelValues(metrics.OutcomeCompleted).Inc()
		log.Info().Int64("bytes", n).Msg("backend closed notification stream")
	case isClientGone(ctx, err):
		p.metrics.StreamsTotal.WithLabelValues(metrics.OutcomeClientClosed).Inc()
		log.Debug().Int64("bytes", n).Msg("client disconnected from notification stream")
	default:
		p.metrics.StreamsTotal.WithLabelValues(metrics.OutcomeBackendError).Inc()
		log.Error().Err(err).Int64("bytes", n).Msg("notification stream relay failed")
		// Tear the connection down so the client sees a broken stream rather
		// than a clean end.
		cancel()
		resp.Body.Close()
		panic(http.ErrAbortHandler)
	}
}

// errClientWrite marks a failure writing to the downstream client.
var errClientWrite = errors.New("client write failed")

// relay copies chunks from src to w, flushing after each one. It returns nil
// when src ends cleanly.
func (p *StreamProxy) relay(ctx context.Context, w gin.ResponseWriter, src io.Reader) (int64, error) {
	buf := make([]byte, p.chunkSize)
	var total int64

	for {
		n, rerr := src.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				return total, fmt.Errorf("%w: %v", errClientWrite, werr)
			}
			w.Flush()
			total += int64(n)
		}
		if rerr != nil {
			if errors.Is(rerr, io.EOF) {
				return total, nil
			}
			return total, rerr
		}
		if err := ctx.Err(); err != nil {
			return total, err
		}
	}
}

func isClientGone(ctx context.Context, err error) bool {
	if errors.Is(err, errClientWrite) {
		return true
	}
	return ctx.Err() != nil || errors.Is(err, context.Canceled)
}

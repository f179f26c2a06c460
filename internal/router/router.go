package router

import (
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/jwalitptl/brewery-notify/internal/handler/health"
	"github.com/jwalitptl/brewery-notify/internal/handler/prometheus"
	"github.com/jwalitptl/brewery-notify/internal/middleware"
)

type Handler interface {
	RegisterRoutes(*gin.RouterGroup)
}

// StreamHandler serves the long-lived notification stream.
type StreamHandler interface {
	Handle(*gin.Context)
}

type Router struct {
	engine  *gin.Engine
	stream  StreamHandler
	rest    Handler
	health  *health.Handler
	metrics *prometheus.Handler
	config  RouterConfig
}

type RouterConfig struct {
	RateLimitEnabled bool
	RateLimit        rate.Limit
	RateBurst        int
	CORSConfig       middleware.CORSConfig
	MetricsEnabled   bool
	MetricsPath      string
	Security         middleware.SecurityConfig
	Logger           zerolog.Logger
}

func NewRouter(
	stream StreamHandler,
	rest Handler,
	healthH *health.Handler,
	metricsH *prometheus.Handler,
	config RouterConfig,
) *Router {
	engine := gin.New()

	r := &Router{
		engine:  engine,
		stream:  stream,
		rest:    rest,
		health:  healthH,
		metrics: metricsH,
		config:  config,
	}

	// Recovery sits outermost after the request id so panics are logged
	// with it; no timeout middleware, the stream route is unbounded.
	engine.Use(
		middleware.RequestID(),
		middleware.Recovery(config.Logger),
		middleware.Logger(config.Logger),
	)
	if metricsH != nil {
		engine.Use(metricsH.Middleware())
	}
	engine.Use(
		middleware.SecurityHeaders(config.Security),
		middleware.CORS(config.CORSConfig),
	)

	return r
}

func (r *Router) Setup() {
	r.health.RegisterRoutes(r.engine)

	if r.metrics != nil && r.config.MetricsEnabled {
		r.engine.GET(r.config.MetricsPath, r.metrics.Handler())
	}

	api := r.engine.Group("/api/notifications")

	streamChain := []gin.HandlerFunc{}
	if r.config.RateLimitEnabled {
		limiter := middleware.NewRateLimiter(middleware.RateLimiterConfig{
			Rate:  r.config.RateLimit,
			Burst: r.config.RateBurst,
		})
		streamChain = append(streamChain, limiter.RateLimit())
	}
	streamChain = append(streamChain, r.stream.Handle)
	api.GET("/stream", streamChain...)

	r.rest.RegisterRoutes(api)
}

func (r *Router) Engine() *gin.Engine {
	return r.engine
}

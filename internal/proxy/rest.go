package proxy

import (
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

type RESTConfig struct {
	// BackendURL is the absolute base URL of the backend notification resource,
	// e.g. http://backend/api/notifications.
	BackendURL string
	// Prefix is the inbound path that maps onto BackendURL.
	Prefix    string
	Timeout   time.Duration
	Transport http.RoundTripper
}

// RESTProxy forwards the notification REST endpoints to the backend so the
// browser can reach them on the same origin as the stream.
type RESTProxy struct {
	target *url.URL
	prefix string
	rp     *httputil.ReverseProxy
	logger zerolog.Logger
}

func NewRESTProxy(cfg RESTConfig, logger zerolog.Logger) (*RESTProxy, error) {
	target, err := url.Parse(strings.TrimRight(cfg.BackendURL, "/"))
	if err != nil {
		return nil, err
	}

	transport := cfg.Transport
	if transport == nil {
		t := http.DefaultTransport.(*http.Transport).Clone()
		if cfg.Timeout > 0 {
			t.ResponseHeaderTimeout = cfg.Timeout
		}
		transport = t
	}

	p := &RESTProxy{
		target: target,
		prefix: strings.TrimRight(cfg.Prefix, "/"),
		logger: logger.With().Str("component", "rest_proxy").Logger(),
	}
	p.rp = &httputil.ReverseProxy{
		Rewrite:      p.rewrite,
		Transport:    transport,
		ErrorHandler: p.handleError,
	}
	return p, nil
}

func (p *RESTProxy) rewrite(r *httputil.ProxyRequest) {
	rest := strings.TrimPrefix(r.In.URL.Path, p.prefix)

	r.Out.URL.Scheme = p.target.Scheme
	r.Out.URL.Host = p.target.Host
	r.Out.URL.Path = p.target.Path + rest
	r.Out.URL.RawPath = ""
	r.Out.URL.RawQuery = r.In.URL.RawQuery
	r.Out.Host = p.target.Host
	r.SetXForwarded()
}

func (p *RESTProxy) handleError(w http.ResponseWriter, r *http.Request, err error) {
	if r.Context().Err() != nil {
		p.logger.Debug().Err(err).Str("path", r.URL.Path).Msg("client cancelled REST request")
		return
	}
	p.logger.Error().Err(err).Str("path", r.URL.Path).Msg("backend REST request failed")
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusBadGateway)
	_, _ = w.Write([]byte(`{"error":"Backend unavailable"}`))
}

// Handle forwards the request unchanged apart from the path prefix.
func (p *RESTProxy) Handle(c *gin.Context) {
	p.rp.ServeHTTP(c.Writer, c.Request)
}

// RegisterRoutes mounts the notification REST endpoints on rg.
func (p *RESTProxy) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("", p.Handle)
	rg.GET("/stats", p.Handle)
	rg.PATCH("/read-all", p.Handle)
	rg.PATCH("/:id/read", p.Handle)
}

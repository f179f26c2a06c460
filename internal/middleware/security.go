package middleware

import (
	"fmt"

	"github.com/gin-gonic/gin"
)

// SecurityConfig lists the response headers the proxy adds to every answer.
// Empty values are not sent.
type SecurityConfig struct {
	HSTSMaxAge         int
	FrameOptions       string
	ContentTypeOptions string
	ReferrerPolicy     string
}

func DefaultSecurityConfig() SecurityConfig {
	return SecurityConfig{
		FrameOptions:       "DENY",
		ContentTypeOptions: "nosniff",
		ReferrerPolicy:     "same-origin",
	}
}

// SecurityHeaders sets the headers before the handler runs, so they are
// already on the wire when a stream flushes its first event.
func SecurityHeaders(config SecurityConfig) gin.HandlerFunc {
	headers := make(map[string]string, 4)
	if config.HSTSMaxAge > 0 {
		headers["Strict-Transport-Security"] = fmt.Sprintf("max-age=%d", config.HSTSMaxAge)
	}
	if config.FrameOptions != "" {
		headers["X-Frame-Options"] = config.FrameOptions
	}
	if config.ContentTypeOptions != "" {
		headers["X-Content-Type-Options"] = config.ContentTypeOptions
	}
	if config.ReferrerPolicy != "" {
		headers["Referrer-Policy"] = config.ReferrerPolicy
	}

	return func(c *gin.Context) {
		h := c.Writer.Header()
		for k, v := range headers {
			h.Set(k, v)
		}
		c.Next()
	}
}

package middleware

import (
	"errors"
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// Recovery handles panics and logs them appropriately. http.ErrAbortHandler
// is re-raised untouched so net/http can abort the connection; the stream
// proxy relies on that to signal a broken relay.
func Recovery(logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if err, ok := rec.(error); ok && errors.Is(err, http.ErrAbortHandler) {
				panic(rec)
			}

			logger.Error().
				Interface("error", rec).
				Str("stack", string(debug.Stack())).
				Str("method", c.Request.Method).
				Str("path", c.Request.URL.Path).
				Str("client_ip", c.ClientIP()).
				Str("request_id", c.GetString(ContextRequestID)).
				Msg("Request panic recovered")

			if c.Writer.Written() {
				c.Abort()
				return
			}
			c.AbortWithStatusJSON(http.StatusInternalServerError, ErrorResponse{
				Code:    http.StatusInternalServerError,
				Message: "Internal server error",
				TraceID: c.GetString(ContextRequestID),
			})
		}()
		c.Next()
	}
}

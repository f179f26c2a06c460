package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	apperrors "github.com/jwalitptl/brewery-notify/pkg/errors"
)

// ErrorResponse represents a standardized error response
type ErrorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	TraceID string `json:"trace_id,omitempty"`
}

// ErrorHandler renders the last error a handler attached with c.Error.
// AppErrors keep their status and message; anything else is a 500 with a
// generic message.
func ErrorHandler(logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}

		traceID := c.GetString(ContextRequestID)
		for _, e := range c.Errors {
			logger.Error().
				Err(e.Err).
				Str("request_id", traceID).
				Str("path", c.Request.URL.Path).
				Str("method", c.Request.Method).
				Msg("Request error")
		}

		if c.Writer.Written() {
			return
		}

		status := http.StatusInternalServerError
		message := "Internal server error"
		var appErr *apperrors.AppError
		if errors.As(c.Errors.Last().Err, &appErr) {
			status = appErr.StatusCode()
			message = appErr.Message
		}

		c.JSON(status, ErrorResponse{
			Code:    status,
			Message: message,
			TraceID: traceID,
		})
	}
}

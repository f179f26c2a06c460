package middleware

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
)

// SizeLimit caps request bodies. Declared lengths over the limit are refused
// up front; chunked bodies are cut off by http.MaxBytesReader while read.
func SizeLimit(maxBody int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.ContentLength > maxBody {
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, gin.H{
				"error": fmt.Sprintf("request body exceeds %d bytes", maxBody),
			})
			return
		}
		if c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBody)
		}
		c.Next()
	}
}

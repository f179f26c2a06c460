package prometheus

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMiddlewareRecordsRouteTemplate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := New("test")

	r := gin.New()
	r.Use(h.Middleware())
	r.PATCH("/api/notifications/:id/read", func(c *gin.Context) { c.Status(http.StatusBadGateway) })
	r.GET("/metrics", h.Handler())

	for _, id := range []string{"1", "2"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPatch, "/api/notifications/"+id+"/read", nil))
	}

	labels := []string{http.MethodPatch, "/api/notifications/:id/read", "502"}
	assert.Equal(t, 2.0, testutil.ToFloat64(h.requestTotal.WithLabelValues(labels...)))
	assert.Equal(t, 2.0, testutil.ToFloat64(h.errorTotal.WithLabelValues(labels...)))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "test_http_requests_total")
}

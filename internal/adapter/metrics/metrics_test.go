package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConstructors_RegisterOnSharedRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()

	assert.NotPanics(t, func() {
		NewHTTPMetrics(reg)
		NewCacheMetrics(reg)
		NewWebSocketMetrics(reg)
		NewPollerMetrics(reg)
		NewUpstreamMetrics(reg)
		NewStoreMetrics(reg)
	})
}

func TestHandler_ServesRegisteredMetrics(t *testing.T) {
	reg := NewRegistry()
	ws := NewWebSocketMetrics(reg)
	ws.ActiveConnections.Set(3)

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "fazzk_websocket_active_connections 3")
}

func TestHTTPMiddleware_SkipsHealthAndRecordsRoutes(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewHTTPMetrics(reg)

	e := echo.New()
	e.Use(m.Middleware())
	e.GET("/followers", func(c echo.Context) error { return c.NoContent(http.StatusOK) })
	e.GET("/health/live", func(c echo.Context) error { return c.NoContent(http.StatusOK) })

	for _, path := range []string{"/followers", "/followers", "/health/live"} {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		require.Equal(t, http.StatusOK, rec.Code)
	}

	assert.InDelta(t, 2, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("GET", "/followers", "200")), 0)
	assert.InDelta(t, 0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("GET", "/health/live", "200")), 0)
}

package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMetricsApp(t *testing.T) (*fiber.App, *PrometheusMiddleware, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	pm, err := NewPrometheusMiddleware(reg)
	require.NoError(t, err)

	app := fiber.New()
	app.Use(pm.Handler())
	app.Get("/metrics", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) })
	app.Get("/cdn/storage/:collection/:id/:version", func(c *fiber.Ctx) error {
		if c.Params("id") == "missing" {
			return fiber.NewError(fiber.StatusNotFound, "file not found")
		}
		return c.SendString("bytes")
	})
	app.Delete("/cdn/storage/:collection/:id", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusNoContent) })
	return app, pm, reg
}

func TestPrometheusMiddleware_LabelsByRoute(t *testing.T) {
	app, pm, _ := newMetricsApp(t)

	for _, id := range []string{"f1", "f2"} {
		resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/cdn/storage/Images/"+id+"/original", nil))
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	}
	_, err := app.Test(httptest.NewRequest(http.MethodGet, "/cdn/storage/Images/missing/original", nil))
	require.NoError(t, err)
	_, err = app.Test(httptest.NewRequest(http.MethodDelete, "/cdn/storage/Images/f1", nil))
	require.NoError(t, err)

	download := "/cdn/storage/:collection/:id/:version"
	assert.Equal(t, 2.0, testutil.ToFloat64(pm.requestCount.WithLabelValues("GET", download, "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(pm.requestCount.WithLabelValues("GET", download, "404")))
	assert.Equal(t, 1.0, testutil.ToFloat64(pm.requestCount.WithLabelValues("DELETE", "/cdn/storage/:collection/:id", "204")))

	// one series per (method, route)
	assert.Equal(t, 2, testutil.CollectAndCount(pm.requestDuration))
}

func TestPrometheusMiddleware_SkipsMetricsEndpoint(t *testing.T) {
	app, _, reg := newMetricsApp(t)

	_, err := app.Test(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.NoError(t, err)

	n, err := testutil.GatherAndCount(reg, "http_requests_total")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestNewPrometheusMiddleware_DuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := NewPrometheusMiddleware(reg)
	require.NoError(t, err)

	_, err = NewPrometheusMiddleware(reg)
	assert.Error(t, err)
}

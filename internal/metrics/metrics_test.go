package metrics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetricProvider_RequiresReader(t *testing.T) {
	_, err := NewMetricProvider(context.Background(), Options{ServiceName: "x"})
	assert.Error(t, err)
}

func TestPrometheusExport(t *testing.T) {
	registry := prometheus.NewRegistry()
	mp, err := NewMetricProvider(context.Background(), Options{
		ServiceName: "perp-router-test",
		Registry:    registry,
	})
	require.NoError(t, err)
	defer mp.Shutdown(context.Background())

	counter, err := mp.Meter("test").Int64Counter("quotes_total")
	require.NoError(t, err)
	counter.Add(context.Background(), 3)

	srv := NewPrometheusServer(0, registry)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "quotes_total")
}

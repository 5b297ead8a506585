package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fd1az/perp-router/internal/logger"
)

func TestHealth_AllHealthy(t *testing.T) {
	s := NewServer(0, "v1.2.3", logger.NewNop())
	s.RegisterCheck("eth", Ping(func(context.Context) (uint64, error) { return 1234, nil }))
	s.RegisterCheck("prices", Freshness(func() time.Time { return time.Now() }, time.Minute))

	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var st Status
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &st))
	assert.Equal(t, "ok", st.Status)
	assert.Equal(t, "v1.2.3", st.Version)
	assert.Equal(t, "1234", st.Checks["eth"].Message)
	assert.True(t, st.Checks["prices"].Healthy)
}

func TestHealth_Degraded(t *testing.T) {
	s := NewServer(0, "", logger.NewNop())
	s.RegisterCheck("eth", Ping(func(context.Context) (uint64, error) { return 0, errors.New("dial tcp: refused") }))
	s.RegisterCheck("markets", Freshness(func() time.Time { return time.Time{} }, time.Minute))
	s.RegisterCheck("prices", Freshness(func() time.Time { return time.Now().Add(-time.Hour) }, time.Minute))

	st := s.Evaluate(context.Background())
	assert.Equal(t, "degraded", st.Status)
	assert.Equal(t, "dial tcp: refused", st.Checks["eth"].Message)
	assert.Equal(t, "no data yet", st.Checks["markets"].Message)
	assert.Contains(t, st.Checks["prices"].Message, "stale")

	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestHealth_Live(t *testing.T) {
	s := NewServer(0, "", logger.NewNop())
	s.RegisterCheck("eth", Ping(func(context.Context) (int, error) { return 0, errors.New("down") }))

	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/live", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

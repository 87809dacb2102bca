package observability

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveAuthOperation(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.ObserveAuthOperation("login", nil)
	m.ObserveAuthOperation("login", nil)
	m.ObserveAuthOperation("login", errors.New("bad credentials"))

	assert.Equal(t, float64(2), testutil.ToFloat64(m.AuthOperationsTotal.WithLabelValues("login", "ok")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.AuthOperationsTotal.WithLabelValues("login", "error")))
}

func TestHTTPMiddlewareCountsRequests(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	handler := m.HTTPMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/auth/register", nil))
	require.Equal(t, http.StatusCreated, rec.Code)

	assert.Equal(t, float64(1),
		testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("POST", "/api/auth/register", "201")))
}

func TestMetricsHandlerExposesRegistry(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	m.SessionsEstablishedTotal.Inc()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "bridge_sessions_established_total 1"))
}

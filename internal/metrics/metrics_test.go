package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	return string(body)
}

func TestMiddlewareCountsByRoute(t *testing.T) {
	m := New("/health")
	h := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			http.NotFound(w, r)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))

	for _, path := range []string{"/health", "/health", "/nope/1", "/nope/2"} {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	out := scrape(t, m)
	assert.Contains(t, out, `wellspace_http_requests_total{code="200",method="GET",route="/health"} 2`)
	assert.Contains(t, out, `wellspace_http_requests_total{code="404",method="GET",route="other"} 2`)
	assert.Contains(t, out, `wellspace_http_request_duration_seconds_count{route="/health"} 2`)
}

func TestWatchRelay(t *testing.T) {
	m := New()
	n := 3
	m.WatchRelay(func() int { return n })
	assert.Contains(t, scrape(t, m), "wellspace_relay_clients 3")
}

package observability

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollector_ObserveTurn(t *testing.T) {
	c := NewCollector("test")

	c.ObserveTurn("scripted", "completed", 2*time.Second, 3)
	c.ObserveTurn("scripted", "failed", time.Second, 1)
	c.ObserveExtraction("merged", 10*time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.Turns.WithLabelValues("scripted", "completed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.Turns.WithLabelValues("scripted", "failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.Extractions.WithLabelValues("merged")))
}

func TestCollector_MiddlewareUsesRoutePattern(t *testing.T) {
	c := NewCollector("test")
	r := chi.NewRouter()
	r.Use(c.Middleware)
	r.Get("/conversations/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/conversations/abc", nil))

	assert.Equal(t, 1.0, testutil.ToFloat64(c.HTTPRequests.WithLabelValues("GET", "/conversations/{id}", "418")))

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "test_http_requests_total"))
}

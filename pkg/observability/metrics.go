package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds all Prometheus metrics for the application
type Collector struct {
	registry *prometheus.Registry

	// HTTP metrics
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec

	// Turn metrics
	Turns           *prometheus.CounterVec
	TurnDuration    *prometheus.HistogramVec
	ChunksPerTurn   *prometheus.HistogramVec
	FirstChunkDelay *prometheus.HistogramVec

	// Extraction metrics
	Extractions        *prometheus.CounterVec
	ExtractionDuration prometheus.Histogram
}

// NewCollector creates a collector on its own registry
func NewCollector(namespace string) *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "route", "status"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		Turns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_total",
			Help:      "Chat turns by backend and outcome",
		}, []string{"backend", "outcome"}),
		TurnDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "turn_duration_seconds",
			Help:      "Wall time of a chat turn",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 20, 40, 80},
		}, []string{"backend"}),
		ChunksPerTurn: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "turn_chunks",
			Help:      "Chunks relayed per turn",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
		}, []string{"backend"}),
		FirstChunkDelay: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "first_chunk_seconds",
			Help:      "Latency until the first chunk reached the caller",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10},
		}, []string{"backend"}),
		Extractions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "profile_extractions_total",
			Help:      "Profile extraction runs by outcome",
		}, []string{"outcome"}),
		ExtractionDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "profile_extraction_duration_seconds",
			Help:      "Wall time of a profile extraction run",
			Buckets:   prometheus.DefBuckets,
		}),
	}

	c.registry.MustRegister(
		c.HTTPRequests, c.HTTPDuration,
		c.Turns, c.TurnDuration, c.ChunksPerTurn, c.FirstChunkDelay,
		c.Extractions, c.ExtractionDuration,
	)
	return c
}

// Registry exposes the underlying registry
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// Handler serves the registry in the Prometheus text format
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// ObserveTurn implements ports.TurnMetrics
func (c *Collector) ObserveTurn(backend, outcome string, duration time.Duration, chunks int) {
	c.Turns.WithLabelValues(backend, outcome).Inc()
	c.TurnDuration.WithLabelValues(backend).Observe(duration.Seconds())
	c.ChunksPerTurn.WithLabelValues(backend).Observe(float64(chunks))
}

// ObserveFirstChunk implements ports.TurnMetrics
func (c *Collector) ObserveFirstChunk(backend string, latency time.Duration) {
	c.FirstChunkDelay.WithLabelValues(backend).Observe(latency.Seconds())
}

// ObserveExtraction implements ports.TurnMetrics
func (c *Collector) ObserveExtraction(outcome string, duration time.Duration) {
	c.Extractions.WithLabelValues(outcome).Inc()
	c.ExtractionDuration.Observe(duration.Seconds())
}

// Middleware records request counts and latencies by chi route pattern
func (c *Collector) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		c.HTTPRequests.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		c.HTTPDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

// NopMetrics discards every measurement
type NopMetrics struct{}

func (NopMetrics) ObserveTurn(string, string, time.Duration, int) {}
func (NopMetrics) ObserveFirstChunk(string, time.Duration)        {}
func (NopMetrics) ObserveExtraction(string, time.Duration)        {}

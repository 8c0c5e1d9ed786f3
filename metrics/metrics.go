// Package metrics exports bridge and HTTP metrics to Prometheus.
//
// A nil *Recorder is valid and records nothing, so components can take one
// unconditionally.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome labels
const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
	OutcomeDropped = "dropped"
	OutcomeTimeout = "timeout"
)

// Recorder owns a private registry and the bridge collectors registered on it
type Recorder struct {
	registry *prometheus.Registry

	published     *prometheus.CounterVec
	consumed      *prometheus.CounterVec
	dispatches    *prometheus.HistogramVec
	invocations   *prometheus.HistogramVec
	waits         *prometheus.HistogramVec
	breakerState  *prometheus.GaugeVec
	breakerMoves  *prometheus.CounterVec
	httpRequests  *prometheus.CounterVec
	responseTimes *prometheus.HistogramVec
}

// New creates a Recorder whose metric names are prefixed with namespace
func New(namespace string) *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		published: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bridge_published_total",
			Help:      "Messages handed to an asynchronous bridge by transport, destination and outcome.",
		}, []string{"transport", "destination", "outcome"}),
		consumed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bridge_consumed_total",
			Help:      "Messages received from an asynchronous bridge by transport, event and outcome.",
		}, []string{"transport", "event", "outcome"}),
		dispatches: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "handler_duration_seconds",
			Help:      "Event handler latency by event and outcome.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"event", "outcome"}),
		invocations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sync_invoke_duration_seconds",
			Help:      "Synchronous bridge round trips by destination service, event and outcome.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"service", "event", "outcome"}),
		waits: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "correlation_wait_duration_seconds",
			Help:      "Time spent waiting for a correlated reply by outcome.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
		}, []string{"outcome"}),
		breakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sync_breaker_state",
			Help:      "Circuit breaker state per destination service: 0 closed, 1 half-open, 2 open.",
		}, []string{"service"}),
		breakerMoves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_breaker_transitions_total",
			Help:      "Circuit breaker transitions by destination service and new state.",
		}, []string{"service", "state"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by code, method and route.",
		}, []string{"code", "method", "route"}),
		responseTimes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_response_time_seconds",
			Help:      "HTTP response time by route.",
			Buckets:   []float64{0.005, 0.05, 0.5, 1, 5, 10, 30, 60},
		}, []string{"route"}),
	}

	r.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.published,
		r.consumed,
		r.dispatches,
		r.invocations,
		r.waits,
		r.breakerState,
		r.breakerMoves,
		r.httpRequests,
		r.responseTimes,
	)
	return r
}

// Registry exposes the underlying registry, e.g. for health gauges
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// Handler serves the registry in the Prometheus exposition format
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

// ObservePublish counts one message handed to a broker
func (r *Recorder) ObservePublish(transport, destination, outcome string) {
	if r == nil {
		return
	}
	r.published.WithLabelValues(transport, destination, outcome).Inc()
}

// ObserveConsume counts one message taken from a broker
func (r *Recorder) ObserveConsume(transport, event, outcome string) {
	if r == nil {
		return
	}
	r.consumed.WithLabelValues(transport, event, outcome).Inc()
}

// ObserveDispatch records one handler invocation
func (r *Recorder) ObserveDispatch(event, outcome string, elapsed time.Duration) {
	if r == nil {
		return
	}
	r.dispatches.WithLabelValues(event, outcome).Observe(elapsed.Seconds())
}

// ObserveInvoke records one synchronous bridge round trip
func (r *Recorder) ObserveInvoke(service, event, outcome string, elapsed time.Duration) {
	if r == nil {
		return
	}
	r.invocations.WithLabelValues(service, event, outcome).Observe(elapsed.Seconds())
}

// ObserveWait records one correlation wait
func (r *Recorder) ObserveWait(outcome string, elapsed time.Duration) {
	if r == nil {
		return
	}
	r.waits.WithLabelValues(outcome).Observe(elapsed.Seconds())
}

var breakerLevels = map[string]float64{
	"closed":    0,
	"half-open": 1,
	"open":      2,
}

// ObserveBreaker records a sync circuit breaker moving to state
func (r *Recorder) ObserveBreaker(service, state string) {
	if r == nil {
		return
	}
	if level, ok := breakerLevels[state]; ok {
		r.breakerState.WithLabelValues(service).Set(level)
	}
	r.breakerMoves.WithLabelValues(service, state).Inc()
}

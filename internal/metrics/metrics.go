package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "waingest"

// Registry groups the ingestion collectors behind one prometheus registry.
type Registry struct {
	reg *prometheus.Registry

	eventsReceived       *prometheus.CounterVec
	eventsDropped        *prometheus.CounterVec
	identityLookups      *prometheus.CounterVec
	messagesCreated      *prometheus.CounterVec
	statusTransitions    *prometheus.CounterVec
	duplicatesSuppressed *prometheus.CounterVec
	handlerDuration      *prometheus.HistogramVec
	httpRequests         *prometheus.CounterVec
	httpDuration         *prometheus.HistogramVec
	circuitState         *prometheus.GaugeVec
	jobsPublished        *prometheus.CounterVec
}

// NewRegistry creates a registry with every collector registered.
func NewRegistry() *Registry {
	r := &Registry{
		reg: prometheus.NewRegistry(),
		eventsReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_received_total",
			Help:      "Webhook events received, per provider and event name",
		}, []string{"provider", "event"}),
		eventsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_dropped_total",
			Help:      "Webhook events dropped without processing",
		}, []string{"provider", "reason"}),
		identityLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "identity_lookups_total",
			Help:      "Opaque identifier resolutions by result",
		}, []string{"result"}),
		messagesCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_created_total",
			Help:      "Messages created, per provider and direction",
		}, []string{"provider", "direction"}),
		statusTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "status_transitions_total",
			Help:      "Delivery status transitions requested",
		}, []string{"to", "applied"}),
		duplicatesSuppressed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "duplicates_suppressed_total",
			Help:      "Message creations skipped because another delivery holds the marker",
		}, []string{"provider"}),
		handlerDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "handler_duration_seconds",
			Help:      "Time spent in an event handler",
			Buckets:   prometheus.DefBuckets,
		}, []string{"handler", "outcome"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests served",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		circuitState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "gateway_circuit_state",
			Help:      "Gateway circuit breaker state: 0 closed, 1 open, 2 half-open",
		}, []string{"breaker"}),
		jobsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_published_total",
			Help:      "Background jobs handed to the queue, per kind and result",
		}, []string{"kind", "result"}),
	}

	r.reg.MustRegister(
		r.eventsReceived,
		r.eventsDropped,
		r.identityLookups,
		r.messagesCreated,
		r.statusTransitions,
		r.duplicatesSuppressed,
		r.handlerDuration,
		r.httpRequests,
		r.httpDuration,
		r.circuitState,
		r.jobsPublished,
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)
	return r
}

var globalRegistry = NewRegistry()

// GetRegistry returns the process wide registry
func GetRegistry() *Registry {
	return globalRegistry
}

// Gatherer exposes the underlying registry for scraping and tests.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.reg
}

// Handler serves the registry in the prometheus text format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

func (r *Registry) EventReceived(provider, event string) {
	r.eventsReceived.WithLabelValues(provider, event).Inc()
}

func (r *Registry) EventDropped(provider, reason string) {
	r.eventsDropped.WithLabelValues(provider, reason).Inc()
}

// IdentityLookup records a resolution outcome: cache_hit, provider_hit,
// alt_hit, unresolved or error.
func (r *Registry) IdentityLookup(result string) {
	r.identityLookups.WithLabelValues(result).Inc()
}

func (r *Registry) MessageCreated(provider, direction string) {
	r.messagesCreated.WithLabelValues(provider, direction).Inc()
}

func (r *Registry) StatusTransition(to string, applied bool) {
	label := "false"
	if applied {
		label = "true"
	}
	r.statusTransitions.WithLabelValues(to, label).Inc()
}

func (r *Registry) DuplicateSuppressed(provider string) {
	r.duplicatesSuppressed.WithLabelValues(provider).Inc()
}

func (r *Registry) ObserveHandler(handler, outcome string, d time.Duration) {
	r.handlerDuration.WithLabelValues(handler, outcome).Observe(d.Seconds())
}

func (r *Registry) ObserveHTTP(method, route string, status int, d time.Duration) {
	r.httpRequests.WithLabelValues(method, route, statusClass(status)).Inc()
	r.httpDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

func (r *Registry) CircuitState(breaker string, state int) {
	r.circuitState.WithLabelValues(breaker).Set(float64(state))
}

func (r *Registry) JobPublished(kind string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	r.jobsPublished.WithLabelValues(kind, result).Inc()
}

func statusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}

// Convenience functions for the global registry

func EventReceived(provider, event string)   { globalRegistry.EventReceived(provider, event) }
func EventDropped(provider, reason string)   { globalRegistry.EventDropped(provider, reason) }
func IdentityLookup(result string)           { globalRegistry.IdentityLookup(result) }
func MessageCreated(provider, dir string)    { globalRegistry.MessageCreated(provider, dir) }
func StatusTransition(to string, ok bool)    { globalRegistry.StatusTransition(to, ok) }
func DuplicateSuppressed(provider string)    { globalRegistry.DuplicateSuppressed(provider) }
func Handler() http.Handler                  { return globalRegistry.Handler() }
func CircuitState(breaker string, state int) { globalRegistry.CircuitState(breaker, state) }
func JobPublished(kind string, err error)    { globalRegistry.JobPublished(kind, err) }
func ObserveHandler(h, o string, d time.Duration) {
	globalRegistry.ObserveHandler(h, o, d)
}
func ObserveHTTP(method, route string, status int, d time.Duration) {
	globalRegistry.ObserveHTTP(method, route, status, d)
}

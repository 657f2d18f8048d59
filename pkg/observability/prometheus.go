package observability

import (
	"context"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Namespace for all metrics.
const metricsNamespace = "graphsync"

// Subsystems.
const (
	graphSubsystem  = "graph"
	fanoutSubsystem = "fanout"
	httpSubsystem   = "http"
)

// Prometheus implements [GraphHooks], [FanoutHooks] and [HTTPHooks] with
// Prometheus collectors. All operations are safe for concurrent use.
type Prometheus struct {
	// MutationsTotal counts mutations by type and outcome
	// (applied, noop, rejected).
	MutationsTotal *prometheus.CounterVec

	// MutationDuration measures time spent applying a mutation, including
	// the broadcast.
	MutationDuration *prometheus.HistogramVec

	// QueriesTotal counts reads by kind (all, subgraph).
	QueriesTotal *prometheus.CounterVec

	// LayoutDuration measures force-directed layout runs.
	LayoutDuration prometheus.Histogram

	// Subscribers tracks connected subscribers.
	Subscribers prometheus.Gauge

	// UnsubscribesTotal counts removed subscribers by reason.
	UnsubscribesTotal *prometheus.CounterVec

	// EventsTotal counts broadcast events by type.
	EventsTotal *prometheus.CounterVec

	// DeliveriesTotal counts per-subscriber deliveries by result
	// (delivered, dropped).
	DeliveriesTotal *prometheus.CounterVec

	// RequestsTotal counts HTTP requests by method, route and status.
	RequestsTotal *prometheus.CounterVec

	// RequestDuration measures HTTP request latency by method and route.
	RequestDuration *prometheus.HistogramVec
}

// NewPrometheus creates and registers all collectors with reg.
// Passing prometheus.DefaultRegisterer exposes them on promhttp.Handler().
func NewPrometheus(reg prometheus.Registerer) *Prometheus {
	f := promauto.With(reg)
	return &Prometheus{
		MutationsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: graphSubsystem,
			Name:      "mutations_total",
			Help:      "Mutations received, by type and outcome.",
		}, []string{"type", "outcome"}),
		MutationDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: graphSubsystem,
			Name:      "mutation_duration_seconds",
			Help:      "Time to apply and broadcast a mutation.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 10),
		}, []string{"type"}),
		QueriesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: graphSubsystem,
			Name:      "queries_total",
			Help:      "Graph reads, by kind.",
		}, []string{"kind"}),
		LayoutDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: graphSubsystem,
			Name:      "layout_duration_seconds",
			Help:      "Force-directed layout run time.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 8),
		}),
		Subscribers: f.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: fanoutSubsystem,
			Name:      "subscribers",
			Help:      "Connected subscribers.",
		}),
		UnsubscribesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: fanoutSubsystem,
			Name:      "unsubscribes_total",
			Help:      "Subscribers removed, by reason.",
		}, []string{"reason"}),
		EventsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: fanoutSubsystem,
			Name:      "events_total",
			Help:      "Events broadcast, by type.",
		}, []string{"type"}),
		DeliveriesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: fanoutSubsystem,
			Name:      "deliveries_total",
			Help:      "Per-subscriber deliveries, by result.",
		}, []string{"result"}),
		RequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: httpSubsystem,
			Name:      "requests_total",
			Help:      "HTTP requests, by method, route and status.",
		}, []string{"method", "route", "status"}),
		RequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: httpSubsystem,
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
}

// =============================================================================
// GraphHooks
// =============================================================================

func (p *Prometheus) OnMutation(_ context.Context, mutationType string, applied bool, d time.Duration, err error) {
	outcome := "applied"
	switch {
	case err != nil:
		outcome = "rejected"
	case !applied:
		outcome = "noop"
	}
	p.MutationsTotal.WithLabelValues(mutationType, outcome).Inc()
	if err == nil {
		p.MutationDuration.WithLabelValues(mutationType).Observe(d.Seconds())
	}
}

func (p *Prometheus) OnQuery(_ context.Context, kind string, _ int, _ time.Duration) {
	p.QueriesTotal.WithLabelValues(kind).Inc()
}

func (p *Prometheus) OnLayout(_ context.Context, _ int, d time.Duration) {
	p.LayoutDuration.Observe(d.Seconds())
}

// =============================================================================
// FanoutHooks
// =============================================================================

func (p *Prometheus) OnSubscribe(total int) {
	p.Subscribers.Set(float64(total))
}

func (p *Prometheus) OnUnsubscribe(total int, reason string) {
	p.Subscribers.Set(float64(total))
	p.UnsubscribesTotal.WithLabelValues(reason).Inc()
}

func (p *Prometheus) OnBroadcast(eventType string, delivered, dropped int) {
	p.EventsTotal.WithLabelValues(eventType).Inc()
	p.DeliveriesTotal.WithLabelValues("delivered").Add(float64(delivered))
	p.DeliveriesTotal.WithLabelValues("dropped").Add(float64(dropped))
}

// =============================================================================
// HTTPHooks
// =============================================================================

func (p *Prometheus) OnRequest(_ context.Context, method, route string, status int, d time.Duration) {
	p.RequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	p.RequestDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

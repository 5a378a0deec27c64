// Package metrics records hub activity counters.
//
// Kernel components report through the Recorder interface; Noop is used
// when no recorder is configured. Prometheus exports the counters on a
// private registry that the API module serves at /metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "homecontrol"

// Recorder receives kernel activity notifications.
// Implementations must be safe for concurrent use.
type Recorder interface {
	// EventPublished is called once per broadcast with the number of
	// handlers it was delivered to.
	EventPublished(event string, handlers int)

	// HandlerFailed is called when a handler returns an error or panics.
	HandlerFailed(event string)

	// StateChanged is called when an item's store accepts changed values.
	StateChanged(itemType string, changed int)

	// ModuleStatus is called on every module status transition.
	ModuleStatus(module, status string)

	// Items is called with the registry size after it changes.
	Items(count int)
}

// Noop discards everything.
type Noop struct{}

func (Noop) EventPublished(string, int)   {}
func (Noop) HandlerFailed(string)        {}
func (Noop) StateChanged(string, int)    {}
func (Noop) ModuleStatus(string, string) {}
func (Noop) Items(int)                   {}

// Prometheus is a Recorder backed by client_golang collectors.
type Prometheus struct {
	registry *prometheus.Registry

	events        *prometheus.CounterVec
	deliveries    *prometheus.CounterVec
	handlerErrors *prometheus.CounterVec
	stateChanges  *prometheus.CounterVec
	moduleStatus  *prometheus.GaugeVec
	items         prometheus.Gauge
}

// NewPrometheus creates a recorder with its own registry, including the Go
// runtime and process collectors.
func NewPrometheus() *Prometheus {
	p := &Prometheus{
		registry: prometheus.NewRegistry(),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "event",
			Name:      "published_total",
			Help:      "Broadcasts by event name.",
		}, []string{"event"}),
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "event",
			Name:      "deliveries_total",
			Help:      "Handler invocations by event name.",
		}, []string{"event"}),
		handlerErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "event",
			Name:      "handler_failures_total",
			Help:      "Handlers that returned an error or panicked, by event name.",
		}, []string{"event"}),
		stateChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "item",
			Name:      "state_changes_total",
			Help:      "Accepted state value changes by item type.",
		}, []string{"type"}),
		moduleStatus: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "module",
			Name:      "status",
			Help:      "1 for the current lifecycle status of each module.",
		}, []string{"module", "status"}),
		items: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "item",
			Name:      "registered",
			Help:      "Items currently in the registry.",
		}),
	}

	p.registry.MustRegister(
		p.events,
		p.deliveries,
		p.handlerErrors,
		p.stateChanges,
		p.moduleStatus,
		p.items,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return p
}

func (p *Prometheus) EventPublished(event string, handlers int) {
	p.events.WithLabelValues(event).Inc()
	p.deliveries.WithLabelValues(event).Add(float64(handlers))
}

func (p *Prometheus) HandlerFailed(event string) {
	p.handlerErrors.WithLabelValues(event).Inc()
}

func (p *Prometheus) StateChanged(itemType string, changed int) {
	p.stateChanges.WithLabelValues(itemType).Add(float64(changed))
}

func (p *Prometheus) ModuleStatus(module, status string) {
	p.moduleStatus.DeletePartialMatch(prometheus.Labels{"module": module})
	p.moduleStatus.WithLabelValues(module, status).Set(1)
}

func (p *Prometheus) Items(count int) {
	p.items.Set(float64(count))
}

// Gatherer exposes the registry, mainly for tests.
func (p *Prometheus) Gatherer() prometheus.Gatherer {
	return p.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}

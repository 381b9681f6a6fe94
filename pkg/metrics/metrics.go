// Package metrics exposes Prometheus instrumentation for the voice server.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/code-100-precent/EchoLink/pkg/events"
)

const namespace = "echolink"

var (
	// connectionsTotal counts accepted WebSocket connections.
	connectionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connections_total",
			Help:      "Total number of accepted WebSocket voice connections",
		},
	)

	// sessionsActive is a gauge of currently running voice sessions.
	sessionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Number of currently active voice sessions",
		},
	)

	// eventsPublishedTotal counts events published on session buses.
	eventsPublishedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      "Total number of events published on session event buses",
		},
		[]string{"event_type"},
	)

	// componentErrorsTotal counts error.occurred events by origin.
	componentErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "component_errors_total",
			Help:      "Total number of component errors reported on session buses",
		},
		[]string{"component", "error_type"},
	)

	// turnsTotal counts response turns started from final transcripts.
	turnsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_total",
			Help:      "Total number of response turns started",
		},
	)

	// framesDroppedTotal counts frames discarded by bounded queues.
	framesDroppedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_dropped_total",
			Help:      "Total number of frames dropped by saturated session queues",
		},
		[]string{"stage"},
	)

	// allMetrics is the list registered with the server registry.
	allMetrics = []prometheus.Collector{
		connectionsTotal,
		sessionsActive,
		eventsPublishedTotal,
		componentErrorsTotal,
		turnsTotal,
		framesDroppedTotal,
	}
)

var (
	registryOnce sync.Once
	registry     *prometheus.Registry
)

// Registry returns the server-wide metric registry, building it on first use.
func Registry() *prometheus.Registry {
	registryOnce.Do(func() {
		registry = prometheus.NewRegistry()
		for _, collector := range allMetrics {
			registry.MustRegister(collector)
		}
		registry.MustRegister(collectors.NewGoCollector())
		registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	})
	return registry
}

// Handler returns the scrape handler for the monitor route.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry(), promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// RecordConnection records an accepted WebSocket connection.
func RecordConnection() {
	connectionsTotal.Inc()
}

// SessionOpened marks a voice session as running.
func SessionOpened() {
	sessionsActive.Inc()
}

// SessionClosed marks a voice session as finished.
func SessionClosed() {
	sessionsActive.Dec()
}

// RecordTurn records a response turn started from a final transcript.
func RecordTurn() {
	turnsTotal.Inc()
}

// RecordDroppedFrames records frames discarded by a bounded queue.
func RecordDroppedFrames(stage string, count int) {
	if count <= 0 {
		return
	}
	framesDroppedTotal.WithLabelValues(stage).Add(float64(count))
}

// ObserveBus counts every event a session bus publishes. Error events are
// additionally broken out by component and error type.
func ObserveBus(bus *events.Bus) {
	bus.Subscribe("*", func(event events.Event) error {
		eventsPublishedTotal.WithLabelValues(event.Type).Inc()
		if event.Type == events.ErrorOccurred {
			componentErrorsTotal.WithLabelValues(
				event.GetString("component"),
				event.GetString("error_type"),
			).Inc()
		}
		return nil
	})
}

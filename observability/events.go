package observability

import (
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type eventMetrics struct {
	published   *prometheus.CounterVec
	dropped     prometheus.Counter
	subscribers prometheus.Gauge
}

var (
	eventMetricsOnce sync.Once
	eventRegistry    *eventMetrics
)

// Events returns the metrics registry tracking the node event stream.
func Events() *eventMetrics {
	eventMetricsOnce.Do(func() {
		eventRegistry = &eventMetrics{
			published: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "mintgate",
				Subsystem: "events",
				Name:      "published_total",
				Help:      "Count of events published to stream subscribers segmented by event type.",
			}, []string{"type"}),
			dropped: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "mintgate",
				Subsystem: "events",
				Name:      "dropped_total",
				Help:      "Count of events dropped because a subscriber channel was full.",
			}),
			subscribers: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "mintgate",
				Subsystem: "events",
				Name:      "subscribers",
				Help:      "Number of live event stream subscribers.",
			}),
		}
		prometheus.MustRegister(
			eventRegistry.published,
			eventRegistry.dropped,
			eventRegistry.subscribers,
		)
	})
	return eventRegistry
}

// RecordPublished increments the published counter for the supplied event type.
func (m *eventMetrics) RecordPublished(eventType string) {
	if m == nil {
		return
	}
	normalized := strings.TrimSpace(eventType)
	if normalized == "" {
		normalized = "unknown"
	}
	m.published.WithLabelValues(normalized).Inc()
}

// RecordDropped counts an event discarded because a subscriber lagged.
func (m *eventMetrics) RecordDropped() {
	if m == nil {
		return
	}
	m.dropped.Inc()
}

// SetSubscribers updates the live subscriber gauge.
func (m *eventMetrics) SetSubscribers(count int) {
	if m == nil {
		return
	}
	if count < 0 {
		count = 0
	}
	m.subscribers.Set(float64(count))
}

package watcher

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/ericpp/ppwatch/metric"
)

// sourceMetrics holds the Prometheus metrics every source exposes
type sourceMetrics struct {
	events       prometheus.Counter
	decodeErrors prometheus.Counter
	errors       prometheus.Counter
	reconnects   prometheus.Counter
	connected    prometheus.Gauge
}

// newSourceMetrics creates and registers source metrics. A nil registry
// yields unregistered metrics that still count, which keeps tests and
// ad-hoc wiring simple.
func newSourceMetrics(registry metric.Registrar, componentName, transport string) (*sourceMetrics, error) {
	constLabels := prometheus.Labels{"transport": transport}

	m := &sourceMetrics{
		events: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "ppwatch",
			Subsystem:   "watcher",
			Name:        "events_received_total",
			Help:        "Total podping events received from the firehose",
			ConstLabels: constLabels,
		}),
		decodeErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "ppwatch",
			Subsystem:   "watcher",
			Name:        "decode_errors_total",
			Help:        "Total frames dropped because they could not be decoded",
			ConstLabels: constLabels,
		}),
		errors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "ppwatch",
			Subsystem:   "watcher",
			Name:        "errors_total",
			Help:        "Total read and handler errors",
			ConstLabels: constLabels,
		}),
		reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "ppwatch",
			Subsystem:   "watcher",
			Name:        "reconnect_attempts_total",
			Help:        "Total reconnection attempts",
			ConstLabels: constLabels,
		}),
		connected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "ppwatch",
			Subsystem:   "watcher",
			Name:        "connected",
			Help:        "Whether the source is currently connected (0 or 1)",
			ConstLabels: constLabels,
		}),
	}

	if registry == nil {
		return m, nil
	}

	registrations := []struct {
		name    string
		counter prometheus.Counter
	}{
		{"events_received", m.events},
		{"decode_errors", m.decodeErrors},
		{"errors", m.errors},
		{"reconnect_attempts", m.reconnects},
	}
	for _, reg := range registrations {
		if err := registry.RegisterCounter(componentName, reg.name, reg.counter); err != nil {
			return nil, err
		}
	}
	if err := registry.RegisterGauge(componentName, "connected", m.connected); err != nil {
		return nil, err
	}
	return m, nil
}

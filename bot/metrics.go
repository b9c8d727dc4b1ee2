package bot

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/ericpp/ppwatch/metric"
)

// botMetrics counts the bot's command and notification activity
type botMetrics struct {
	commands      *prometheus.CounterVec
	denied        prometheus.Counter
	notifications prometheus.Counter
	advisories    prometheus.Counter
	submissions   *prometheus.CounterVec
}

func newBotMetrics(registry metric.Registrar, componentName string) (*botMetrics, error) {
	m := &botMetrics{
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ppwatch",
			Subsystem: "bot",
			Name:      "commands_total",
			Help:      "Total commands handled, by action and outcome",
		}, []string{"action", "outcome"}),
		denied: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ppwatch",
			Subsystem: "bot",
			Name:      "authorization_denied_total",
			Help:      "Total subscription mutations denied by the authorization policy",
		}),
		notifications: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ppwatch",
			Subsystem: "bot",
			Name:      "notifications_sent_total",
			Help:      "Total podping notifications delivered to channels",
		}),
		advisories: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ppwatch",
			Subsystem: "bot",
			Name:      "live_advisories_total",
			Help:      "Total live-status advisory follow-ups sent",
		}),
		submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ppwatch",
			Subsystem: "bot",
			Name:      "podping_submissions_total",
			Help:      "Total podping submissions, by outcome",
		}, []string{"outcome"}),
	}

	if registry == nil {
		return m, nil
	}

	if err := registry.RegisterCounterVec(componentName, "commands", m.commands); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounter(componentName, "authorization_denied", m.denied); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounter(componentName, "notifications_sent", m.notifications); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounter(componentName, "live_advisories", m.advisories); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounterVec(componentName, "podping_submissions", m.submissions); err != nil {
		return nil, err
	}
	return m, nil
}

package health

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

// Monitor aggregates the health of registered reporters
type Monitor struct {
	mu        sync.RWMutex
	reporters []Reporter
}

// NewMonitor creates an empty health monitor
func NewMonitor() *Monitor {
	return &Monitor{}
}

// Register adds a reporter to the monitor
func (m *Monitor) Register(r Reporter) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reporters = append(m.reporters, r)
}

// Check returns the aggregate status: healthy only when every reporter is
// healthy, degraded when any reporter is degraded, unhealthy otherwise.
func (m *Monitor) Check() (Status, []Status) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	overall := Status{
		Component: "ppwatch",
		Healthy:   true,
		Status:    "healthy",
		Timestamp: time.Now().UTC(),
	}

	statuses := make([]Status, 0, len(m.reporters))
	for _, r := range m.reporters {
		s := r.Health()
		statuses = append(statuses, s)
		switch s.Status {
		case "unhealthy":
			overall.Healthy = false
			overall.Status = "unhealthy"
		case "degraded":
			if overall.Status == "healthy" {
				overall.Healthy = false
				overall.Status = "degraded"
			}
		}
	}

	return overall, statuses
}

// Handler serves the aggregate health as JSON. Unhealthy aggregates get
// HTTP 503 so load balancers and probes can act on the status code alone.
func (m *Monitor) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		overall, statuses := m.Check()

		code := http.StatusOK
		if overall.Status == "unhealthy" {
			code = http.StatusServiceUnavailable
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(struct {
			Status     Status   `json:"status"`
			Components []Status `json:"components"`
		}{overall, statuses})
	})
}

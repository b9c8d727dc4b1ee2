// Package health provides health reporting for ppwatch components and an
// HTTP handler aggregating them for the /healthz endpoint.
package health

import (
	"regexp"
	"time"
)

// Pre-compiled regexes for error message sanitization
var (
	urlRegex        = regexp.MustCompile(`(?:https?|wss?|nats)://[^\s]+`)
	credentialRegex = regexp.MustCompile(`(?i)(password|token|key|secret|credential)[^a-zA-Z]*[:=][^,\s}]+`)
)

// Status represents the health state of a component
type Status struct {
	Component string    `json:"component"`
	Healthy   bool      `json:"healthy"`
	Status    string    `json:"status"` // "healthy", "unhealthy", "degraded"
	Message   string    `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Metrics   *Metrics  `json:"metrics,omitempty"`
}

// Metrics contains health-related metrics
type Metrics struct {
	Uptime            time.Duration `json:"uptime"`
	ErrorCount        int64         `json:"error_count"`
	MessagesProcessed int64         `json:"messages_processed,omitempty"`
	LastActivity      time.Time     `json:"last_activity,omitempty"`
}

// Reporter is implemented by components that expose their health
type Reporter interface {
	Health() Status
}

// Healthy builds a healthy status for a component
func Healthy(component, message string) Status {
	return Status{
		Component: component,
		Healthy:   true,
		Status:    "healthy",
		Message:   message,
		Timestamp: time.Now().UTC(),
	}
}

// Degraded builds a degraded status; the component works but something is off
func Degraded(component, message string) Status {
	return Status{
		Component: component,
		Status:    "degraded",
		Message:   sanitizeMessage(message),
		Timestamp: time.Now().UTC(),
	}
}

// Unhealthy builds an unhealthy status
func Unhealthy(component, message string) Status {
	return Status{
		Component: component,
		Status:    "unhealthy",
		Message:   sanitizeMessage(message),
		Timestamp: time.Now().UTC(),
	}
}

// WithMetrics returns a copy of the status with metrics attached
func (s Status) WithMetrics(metrics *Metrics) Status {
	s.Metrics = metrics
	return s
}

// IsHealthy returns true if the status is healthy
func (s Status) IsHealthy() bool {
	return s.Status == "healthy"
}

// sanitizeMessage strips URLs and credentials from messages that may carry
// connection errors, so health output never leaks endpoints or secrets.
func sanitizeMessage(msg string) string {
	if msg == "" {
		return ""
	}
	msg = urlRegex.ReplaceAllString(msg, "[URL]")
	msg = credentialRegex.ReplaceAllString(msg, "$1=[REDACTED]")
	return msg
}

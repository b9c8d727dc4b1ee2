package metric

import (
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericpp/ppwatch/errors"
)

func TestRegistry_RegisterAndServe(t *testing.T) {
	registry := NewRegistry()

	counter := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "ppwatch",
		Subsystem: "dispatcher",
		Name:      "messages_sent_total",
		Help:      "Total chat messages sent",
	})
	require.NoError(t, registry.RegisterCounter("dispatcher", "messages_sent", counter))
	counter.Add(3)

	rec := httptest.NewRecorder()
	registry.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	assert.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), "ppwatch_dispatcher_messages_sent_total 3")
}

func TestRegistry_DuplicateRegistration(t *testing.T) {
	registry := NewRegistry()

	gauge := prometheus.NewGauge(prometheus.GaugeOpts{Name: "ppwatch_watcher_connected", Help: "x"})
	require.NoError(t, registry.RegisterGauge("watcher", "connected", gauge))

	err := registry.RegisterGauge("watcher", "connected", gauge)
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
}

func TestRegistry_Unregister(t *testing.T) {
	registry := NewRegistry()

	gauge := prometheus.NewGauge(prometheus.GaugeOpts{Name: "ppwatch_bot_up", Help: "x"})
	require.NoError(t, registry.RegisterGauge("bot", "up", gauge))

	assert.True(t, registry.Unregister("bot", "up"))
	assert.False(t, registry.Unregister("bot", "up"))

	// Can re-register after unregistering
	require.NoError(t, registry.RegisterGauge("bot", "up", gauge))
}

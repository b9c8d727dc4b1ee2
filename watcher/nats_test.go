package watcher

import (
	"context"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pperrors "github.com/ericpp/ppwatch/errors"
	"github.com/ericpp/ppwatch/podping"
)

func TestNewNATSSource_Validation(t *testing.T) {
	_, err := NewNATSSource("nats", NATSConfig{Subject: "podping.events"}, nil, nil)
	assert.Error(t, err, "missing url")

	_, err = NewNATSSource("nats", NATSConfig{URL: "nats://localhost:4222"}, nil, nil)
	assert.Error(t, err, "missing subject")

	source, err := NewNATSSource("nats", NATSConfig{
		URL:     "nats://localhost:4222",
		Subject: "podping.events",
	}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "nats", source.Name())
}

func TestNATSSource_InitializeRequiresHandler(t *testing.T) {
	source, err := NewNATSSource("nats", NATSConfig{
		URL:     "nats://localhost:4222",
		Subject: "podping.events",
	}, nil, nil)
	require.NoError(t, err)

	assert.Error(t, source.Initialize())

	source.SetHandler(func(context.Context, podping.Event) {})
	assert.NoError(t, source.Initialize())
}

func TestNATSSource_LifecycleGuards(t *testing.T) {
	source, err := NewNATSSource("nats", NATSConfig{
		URL:     "nats://localhost:4222",
		Subject: "podping.events",
	}, nil, nil)
	require.NoError(t, err)

	// Not initialized yet
	assert.ErrorIs(t, source.Start(context.Background()), pperrors.ErrNotStarted)
	assert.ErrorIs(t, source.Stop(time.Second), pperrors.ErrNotStarted)
}

func TestNATSSource_HandleMessageDispatchesEvent(t *testing.T) {
	source, err := NewNATSSource("nats", NATSConfig{
		URL:     "nats://localhost:4222",
		Subject: "podping.events",
	}, nil, nil)
	require.NoError(t, err)

	var got []podping.Event
	source.SetHandler(func(_ context.Context, event podping.Event) {
		got = append(got, event)
	})

	source.handleMessage(&nats.Msg{
		Subject: "podping.events",
		Data:    []byte(`{"urls":["https://example.com/feed"],"reason":"update","trx_id":"tx1"}`),
	})

	require.Len(t, got, 1)
	assert.Equal(t, []string{"https://example.com/feed"}, got[0].URLs)
	assert.Equal(t, podping.ReasonUpdate, got[0].Reason)
	assert.Equal(t, "tx1", got[0].TrxID)
}

func TestNATSSource_HandleMessageSkipsBadPayloads(t *testing.T) {
	source, err := NewNATSSource("nats", NATSConfig{
		URL:     "nats://localhost:4222",
		Subject: "podping.events",
	}, nil, nil)
	require.NoError(t, err)

	called := false
	source.SetHandler(func(context.Context, podping.Event) { called = true })

	source.handleMessage(&nats.Msg{Subject: "podping.events", Data: []byte(`not json`)})
	source.handleMessage(&nats.Msg{Subject: "podping.events", Data: []byte(`{"urls":[]}`)})

	assert.False(t, called)
}

func TestNATSSource_HealthWhenStopped(t *testing.T) {
	source, err := NewNATSSource("nats", NATSConfig{
		URL:     "nats://localhost:4222",
		Subject: "podping.events",
	}, nil, nil)
	require.NoError(t, err)

	status := source.Health()
	assert.False(t, status.IsHealthy())
	assert.Equal(t, "unhealthy", status.Status)
}

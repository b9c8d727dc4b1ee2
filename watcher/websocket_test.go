package watcher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pperrors "github.com/ericpp/ppwatch/errors"
	"github.com/ericpp/ppwatch/podping"
)

// firehoseServer upgrades incoming connections and writes the given
// frames, then holds the connection open.
func firehoseServer(t *testing.T, frames ...string) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		for _, frame := range frames {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
				return
			}
		}
		// Hold the connection until the client goes away
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(server.Close)
	return server
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func collectEvents(t *testing.T, source *WebSocketSource, want int) []podping.Event {
	t.Helper()
	events := make(chan podping.Event, 16)
	source.SetHandler(func(_ context.Context, event podping.Event) {
		events <- event
	})

	require.NoError(t, source.Initialize())
	require.NoError(t, source.Start(context.Background()))
	t.Cleanup(func() { _ = source.Stop(2 * time.Second) })

	var got []podping.Event
	for len(got) < want {
		select {
		case event := <-events:
			got = append(got, event)
		case <-time.After(5 * time.Second):
			t.Fatalf("timed out after %d of %d events", len(got), want)
		}
	}
	return got
}

func TestWebSocketSource_ReceivesEvents(t *testing.T) {
	server := firehoseServer(t,
		`{"urls":["https://example.com/feed"],"reason":"live","trx_id":"tx1"}`,
		`this is not json`,
		`{"iris":["https://other.example/rss"],"id":"tx2"}`,
	)

	source, err := NewWebSocketSource("firehose", WebSocketConfig{URL: wsURL(server)}, nil, nil)
	require.NoError(t, err)

	got := collectEvents(t, source, 2)

	assert.Equal(t, []string{"https://example.com/feed"}, got[0].URLs)
	assert.Equal(t, podping.ReasonLive, got[0].Reason)
	assert.Equal(t, "tx1", got[0].TrxID)

	assert.Equal(t, []string{"https://other.example/rss"}, got[1].URLs)
	assert.Equal(t, podping.ReasonUpdate, got[1].Reason)
	assert.Equal(t, "tx2", got[1].TrxID)
}

func TestWebSocketSource_HandlerPanicDoesNotKillLoop(t *testing.T) {
	server := firehoseServer(t,
		`{"urls":["https://first.example/feed"],"trx_id":"tx1"}`,
		`{"urls":["https://second.example/feed"],"trx_id":"tx2"}`,
	)

	source, err := NewWebSocketSource("firehose", WebSocketConfig{URL: wsURL(server)}, nil, nil)
	require.NoError(t, err)

	events := make(chan podping.Event, 16)
	source.SetHandler(func(_ context.Context, event podping.Event) {
		if event.TrxID == "tx1" {
			panic("boom")
		}
		events <- event
	})

	require.NoError(t, source.Initialize())
	require.NoError(t, source.Start(context.Background()))
	defer func() { _ = source.Stop(2 * time.Second) }()

	select {
	case event := <-events:
		assert.Equal(t, "tx2", event.TrxID)
	case <-time.After(5 * time.Second):
		t.Fatal("second event never arrived after handler panic")
	}
}

func TestWebSocketSource_ReconnectDoesNotLeakPingGoroutines(t *testing.T) {
	// Drop every connection after one frame so the source cycles through
	// several read loops; each cycle's ping goroutine must exit with it.
	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		_ = conn.WriteMessage(websocket.TextMessage,
			[]byte(`{"urls":["https://example.com/feed"],"trx_id":"tx1"}`))
		_ = conn.Close()
	}))
	t.Cleanup(server.Close)

	source, err := NewWebSocketSource("firehose", WebSocketConfig{URL: wsURL(server)}, nil, nil)
	require.NoError(t, err)

	events := make(chan podping.Event, 64)
	source.SetHandler(func(_ context.Context, event podping.Event) {
		events <- event
	})
	require.NoError(t, source.Initialize())

	before := runtime.NumGoroutine()
	require.NoError(t, source.Start(context.Background()))

	// One frame per connection: five events means five read loops ran
	for i := 0; i < 5; i++ {
		select {
		case <-events:
		case <-time.After(5 * time.Second):
			t.Fatalf("timed out waiting for reconnect cycle %d", i+1)
		}
	}

	require.NoError(t, source.Stop(2*time.Second))

	assert.Eventually(t, func() bool {
		return runtime.NumGoroutine() <= before+2
	}, 5*time.Second, 50*time.Millisecond, "ping goroutines outlived their read loops")
}

func TestWebSocketSource_Lifecycle(t *testing.T) {
	server := firehoseServer(t)

	source, err := NewWebSocketSource("firehose", WebSocketConfig{URL: wsURL(server)}, nil, nil)
	require.NoError(t, err)

	// Handler must be set before Initialize
	assert.Error(t, source.Initialize())

	source.SetHandler(func(context.Context, podping.Event) {})
	require.NoError(t, source.Initialize())

	ctx := context.Background()
	require.NoError(t, source.Start(ctx))
	assert.ErrorIs(t, source.Start(ctx), pperrors.ErrAlreadyStarted)

	require.NoError(t, source.Stop(2*time.Second))
	assert.ErrorIs(t, source.Stop(time.Second), pperrors.ErrNotStarted)
}

func TestWebSocketSource_StopBeforeStart(t *testing.T) {
	server := firehoseServer(t)
	source, err := NewWebSocketSource("firehose", WebSocketConfig{URL: wsURL(server)}, nil, nil)
	require.NoError(t, err)

	assert.ErrorIs(t, source.Stop(time.Second), pperrors.ErrNotStarted)
}

func TestNewWebSocketSource_RejectsBadScheme(t *testing.T) {
	_, err := NewWebSocketSource("firehose", WebSocketConfig{URL: "https://example.com"}, nil, nil)
	assert.Error(t, err)

	_, err = NewWebSocketSource("firehose", WebSocketConfig{URL: ""}, nil, nil)
	assert.Error(t, err)
}

func TestWebSocketSource_Health(t *testing.T) {
	server := firehoseServer(t)
	source, err := NewWebSocketSource("firehose", WebSocketConfig{URL: wsURL(server)}, nil, nil)
	require.NoError(t, err)
	source.SetHandler(func(context.Context, podping.Event) {})

	assert.False(t, source.Health().IsHealthy())

	require.NoError(t, source.Initialize())
	require.NoError(t, source.Start(context.Background()))
	defer func() { _ = source.Stop(2 * time.Second) }()

	// The dial happens in the background; poll briefly
	deadline := time.Now().Add(5 * time.Second)
	for !source.Health().IsHealthy() {
		if time.Now().After(deadline) {
			t.Fatal("source never became healthy")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

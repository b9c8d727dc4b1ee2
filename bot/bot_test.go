package bot

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pperrors "github.com/ericpp/ppwatch/errors"
	"github.com/ericpp/ppwatch/messenger"
	"github.com/ericpp/ppwatch/podping"
	"github.com/ericpp/ppwatch/subscription"
	"github.com/ericpp/ppwatch/testutil"
	"github.com/ericpp/ppwatch/watcher"
)

func TestNew_RequiresMessengerAndRegistry(t *testing.T) {
	_, err := New("bot", Options{}, Dependencies{
		Registry: subscription.NewRegistry(),
	}, nil, slog.Default())
	require.Error(t, err)
	assert.True(t, pperrors.IsInvalid(err))

	_, err = New("bot", Options{}, Dependencies{
		Messenger: testutil.NewRecordingMessenger(),
	}, nil, slog.Default())
	require.Error(t, err)
	assert.True(t, pperrors.IsInvalid(err))
}

func TestBot_InitializeWiresMessengerCallbacks(t *testing.T) {
	f := newFixture(nil)
	require.NoError(t, f.bot.Initialize())

	f.messenger.Receive(context.Background(), messenger.InboundMessage{
		From: "alice",
		Text: "help",
	})

	replies := f.sentTo(messenger.User("alice"))
	require.NotEmpty(t, replies)
	assert.Equal(t, "=== PPWATCH Bot Commands ===", replies[0])
}

func TestBot_ConnectJoinsSubscribedChannels(t *testing.T) {
	f := newFixture(nil)
	f.registry.Subscribe("#pod", "https://a.example/feed")
	f.registry.Subscribe("#music", "https://b.example/feed")
	require.NoError(t, f.bot.Initialize())

	f.messenger.Connect(context.Background())

	assert.ElementsMatch(t, []string{"#pod", "#music"}, f.messenger.JoinedChannels())
}

func TestBot_Lifecycle(t *testing.T) {
	f := newFixture(nil)
	ctx := context.Background()

	assert.ErrorIs(t, f.bot.Start(ctx), pperrors.ErrNotStarted)

	require.NoError(t, f.bot.Initialize())
	require.NoError(t, f.bot.Start(ctx))
	assert.ErrorIs(t, f.bot.Start(ctx), pperrors.ErrAlreadyStarted)

	require.NoError(t, f.bot.Stop(time.Second))
	assert.ErrorIs(t, f.bot.Stop(time.Second), pperrors.ErrNotStarted)
}

func TestBot_HandlePodpingDispatchesAsync(t *testing.T) {
	f := newFixture([]string{"#pod"})
	f.registry.Subscribe("#pod", "https://a.example/feed")
	require.NoError(t, f.bot.Initialize())
	require.NoError(t, f.bot.Start(context.Background()))
	defer f.bot.Stop(time.Second)

	f.bot.HandlePodping(context.Background(), podping.Event{
		URLs:   []string{"https://a.example/feed"},
		Reason: podping.ReasonUpdate,
		TrxID:  "tx1",
	})

	assert.Eventually(t, func() bool {
		return len(f.sentTo(messenger.Channel("#pod"))) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestBot_Health(t *testing.T) {
	f := newFixture(nil)

	status := f.bot.Health()
	assert.Equal(t, "unhealthy", status.Status)

	require.NoError(t, f.bot.Initialize())
	require.NoError(t, f.bot.Start(context.Background()))
	status = f.bot.Health()
	assert.Equal(t, "healthy", status.Status)
	assert.True(t, status.IsHealthy())

	require.NoError(t, f.bot.Stop(time.Second))
	status = f.bot.Health()
	assert.Equal(t, "unhealthy", status.Status)
}

func TestBot_MatchesWatcherHandler(t *testing.T) {
	f := newFixture(nil)

	// HandlePodping must stay assignable to the watcher handler shape
	var h watcher.Handler = f.bot.HandlePodping
	assert.NotNil(t, h)
}

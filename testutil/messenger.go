// Package testutil provides shared test doubles
package testutil

import (
	"context"
	"sync"

	"github.com/ericpp/ppwatch/messenger"
)

// SentMessage is one message captured by RecordingMessenger
type SentMessage struct {
	Target messenger.Target
	Text   string
}

// RecordingMessenger is a messenger.Messenger that records everything
// sent through it. Zero value is not usable; use NewRecordingMessenger.
type RecordingMessenger struct {
	mu        sync.Mutex
	sent      []SentMessage
	joined    []string
	sendErr   error
	onConnect []func(ctx context.Context)
	onMessage []func(ctx context.Context, msg messenger.InboundMessage)
}

var _ messenger.Messenger = (*RecordingMessenger)(nil)

// NewRecordingMessenger creates a RecordingMessenger pre-joined to the
// given channels.
func NewRecordingMessenger(channels ...string) *RecordingMessenger {
	return &RecordingMessenger{joined: append([]string(nil), channels...)}
}

// Send records the message, or returns the configured error
func (m *RecordingMessenger) Send(_ context.Context, target messenger.Target, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sendErr != nil {
		return m.sendErr
	}
	m.sent = append(m.sent, SentMessage{Target: target, Text: text})
	return nil
}

// Join records the channel as joined
func (m *RecordingMessenger) Join(_ context.Context, channel string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.joined {
		if c == channel {
			return nil
		}
	}
	m.joined = append(m.joined, channel)
	return nil
}

// JoinedChannels returns the joined channel list
func (m *RecordingMessenger) JoinedChannels() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.joined...)
}

// OnConnected registers a connect callback
func (m *RecordingMessenger) OnConnected(fn func(ctx context.Context)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onConnect = append(m.onConnect, fn)
}

// OnMessage registers an inbound message callback
func (m *RecordingMessenger) OnMessage(fn func(ctx context.Context, msg messenger.InboundMessage)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onMessage = append(m.onMessage, fn)
}

// Connect fires all registered connect callbacks, simulating a transport
// (re)connect.
func (m *RecordingMessenger) Connect(ctx context.Context) {
	m.mu.Lock()
	callbacks := append([]func(context.Context){}, m.onConnect...)
	m.mu.Unlock()
	for _, fn := range callbacks {
		fn(ctx)
	}
}

// Receive feeds an inbound message to all registered message callbacks
func (m *RecordingMessenger) Receive(ctx context.Context, msg messenger.InboundMessage) {
	m.mu.Lock()
	callbacks := append([]func(context.Context, messenger.InboundMessage){}, m.onMessage...)
	m.mu.Unlock()
	for _, fn := range callbacks {
		fn(ctx, msg)
	}
}

// Sent returns a copy of every recorded message
func (m *RecordingMessenger) Sent() []SentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]SentMessage(nil), m.sent...)
}

// SentTo returns the texts sent to one target
func (m *RecordingMessenger) SentTo(target messenger.Target) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var texts []string
	for _, s := range m.sent {
		if s.Target == target {
			texts = append(texts, s.Text)
		}
	}
	return texts
}

// FailSendsWith makes every subsequent Send return err
func (m *RecordingMessenger) FailSendsWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sendErr = err
}

// Reset clears recorded messages, keeping joins and callbacks
func (m *RecordingMessenger) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = nil
}

// Package messenger defines the chat-transport boundary. The bot speaks
// to channels and users through this interface; the wire protocol behind
// it (IRC, XMPP, a test double) is a deployment concern.
package messenger

import "context"

// TargetKind distinguishes channel and direct-message delivery
type TargetKind int

const (
	// KindChannel targets a chat channel
	KindChannel TargetKind = iota
	// KindUser targets a user directly
	KindUser
)

// String returns the string representation of TargetKind
func (k TargetKind) String() string {
	if k == KindUser {
		return "user"
	}
	return "channel"
}

// Target identifies where an outbound message goes
type Target struct {
	Kind TargetKind
	Name string
}

// Channel builds a channel delivery target
func Channel(name string) Target {
	return Target{Kind: KindChannel, Name: name}
}

// User builds a direct-message delivery target
func User(name string) Target {
	return Target{Kind: KindUser, Name: name}
}

// String returns the target as kind:name, mainly for logs
func (t Target) String() string {
	return t.Kind.String() + ":" + t.Name
}

// InboundMessage is a message the transport received. Channel is empty
// for direct messages.
type InboundMessage struct {
	From    string
	Channel string
	Text    string
}

// Direct reports whether the message arrived outside any channel
func (m InboundMessage) Direct() bool {
	return m.Channel == ""
}

// Messenger is the chat transport the bot drives. Implementations must
// be safe for concurrent use; Send may be called from several goroutines.
type Messenger interface {
	// Send delivers text to a channel or user
	Send(ctx context.Context, target Target, text string) error

	// Join enters a channel so channel sends and triggers work there
	Join(ctx context.Context, channel string) error

	// JoinedChannels returns the channels currently joined, in the
	// transport's own casing
	JoinedChannels() []string

	// OnConnected registers a callback invoked after every (re)connect
	OnConnected(fn func(ctx context.Context))

	// OnMessage registers the inbound message callback
	OnMessage(fn func(ctx context.Context, msg InboundMessage))
}

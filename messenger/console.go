package messenger

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
)

// Console is the built-in transport: outbound messages go to the log,
// inbound messages are read line by line from a reader (stdin in
// production). Lines starting with a channel name ("#podcasts subscribe
// <url>") arrive as channel messages from the operator; anything else
// arrives as a direct message. Useful for dry runs and as the reference
// Messenger implementation.
type Console struct {
	operator string
	in       io.Reader
	logger   *slog.Logger

	mu        sync.Mutex
	joined    []string
	onConnect []func(ctx context.Context)
	onMessage []func(ctx context.Context, msg InboundMessage)
}

var _ Messenger = (*Console)(nil)

// NewConsole creates a console transport. operator is the nick inbound
// lines are attributed to.
func NewConsole(operator string, in io.Reader, logger *slog.Logger) *Console {
	if operator == "" {
		operator = "operator"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Console{
		operator: operator,
		in:       in,
		logger:   logger,
	}
}

// Send logs the outbound message
func (c *Console) Send(_ context.Context, target Target, text string) error {
	c.logger.Info("outbound message",
		"target", target.String(),
		"text", text,
	)
	return nil
}

// Join records the channel as joined
func (c *Console) Join(_ context.Context, channel string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, existing := range c.joined {
		if existing == channel {
			return nil
		}
	}
	c.joined = append(c.joined, channel)
	c.logger.Info("joined channel", "channel", channel)
	return nil
}

// JoinedChannels returns the joined channel list
func (c *Console) JoinedChannels() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.joined...)
}

// OnConnected registers a connect callback
func (c *Console) OnConnected(fn func(ctx context.Context)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onConnect = append(c.onConnect, fn)
}

// OnMessage registers an inbound message callback
func (c *Console) OnMessage(fn func(ctx context.Context, msg InboundMessage)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onMessage = append(c.onMessage, fn)
}

// Run fires the connect callbacks, then feeds inbound lines to the
// message callbacks until the reader is exhausted or ctx is cancelled.
func (c *Console) Run(ctx context.Context) error {
	c.mu.Lock()
	connects := append([]func(context.Context){}, c.onConnect...)
	c.mu.Unlock()
	for _, fn := range connects {
		fn(ctx)
	}

	if c.in == nil {
		<-ctx.Done()
		return ctx.Err()
	}

	scanner := bufio.NewScanner(c.in)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		c.deliver(ctx, c.parseLine(line))
	}
	return scanner.Err()
}

// parseLine turns one input line into an inbound message. A leading
// #channel token routes the rest as a channel message.
func (c *Console) parseLine(line string) InboundMessage {
	msg := InboundMessage{From: c.operator, Text: line}
	if strings.HasPrefix(line, "#") {
		if channel, rest, found := strings.Cut(line, " "); found {
			msg.Channel = channel
			msg.Text = strings.TrimSpace(rest)
		}
	}
	return msg
}

func (c *Console) deliver(ctx context.Context, msg InboundMessage) {
	c.mu.Lock()
	callbacks := append([]func(context.Context, InboundMessage){}, c.onMessage...)
	c.mu.Unlock()
	for _, fn := range callbacks {
		fn(ctx, msg)
	}
}

// Package watcher defines the contract for podping event sources. A
// source is a long-running component that connects to an upstream
// firehose, decodes podping events, and hands them to a Handler. Two
// transports are built in: a websocket firehose client and a NATS
// subject consumer.
package watcher

import (
	"context"
	"time"

	"github.com/ericpp/ppwatch/component"
	"github.com/ericpp/ppwatch/health"
	"github.com/ericpp/ppwatch/podping"
)

// Handler consumes one decoded podping event. Handlers must not block
// for long; sources call them from the read loop.
type Handler func(ctx context.Context, event podping.Event)

// Source is a podping event source with the standard component
// lifecycle. SetHandler must be called before Start.
type Source interface {
	component.Component
	health.Reporter
	SetHandler(h Handler)
}

// dispatch invokes a handler, swallowing panics so a misbehaving
// handler cannot kill a source's read loop. Shared by all sources.
func dispatch(ctx context.Context, h Handler, event podping.Event, recovered func(any)) {
	if h == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil && recovered != nil {
			recovered(r)
		}
	}()
	h(ctx, event)
}

// stats tracks activity counters shared by source implementations
type stats struct {
	startTime    time.Time
	events       int64
	errorCount   int64
	lastActivity time.Time
}

func (s *stats) healthMetrics() *health.Metrics {
	m := &health.Metrics{
		ErrorCount:        s.errorCount,
		MessagesProcessed: s.events,
		LastActivity:      s.lastActivity,
	}
	if !s.startTime.IsZero() {
		m.Uptime = time.Since(s.startTime)
	}
	return m
}

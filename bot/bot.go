// Package bot is the core of ppwatch: it routes inbound chat commands,
// fans podping events out to subscribed channels, and runs the podping
// submission workflow.
package bot

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ericpp/ppwatch/component"
	pperrors "github.com/ericpp/ppwatch/errors"
	"github.com/ericpp/ppwatch/health"
	"github.com/ericpp/ppwatch/messenger"
	"github.com/ericpp/ppwatch/metric"
	"github.com/ericpp/ppwatch/pkg/worker"
	"github.com/ericpp/ppwatch/podping"
	"github.com/ericpp/ppwatch/subscription"
)

// Options holds the bot's behavior settings
type Options struct {
	// CommandName is the trigger word, default "ppwatch"
	CommandName string
	// AllowRuntimeSubscriptions enables subscribe/unsubscribe at runtime
	AllowRuntimeSubscriptions bool
	// AuthorizedUsers may mutate subscriptions when the flag is on
	AuthorizedUsers []string
	// MessageDelay paces consecutive notification sends, default 1s
	MessageDelay time.Duration
	// APITimeout bounds each external call, default 10s
	APITimeout time.Duration
	// CommandTimeout bounds the handling of one inbound command,
	// default 30s
	CommandTimeout time.Duration
	// Workers and QueueSize size the event worker pool
	Workers   int
	QueueSize int
}

func (o Options) withDefaults() Options {
	if o.CommandName == "" {
		o.CommandName = "ppwatch"
	}
	if o.MessageDelay < 0 {
		o.MessageDelay = 0
	}
	if o.APITimeout <= 0 {
		o.APITimeout = 10 * time.Second
	}
	if o.CommandTimeout <= 0 {
		o.CommandTimeout = 30 * time.Second
	}
	return o
}

// Dependencies are the bot's collaborators. Messenger and Registry are
// required; Lookup and Writer may be nil when unconfigured, which
// degrades the features that need them.
type Dependencies struct {
	Messenger messenger.Messenger
	Registry  *subscription.Registry
	Lookup    MetadataLookup
	Writer    podping.Writer
	Verifier  LiveVerifier
}

// Bot wires the router, dispatcher, and workflow together behind the
// standard component lifecycle. Incoming podping events are queued on a
// worker pool so a slow fan-out never stalls the event source.
type Bot struct {
	name string
	opts Options

	messenger  messenger.Messenger
	registry   *subscription.Registry
	router     *router
	dispatcher *dispatcher
	pool       *worker.Pool[podping.Event]

	logger *slog.Logger

	stateMu sync.Mutex
	state   component.State
}

var (
	_ component.Component = (*Bot)(nil)
	_ health.Reporter     = (*Bot)(nil)
)

// New creates a Bot
func New(name string, opts Options, deps Dependencies, metrics *metric.Registry, logger *slog.Logger) (*Bot, error) {
	if deps.Messenger == nil {
		return nil, pperrors.WrapInvalid(
			fmt.Errorf("messenger is required"), "Bot", "New", "validate dependencies")
	}
	if deps.Registry == nil {
		return nil, pperrors.WrapInvalid(
			fmt.Errorf("subscription registry is required"), "Bot", "New", "validate dependencies")
	}
	opts = opts.withDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", name)

	var registrar metric.Registrar
	if metrics != nil {
		registrar = metrics
	}
	botMetrics, err := newBotMetrics(registrar, name)
	if err != nil {
		return nil, err
	}

	snd := &sender{messenger: deps.Messenger, logger: logger}

	wf := &workflow{
		lookup:     deps.Lookup,
		writer:     deps.Writer,
		verifier:   deps.Verifier,
		sender:     snd,
		apiTimeout: opts.APITimeout,
		logger:     logger,
		metrics:    botMetrics,
	}

	b := &Bot{
		name:      name,
		opts:      opts,
		messenger: deps.Messenger,
		registry:  deps.Registry,
		logger:    logger,
		router: newRouter(
			opts.CommandName,
			deps.Registry,
			wf,
			snd,
			newAuthPolicy(opts.AllowRuntimeSubscriptions, opts.AuthorizedUsers),
			botMetrics,
			logger,
		),
		dispatcher: &dispatcher{
			registry:   deps.Registry,
			messenger:  deps.Messenger,
			lookup:     deps.Lookup,
			verifier:   deps.Verifier,
			delay:      opts.MessageDelay,
			apiTimeout: opts.APITimeout,
			logger:     logger,
			metrics:    botMetrics,
		},
	}

	b.pool = worker.NewPool(opts.Workers, opts.QueueSize, b.process,
		worker.WithMetrics[podping.Event](metrics, "ppwatch_bot"))

	return b, nil
}

// Name returns the component name
func (b *Bot) Name() string { return b.name }

// Initialize registers the messenger callbacks. Handler registration
// happens here, once, so dispatch is a plain table lookup afterwards.
func (b *Bot) Initialize() error {
	b.stateMu.Lock()
	defer b.stateMu.Unlock()

	b.messenger.OnMessage(b.handleMessage)
	b.messenger.OnConnected(b.joinConfiguredChannels)

	b.state = component.StateInitialized
	return nil
}

// Start launches the event worker pool
func (b *Bot) Start(ctx context.Context) error {
	b.stateMu.Lock()
	defer b.stateMu.Unlock()

	if b.state == component.StateStarted {
		return pperrors.ErrAlreadyStarted
	}
	if b.state != component.StateInitialized {
		return pperrors.ErrNotStarted
	}
	if err := b.pool.Start(ctx); err != nil {
		b.state = component.StateFailed
		return err
	}
	b.state = component.StateStarted
	return nil
}

// Stop drains the event queue
func (b *Bot) Stop(timeout time.Duration) error {
	b.stateMu.Lock()
	defer b.stateMu.Unlock()

	if b.state != component.StateStarted {
		return pperrors.ErrNotStarted
	}
	b.state = component.StateStopped
	return b.pool.Stop(timeout)
}

// Health reports bot state with event-queue statistics
func (b *Bot) Health() health.Status {
	b.stateMu.Lock()
	state := b.state
	b.stateMu.Unlock()

	stats := b.pool.Stats()
	metrics := &health.Metrics{
		MessagesProcessed: stats.Processed,
		ErrorCount:        stats.Failed,
	}

	switch {
	case state != component.StateStarted:
		return health.Unhealthy(b.name, "not running").WithMetrics(metrics)
	case stats.Dropped > 0:
		return health.Degraded(b.name,
			fmt.Sprintf("dropped %d events on a full queue", stats.Dropped)).WithMetrics(metrics)
	default:
		return health.Healthy(b.name, "running").WithMetrics(metrics)
	}
}

// HandlePodping enqueues one podping event for fan-out. It matches the
// watcher Handler signature and never blocks the source's read loop; a
// full queue drops the event with a diagnostic.
func (b *Bot) HandlePodping(_ context.Context, event podping.Event) {
	if err := b.pool.Submit(event); err != nil {
		b.logger.Warn("dropping podping event",
			"trx_id", event.TrxID,
			"urls", len(event.URLs),
			"error", err,
		)
	}
}

// handleMessage bounds one command's handling, lookups and submission
// included, so a stuck collaborator cannot wedge the transport callback.
func (b *Bot) handleMessage(ctx context.Context, msg messenger.InboundMessage) {
	ctx, cancel := context.WithTimeout(ctx, b.opts.CommandTimeout)
	defer cancel()
	b.router.HandleMessage(ctx, msg)
}

// process is the worker-pool callback
func (b *Bot) process(ctx context.Context, event podping.Event) error {
	b.dispatcher.dispatch(ctx, event)
	return nil
}

// joinConfiguredChannels joins every channel holding a subscription;
// called on every transport (re)connect.
func (b *Bot) joinConfiguredChannels(ctx context.Context) {
	for _, channel := range b.registry.Channels() {
		b.logger.Info("joining channel", "channel", channel)
		if err := b.messenger.Join(ctx, channel); err != nil {
			b.logger.Error("failed to join channel", "channel", channel, "error", err)
		}
	}
}

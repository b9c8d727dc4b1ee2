package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ericpp/ppwatch/messenger"
	"github.com/ericpp/ppwatch/subscription"
)

// sender delivers responses and logs delivery failures instead of
// propagating them; a failed send never unwinds command handling.
type sender struct {
	messenger messenger.Messenger
	logger    *slog.Logger
}

func (s *sender) send(ctx context.Context, target messenger.Target, text string) {
	if err := s.messenger.Send(ctx, target, text); err != nil {
		s.logger.Error("failed to send message",
			"target", target.String(),
			"error", err,
		)
	}
}

// authPolicy gates subscription mutations: the feature flag must be on
// AND the user must be on the list. Default posture is deny.
type authPolicy struct {
	enabled bool
	users   map[string]struct{}
}

func newAuthPolicy(enabled bool, users []string) authPolicy {
	set := make(map[string]struct{}, len(users))
	for _, u := range users {
		set[u] = struct{}{}
	}
	return authPolicy{enabled: enabled, users: set}
}

func (a authPolicy) authorized(nick string) bool {
	if !a.enabled {
		return false
	}
	_, ok := a.users[nick]
	return ok
}

const deniedMessage = "Unauthorized: subscriptions disabled or user not authorized"

type handlerFunc func(ctx context.Context, cctx commandContext, args []string)

// router turns inbound chat text into typed commands and dispatches
// them. The dispatch table is built once at construction.
type router struct {
	commandName string
	registry    *subscription.Registry
	workflow    *workflow
	sender      *sender
	auth        authPolicy
	logger      *slog.Logger
	metrics     *botMetrics

	handlers map[string]handlerFunc
}

func newRouter(
	commandName string,
	registry *subscription.Registry,
	wf *workflow,
	snd *sender,
	auth authPolicy,
	metrics *botMetrics,
	logger *slog.Logger,
) *router {
	r := &router{
		commandName: commandName,
		registry:    registry,
		workflow:    wf,
		sender:      snd,
		auth:        auth,
		logger:      logger,
		metrics:     metrics,
	}
	r.handlers = map[string]handlerFunc{
		"help":        r.handleHelp,
		"list":        r.handleList,
		"subscribe":   r.handleSubscribe,
		"unsubscribe": r.handleUnsubscribe,
		"pp": func(ctx context.Context, cctx commandContext, args []string) {
			r.handlePP(ctx, cctx, "pp", args)
		},
	}
	return r
}

// HandleMessage is the single entry point for inbound chat text.
// Channel messages must carry the !<command> or !pp trigger; direct
// messages are commands as-is.
func (r *router) HandleMessage(ctx context.Context, msg messenger.InboundMessage) {
	text := strings.TrimSpace(msg.Text)

	if msg.Direct() {
		parts := strings.Fields(text)
		if len(parts) == 0 {
			return
		}
		r.route(ctx, commandContext{Nick: msg.From}, parts)
		return
	}

	if !strings.HasPrefix(text, "!") {
		return
	}
	parts := strings.Fields(text[1:])
	if len(parts) == 0 {
		return
	}

	cctx := commandContext{Nick: msg.From, Channel: msg.Channel}
	switch parts[0] {
	case r.commandName:
		r.route(ctx, cctx, parts[1:])
	case "pp":
		r.handlePP(ctx, cctx, "!pp", parts[1:])
	}
}

// route dispatches one already-triggered command line. An empty line
// behaves like help.
func (r *router) route(ctx context.Context, cctx commandContext, parts []string) {
	if len(parts) == 0 {
		r.handleHelp(ctx, cctx, nil)
		return
	}

	handler, ok := r.handlers[parts[0]]
	if !ok {
		r.metrics.commands.WithLabelValues("unknown", "usage").Inc()
		r.sender.send(ctx, cctx.replyTarget(),
			fmt.Sprintf("Unknown command: %s (try help)", parts[0]))
		return
	}
	handler(ctx, cctx, parts[1:])
}

func (r *router) handleHelp(ctx context.Context, cctx commandContext, _ []string) {
	r.metrics.commands.WithLabelValues("help", "ok").Inc()

	target := cctx.replyTarget()
	lines := []string{
		fmt.Sprintf("=== %s Bot Commands ===", strings.ToUpper(r.commandName)),
		"  help - Show this help",
		"  list - Show all subscriptions",
		"  subscribe <channel> <url> - Subscribe to updates",
		"  unsubscribe <channel> <url> - Unsubscribe",
		"  pp <feed_id> [reason] - Write podping to Hive",
		"    Valid reasons: live, liveEnd, update (default: update)",
	}
	for _, line := range lines {
		r.sender.send(ctx, target, line)
	}
}

func (r *router) handleList(ctx context.Context, cctx commandContext, args []string) {
	target := cctx.replyTarget()

	cmd, err := parseList(cctx, args)
	if err != nil {
		r.metrics.commands.WithLabelValues("list", "usage").Inc()
		r.sender.send(ctx, target, err.Error())
		return
	}
	r.metrics.commands.WithLabelValues("list", "ok").Inc()

	if cmd.Channel != "" {
		urls := r.registry.List(cmd.Channel)
		if len(urls) == 0 {
			r.sender.send(ctx, target, fmt.Sprintf("No subscriptions for %s", cmd.Channel))
			return
		}
		r.sender.send(ctx, target, fmt.Sprintf("Monitoring %d feed(s) for %s:", len(urls), cmd.Channel))
		for _, url := range urls {
			r.sender.send(ctx, target, "  "+url)
		}
		return
	}

	all := r.registry.All()
	if len(all) == 0 {
		r.sender.send(ctx, target, "No subscriptions configured")
		return
	}
	r.sender.send(ctx, target, fmt.Sprintf("Subscriptions (%d channels):", len(all)))
	for _, channel := range r.registry.Channels() {
		urls := all[channel]
		r.sender.send(ctx, target, fmt.Sprintf("  %s: %d feed(s)", channel, len(urls)))
		for _, url := range urls {
			r.sender.send(ctx, target, "    "+url)
		}
	}
}

func (r *router) handleSubscribe(ctx context.Context, cctx commandContext, args []string) {
	target := cctx.replyTarget()

	cmd, err := parseSubscribe(cctx, args)
	if err != nil {
		r.metrics.commands.WithLabelValues("subscribe", "usage").Inc()
		r.sender.send(ctx, target, err.Error())
		return
	}

	if !r.auth.authorized(cctx.Nick) {
		r.metrics.denied.Inc()
		r.metrics.commands.WithLabelValues("subscribe", "denied").Inc()
		r.logger.Warn("unauthorized subscribe attempt", "nick", cctx.Nick)
		r.sender.send(ctx, target, deniedMessage)
		return
	}

	switch r.registry.Subscribe(cmd.Channel, cmd.URL) {
	case subscription.AlreadyPresent:
		r.metrics.commands.WithLabelValues("subscribe", "ok").Inc()
		r.sender.send(ctx, target, fmt.Sprintf("Already monitoring %s in %s", cmd.URL, cmd.Channel))
	default:
		r.metrics.commands.WithLabelValues("subscribe", "ok").Inc()
		r.logger.Info("subscription added",
			"channel", cmd.Channel,
			"url", cmd.URL,
			"nick", cctx.Nick,
		)
		r.sender.send(ctx, target, fmt.Sprintf("Now monitoring %s in %s", cmd.URL, cmd.Channel))
	}
}

func (r *router) handleUnsubscribe(ctx context.Context, cctx commandContext, args []string) {
	target := cctx.replyTarget()

	cmd, err := parseUnsubscribe(cctx, args)
	if err != nil {
		r.metrics.commands.WithLabelValues("unsubscribe", "usage").Inc()
		r.sender.send(ctx, target, err.Error())
		return
	}

	if !r.auth.authorized(cctx.Nick) {
		r.metrics.denied.Inc()
		r.metrics.commands.WithLabelValues("unsubscribe", "denied").Inc()
		r.logger.Warn("unauthorized unsubscribe attempt", "nick", cctx.Nick)
		r.sender.send(ctx, target, deniedMessage)
		return
	}

	switch r.registry.Unsubscribe(cmd.Channel, cmd.URL) {
	case subscription.NoSuchChannel:
		r.metrics.commands.WithLabelValues("unsubscribe", "ok").Inc()
		r.sender.send(ctx, target, fmt.Sprintf("No subscriptions for %s", cmd.Channel))
	case subscription.NotSubscribed:
		r.metrics.commands.WithLabelValues("unsubscribe", "ok").Inc()
		r.sender.send(ctx, target, fmt.Sprintf("Not monitoring %s in %s", cmd.URL, cmd.Channel))
	default:
		r.metrics.commands.WithLabelValues("unsubscribe", "ok").Inc()
		r.logger.Info("subscription removed",
			"channel", cmd.Channel,
			"url", cmd.URL,
			"nick", cctx.Nick,
		)
		r.sender.send(ctx, target, fmt.Sprintf("Stopped monitoring %s in %s", cmd.URL, cmd.Channel))
	}
}

// handlePP parses and runs the submission workflow. commandWord is how
// the user spelled the trigger, echoed in usage errors.
func (r *router) handlePP(ctx context.Context, cctx commandContext, commandWord string, args []string) {
	target := cctx.replyTarget()

	cmd, err := parsePP(commandWord, args)
	if err != nil {
		r.metrics.commands.WithLabelValues("pp", "usage").Inc()
		r.sender.send(ctx, target, err.Error())
		return
	}

	r.metrics.commands.WithLabelValues("pp", "ok").Inc()
	r.workflow.run(ctx, target, cctx.Nick, cmd)
}

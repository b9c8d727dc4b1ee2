package bot

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/ericpp/ppwatch/messenger"
	"github.com/ericpp/ppwatch/podping"
	"github.com/ericpp/ppwatch/subscription"
)

// dispatcher fans incoming podping events out to subscribed channels.
// Per-channel message order follows the event's URL order; consecutive
// sends are separated by the flood-control delay.
type dispatcher struct {
	registry   *subscription.Registry
	messenger  messenger.Messenger
	lookup     MetadataLookup // nil degrades titles to the fallback
	verifier   LiveVerifier
	delay      time.Duration
	apiTimeout time.Duration
	logger     *slog.Logger
	metrics    *botMetrics
}

func (d *dispatcher) dispatch(ctx context.Context, event podping.Event) {
	d.logger.Debug("received podping",
		"urls", len(event.URLs),
		"reason", event.Reason,
		"trx_id", event.TrxID,
	)

	// Group the event's URLs per interested channel, preserving the
	// event's URL order within each channel.
	channelURLs := make(map[string][]string)
	for _, url := range event.URLs {
		for _, channel := range d.registry.MatchingChannels(url) {
			channelURLs[channel] = append(channelURLs[channel], url)
		}
	}
	if len(channelURLs) == 0 {
		return
	}

	channels := make([]string, 0, len(channelURLs))
	for channel := range channelURLs {
		channels = append(channels, channel)
	}
	sort.Strings(channels)

	joined := d.messenger.JoinedChannels()

	for _, channel := range channels {
		target, ok := resolveJoined(joined, channel)
		if !ok {
			d.logger.Warn("not in channel, skipping notifications", "channel", channel)
			continue
		}

		for _, url := range channelURLs[channel] {
			d.notify(ctx, messenger.Channel(target), url, event)
		}
	}
}

// notify sends one notification line, then the live advisory follow-up
// when the reason calls for one. Every send is followed by the
// configured delay.
func (d *dispatcher) notify(ctx context.Context, target messenger.Target, url string, event podping.Event) {
	title := d.lookupTitle(ctx, url)

	text := fmt.Sprintf("Podping received: %s %s (%s) (tx: %s)", title, url, event.Reason, event.TrxID)
	d.send(ctx, target, text)
	d.metrics.notifications.Inc()
	if !d.pause(ctx) {
		return
	}

	if event.Reason.IsLiveTransition() && d.verifier != nil {
		verify := d.verifier.Verify(ctx, url, event.Reason)
		if !verify.Valid || verify.Advisory != "" {
			d.metrics.advisories.Inc()
			d.send(ctx, target, "  → "+verify.Advisory)
			d.pause(ctx)
		}
	}
}

// lookupTitle resolves the podcast title for display, falling back to
// the fixed sentinel when the lookup is unavailable or fails.
func (d *dispatcher) lookupTitle(ctx context.Context, url string) string {
	if d.lookup == nil {
		return "Unknown Podcast"
	}

	lookupCtx, cancel := context.WithTimeout(ctx, d.apiTimeout)
	defer cancel()

	meta, err := d.lookup.ByFeedURL(lookupCtx, url)
	if err != nil {
		d.logger.Warn("title lookup failed", "url", url, "error", err)
		return "Unknown Podcast"
	}
	return meta.DisplayName()
}

func (d *dispatcher) send(ctx context.Context, target messenger.Target, text string) {
	if err := d.messenger.Send(ctx, target, text); err != nil {
		d.logger.Error("failed to send notification",
			"target", target.String(),
			"error", err,
		)
	}
}

// pause sleeps for the flood-control delay; returns false when the
// context was cancelled mid-wait.
func (d *dispatcher) pause(ctx context.Context) bool {
	if d.delay <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d.delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// resolveJoined finds the transport's casing for a configured channel
// name; subscription keys and joined names may disagree on case.
func resolveJoined(joined []string, channel string) (string, bool) {
	for _, name := range joined {
		if strings.EqualFold(name, channel) {
			return name, true
		}
	}
	return "", false
}

package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	pperrors "github.com/ericpp/ppwatch/errors"
	"github.com/ericpp/ppwatch/feed"
	"github.com/ericpp/ppwatch/messenger"
	"github.com/ericpp/ppwatch/podcastindex"
	"github.com/ericpp/ppwatch/podping"
)

// MetadataLookup resolves podcast metadata. A clean miss returns
// (nil, nil); errors are transport failures.
type MetadataLookup interface {
	ByFeedID(ctx context.Context, feedID int64) (*podcastindex.Metadata, error)
	ByFeedURL(ctx context.Context, feedURL string) (*podcastindex.Metadata, error)
}

// LiveVerifier cross-checks a claimed live transition against feed
// content.
type LiveVerifier interface {
	Verify(ctx context.Context, feedURL string, reason podping.Reason) feed.VerifyResult
}

// workflow runs the pp submission: acknowledge, check preconditions,
// look up, encode, submit, report. Every outcome is terminal and ends
// in exactly one user-visible line (plus an optional live advisory).
type workflow struct {
	lookup     MetadataLookup // nil when Podcast Index is not configured
	writer     podping.Writer // nil when the writer is not configured
	verifier   LiveVerifier
	sender     *sender
	apiTimeout time.Duration
	logger     *slog.Logger
	metrics    *botMetrics
}

func (w *workflow) run(ctx context.Context, target messenger.Target, nick string, cmd ppCommand) {
	// Ack before any blocking work so the caller sees liveness
	w.sender.send(ctx, target, fmt.Sprintf("Sending podping for feed ID %d...", cmd.FeedID))

	if w.lookup == nil {
		w.metrics.submissions.WithLabelValues("unconfigured").Inc()
		w.sender.send(ctx, target, "Error: Podcast Index not configured")
		return
	}
	if w.writer == nil {
		w.metrics.submissions.WithLabelValues("unconfigured").Inc()
		w.sender.send(ctx, target, "Error: Podping writer not configured")
		return
	}

	// Re-validate for programmatic callers; the router already enforced
	// this for chat input.
	if cmd.FeedID <= 0 {
		w.metrics.submissions.WithLabelValues("invalid").Inc()
		w.sender.send(ctx, target, fmt.Sprintf("Error: Invalid feed ID '%d' (must be a number)", cmd.FeedID))
		return
	}
	if !cmd.Reason.Known() {
		w.metrics.submissions.WithLabelValues("invalid").Inc()
		w.sender.send(ctx, target, fmt.Sprintf("Error: Invalid reason '%s'. Valid reasons are: %s",
			cmd.Reason, strings.Join(podping.KnownReasons(), ", ")))
		return
	}

	w.logger.Info("looking up feed", "feed_id", cmd.FeedID, "nick", nick)

	lookupCtx, cancel := context.WithTimeout(ctx, w.apiTimeout)
	meta, err := w.lookup.ByFeedID(lookupCtx, cmd.FeedID)
	cancel()
	if err != nil {
		w.fail(ctx, target, nick, cmd.FeedID, err)
		return
	}
	if meta == nil {
		w.metrics.submissions.WithLabelValues("not_found").Inc()
		w.sender.send(ctx, target, fmt.Sprintf("Error: Feed ID %d not found in Podcast Index", cmd.FeedID))
		return
	}

	safeURL := feed.EncodeURL(meta.URL)
	if safeURL != meta.URL {
		w.logger.Debug("percent-encoded feed URL for podping", "url", meta.URL, "encoded", safeURL)
	}

	w.logger.Info("writing podping",
		"feed_id", cmd.FeedID,
		"url", safeURL,
		"reason", cmd.Reason,
	)

	submitCtx, cancel := context.WithTimeout(ctx, w.apiTimeout)
	result, err := w.writer.Send(submitCtx, safeURL, cmd.Reason)
	cancel()
	if err != nil {
		w.fail(ctx, target, nick, cmd.FeedID, err)
		return
	}

	// Resource credits are a nicety; failures just omit the suffix
	rcInfo := ""
	creditsCtx, cancel := context.WithTimeout(ctx, w.apiTimeout)
	if remaining, present, err := w.writer.RemainingCredits(creditsCtx); err == nil && present {
		rcInfo = fmt.Sprintf(" rc used: %.1f%%", 100-remaining)
	}
	cancel()

	w.metrics.submissions.WithLabelValues("ok").Inc()
	w.logger.Info("podping sent",
		"feed_id", cmd.FeedID,
		"nick", nick,
		"tx_id", result.TxID,
		"reason", cmd.Reason,
		"dry_run", result.DryRun,
	)
	w.sender.send(ctx, target, fmt.Sprintf("Podping sent: %s %s (%s) (tx: %s%s)",
		meta.DisplayName(), safeURL, cmd.Reason, result.ExplorerURL(), rcInfo))

	// Informational only; the transaction is already out
	if cmd.Reason.IsLiveTransition() && w.verifier != nil {
		verify := w.verifier.Verify(ctx, safeURL, cmd.Reason)
		if !verify.Valid || verify.Advisory != "" {
			w.metrics.advisories.Inc()
			w.sender.send(ctx, target, "  → "+verify.Advisory)
		}
	}
}

// fail maps lookup/submission failures onto their terminal messages:
// timeouts get their own wording, everything else a generic failure.
func (w *workflow) fail(ctx context.Context, target messenger.Target, nick string, feedID int64, err error) {
	if pperrors.IsTimeout(err) {
		w.metrics.submissions.WithLabelValues("timeout").Inc()
		w.logger.Error("podping timed out", "feed_id", feedID, "nick", nick, "error", err)
		w.sender.send(ctx, target, fmt.Sprintf("Error: Timeout writing podping for feed %d (try again later)", feedID))
		return
	}

	w.metrics.submissions.WithLabelValues("error").Inc()
	w.logger.Error("podping failed", "feed_id", feedID, "nick", nick, "error", err)
	w.sender.send(ctx, target, fmt.Sprintf("Error: Failed to write podping for feed %d: %s", feedID, shortError(err)))
}

// shortError reduces a wrapped error chain to its innermost message so
// users see a short description, not internal call structure.
func shortError(err error) string {
	text := err.Error()
	if idx := strings.LastIndex(text, ": "); idx >= 0 {
		return text[idx+2:]
	}
	return text
}

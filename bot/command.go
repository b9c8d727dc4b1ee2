package bot

import (
	"fmt"
	"strconv"
	"strings"

	pperrors "github.com/ericpp/ppwatch/errors"
	"github.com/ericpp/ppwatch/messenger"
	"github.com/ericpp/ppwatch/podping"
)

// commandContext describes who issued a command and from where. Channel
// is empty for direct messages.
type commandContext struct {
	Nick    string
	Channel string
}

func (c commandContext) direct() bool {
	return c.Channel == ""
}

// replyTarget is where responses for this command go: the issuing
// channel for channel commands, the issuing user otherwise.
func (c commandContext) replyTarget() messenger.Target {
	if c.direct() {
		return messenger.User(c.Nick)
	}
	return messenger.Channel(c.Channel)
}

// usageError carries the exact usage line shown to the user. It is a
// user mistake, not a system failure; callers reply and move on.
type usageError struct {
	text string
}

func (e *usageError) Error() string { return e.text }

func (e *usageError) Unwrap() error { return pperrors.ErrUsage }

func usagef(format string, args ...any) error {
	return &usageError{text: fmt.Sprintf(format, args...)}
}

// Typed commands, parsed and validated once. Handlers never re-parse
// raw text.

type listCommand struct {
	// Channel restricts the listing; empty lists everything
	Channel string
}

type subscribeCommand struct {
	Channel string
	URL     string
}

type unsubscribeCommand struct {
	Channel string
	URL     string
}

type ppCommand struct {
	FeedID int64
	Reason podping.Reason
}

const ppUsage = "Usage: %s <feed_id> [reason] (valid reasons: %s)"

// parseSubscribe enforces the arity rules: the direct form names the
// channel explicitly, the channel form targets the issuing channel.
func parseSubscribe(cctx commandContext, args []string) (subscribeCommand, error) {
	if cctx.direct() {
		if len(args) != 2 {
			return subscribeCommand{}, usagef("Usage: subscribe <channel> <url>")
		}
		return subscribeCommand{Channel: args[0], URL: args[1]}, nil
	}
	if len(args) != 1 {
		return subscribeCommand{}, usagef("Usage: subscribe <url>")
	}
	return subscribeCommand{Channel: cctx.Channel, URL: args[0]}, nil
}

// parseUnsubscribe is symmetric to parseSubscribe
func parseUnsubscribe(cctx commandContext, args []string) (unsubscribeCommand, error) {
	if cctx.direct() {
		if len(args) != 2 {
			return unsubscribeCommand{}, usagef("Usage: unsubscribe <channel> <url>")
		}
		return unsubscribeCommand{Channel: args[0], URL: args[1]}, nil
	}
	if len(args) != 1 {
		return unsubscribeCommand{}, usagef("Usage: unsubscribe <url>")
	}
	return unsubscribeCommand{Channel: cctx.Channel, URL: args[0]}, nil
}

// parseList accepts an optional channel argument; without one, channel
// commands list the issuing channel and direct commands list everything.
func parseList(cctx commandContext, args []string) (listCommand, error) {
	switch len(args) {
	case 0:
		return listCommand{Channel: cctx.Channel}, nil
	case 1:
		return listCommand{Channel: args[0]}, nil
	default:
		return listCommand{}, usagef("Usage: list [channel]")
	}
}

// parsePP validates the feed id and reason before any lookup or
// submission is attempted. commandWord is how the command was spelled
// ("pp" or "!pp"), echoed back in usage errors.
func parsePP(commandWord string, args []string) (ppCommand, error) {
	if len(args) < 1 {
		return ppCommand{}, usagef(ppUsage, commandWord, strings.Join(podping.KnownReasons(), ", "))
	}

	feedID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return ppCommand{}, usagef("Error: Invalid feed ID '%s' (must be a number)", args[0])
	}

	reason := podping.ReasonUpdate
	if len(args) >= 2 {
		reason = podping.Reason(args[1])
		if !reason.Known() {
			return ppCommand{}, usagef("Error: Invalid reason '%s'. Valid reasons are: %s",
				args[1], strings.Join(podping.KnownReasons(), ", "))
		}
	}

	return ppCommand{FeedID: feedID, Reason: reason}, nil
}

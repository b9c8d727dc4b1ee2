package feed

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/ericpp/ppwatch/podping"
)

// LiveStatus is the tri-state outcome of a live-item check
type LiveStatus int

const (
	// StatusUnknown means the feed could not be fetched or parsed
	StatusUnknown LiveStatus = iota
	// StatusLive means the feed carries a liveItem with status="live"
	StatusLive
	// StatusNotLive means the feed parsed cleanly with no live liveItem
	StatusNotLive
)

// String returns the string representation of LiveStatus
func (s LiveStatus) String() string {
	switch s {
	case StatusLive:
		return "live"
	case StatusNotLive:
		return "not-live"
	default:
		return "unknown"
	}
}

// VerifyResult reports whether a claimed reason is consistent with the
// feed's actual live state. Valid=false is a contradiction (operator
// actionable); Valid=true with a non-empty Advisory means the check was
// inconclusive and the advisory should be relayed.
type VerifyResult struct {
	Valid    bool
	Advisory string
}

// maxFeedBytes bounds how much of a feed document is read during a check
const maxFeedBytes = 10 << 20

// Checker fetches feeds and verifies live-item status claims
type Checker struct {
	client  *http.Client
	timeout time.Duration
	logger  *slog.Logger
}

// NewChecker creates a Checker with the given per-fetch timeout
func NewChecker(timeout time.Duration, logger *slog.Logger) *Checker {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Checker{
		client:  &http.Client{Timeout: timeout},
		timeout: timeout,
		logger:  logger,
	}
}

// LiveStatus fetches the feed and scans for liveItem elements, matching
// the element name irrespective of namespace since feeds disagree on the
// podcast namespace URL. Any fetch or parse failure yields StatusUnknown.
func (c *Checker) LiveStatus(ctx context.Context, feedURL string) LiveStatus {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		c.logger.Warn("invalid feed URL for live check", "url", feedURL, "error", err)
		return StatusUnknown
	}

	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Warn("failed to fetch feed for live check", "url", feedURL, "error", err)
		return StatusUnknown
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		c.logger.Warn("feed fetch returned non-OK status", "url", feedURL, "status", resp.StatusCode)
		return StatusUnknown
	}

	status, err := scanLiveItems(io.LimitReader(resp.Body, maxFeedBytes))
	if err != nil {
		c.logger.Warn("failed to parse feed for live check", "url", feedURL, "error", err)
		return StatusUnknown
	}
	return status
}

// scanLiveItems streams the XML document looking for liveItem elements
func scanLiveItems(r io.Reader) (LiveStatus, error) {
	decoder := xml.NewDecoder(r)
	// Feeds are frequently mislabeled; accept any charset the reader
	// already decoded rather than failing on the declaration.
	decoder.CharsetReader = func(_ string, input io.Reader) (io.Reader, error) {
		return input, nil
	}

	for {
		token, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return StatusUnknown, err
		}

		start, ok := token.(xml.StartElement)
		if !ok || start.Name.Local != "liveItem" {
			continue
		}

		for _, attr := range start.Attr {
			if attr.Name.Local == "status" && strings.EqualFold(attr.Value, "live") {
				return StatusLive, nil
			}
		}
	}

	return StatusNotLive, nil
}

// Verify checks a claimed reason against the feed's live state. Reasons
// other than live/liveEnd short-circuit to valid with no advisory. An
// unknown live state is a soft failure: valid, but with an advisory that
// callers relay.
func (c *Checker) Verify(ctx context.Context, feedURL string, reason podping.Reason) VerifyResult {
	if !reason.IsLiveTransition() {
		return VerifyResult{Valid: true}
	}

	status := c.LiveStatus(ctx, feedURL)

	switch {
	case status == StatusUnknown:
		c.logger.Warn("could not verify liveItem status", "url", feedURL, "reason", reason)
		return VerifyResult{Valid: true, Advisory: "Warning: Could not verify liveItem status"}

	case reason == podping.ReasonLive && status == StatusNotLive:
		msg := "Error: Feed has no liveItem with status='live' but reason is 'live'"
		c.logger.Error("live status contradiction", "url", feedURL, "reason", reason, "detail", msg)
		return VerifyResult{Valid: false, Advisory: msg}

	case reason == podping.ReasonLiveEnd && status == StatusLive:
		msg := "Error: Feed has liveItem with status='live' but reason is 'liveEnd'"
		c.logger.Error("live status contradiction", "url", feedURL, "reason", reason, "detail", msg)
		return VerifyResult{Valid: false, Advisory: msg}
	}

	return VerifyResult{Valid: true}
}

// String implements fmt.Stringer for VerifyResult, mainly for logs
func (v VerifyResult) String() string {
	if v.Valid && v.Advisory == "" {
		return "valid"
	}
	if v.Valid {
		return fmt.Sprintf("valid (advisory: %s)", v.Advisory)
	}
	return fmt.Sprintf("invalid: %s", v.Advisory)
}

// Package podcastindex is a minimal Podcast Index API client covering
// feed lookup by URL and by feed ID, plus a bounded-concurrency bulk
// lookup used when a single event names many feeds.
package podcastindex

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	pperrors "github.com/ericpp/ppwatch/errors"
)

const (
	defaultBaseURL = "https://api.podcastindex.org/api/1.0"
	defaultAgent   = "ppwatch/1.0"

	// maxConcurrentLookups bounds in-flight requests during bulk lookup
	maxConcurrentLookups = 5
	// lookupInterval paces request starts during bulk lookup
	lookupInterval = 100 * time.Millisecond

	maxResponseBytes = 4 << 20
)

// Config holds Podcast Index API credentials and client settings
type Config struct {
	Key       string
	Secret    string
	BaseURL   string
	UserAgent string
	Timeout   time.Duration
}

// Client talks to the Podcast Index API. All requests carry the
// time-salted SHA1 auth headers the API requires.
type Client struct {
	cfg    Config
	client *http.Client
	logger *slog.Logger
	now    func() time.Time
}

// NewClient creates a Client. Key and Secret are required.
func NewClient(cfg Config, logger *slog.Logger) (*Client, error) {
	if cfg.Key == "" || cfg.Secret == "" {
		return nil, pperrors.WrapInvalid(pperrors.ErrMissingConfig,
			"Client", "NewClient", "validate api key and secret")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	cfg.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultAgent
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger,
		now:    time.Now,
	}, nil
}

// ByFeedURL looks a feed up by its URL. A feed the index does not know
// returns (nil, nil).
func (c *Client) ByFeedURL(ctx context.Context, feedURL string) (*Metadata, error) {
	query := url.Values{"url": {feedURL}}
	return c.lookup(ctx, "/podcasts/byfeedurl", query)
}

// ByFeedID looks a feed up by its Podcast Index feed ID. An unknown ID
// returns (nil, nil).
func (c *Client) ByFeedID(ctx context.Context, feedID int64) (*Metadata, error) {
	query := url.Values{"id": {strconv.FormatInt(feedID, 10)}}
	return c.lookup(ctx, "/podcasts/byfeedid", query)
}

// LookupMultiple resolves metadata for many feed URLs at once, with at
// most five requests in flight and request starts paced 100ms apart.
// The result has one entry per input URL in input order; URLs that fail
// or are unknown yield a nil entry rather than failing the batch. The
// only returned error is context cancellation.
func (c *Client) LookupMultiple(ctx context.Context, feedURLs []string) ([]*Metadata, error) {
	results := make([]*Metadata, len(feedURLs))
	limiter := rate.NewLimiter(rate.Every(lookupInterval), 1)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentLookups)

	for i, feedURL := range feedURLs {
		i, feedURL := i, feedURL
		g.Go(func() error {
			if err := limiter.Wait(ctx); err != nil {
				return err
			}
			meta, err := c.ByFeedURL(ctx, feedURL)
			if err != nil {
				c.logger.Warn("feed lookup failed",
					"url", feedURL,
					"error", err,
				)
				return nil
			}
			results[i] = meta
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, nil
}

type apiResponse struct {
	Status      string          `json:"status"`
	Feed        json.RawMessage `json:"feed"`
	Description string          `json:"description"`
}

func (c *Client) lookup(ctx context.Context, path string, query url.Values) (*Metadata, error) {
	endpoint := c.cfg.BaseURL + path + "?" + query.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, pperrors.WrapInvalid(err, "Client", "lookup", "build request")
	}
	c.authorize(req)

	resp, err := c.client.Do(req)
	if err != nil {
		if pperrors.IsTimeout(err) {
			return nil, pperrors.Wrap(pperrors.ErrTimeout, "Client", "lookup", "execute request")
		}
		return nil, pperrors.WrapTransient(err, "Client", "lookup", "execute request")
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, pperrors.WrapTransient(err, "Client", "lookup", "read response")
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, pperrors.WrapFatal(
			fmt.Errorf("status %d", resp.StatusCode), "Client", "lookup", "authenticate")
	case resp.StatusCode != http.StatusOK:
		return nil, pperrors.WrapTransient(
			fmt.Errorf("status %d", resp.StatusCode), "Client", "lookup", "check response status")
	}

	var parsed apiResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, pperrors.WrapTransient(err, "Client", "lookup", "decode response")
	}

	if parsed.Status == "false" {
		if strings.Contains(strings.ToLower(parsed.Description), "not found") {
			return nil, nil
		}
		return nil, pperrors.WrapTransient(
			fmt.Errorf("api error: %s", parsed.Description), "Client", "lookup", "resolve feed")
	}

	// The API answers misses with an empty array in the feed field
	var meta Metadata
	if err := json.Unmarshal(parsed.Feed, &meta); err != nil || meta.ID == 0 {
		return nil, nil
	}
	return &meta, nil
}

// authorize adds the Podcast Index auth headers: the key, the current
// unix time, and the SHA1 of key+secret+time.
func (c *Client) authorize(req *http.Request) {
	authDate := strconv.FormatInt(c.now().Unix(), 10)
	digest := sha1.Sum([]byte(c.cfg.Key + c.cfg.Secret + authDate))

	req.Header.Set("User-Agent", c.cfg.UserAgent)
	req.Header.Set("X-Auth-Key", c.cfg.Key)
	req.Header.Set("X-Auth-Date", authDate)
	req.Header.Set("Authorization", hex.EncodeToString(digest[:]))
}

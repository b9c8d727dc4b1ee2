package podping

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/ericpp/ppwatch/errors"
)

// TxResult is the outcome of a successful podping submission
type TxResult struct {
	// TxID is the blockchain transaction id returned by the sink
	TxID string
	// DryRun marks transactions that were never broadcast
	DryRun bool
}

// ExplorerURL returns a human-friendly link for the transaction
func (r TxResult) ExplorerURL() string {
	return "https://hive.ausbit.dev/tx/" + r.TxID
}

// Writer is the event sink: it accepts a feed URL plus reason and returns
// the transaction that carried the podping. RemainingCredits reports the
// percentage of resource credits left on the publishing account; the second
// return value is false when the node does not expose the account.
type Writer interface {
	Send(ctx context.Context, feedURL string, reason Reason) (TxResult, error)
	RemainingCredits(ctx context.Context) (float64, bool, error)
}

// HTTPWriterConfig configures an HTTPWriter
type HTTPWriterConfig struct {
	// Endpoint is the podping-server publish URL
	Endpoint string
	// AuthToken authorizes publishes against the endpoint
	AuthToken string
	// HiveAccount is the account whose resource credits are reported
	HiveAccount string
	// HiveAPIURL is a public Hive JSON-RPC node for the credits query
	HiveAPIURL string
	// DryRun suppresses all network writes and fabricates transaction ids
	DryRun bool
}

// HTTPWriter publishes podpings through a podping-server HTTP endpoint and
// queries resource credits from a public Hive API node. Transaction signing
// stays on the server side; this client never touches posting keys.
type HTTPWriter struct {
	config HTTPWriterConfig
	client *http.Client
	logger *slog.Logger
}

var _ Writer = (*HTTPWriter)(nil)

// NewHTTPWriter creates a writer. The caller bounds each call with a
// context deadline; the embedded client only guards against total hangs.
func NewHTTPWriter(config HTTPWriterConfig, logger *slog.Logger) (*HTTPWriter, error) {
	if !config.DryRun && config.Endpoint == "" {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig,
			"HTTPWriter", "NewHTTPWriter", "validate endpoint")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPWriter{
		config: config,
		client: &http.Client{Timeout: 60 * time.Second},
		logger: logger,
	}, nil
}

type publishRequest struct {
	URL    string `json:"url"`
	Reason string `json:"reason"`
}

type publishResponse struct {
	TxID  string `json:"tx_id"`
	Error string `json:"error,omitempty"`
}

// Send submits one feed URL with the given reason. In dry-run mode no
// request is made and a synthetic transaction id is returned.
func (w *HTTPWriter) Send(ctx context.Context, feedURL string, reason Reason) (TxResult, error) {
	if w.config.DryRun {
		w.logger.Info("dry run, podping not broadcast", "url", feedURL, "reason", reason)
		return TxResult{TxID: "dryrun-" + uuid.NewString(), DryRun: true}, nil
	}

	body, err := json.Marshal(publishRequest{URL: feedURL, Reason: string(reason)})
	if err != nil {
		return TxResult{}, errors.Wrap(err, "HTTPWriter", "Send", "encode request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.config.Endpoint, bytes.NewReader(body))
	if err != nil {
		return TxResult{}, errors.Wrap(err, "HTTPWriter", "Send", "build request")
	}
	req.Header.Set("Content-Type", "application/json")
	if w.config.AuthToken != "" {
		req.Header.Set("Authorization", w.config.AuthToken)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return TxResult{}, errors.WrapTransient(err, "HTTPWriter", "Send", "post podping")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return TxResult{}, errors.WrapFatal(
			fmt.Errorf("endpoint rejected auth token (HTTP %d)", resp.StatusCode),
			"HTTPWriter", "Send", "authorize")
	}
	if resp.StatusCode != http.StatusOK {
		return TxResult{}, errors.WrapTransient(
			fmt.Errorf("unexpected status HTTP %d", resp.StatusCode),
			"HTTPWriter", "Send", "post podping")
	}

	var pub publishResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&pub); err != nil {
		return TxResult{}, errors.Wrap(err, "HTTPWriter", "Send", "decode response")
	}
	if pub.Error != "" {
		return TxResult{}, errors.WrapTransient(fmt.Errorf("server error: %s", pub.Error),
			"HTTPWriter", "Send", "post podping")
	}
	if pub.TxID == "" {
		return TxResult{}, errors.Wrap(fmt.Errorf("response missing tx_id"),
			"HTTPWriter", "Send", "decode response")
	}

	return TxResult{TxID: pub.TxID}, nil
}

type rcRequest struct {
	JSONRPC string   `json:"jsonrpc"`
	Method  string   `json:"method"`
	Params  rcParams `json:"params"`
	ID      string   `json:"id"`
}

type rcParams struct {
	Accounts []string `json:"accounts"`
}

type rcResponse struct {
	Result struct {
		RCAccounts []struct {
			Account   string `json:"account"`
			MaxRC     string `json:"max_rc"`
			RCManabar struct {
				CurrentMana string `json:"current_mana"`
			} `json:"rc_manabar"`
		} `json:"rc_accounts"`
	} `json:"result"`
}

// RemainingCredits queries rc_api.find_rc_accounts on the configured Hive
// node and reports remaining resource credits as a percentage. Returns
// (0, false, nil) when no account or node is configured or the node omits
// the account; the percentage is informational and absence is not an error.
func (w *HTTPWriter) RemainingCredits(ctx context.Context) (float64, bool, error) {
	if w.config.HiveAccount == "" || w.config.HiveAPIURL == "" {
		return 0, false, nil
	}

	body, err := json.Marshal(rcRequest{
		JSONRPC: "2.0",
		Method:  "rc_api.find_rc_accounts",
		Params:  rcParams{Accounts: []string{w.config.HiveAccount}},
		ID:      uuid.NewString(),
	})
	if err != nil {
		return 0, false, errors.Wrap(err, "HTTPWriter", "RemainingCredits", "encode request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.config.HiveAPIURL, bytes.NewReader(body))
	if err != nil {
		return 0, false, errors.Wrap(err, "HTTPWriter", "RemainingCredits", "build request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return 0, false, errors.WrapTransient(err, "HTTPWriter", "RemainingCredits", "query rc accounts")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return 0, false, errors.WrapTransient(
			fmt.Errorf("unexpected status HTTP %d", resp.StatusCode),
			"HTTPWriter", "RemainingCredits", "query rc accounts")
	}

	var rc rcResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&rc); err != nil {
		return 0, false, errors.Wrap(err, "HTTPWriter", "RemainingCredits", "decode response")
	}
	if len(rc.Result.RCAccounts) == 0 {
		return 0, false, nil
	}

	account := rc.Result.RCAccounts[0]
	current, ok1 := parseManaString(account.RCManabar.CurrentMana)
	max, ok2 := parseManaString(account.MaxRC)
	if !ok1 || !ok2 || max <= 0 {
		return 0, false, nil
	}

	percent := current / max * 100
	if percent > 100 {
		percent = 100
	}
	return percent, true, nil
}

// parseManaString parses the stringified integers Hive nodes use for mana
func parseManaString(s string) (float64, bool) {
	if s == "" {
		return 0, false
	}
	var v float64
	if _, err := fmt.Sscanf(s, "%f", &v); err != nil {
		return 0, false
	}
	return v, true
}

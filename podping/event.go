// Package podping defines the podping event model and the event-sink client
// used to publish new podpings.
package podping

import (
	"encoding/json"
	"sort"
)

// Reason classifies why a podping fired. The watcher passes any reason
// through verbatim; only the pp command restricts input to the known set.
type Reason string

const (
	// ReasonUpdate signals new or changed feed content
	ReasonUpdate Reason = "update"
	// ReasonLive signals a live item went live
	ReasonLive Reason = "live"
	// ReasonLiveEnd signals a live item ended
	ReasonLiveEnd Reason = "liveEnd"
)

// Known reports whether the reason is one of the reasons the pp command
// accepts.
func (r Reason) Known() bool {
	switch r {
	case ReasonUpdate, ReasonLive, ReasonLiveEnd:
		return true
	default:
		return false
	}
}

// IsLiveTransition reports whether the reason claims a live-broadcast state
// change and therefore warrants a live-status verification.
func (r Reason) IsLiveTransition() bool {
	return r == ReasonLive || r == ReasonLiveEnd
}

// KnownReasons returns the accepted reason strings in sorted order, for
// usage and error messages.
func KnownReasons() []string {
	reasons := []string{string(ReasonLive), string(ReasonLiveEnd), string(ReasonUpdate)}
	sort.Strings(reasons)
	return reasons
}

// Event is a single podping notification: one or more feed URLs that
// changed, the reason, and the blockchain transaction that carried it.
type Event struct {
	URLs   []string `json:"urls"`
	Reason Reason   `json:"reason"`
	TrxID  string   `json:"trx_id,omitempty"`
}

// UnmarshalJSON accepts both the older "urls" field and the "iris" field
// used by current podping emitters. A single "url" string is also accepted.
func (e *Event) UnmarshalJSON(data []byte) error {
	var raw struct {
		URLs   []string `json:"urls"`
		IRIs   []string `json:"iris"`
		URL    string   `json:"url"`
		Reason Reason   `json:"reason"`
		TrxID  string   `json:"trx_id"`
		ID     string   `json:"id"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	e.URLs = raw.URLs
	if len(e.URLs) == 0 {
		e.URLs = raw.IRIs
	}
	if len(e.URLs) == 0 && raw.URL != "" {
		e.URLs = []string{raw.URL}
	}

	e.Reason = raw.Reason
	if e.Reason == "" {
		e.Reason = ReasonUpdate
	}

	e.TrxID = raw.TrxID
	if e.TrxID == "" {
		e.TrxID = raw.ID
	}
	return nil
}

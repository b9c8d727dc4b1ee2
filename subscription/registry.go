// Package subscription tracks which chat channels want updates for which
// podcast feeds. Each channel keeps the exact URL strings users typed;
// fan-out matching runs on canonical forms, so differently written URLs
// for the same feed land on the same match target.
package subscription

import (
	"sort"
	"sync"

	"github.com/ericpp/ppwatch/feed"
)

// Result describes the outcome of a registry mutation
type Result int

const (
	// Added means the subscription did not exist and was created
	Added Result = iota
	// AlreadyPresent means the exact URL string is already subscribed
	AlreadyPresent
	// Removed means the subscription existed and was deleted
	Removed
	// NotSubscribed means the channel exists but holds no such subscription
	NotSubscribed
	// NoSuchChannel means the channel holds no subscriptions at all
	NoSuchChannel
)

// String returns the string representation of Result
func (r Result) String() string {
	switch r {
	case Added:
		return "added"
	case AlreadyPresent:
		return "already-present"
	case Removed:
		return "removed"
	case NotSubscribed:
		return "not-subscribed"
	case NoSuchChannel:
		return "no-such-channel"
	default:
		return "unknown"
	}
}

// channelSubs holds one channel's subscriptions: the raw URL strings as
// typed, plus a canonical-form index counting how many raws map to each
// normalized URL. The index is derived state; the invariant is that
// canon[k] equals the number of raws whose feed.Normalize is k.
type channelSubs struct {
	raws  map[string]struct{}
	canon map[string]int
}

func newChannelSubs() *channelSubs {
	return &channelSubs{
		raws:  make(map[string]struct{}),
		canon: make(map[string]int),
	}
}

// Registry is a concurrency-safe channel-to-feed subscription store.
// Duplicate detection works on exact strings, so two spellings of the
// same feed can coexist in a channel; dispatch matching works on
// canonical forms, so those spellings still count as one match target.
type Registry struct {
	mu   sync.RWMutex
	subs map[string]*channelSubs
}

// NewRegistry creates an empty Registry
func NewRegistry() *Registry {
	return &Registry{subs: make(map[string]*channelSubs)}
}

// NewFromMap creates a Registry pre-seeded from configuration, typically
// the channel_subscriptions block. Exact duplicate URLs within a channel
// collapse to one entry; equivalent spellings are all kept.
func NewFromMap(seed map[string][]string) *Registry {
	r := NewRegistry()
	for channel, urls := range seed {
		for _, u := range urls {
			r.Subscribe(channel, u)
		}
	}
	return r
}

// Subscribe adds a feed subscription for a channel. Returns Added, or
// AlreadyPresent when this exact URL string is already subscribed. A
// different spelling of an already-subscribed feed is stored as its own
// entry; matching still treats the two as one feed.
func (r *Registry) Subscribe(channel, rawURL string) Result {
	r.mu.Lock()
	defer r.mu.Unlock()

	cs, ok := r.subs[channel]
	if !ok {
		cs = newChannelSubs()
		r.subs[channel] = cs
	}
	if _, exists := cs.raws[rawURL]; exists {
		return AlreadyPresent
	}
	cs.raws[rawURL] = struct{}{}
	cs.canon[feed.Normalize(rawURL)]++
	return Added
}

// Unsubscribe removes the exact URL string from a channel. Returns
// Removed on success, NotSubscribed when the channel has subscriptions
// but not this string, and NoSuchChannel when the channel has none at
// all.
func (r *Registry) Unsubscribe(channel, rawURL string) Result {
	r.mu.Lock()
	defer r.mu.Unlock()

	cs, ok := r.subs[channel]
	if !ok || len(cs.raws) == 0 {
		return NoSuchChannel
	}
	if _, exists := cs.raws[rawURL]; !exists {
		return NotSubscribed
	}
	delete(cs.raws, rawURL)

	key := feed.Normalize(rawURL)
	cs.canon[key]--
	if cs.canon[key] <= 0 {
		delete(cs.canon, key)
	}
	if len(cs.raws) == 0 {
		delete(r.subs, channel)
	}
	return Removed
}

// List returns the channel's subscribed URLs exactly as typed, sorted.
// A channel with no subscriptions yields an empty slice.
func (r *Registry) List(channel string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cs, ok := r.subs[channel]
	if !ok {
		return []string{}
	}
	urls := make([]string, 0, len(cs.raws))
	for raw := range cs.raws {
		urls = append(urls, raw)
	}
	sort.Strings(urls)
	return urls
}

// All returns a copy of every subscription, channel to sorted raw URLs
func (r *Registry) All() map[string][]string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string][]string, len(r.subs))
	for channel, cs := range r.subs {
		list := make([]string, 0, len(cs.raws))
		for raw := range cs.raws {
			list = append(list, raw)
		}
		sort.Strings(list)
		out[channel] = list
	}
	return out
}

// Channels returns the sorted names of all channels holding at least one
// subscription.
func (r *Registry) Channels() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	channels := make([]string, 0, len(r.subs))
	for channel := range r.subs {
		channels = append(channels, channel)
	}
	sort.Strings(channels)
	return channels
}

// MatchingChannels returns the sorted channels subscribed to the given
// URL, compared in canonical form. A channel appears once no matter how
// many spellings of the feed it holds.
func (r *Registry) MatchingChannels(rawURL string) []string {
	key := feed.Normalize(rawURL)

	r.mu.RLock()
	defer r.mu.RUnlock()

	var channels []string
	for channel, cs := range r.subs {
		if cs.canon[key] > 0 {
			channels = append(channels, channel)
		}
	}
	sort.Strings(channels)
	return channels
}

// Count returns the total number of subscribed URL strings across all
// channels.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	total := 0
	for _, cs := range r.subs {
		total += len(cs.raws)
	}
	return total
}

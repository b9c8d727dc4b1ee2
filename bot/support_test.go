package bot

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/ericpp/ppwatch/feed"
	"github.com/ericpp/ppwatch/messenger"
	"github.com/ericpp/ppwatch/podcastindex"
	"github.com/ericpp/ppwatch/podping"
	"github.com/ericpp/ppwatch/subscription"
	"github.com/ericpp/ppwatch/testutil"
)

// fakeLookup is an in-memory MetadataLookup
type fakeLookup struct {
	mu       sync.Mutex
	byID     map[int64]*podcastindex.Metadata
	byURL    map[string]*podcastindex.Metadata
	err      error
	hang     bool // block until the context expires
	idCalls  int
	urlCalls int
}

func (f *fakeLookup) ByFeedID(ctx context.Context, feedID int64) (*podcastindex.Metadata, error) {
	f.mu.Lock()
	f.idCalls++
	f.mu.Unlock()
	if f.hang {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.byID[feedID], nil
}

func (f *fakeLookup) ByFeedURL(ctx context.Context, feedURL string) (*podcastindex.Metadata, error) {
	f.mu.Lock()
	f.urlCalls++
	f.mu.Unlock()
	if f.hang {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.byURL[feedURL], nil
}

func (f *fakeLookup) calls() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.idCalls, f.urlCalls
}

// fakeWriter is an in-memory podping.Writer
type fakeWriter struct {
	mu             sync.Mutex
	sent           []sentPodping
	txID           string
	err            error
	hang           bool
	credits        float64
	creditsPresent bool
}

type sentPodping struct {
	URL    string
	Reason podping.Reason
}

func (f *fakeWriter) Send(ctx context.Context, feedURL string, reason podping.Reason) (podping.TxResult, error) {
	if f.hang {
		<-ctx.Done()
		return podping.TxResult{}, ctx.Err()
	}
	if f.err != nil {
		return podping.TxResult{}, f.err
	}
	f.mu.Lock()
	f.sent = append(f.sent, sentPodping{URL: feedURL, Reason: reason})
	f.mu.Unlock()
	return podping.TxResult{TxID: f.txID}, nil
}

func (f *fakeWriter) RemainingCredits(_ context.Context) (float64, bool, error) {
	return f.credits, f.creditsPresent, nil
}

func (f *fakeWriter) submissions() []sentPodping {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentPodping(nil), f.sent...)
}

// fakeVerifier returns a canned verification result
type fakeVerifier struct {
	mu     sync.Mutex
	result feed.VerifyResult
	urls   []string
}

func (f *fakeVerifier) Verify(_ context.Context, feedURL string, _ podping.Reason) feed.VerifyResult {
	f.mu.Lock()
	f.urls = append(f.urls, feedURL)
	f.mu.Unlock()
	return f.result
}

// fixture bundles a bot wired to recording/fake collaborators
type fixture struct {
	bot       *Bot
	messenger *testutil.RecordingMessenger
	registry  *subscription.Registry
	lookup    *fakeLookup
	writer    *fakeWriter
	verifier  *fakeVerifier
}

type fixtureOption func(*Options, *Dependencies)

func authorized(users ...string) fixtureOption {
	return func(o *Options, _ *Dependencies) {
		o.AllowRuntimeSubscriptions = true
		o.AuthorizedUsers = users
	}
}

func withoutLookup() fixtureOption {
	return func(_ *Options, d *Dependencies) { d.Lookup = nil }
}

func withoutWriter() fixtureOption {
	return func(_ *Options, d *Dependencies) { d.Writer = nil }
}

func withDelay(d time.Duration) fixtureOption {
	return func(o *Options, _ *Dependencies) { o.MessageDelay = d }
}

func withAPITimeout(d time.Duration) fixtureOption {
	return func(o *Options, _ *Dependencies) { o.APITimeout = d }
}

func newFixture(joined []string, opts ...fixtureOption) *fixture {
	f := &fixture{
		messenger: testutil.NewRecordingMessenger(joined...),
		registry:  subscription.NewRegistry(),
		lookup: &fakeLookup{
			byID:  make(map[int64]*podcastindex.Metadata),
			byURL: make(map[string]*podcastindex.Metadata),
		},
		writer:   &fakeWriter{txID: "abc123"},
		verifier: &fakeVerifier{result: feed.VerifyResult{Valid: true}},
	}

	options := Options{
		MessageDelay: time.Millisecond,
		APITimeout:   time.Second,
	}
	deps := Dependencies{
		Messenger: f.messenger,
		Registry:  f.registry,
		Lookup:    f.lookup,
		Writer:    f.writer,
		Verifier:  f.verifier,
	}
	for _, opt := range opts {
		opt(&options, &deps)
	}

	b, err := New("bot", options, deps, nil, slog.Default())
	if err != nil {
		panic(err)
	}
	f.bot = b
	return f
}

func metaFixture(title, url string) *podcastindex.Metadata {
	return &podcastindex.Metadata{ID: 920666, Title: title, URL: url}
}

// receive feeds one inbound message straight to the router
func (f *fixture) receive(from, channel, text string) {
	f.bot.router.HandleMessage(context.Background(), messenger.InboundMessage{
		From:    from,
		Channel: channel,
		Text:    text,
	})
}

func (f *fixture) sentTo(target messenger.Target) []string {
	return f.messenger.SentTo(target)
}

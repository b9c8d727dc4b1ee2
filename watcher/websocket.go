package watcher

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ericpp/ppwatch/component"
	pperrors "github.com/ericpp/ppwatch/errors"
	"github.com/ericpp/ppwatch/health"
	"github.com/ericpp/ppwatch/metric"
	"github.com/ericpp/ppwatch/pkg/retry"
	"github.com/ericpp/ppwatch/podping"
)

// WebSocketConfig configures the websocket firehose source
type WebSocketConfig struct {
	// URL of the podping firehose, ws:// or wss://
	URL string
	// HandshakeTimeout bounds the dial, default 10s
	HandshakeTimeout time.Duration
	// PingInterval keeps idle connections alive, default 30s
	PingInterval time.Duration
}

// WebSocketSource consumes podping events from a websocket firehose.
// It reconnects with jittered exponential backoff and keeps reading
// until its context is cancelled.
type WebSocketSource struct {
	name    string
	cfg     WebSocketConfig
	logger  *slog.Logger
	handler Handler

	conn   *websocket.Conn
	connMu sync.Mutex

	state     component.State
	stateMu   sync.Mutex
	done      chan struct{}
	connected bool

	stats   stats
	statsMu sync.Mutex

	metrics *sourceMetrics
}

var (
	_ component.Component = (*WebSocketSource)(nil)
	_ health.Reporter     = (*WebSocketSource)(nil)
	_ Source              = (*WebSocketSource)(nil)
)

// NewWebSocketSource creates a websocket firehose source
func NewWebSocketSource(name string, cfg WebSocketConfig, registry metric.Registrar, logger *slog.Logger) (*WebSocketSource, error) {
	if !strings.HasPrefix(cfg.URL, "ws://") && !strings.HasPrefix(cfg.URL, "wss://") {
		return nil, pperrors.WrapInvalid(
			fmt.Errorf("url %q must use ws or wss scheme", cfg.URL),
			"WebSocketSource", "NewWebSocketSource", "validate url")
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = 10 * time.Second
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	metrics, err := newSourceMetrics(registry, name, "websocket")
	if err != nil {
		return nil, err
	}

	return &WebSocketSource{
		name:    name,
		cfg:     cfg,
		logger:  logger.With("component", name),
		done:    make(chan struct{}),
		metrics: metrics,
	}, nil
}

// Name returns the component name
func (s *WebSocketSource) Name() string { return s.name }

// SetHandler sets the event handler; must be called before Start
func (s *WebSocketSource) SetHandler(h Handler) { s.handler = h }

// Initialize validates the source is ready to start
func (s *WebSocketSource) Initialize() error {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()

	if s.handler == nil {
		return pperrors.WrapInvalid(
			fmt.Errorf("handler not set"),
			"WebSocketSource", "Initialize", "check handler")
	}
	s.state = component.StateInitialized
	return nil
}

// Start launches the connect/read loop in the background
func (s *WebSocketSource) Start(ctx context.Context) error {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()

	if s.state == component.StateStarted {
		return pperrors.ErrAlreadyStarted
	}
	if s.state != component.StateInitialized {
		return pperrors.ErrNotStarted
	}

	s.state = component.StateStarted
	s.statsMu.Lock()
	s.stats.startTime = time.Now()
	s.statsMu.Unlock()

	go s.run(ctx)
	return nil
}

// Stop closes the connection and waits for the read loop to exit
func (s *WebSocketSource) Stop(timeout time.Duration) error {
	s.stateMu.Lock()
	if s.state != component.StateStarted {
		s.stateMu.Unlock()
		return pperrors.ErrNotStarted
	}
	s.state = component.StateStopped
	s.stateMu.Unlock()

	s.closeConn()

	select {
	case <-s.done:
		return nil
	case <-time.After(timeout):
		return pperrors.ErrStopTimeout
	}
}

// Health reports connection state with activity counters
func (s *WebSocketSource) Health() health.Status {
	s.stateMu.Lock()
	state := s.state
	connected := s.connected
	s.stateMu.Unlock()

	s.statsMu.Lock()
	metrics := s.stats.healthMetrics()
	s.statsMu.Unlock()

	switch {
	case state != component.StateStarted:
		return health.Unhealthy(s.name, "not running").WithMetrics(metrics)
	case !connected:
		return health.Degraded(s.name, "reconnecting to firehose").WithMetrics(metrics)
	default:
		return health.Healthy(s.name, "connected").WithMetrics(metrics)
	}
}

// run is the outer connect loop; it exits when ctx is cancelled or the
// source is stopped.
func (s *WebSocketSource) run(ctx context.Context) {
	defer close(s.done)

	for ctx.Err() == nil && !s.stopped() {
		if err := s.connect(ctx); err != nil {
			s.logger.Error("giving up connecting to firehose", "error", err)
			s.setFailed()
			return
		}
		if s.stopped() || ctx.Err() != nil {
			return
		}

		s.readLoop(ctx)
	}
}

// connect dials the firehose with persistent backoff
func (s *WebSocketSource) connect(ctx context.Context) error {
	return retry.Do(ctx, retry.Persistent(), func() error {
		dialer := websocket.Dialer{HandshakeTimeout: s.cfg.HandshakeTimeout}
		conn, resp, err := dialer.DialContext(ctx, s.cfg.URL, nil)
		if resp != nil && resp.Body != nil {
			_ = resp.Body.Close()
		}
		if err != nil {
			s.metrics.reconnects.Inc()
			s.logger.Warn("firehose dial failed", "error", err)
			return err
		}

		s.connMu.Lock()
		s.conn = conn
		s.connMu.Unlock()
		s.setConnected(true)
		s.metrics.connected.Set(1)
		s.logger.Info("connected to podping firehose")
		return nil
	})
}

// readLoop reads frames until the connection drops
func (s *WebSocketSource) readLoop(ctx context.Context) {
	defer func() {
		s.setConnected(false)
		s.metrics.connected.Set(0)
		s.closeConn()
	}()

	s.connMu.Lock()
	conn := s.conn
	s.connMu.Unlock()
	if conn == nil {
		return
	}

	// pingDone releases the ping goroutine when this read loop exits;
	// without it the goroutine would linger until ctx cancellation,
	// leaking one per reconnect.
	pingDone := make(chan struct{})
	defer close(pingDone)
	pingTicker := time.NewTicker(s.cfg.PingInterval)
	defer pingTicker.Stop()
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-pingDone:
				return
			case <-pingTicker.C:
				s.connMu.Lock()
				c := s.conn
				s.connMu.Unlock()
				if c == nil {
					return
				}
				_ = c.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
			}
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if !s.stopped() && ctx.Err() == nil {
				s.logger.Warn("firehose connection lost", "error", err)
				s.recordError()
			}
			return
		}
		s.handleFrame(ctx, data)
	}
}

// handleFrame decodes one frame and dispatches the event
func (s *WebSocketSource) handleFrame(ctx context.Context, data []byte) {
	var event podping.Event
	if err := json.Unmarshal(data, &event); err != nil {
		s.metrics.decodeErrors.Inc()
		s.logger.Warn("dropping undecodable frame", "error", err)
		return
	}
	if len(event.URLs) == 0 {
		return
	}

	s.metrics.events.Inc()
	s.statsMu.Lock()
	s.stats.events++
	s.stats.lastActivity = time.Now()
	s.statsMu.Unlock()

	dispatch(ctx, s.handler, event, func(r any) {
		s.recordError()
		s.logger.Error("event handler panicked", "panic", r, "trx_id", event.TrxID)
	})
}

func (s *WebSocketSource) closeConn() {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	if s.conn != nil {
		_ = s.conn.Close()
		s.conn = nil
	}
}

func (s *WebSocketSource) stopped() bool {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.state == component.StateStopped
}

func (s *WebSocketSource) setFailed() {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	if s.state == component.StateStarted {
		s.state = component.StateFailed
	}
}

func (s *WebSocketSource) setConnected(connected bool) {
	s.stateMu.Lock()
	s.connected = connected
	s.stateMu.Unlock()
}

func (s *WebSocketSource) recordError() {
	s.metrics.errors.Inc()
	s.statsMu.Lock()
	s.stats.errorCount++
	s.statsMu.Unlock()
}

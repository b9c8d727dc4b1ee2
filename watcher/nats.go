package watcher

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/ericpp/ppwatch/component"
	pperrors "github.com/ericpp/ppwatch/errors"
	"github.com/ericpp/ppwatch/health"
	"github.com/ericpp/ppwatch/metric"
	"github.com/ericpp/ppwatch/podping"
)

// NATSConfig configures the NATS podping source, for deployments where
// a relay republishes the firehose onto a NATS subject.
type NATSConfig struct {
	// URL of the NATS server, e.g. nats://localhost:4222
	URL string
	// Subject carrying podping event payloads, e.g. podping.events
	Subject string
	// ClientName identifies this connection to the server
	ClientName string
	// ReconnectWait between reconnect attempts, default 2s
	ReconnectWait time.Duration
}

// NATSSource consumes podping events from a NATS subject. Reconnect
// handling is delegated to the NATS client, which retries forever.
type NATSSource struct {
	name    string
	cfg     NATSConfig
	logger  *slog.Logger
	handler Handler

	nc  *nats.Conn
	sub *nats.Subscription

	// dispatchCtx is the context handler invocations run under; owned
	// by the component manager via Start.
	dispatchCtx context.Context

	state   component.State
	stateMu sync.Mutex

	stats   stats
	statsMu sync.Mutex

	metrics *sourceMetrics
}

var (
	_ component.Component = (*NATSSource)(nil)
	_ health.Reporter     = (*NATSSource)(nil)
	_ Source              = (*NATSSource)(nil)
)

// NewNATSSource creates a NATS podping source
func NewNATSSource(name string, cfg NATSConfig, registry metric.Registrar, logger *slog.Logger) (*NATSSource, error) {
	if cfg.URL == "" {
		return nil, pperrors.WrapInvalid(
			fmt.Errorf("url is required"),
			"NATSSource", "NewNATSSource", "validate url")
	}
	if cfg.Subject == "" {
		return nil, pperrors.WrapInvalid(
			fmt.Errorf("subject is required"),
			"NATSSource", "NewNATSSource", "validate subject")
	}
	if cfg.ClientName == "" {
		cfg.ClientName = "ppwatch"
	}
	if cfg.ReconnectWait <= 0 {
		cfg.ReconnectWait = 2 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	metrics, err := newSourceMetrics(registry, name, "nats")
	if err != nil {
		return nil, err
	}

	return &NATSSource{
		name:    name,
		cfg:     cfg,
		logger:  logger.With("component", name),
		metrics: metrics,
	}, nil
}

// Name returns the component name
func (s *NATSSource) Name() string { return s.name }

// SetHandler sets the event handler; must be called before Start
func (s *NATSSource) SetHandler(h Handler) { s.handler = h }

// Initialize validates the source is ready to start
func (s *NATSSource) Initialize() error {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()

	if s.handler == nil {
		return pperrors.WrapInvalid(
			fmt.Errorf("handler not set"),
			"NATSSource", "Initialize", "check handler")
	}
	s.state = component.StateInitialized
	return nil
}

// Start connects to the NATS server and subscribes to the podping
// subject.
func (s *NATSSource) Start(ctx context.Context) error {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()

	if s.state == component.StateStarted {
		return pperrors.ErrAlreadyStarted
	}
	if s.state != component.StateInitialized {
		return pperrors.ErrNotStarted
	}

	nc, err := nats.Connect(s.cfg.URL,
		nats.Name(s.cfg.ClientName),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(s.cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			s.metrics.connected.Set(0)
			s.logger.Warn("nats connection lost", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			s.metrics.connected.Set(1)
			s.metrics.reconnects.Inc()
			s.logger.Info("nats reconnected", "server", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			s.metrics.connected.Set(0)
			s.logger.Info("nats connection closed")
		}),
	)
	if err != nil {
		s.state = component.StateFailed
		return pperrors.WrapTransient(err, "NATSSource", "Start", "connect to nats")
	}

	s.dispatchCtx = ctx
	sub, err := nc.Subscribe(s.cfg.Subject, s.handleMessage)
	if err != nil {
		nc.Close()
		s.state = component.StateFailed
		return pperrors.WrapTransient(err, "NATSSource", "Start", "subscribe to subject")
	}

	s.nc = nc
	s.sub = sub
	s.state = component.StateStarted
	s.metrics.connected.Set(1)
	s.statsMu.Lock()
	s.stats.startTime = time.Now()
	s.statsMu.Unlock()

	s.logger.Info("subscribed to podping subject",
		"subject", s.cfg.Subject,
		"server", nc.ConnectedUrl(),
	)
	return nil
}

// Stop drains the subscription and closes the connection
func (s *NATSSource) Stop(timeout time.Duration) error {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()

	if s.state != component.StateStarted {
		return pperrors.ErrNotStarted
	}
	s.state = component.StateStopped

	if s.sub != nil {
		_ = s.sub.Unsubscribe()
		s.sub = nil
	}
	if s.nc != nil {
		s.nc.SetClosedHandler(nil)
		done := make(chan struct{})
		go func() {
			_ = s.nc.Drain()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(timeout):
			s.nc.Close()
			return pperrors.ErrStopTimeout
		}
		s.nc = nil
	}
	s.metrics.connected.Set(0)
	return nil
}

// Health reports connection state with activity counters
func (s *NATSSource) Health() health.Status {
	s.stateMu.Lock()
	state := s.state
	nc := s.nc
	s.stateMu.Unlock()

	s.statsMu.Lock()
	metrics := s.stats.healthMetrics()
	s.statsMu.Unlock()

	switch {
	case state != component.StateStarted || nc == nil:
		return health.Unhealthy(s.name, "not running").WithMetrics(metrics)
	case nc.Status() != nats.CONNECTED:
		return health.Degraded(s.name, "reconnecting to nats").WithMetrics(metrics)
	default:
		return health.Healthy(s.name, "connected").WithMetrics(metrics)
	}
}

// handleMessage decodes one NATS message and dispatches the event
func (s *NATSSource) handleMessage(msg *nats.Msg) {
	var event podping.Event
	if err := json.Unmarshal(msg.Data, &event); err != nil {
		s.metrics.decodeErrors.Inc()
		s.logger.Warn("dropping undecodable message", "subject", msg.Subject, "error", err)
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

	ctx := s.dispatchCtx
	if ctx == nil {
		ctx = context.Background()
	}
	dispatch(ctx, s.handler, event, func(r any) {
		s.metrics.errors.Inc()
		s.statsMu.Lock()
		s.stats.errorCount++
		s.statsMu.Unlock()
		s.logger.Error("event handler panicked", "panic", r, "trx_id", event.TrxID)
	})
}

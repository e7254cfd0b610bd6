// Package stream owns the live trade subscription: one supervisor per venue,
// reconnecting on transport or decode failures up to a bounded attempt count,
// with cooperative shutdown between blocking receives.
package stream

import (
	"errors"
	"fmt"
	"sync/atomic"

	"CryptoPull/internal/domain/models"
	drepo "CryptoPull/internal/domain/repository"
	applogger "CryptoPull/pkg/logger"
)

var (
	// ErrRetriesExhausted is returned when the configured connect attempt
	// limit is reached without a successful handshake.
	ErrRetriesExhausted = errors.New("stream: max connect attempts exceeded")
	// ErrAlreadyRan is returned when Run is called on a used-up supervisor.
	ErrAlreadyRan = errors.New("stream: supervisor instances are single-use")
)

// State is the supervisor's connection state. Owned exclusively by the
// supervisor; exposed for observability only.
type State int32

const (
	Disconnected State = iota
	Connecting
	Connected
	ShuttingDown
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case ShuttingDown:
		return "shutting_down"
	default:
		return "disconnected"
	}
}

// Conn is one live subscription. Receive blocks until the next decoded trade
// arrives; it returns (nil, nil) for frames that decode cleanly but carry no
// trade (heartbeats, subscription acks).
type Conn interface {
	Receive() (*models.Trade, error)
	Close() error
}

// Dialer opens the transport and performs the venue's subscribe handshake.
type Dialer interface {
	Dial(symbols []models.Symbol) (Conn, error)
	Venue() string
}

// OnMessage receives every successfully decoded trade, synchronously, on the
// supervisor's goroutine, in receipt order.
type OnMessage func(*models.Trade)

// Supervisor maintains one logical streaming subscription, surviving transient
// failures. An instance runs exactly once: after Run returns, a fresh instance
// is required to stream again.
type Supervisor struct {
	dialer  Dialer
	alerts  drepo.AlertSink
	metrics drepo.Metrics
	log     *applogger.Logger

	attemptLimit int
	state        atomic.Int32
	shutdown     atomic.Bool
	used         atomic.Bool
}

// Option configures a Supervisor.
type Option func(*Supervisor)

// WithAttemptLimit bounds consecutive failed connect attempts. Values below 1
// are clamped to 1.
func WithAttemptLimit(n int) Option {
	return func(s *Supervisor) {
		s.attemptLimit = n
	}
}

// NewSupervisor creates a supervisor for one venue subscription.
func NewSupervisor(dialer Dialer, alerts drepo.AlertSink, metrics drepo.Metrics, log *applogger.Logger, opts ...Option) *Supervisor {
	s := &Supervisor{
		dialer:       dialer,
		alerts:       alerts,
		metrics:      metrics,
		log:          log,
		attemptLimit: 3,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.attemptLimit < 1 {
		s.attemptLimit = 1
	}
	return s
}

// State returns the current connection state.
func (s *Supervisor) State() State { return State(s.state.Load()) }

// RequestShutdown sets the cooperative stop flag. It takes effect after the
// in-flight blocking receive returns, so at most one more message may be
// delivered after this call.
func (s *Supervisor) RequestShutdown() {
	s.shutdown.Store(true)
	s.state.Store(int32(ShuttingDown))
}

// Run blocks the calling goroutine until shutdown is requested or the attempt
// limit is exhausted. Callers that want a background worker simply run it in
// its own goroutine; the behavior is identical either way.
func (s *Supervisor) Run(symbols []models.Symbol, onMessage OnMessage) error {
	if onMessage == nil {
		return errors.New("stream: onMessage callback is required")
	}
	if len(symbols) == 0 {
		return errors.New("stream: at least one symbol is required")
	}
	for _, sym := range symbols {
		if !sym.Valid() {
			return fmt.Errorf("stream: %q is not a recognized market", sym)
		}
	}
	if s.used.Swap(true) {
		return ErrAlreadyRan
	}

	venue := s.dialer.Venue()
	attempts := 0
	var conn Conn

	for attempts < s.attemptLimit {
		if conn == nil {
			if s.shutdown.Load() {
				return nil
			}
			s.state.Store(int32(Connecting))
			attempts++

			c, err := s.dialer.Dial(symbols)
			if err != nil {
				s.state.Store(int32(Disconnected))
				s.metrics.RecordError("stream_connect")
				s.log.Warn("connect failed",
					applogger.String("venue", venue),
					applogger.Int("attempt", attempts),
					applogger.Error(err))
				if s.shutdown.Load() {
					return nil
				}
				s.alerts.Notify(drepo.SeverityWarning,
					fmt.Sprintf("%s: connect attempt %d/%d failed: %v", venue, attempts, s.attemptLimit, err))
				continue
			}

			conn = c
			attempts = 0
			s.state.Store(int32(Connected))
			s.metrics.RecordReconnect(venue)
			s.log.Info("connected", applogger.String("venue", venue))
		}

		err := s.consume(conn, onMessage)
		_ = conn.Close()
		conn = nil
		if err == nil {
			// cooperative shutdown, no further alerting
			return nil
		}

		s.state.Store(int32(Disconnected))
		s.metrics.RecordError("stream_receive")
		if s.shutdown.Load() {
			return nil
		}
		s.alerts.Notify(drepo.SeverityWarning,
			fmt.Sprintf("%s: disconnected from stream: %v", venue, err))
	}

	s.state.Store(int32(Disconnected))
	s.alerts.Notify(drepo.SeverityCritical,
		fmt.Sprintf("%s: max attempts to connect to stream exceeded", venue))
	return ErrRetriesExhausted
}

// consume forwards decoded trades until a receive error or shutdown. The stop
// flag is only observed between receives: the current blocking receive always
// finishes and its trade is still delivered.
func (s *Supervisor) consume(conn Conn, onMessage OnMessage) error {
	for {
		if s.shutdown.Load() {
			return nil
		}
		t, err := conn.Receive()
		if err != nil {
			return err
		}
		if t == nil {
			continue
		}
		s.metrics.RecordTradeReceived(t.Symbol.String())
		s.metrics.RecordLastPrice(t.Symbol.String(), t.Price)
		onMessage(t)
	}
}

package stream

import (
	"errors"
	"sync"
	"testing"

	"CryptoPull/internal/domain/models"
	drepo "CryptoPull/internal/domain/repository"
	applogger "CryptoPull/pkg/logger"
)

type fakeMetrics struct{}

func (fakeMetrics) RecordTradeReceived(string)          {}
func (fakeMetrics) RecordReconnect(string)              {}
func (fakeMetrics) RecordBackfillPage(string, int)      {}
func (fakeMetrics) RecordCandlesPersisted(string, int)  {}
func (fakeMetrics) RecordError(string)                  {}
func (fakeMetrics) RecordLastPrice(string, float64)     {}
func (fakeMetrics) RecordLatency(string, float64)       {}

type recordingSink struct {
	mu     sync.Mutex
	alerts []string
	sev    []drepo.Severity
}

func (r *recordingSink) Notify(severity drepo.Severity, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts = append(r.alerts, message)
	r.sev = append(r.sev, severity)
}

func (r *recordingSink) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.alerts)
}

// scriptedConn replays a fixed sequence of receive results.
type scriptedConn struct {
	mu        sync.Mutex
	script    []receiveResult
	pos       int
	closed    bool
	blockCh   chan receiveResult // when non-nil, Receive blocks on this channel after the script runs out
	receiving chan struct{}      // when non-nil, closed once the first blocking Receive is entered
}

type receiveResult struct {
	trade *models.Trade
	err   error
}

func (c *scriptedConn) Receive() (*models.Trade, error) {
	c.mu.Lock()
	if c.pos < len(c.script) {
		r := c.script[c.pos]
		c.pos++
		c.mu.Unlock()
		return r.trade, r.err
	}
	ch := c.blockCh
	if c.receiving != nil {
		close(c.receiving)
		c.receiving = nil
	}
	c.mu.Unlock()
	if ch != nil {
		r := <-ch
		return r.trade, r.err
	}
	return nil, errors.New("script exhausted")
}

func (c *scriptedConn) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	return nil
}

type scriptedDialer struct {
	mu    sync.Mutex
	conns []any // *scriptedConn or error per dial attempt
	dials int
}

func (d *scriptedDialer) Venue() string { return "kraken" }

func (d *scriptedDialer) Dial(symbols []models.Symbol) (Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.dials >= len(d.conns) {
		return nil, errors.New("no more scripted conns")
	}
	next := d.conns[d.dials]
	d.dials++
	if err, ok := next.(error); ok {
		return nil, err
	}
	return next.(*scriptedConn), nil
}

func newSupervisor(d Dialer, sink drepo.AlertSink, opts ...Option) *Supervisor {
	return NewSupervisor(d, sink, fakeMetrics{}, applogger.Nop(), opts...)
}

func btcTrade(ts int64, price float64) *models.Trade {
	return &models.Trade{Symbol: models.BTC, Timestamp: ts, Price: price, Amount: 1, Side: models.SideBuy}
}

func TestRunValidatesSymbols(t *testing.T) {
	sup := newSupervisor(&scriptedDialer{}, &recordingSink{})
	cb := func(*models.Trade) {}

	if err := sup.Run(nil, cb); err == nil {
		t.Fatalf("expected error for empty symbols")
	}
	if err := sup.Run([]models.Symbol{"doge"}, cb); err == nil {
		t.Fatalf("expected error for unknown symbol")
	}
}

func TestRunDeliversInOrderAndExitsCleanOnShutdown(t *testing.T) {
	conn := &scriptedConn{script: []receiveResult{
		{trade: btcTrade(1, 100)},
		{trade: nil}, // heartbeat frame, skipped
		{trade: btcTrade(2, 101)},
	}}
	dialer := &scriptedDialer{conns: []any{conn}}
	sup := newSupervisor(dialer, &recordingSink{})

	var got []int64
	err := sup.Run([]models.Symbol{models.BTC}, func(tr *models.Trade) {
		got = append(got, tr.Timestamp)
		if len(got) == 2 {
			sup.RequestShutdown()
		}
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(got) != 2 || got[0] != 1 || got[1] != 2 {
		t.Fatalf("unexpected delivery order %v", got)
	}
	if !conn.closed {
		t.Fatalf("connection not closed on shutdown")
	}
}

func TestShutdownDeliversAtMostOneMoreMessage(t *testing.T) {
	blockCh := make(chan receiveResult, 1)
	receiving := make(chan struct{})
	conn := &scriptedConn{blockCh: blockCh, receiving: receiving}
	dialer := &scriptedDialer{conns: []any{conn}}
	sup := newSupervisor(dialer, &recordingSink{})

	delivered := make(chan int64, 8)
	done := make(chan error, 1)
	go func() {
		done <- sup.Run([]models.Symbol{models.BTC}, func(tr *models.Trade) {
			delivered <- tr.Timestamp
		})
	}()

	// wait for the connection to be up and a receive in flight, then shut
	// down and let that receive finish
	<-receiving
	sup.RequestShutdown()
	blockCh <- receiveResult{trade: btcTrade(10, 100)}

	if err := <-done; err != nil {
		t.Fatalf("run: %v", err)
	}
	close(delivered)
	n := 0
	for range delivered {
		n++
	}
	if n > 1 {
		t.Fatalf("delivered %d messages after shutdown, want at most 1", n)
	}
	if dialer.dials != 1 {
		t.Fatalf("reconnected after shutdown: %d dials", dialer.dials)
	}
}

func TestReceiveFailureReconnectsWithAlert(t *testing.T) {
	first := &scriptedConn{script: []receiveResult{
		{trade: btcTrade(1, 100)},
		{err: errors.New("connection reset")},
	}}
	second := &scriptedConn{script: []receiveResult{
		{trade: btcTrade(2, 101)},
	}}
	dialer := &scriptedDialer{conns: []any{first, second}}
	sink := &recordingSink{}
	sup := newSupervisor(dialer, sink)

	var got []int64
	_ = sup.Run([]models.Symbol{models.BTC}, func(tr *models.Trade) {
		got = append(got, tr.Timestamp)
		if tr.Timestamp == 2 {
			sup.RequestShutdown()
		}
	})

	if len(got) != 2 {
		t.Fatalf("expected both trades across reconnect, got %v", got)
	}
	if !first.closed {
		t.Fatalf("failed connection not closed")
	}
	if sink.count() != 1 {
		t.Fatalf("expected 1 disconnect alert, got %d", sink.count())
	}
}

func TestAttemptLimitExhaustionIsFatal(t *testing.T) {
	dialer := &scriptedDialer{conns: []any{
		errors.New("dial tcp: refused"),
		errors.New("dial tcp: refused"),
	}}
	sink := &recordingSink{}
	sup := newSupervisor(dialer, sink, WithAttemptLimit(2))

	err := sup.Run([]models.Symbol{models.BTC}, func(*models.Trade) {})
	if !errors.Is(err, ErrRetriesExhausted) {
		t.Fatalf("expected ErrRetriesExhausted, got %v", err)
	}
	// one warning per failed attempt plus the final critical
	if sink.count() != 3 {
		t.Fatalf("expected 3 alerts, got %d", sink.count())
	}
	last := sink.sev[len(sink.sev)-1]
	if last != drepo.SeverityCritical {
		t.Fatalf("final alert severity = %s, want critical", last)
	}
}

func TestAttemptsResetAfterSuccessfulConnect(t *testing.T) {
	// limit 2: fail, connect (resets), fail after drop, fail again -> exhausted.
	// Without the reset the third dial would never happen.
	conn := &scriptedConn{script: []receiveResult{{err: errors.New("reset")}}}
	dialer := &scriptedDialer{conns: []any{
		errors.New("refused"), // attempt 1
		conn,                  // attempt 2 succeeds, counter resets
		errors.New("refused"), // attempt 1 again
		errors.New("refused"), // attempt 2 -> exhausted
	}}
	sup := newSupervisor(dialer, &recordingSink{}, WithAttemptLimit(2))

	err := sup.Run([]models.Symbol{models.BTC}, func(*models.Trade) {})
	if !errors.Is(err, ErrRetriesExhausted) {
		t.Fatalf("expected ErrRetriesExhausted, got %v", err)
	}
	if dialer.dials != 4 {
		t.Fatalf("expected 4 dial attempts, got %d", dialer.dials)
	}
}

func TestSupervisorIsSingleUse(t *testing.T) {
	conn := &scriptedConn{script: []receiveResult{{trade: btcTrade(1, 100)}}}
	dialer := &scriptedDialer{conns: []any{conn}}
	sup := newSupervisor(dialer, &recordingSink{})

	_ = sup.Run([]models.Symbol{models.BTC}, func(*models.Trade) { sup.RequestShutdown() })

	if err := sup.Run([]models.Symbol{models.BTC}, func(*models.Trade) {}); !errors.Is(err, ErrAlreadyRan) {
		t.Fatalf("expected ErrAlreadyRan, got %v", err)
	}
}

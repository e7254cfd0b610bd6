// Package alerting composes alert sinks and keeps a bounded in-memory record
// of recent alerts for the operations API.
package alerting

import (
	"sync"
	"time"

	drepo "CryptoPull/internal/domain/repository"
)

// Entry is one recorded alert.
type Entry struct {
	Time     time.Time      `json:"time"`
	Severity drepo.Severity `json:"severity"`
	Message  string         `json:"message"`
}

// Ring wraps another sink and remembers the most recent alerts, newest last.
// When full, the oldest entry is evicted.
type Ring struct {
	next drepo.AlertSink
	now  func() time.Time

	mu      sync.Mutex
	entries []Entry
	cap     int
}

// NewRing decorates next with a record of the last capacity alerts. A nil next
// makes the ring terminal; capacity below 1 defaults to 100.
func NewRing(next drepo.AlertSink, capacity int) *Ring {
	if capacity < 1 {
		capacity = 100
	}
	return &Ring{next: next, now: time.Now, cap: capacity}
}

// Notify implements repository.AlertSink.
func (r *Ring) Notify(severity drepo.Severity, message string) {
	r.mu.Lock()
	r.entries = append(r.entries, Entry{Time: r.now(), Severity: severity, Message: message})
	if len(r.entries) > r.cap {
		r.entries = r.entries[len(r.entries)-r.cap:]
	}
	r.mu.Unlock()

	if r.next != nil {
		r.next.Notify(severity, message)
	}
}

// Recent returns up to limit of the newest alerts, newest first. limit <= 0
// returns everything recorded.
func (r *Ring) Recent(limit int) []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := len(r.entries)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]Entry, n)
	for i := 0; i < n; i++ {
		out[i] = r.entries[len(r.entries)-1-i]
	}
	return out
}

// Fanout delivers every alert to all sinks in order.
type Fanout []drepo.AlertSink

// Notify implements repository.AlertSink.
func (f Fanout) Notify(severity drepo.Severity, message string) {
	for _, sink := range f {
		sink.Notify(severity, message)
	}
}

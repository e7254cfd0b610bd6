package alerting

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	drepo "CryptoPull/internal/domain/repository"
)

type captureSink struct {
	messages []string
}

func (c *captureSink) Notify(_ drepo.Severity, message string) {
	c.messages = append(c.messages, message)
}

func TestRingForwardsAndRecords(t *testing.T) {
	next := &captureSink{}
	ring := NewRing(next, 10)

	ring.Notify(drepo.SeverityWarning, "first")
	ring.Notify(drepo.SeverityCritical, "second")

	assert.Equal(t, []string{"first", "second"}, next.messages)

	recent := ring.Recent(0)
	assert.Len(t, recent, 2)
	assert.Equal(t, "second", recent[0].Message, "newest first")
	assert.Equal(t, drepo.SeverityCritical, recent[0].Severity)
}

func TestRingEvictsOldest(t *testing.T) {
	ring := NewRing(nil, 2)
	ring.Notify(drepo.SeverityWarning, "a")
	ring.Notify(drepo.SeverityWarning, "b")
	ring.Notify(drepo.SeverityWarning, "c")

	recent := ring.Recent(0)
	assert.Len(t, recent, 2)
	assert.Equal(t, "c", recent[0].Message)
	assert.Equal(t, "b", recent[1].Message)
}

func TestRingRecentLimit(t *testing.T) {
	ring := NewRing(nil, 10)
	for _, m := range []string{"a", "b", "c"} {
		ring.Notify(drepo.SeverityWarning, m)
	}
	recent := ring.Recent(1)
	assert.Len(t, recent, 1)
	assert.Equal(t, "c", recent[0].Message)
}

func TestRingTimestamps(t *testing.T) {
	ring := NewRing(nil, 10)
	fixed := time.Date(2021, 5, 1, 12, 0, 0, 0, time.UTC)
	ring.now = func() time.Time { return fixed }

	ring.Notify(drepo.SeverityWarning, "a")
	assert.Equal(t, fixed, ring.Recent(0)[0].Time)
}

func TestFanoutDeliversToAll(t *testing.T) {
	a, b := &captureSink{}, &captureSink{}
	Fanout{a, b}.Notify(drepo.SeverityCritical, "down")

	assert.Equal(t, []string{"down"}, a.messages)
	assert.Equal(t, []string{"down"}, b.messages)
}

package sync

import (
	gosync "sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type schedHarness struct {
	healthy bool
	last    time.Time
	fetches int

	mu     gosync.Mutex
	posted []func()
}

func (h *schedHarness) post(fn func()) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.posted = append(h.posted, fn)
	return true
}

func (h *schedHarness) drain() []func() {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := h.posted
	h.posted = nil
	return out
}

func newSchedHarness(interval, grace time.Duration) (*Scheduler, *schedHarness) {
	h := &schedHarness{}
	s := NewScheduler(
		interval,
		grace,
		func() bool { return h.healthy },
		func() time.Time { return h.last },
		func() { h.fetches++ },
		h.post,
		time.Now,
	)
	return s, h
}

func TestShouldFetchSkipsWhenHealthy(t *testing.T) {
	s, h := newSchedHarness(30*time.Second, 25*time.Second)
	now := time.Now()

	h.healthy = true
	assert.False(t, s.ShouldFetch(now))

	h.healthy = false
	assert.True(t, s.ShouldFetch(now))
}

func TestShouldFetchHonoursGrace(t *testing.T) {
	s, h := newSchedHarness(30*time.Second, 25*time.Second)
	now := time.Now()

	h.last = now.Add(-10 * time.Second)
	assert.False(t, s.ShouldFetch(now))
	assert.False(t, s.ShouldFetch(now.Add(14*time.Second)))
	assert.True(t, s.ShouldFetch(now.Add(15*time.Second)))
	assert.True(t, s.ShouldFetch(now.Add(20*time.Second)))
}

func TestTickRequiresRunning(t *testing.T) {
	s, h := newSchedHarness(time.Hour, 25*time.Second)
	now := time.Now()

	assert.False(t, s.Tick(now))
	assert.Equal(t, 0, h.fetches)

	s.Start()
	defer s.Stop()
	assert.True(t, s.Tick(now))
	assert.Equal(t, 1, h.fetches)
}

func TestTickSkipsWhileInFlight(t *testing.T) {
	s, h := newSchedHarness(time.Hour, 0)
	s.Start()
	defer s.Stop()
	now := time.Now()

	assert.True(t, s.Tick(now))
	assert.False(t, s.Tick(now.Add(time.Minute)))
	s.FetchDone()
	assert.True(t, s.Tick(now.Add(2*time.Minute)))
	assert.Equal(t, 2, h.fetches)
}

func TestFailedFetchRetriesNextTick(t *testing.T) {
	s, h := newSchedHarness(time.Hour, 25*time.Second)
	s.Start()
	defer s.Stop()
	now := time.Now()

	assert.True(t, s.Tick(now))
	// The fetch failed: lastSync did not move.
	s.FetchDone()
	assert.True(t, s.Tick(now.Add(30*time.Second)))
	assert.Equal(t, 2, h.fetches)
	assert.True(t, s.Running())
}

func TestStrayTickAfterStopIsNoop(t *testing.T) {
	s, h := newSchedHarness(10*time.Millisecond, 0)
	s.Start()
	assert.Eventually(t, func() bool {
		h.mu.Lock()
		defer h.mu.Unlock()
		return len(h.posted) > 0
	}, time.Second, 5*time.Millisecond)
	s.Stop()

	for _, fn := range h.drain() {
		fn()
	}
	assert.Equal(t, 0, h.fetches)
}

func TestStrayTickAfterRestartIsNoop(t *testing.T) {
	s, h := newSchedHarness(10*time.Millisecond, 0)
	s.Start()
	defer s.Stop()
	assert.Eventually(t, func() bool {
		h.mu.Lock()
		defer h.mu.Unlock()
		return len(h.posted) > 0
	}, time.Second, 5*time.Millisecond)

	// Restarts the ticker; ticks from the old one are still queued.
	s.SetTiming(time.Hour, 0)
	assert.True(t, s.Running())

	for _, fn := range h.drain() {
		fn()
	}
	assert.Equal(t, 0, h.fetches)
	assert.True(t, s.Tick(time.Now()))
}

func TestSetTimingDefaults(t *testing.T) {
	s, _ := newSchedHarness(0, -1)
	assert.Equal(t, defaultPollInterval, s.Interval())
	assert.Equal(t, defaultGrace, s.Grace())

	s.SetTiming(time.Minute, 5*time.Second)
	assert.Equal(t, time.Minute, s.Interval())
	assert.Equal(t, 5*time.Second, s.Grace())
}

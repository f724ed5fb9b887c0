package sync

import (
	"time"
)

const (
	defaultPollInterval = 30 * time.Second
	defaultGrace        = 25 * time.Second
)

// Scheduler is the poll fallback. It ticks at a fixed interval and, when
// the push channel is unhealthy, asks for a full fetch. Ticks are posted
// to the service loop; every method except the ticker goroutine runs on
// that loop.
type Scheduler struct {
	interval time.Duration
	grace    time.Duration

	healthy  func() bool
	lastSync func() time.Time
	fetch    func()
	post     func(func()) bool
	now      func() time.Time

	alive    bool
	inFlight bool
	gen      uint64
	stopCh   chan struct{}
}

// NewScheduler builds a stopped scheduler. fetch must start the fetch
// asynchronously and arrange for FetchDone to be called on the loop.
func NewScheduler(
	interval, grace time.Duration,
	healthy func() bool,
	lastSync func() time.Time,
	fetch func(),
	post func(func()) bool,
	now func() time.Time,
) *Scheduler {
	s := &Scheduler{
		healthy:  healthy,
		lastSync: lastSync,
		fetch:    fetch,
		post:     post,
		now:      now,
	}
	s.setTiming(interval, grace)
	return s
}

func (s *Scheduler) setTiming(interval, grace time.Duration) {
	if interval <= 0 {
		interval = defaultPollInterval
	}
	if grace < 0 {
		grace = defaultGrace
	}
	s.interval = interval
	s.grace = grace
}

// SetTiming changes the tick interval and grace period. A running ticker
// is restarted with the new interval.
func (s *Scheduler) SetTiming(interval, grace time.Duration) {
	s.setTiming(interval, grace)
	if s.alive {
		s.Stop()
		s.Start()
	}
}

// Interval returns the tick interval.
func (s *Scheduler) Interval() time.Duration { return s.interval }

// Grace returns the minimum gap after a successful sync before polling.
func (s *Scheduler) Grace() time.Duration { return s.grace }

// Running reports whether the ticker is active.
func (s *Scheduler) Running() bool { return s.alive }

// Start begins ticking. Starting a running scheduler is a no-op.
func (s *Scheduler) Start() {
	if s.alive {
		return
	}
	s.alive = true
	s.gen++
	s.stopCh = make(chan struct{})
	go s.tickLoop(s.interval, s.gen, s.stopCh)
}

// Stop halts the ticker. A tick already queued on the loop becomes a
// no-op, even if the scheduler is started again before it runs.
func (s *Scheduler) Stop() {
	if !s.alive {
		return
	}
	s.alive = false
	close(s.stopCh)
}

func (s *Scheduler) tickLoop(interval time.Duration, gen uint64, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if !s.post(func() { s.tick(gen) }) {
				return
			}
		}
	}
}

// tick handles a timer tick from the ticker started as generation gen.
func (s *Scheduler) tick(gen uint64) {
	if gen != s.gen {
		return
	}
	s.Tick(s.now())
}

// ShouldFetch reports whether a tick at now would fetch: the channel is
// unhealthy, no poll is in flight, and the last successful sync is older
// than the grace period.
func (s *Scheduler) ShouldFetch(now time.Time) bool {
	if s.healthy() || s.inFlight {
		return false
	}
	last := s.lastSync()
	if !last.IsZero() && now.Sub(last) < s.grace {
		return false
	}
	return true
}

// Tick handles one timer tick and reports whether a fetch was started.
func (s *Scheduler) Tick(now time.Time) bool {
	if !s.alive || !s.ShouldFetch(now) {
		return false
	}
	s.inFlight = true
	s.fetch()
	return true
}

// FetchDone clears the in-flight mark. Failures need no handling here;
// the next tick simply tries again.
func (s *Scheduler) FetchDone() {
	s.inFlight = false
}

package watchping

import (
	"math"
	"sync"
	"sync/atomic"
	"time"
)

// Clock gives the current time. The session never reads time any other way.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// RunState is the mutable state of one session. Only the session components
// write it, always from the goroutine running the dispatcher.
type RunState struct {
	Transmitted      int64
	Received         int64
	Duplicates       int64
	ChecksumFailures int64
	Errors           int64

	// Round-trip aggregates, in microseconds.
	RTTMin   int64
	RTTMax   int64
	RTTSum   int64
	RTTSumSq float64
	RTTCount int64
	// RTTEWMA is scaled by 8.
	RTTEWMA   int64
	RTTAddend int64

	// Interval is in milliseconds, it moves in adaptive mode.
	Interval int64
	Preload  int64
	tokens   int64
	lastSend time.Time
	Start    time.Time

	window *window

	Exiting         bool
	DeadlineArmed   bool
	StatusRequested bool
	// Latency is set when receive times are sampled in user space.
	Latency         bool
	FilterInstalled bool

	deadlineAt time.Time
	exitAt     time.Time
}

func newRunState(o *options) *RunState {
	s := &RunState{
		RTTMin:   math.MaxInt64,
		Interval: o.interval.Milliseconds(),
		Preload:  int64(o.preload),
		Latency:  o.latency,
		Start:    o.clock.Now(),
	}
	if o.window > 0 {
		s.window = newWindow(o.window)
	}
	return s
}

// InFlight is the number of probes sent and not resolved yet.
func (s *RunState) InFlight() int64 {
	n := s.Transmitted - s.Received - s.Errors
	if n < 0 {
		return 0
	}
	return n
}

func (s *RunState) advanceTransmitted() {
	s.Transmitted++
	if s.window != nil {
		s.window.markTransmitted()
	}
}

// updateInterval recomputes the adaptive interval from the EWMA and backoff.
func (s *RunState) updateInterval(floor int64) {
	est := s.Interval * 1000
	if s.RTTEWMA != 0 {
		est = s.RTTEWMA / 8
	}
	s.Interval = (est + s.RTTAddend + 500) / 1000
	if floor > 0 && s.Interval < floor {
		s.Interval = floor
	}
}

// Requests carries the asynchronous "stop" and "snapshot" requests to the
// dispatcher. Any goroutine may raise them, only the dispatcher clears them.
type Requests struct {
	stop     atomic.Bool
	snapshot atomic.Bool
	once     sync.Once
	done     chan struct{}
}

func NewRequests() *Requests {
	return &Requests{done: make(chan struct{})}
}

// Stop asks the session to stop at its next checkpoint.
func (r *Requests) Stop() {
	r.stop.Store(true)
	r.once.Do(func() { close(r.done) })
}

// Snapshot asks for the current statistics at the next checkpoint.
func (r *Requests) Snapshot() {
	r.snapshot.Store(true)
}

// Done is closed once Stop was called.
func (r *Requests) Done() <-chan struct{} {
	return r.done
}

func (r *Requests) stopRequested() bool {
	return r.stop.Load()
}

func (r *Requests) takeSnapshot() bool {
	return r.snapshot.Swap(false)
}

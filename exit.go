package watchping

import "time"

// ExitScheduler computes, once per session, how long to linger for late
// replies after the last probe.
type ExitScheduler struct {
	st     *RunState
	clock  Clock
	linger time.Duration

	wait     int64 // microseconds
	computed bool
}

func NewExitScheduler(st *RunState, o *options) *ExitScheduler {
	return &ExitScheduler{st: st, clock: o.clock, linger: o.linger}
}

// Schedule returns the delay, in milliseconds, to use instead of next. The
// first call arms the exit timer.
func (e *ExitScheduler) Schedule(next int64) int64 {
	if !e.computed {
		if e.st.Received > 0 {
			e.wait = 2 * e.st.RTTMax
			if e.wait < 1000*e.st.Interval {
				e.wait = 1000 * e.st.Interval
			}
		} else {
			e.wait = e.linger.Microseconds()
		}
		e.computed = true
		e.st.exitAt = e.clock.Now().Add(usec(e.wait))
	}
	if next < 0 || next < e.wait/1000 {
		next = e.wait / 1000
	}
	return next
}

// Wait returns the lingering time, if computed.
func (e *ExitScheduler) Wait() (time.Duration, bool) {
	return usec(e.wait), e.computed
}

package watchping

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestExit(t *testing.T, opts ...Option) (*ExitScheduler, *RunState, *fakeClock) {
	t.Helper()
	clock := newFakeClock()
	o, err := buildOptions(append([]Option{WithClock(clock)}, opts...)...)
	require.NoError(t, err)
	st := newRunState(&o)
	return NewExitScheduler(st, &o), st, clock
}

func TestExitSchedulerLinger(t *testing.T) {
	x, st, clock := newTestExit(t)
	_, ok := x.Wait()
	assert.False(t, ok)

	assert.Equal(t, int64(10000), x.Schedule(1000))
	assert.Equal(t, clock.Now().Add(DefaultLinger), st.exitAt)

	// Memoized, whatever happened since.
	st.Received = 3
	st.RTTMax = 900000
	clock.Advance(time.Second)
	assert.Equal(t, int64(10000), x.Schedule(1000))
	assert.Equal(t, clock.Now().Add(DefaultLinger-time.Second), st.exitAt)

	d, ok := x.Wait()
	assert.True(t, ok)
	assert.Equal(t, DefaultLinger, d)
}

func TestExitSchedulerCustomLinger(t *testing.T) {
	x, _, _ := newTestExit(t, WithLinger(3*time.Second))
	assert.Equal(t, int64(3000), x.Schedule(-5))
}

func TestExitSchedulerReplies(t *testing.T) {
	x, st, _ := newTestExit(t, WithInterval(200*time.Millisecond))
	st.Received = 2
	st.RTTMax = 150000
	// Twice the worst round trip time beats the interval.
	assert.Equal(t, int64(300), x.Schedule(100))

	x, st, _ = newTestExit(t, WithInterval(time.Second))
	st.Received = 2
	st.RTTMax = 15000
	assert.Equal(t, int64(1000), x.Schedule(100))
	assert.Equal(t, int64(5000), x.Schedule(5000))
}

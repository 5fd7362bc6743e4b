package watchping

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSequenceTrackerDuplicate(t *testing.T) {
	tr := NewSequenceTracker(&RunState{}, MaxDupCheck)
	assert.False(t, tr.TestAndMarkReceived(1))
	assert.True(t, tr.TestAndMarkReceived(1))
	assert.True(t, tr.Received(1))
	assert.False(t, tr.Received(2))
}

func TestSequenceTrackerMarkSent(t *testing.T) {
	tr := NewSequenceTracker(&RunState{}, 64)
	assert.False(t, tr.TestAndMarkReceived(3))
	// 67 shares the slot of 3 and reuses it.
	assert.True(t, tr.Received(67))
	tr.MarkSent(67)
	assert.False(t, tr.Received(3))
	assert.False(t, tr.TestAndMarkReceived(67))
}

func TestSequenceTrackerSize(t *testing.T) {
	assert.Equal(t, MaxDupCheck, NewSequenceTracker(&RunState{}, 0).size)
	assert.Equal(t, MaxDupCheck, NewSequenceTracker(&RunState{}, MaxDupCheck+1).size)
	assert.Len(t, NewSequenceTracker(&RunState{}, 100).bits, 2)
}

func TestSequenceTrackerInFlight(t *testing.T) {
	st := &RunState{Transmitted: 5, Received: 2, Errors: 1}
	tr := NewSequenceTracker(st, 0)
	assert.Equal(t, int64(2), tr.InFlight())
	st.Received = 5
	assert.Equal(t, int64(0), tr.InFlight())
}

package watchping

// SequenceTracker remembers which sequence numbers were answered, over a
// window of the last size sequence numbers. Older bits are reused, so a very
// late reply to a probe sent more than size probes ago may be seen as a
// duplicate.
type SequenceTracker struct {
	st   *RunState
	bits []uint64
	size int
}

func NewSequenceTracker(st *RunState, size int) *SequenceTracker {
	if size <= 0 || size > MaxDupCheck {
		size = MaxDupCheck
	}
	return &SequenceTracker{
		st:   st,
		bits: make([]uint64, (size+63)/64),
		size: size,
	}
}

func (t *SequenceTracker) slot(seq uint16) (int, uint64) {
	n := int(seq) % t.size
	return n / 64, 1 << (uint(n) % 64)
}

// MarkSent clears the receipt bit of seq before it goes on the wire.
func (t *SequenceTracker) MarkSent(seq uint16) {
	i, m := t.slot(seq)
	t.bits[i] &^= m
}

// TestAndMarkReceived reports whether seq was already seen, and marks it.
func (t *SequenceTracker) TestAndMarkReceived(seq uint16) bool {
	i, m := t.slot(seq)
	if t.bits[i]&m != 0 {
		return true
	}
	t.bits[i] |= m
	return false
}

// Received reports whether seq was answered, without marking it.
func (t *SequenceTracker) Received(seq uint16) bool {
	i, m := t.slot(seq)
	return t.bits[i]&m != 0
}

// InFlight is the number of probes sent but not resolved yet.
func (t *SequenceTracker) InFlight() int64 {
	return t.st.InFlight()
}

package watchping

// window keeps the aggregates of the last probes of a session: the round
// trip times of the last len(rtts) timed replies, and the receipt status of
// the last len(status) transmitted probes.
type window struct {
	rtts   []int64 // ring, next write at rttCursor
	cursor int
	filled int
	sum    int64
	sumSq  float64
	min    int64
	max    int64

	status       []bool // ring indexed by transmission order
	statusCursor int
	transmitted  int64 // probes resident in status, at most len(status)
	received     int64
	total        int64 // probes ever transmitted
}

func newWindow(n int) *window {
	return &window{
		rtts:   make([]int64, n),
		status: make([]bool, n),
	}
}

// push records a round trip time, evicting the oldest one when full.
func (w *window) push(t int64) {
	var old int64
	evicted := w.filled == len(w.rtts)
	if evicted {
		old = w.rtts[w.cursor]
		w.sum -= old
		w.sumSq -= float64(old) * float64(old)
	}
	w.rtts[w.cursor] = t
	w.sum += t
	w.sumSq += float64(t) * float64(t)
	w.cursor = (w.cursor + 1) % len(w.rtts)
	if !evicted {
		w.filled++
	}

	if w.filled == 1 {
		w.min, w.max = t, t
		return
	}
	if evicted && (old == w.min || old == w.max) {
		w.rescan()
		return
	}
	if t < w.min {
		w.min = t
	}
	if t > w.max {
		w.max = t
	}
}

func (w *window) rescan() {
	w.min, w.max = w.rtts[0], w.rtts[0]
	for _, rtt := range w.rtts[:w.filled] {
		if rtt < w.min {
			w.min = rtt
		}
		if rtt > w.max {
			w.max = rtt
		}
	}
}

// live returns the resident round trip times, oldest first.
func (w *window) live() []int64 {
	out := make([]int64, 0, w.filled)
	start := 0
	if w.filled == len(w.rtts) {
		start = w.cursor
	}
	for i := 0; i < w.filled; i++ {
		out = append(out, w.rtts[(start+i)%len(w.rtts)])
	}
	return out
}

func (w *window) markTransmitted() {
	if w.status[w.statusCursor] {
		w.received--
	}
	w.status[w.statusCursor] = false
	w.statusCursor = (w.statusCursor + 1) % len(w.status)
	if w.transmitted < int64(len(w.status)) {
		w.transmitted++
	}
	w.total++
}

// markReceived flags the probe carrying seq, if it is still in the window.
func (w *window) markReceived(seq uint16) {
	back := int64(uint16(w.total) - seq)
	if w.total == 0 || back >= w.transmitted {
		return
	}
	n := len(w.status)
	slot := ((w.statusCursor-1-int(back))%n + n) % n
	if !w.status[slot] {
		w.status[slot] = true
		w.received++
	}
}

func (w *window) loss() float64 {
	if w.transmitted == 0 {
		return 0
	}
	return float64(w.transmitted-w.received) * 100 / float64(w.transmitted)
}

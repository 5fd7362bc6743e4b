package watchping

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWindowAggregates(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	for _, n := range []int{1, 2, 5, 16} {
		w := newWindow(n)
		for i := 0; i < 200; i++ {
			rtt := r.Int63n(5) * 1000
			if i%7 == 0 {
				rtt = r.Int63n(200000)
			}
			w.push(rtt)
			require.True(t, w.cursor >= 0 && w.cursor < n)

			live := w.live()
			require.Len(t, live, min(i+1, n))
			var sum int64
			var sumSq float64
			lo, hi := live[0], live[0]
			for _, v := range live {
				sum += v
				sumSq += float64(v) * float64(v)
				lo = min(lo, v)
				hi = max(hi, v)
			}
			assert.Equal(t, sum, w.sum)
			assert.Equal(t, sumSq, w.sumSq)
			assert.Equal(t, lo, w.min)
			assert.Equal(t, hi, w.max)
		}
	}
}

func TestWindowLive(t *testing.T) {
	w := newWindow(3)
	for _, v := range []int64{1, 2, 3, 4, 5} {
		w.push(v)
	}
	assert.Equal(t, []int64{3, 4, 5}, w.live())
}

func TestWindowLoss(t *testing.T) {
	w := newWindow(4)
	assert.Zero(t, w.loss())
	for i := 0; i < 10; i++ {
		w.markTransmitted()
	}
	for _, seq := range []uint16{7, 8, 9} {
		w.markReceived(seq)
	}
	// Too old to be in the window.
	w.markReceived(2)
	assert.Equal(t, int64(4), w.transmitted)
	assert.Equal(t, int64(3), w.received)
	assert.Equal(t, 25.0, w.loss())

	w.markTransmitted()
	assert.Equal(t, int64(2), w.received, "probe 7 left the window")
	w.markTransmitted()
	assert.Equal(t, int64(1), w.received)
	assert.Equal(t, 75.0, w.loss())
}

func TestWindowMarkReceivedTwice(t *testing.T) {
	w := newWindow(4)
	w.markTransmitted()
	w.markReceived(1)
	w.markReceived(1)
	assert.Equal(t, int64(1), w.received)
	assert.Zero(t, w.loss())
}

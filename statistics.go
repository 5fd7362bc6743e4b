package watchping

import (
	"math"
	"net"
	"time"

	"github.com/sirupsen/logrus"
)

type Statistics struct {
	// Addr is the string address of the host being pinged.
	Addr string

	// IPAddr is the address of the host being pinged.
	IPAddr net.IPAddr

	// PacketsSent is the number of probes transmitted.
	PacketsSent int64

	// PacketsRecv is the number of distinct valid replies.
	PacketsRecv int64

	// Duplicates and Corrupted replies are not part of PacketsRecv.
	Duplicates int64
	Corrupted  int64

	// Errors is the number of probes answered with an error.
	Errors int64

	// PacketLoss is the percentage of packets lost, over the last Window
	// probes when Window is not zero.
	PacketLoss float64

	// Window is the size of the sliding window, zero when disabled.
	Window int

	// Timed is set once at least one reply carried a usable timestamp.
	Timed bool

	MinRtt  time.Duration
	AvgRtt  time.Duration
	MaxRtt  time.Duration
	MDevRtt time.Duration
	EWMARtt time.Duration

	// IPG is the mean inter-packet gap, only set for flood, adaptive and
	// zero interval sessions.
	IPG time.Duration

	// Elapsed is the time between the session start and the last probe.
	Elapsed time.Duration

	// Final is set on the last statistics of a session.
	Final bool
}

// DupStatus classifies a reply.
type DupStatus int

const (
	New DupStatus = iota
	Duplicate
	ChecksumFailed
)

func (d DupStatus) String() string {
	switch d {
	case New:
		return "new"
	case Duplicate:
		return "duplicate"
	default:
		return "checksum failed"
	}
}

// Untimed is passed to RecordReply for replies without a send timestamp.
const Untimed = -1

// Engine keeps the running statistics of a session.
type Engine struct {
	st    *RunState
	seq   *SequenceTracker
	opts  *options
	log   logrus.FieldLogger
	clock Clock

	warnedClock bool
}

func NewEngine(st *RunState, seq *SequenceTracker, o *options) *Engine {
	return &Engine{
		st:    st,
		seq:   seq,
		opts:  o,
		log:   o.logger,
		clock: o.clock,
	}
}

// TripTime returns the round trip time in microseconds. When the clock went
// backwards the receive time is sampled again in user space, and the session
// stops trusting kernel timestamps.
func (e *Engine) TripTime(sent, recv time.Time) int64 {
	t := recv.Sub(sent).Microseconds()
	if t >= 0 {
		return t
	}
	if !e.warnedClock {
		e.log.Warnf("time of day goes back (%dus), taking countermeasures", t)
		e.warnedClock = true
	}
	t = 0
	if !e.st.Latency {
		e.st.Latency = true
		if t = e.clock.Now().Sub(sent).Microseconds(); t < 0 {
			t = 0
		}
	}
	return t
}

// RecordReply accounts a reply to seq. rtt is in microseconds, Untimed when
// unknown.
func (e *Engine) RecordReply(seq uint16, rtt int64, checksumOK, multicast bool) DupStatus {
	st := e.st
	if st.Received+st.Duplicates+st.ChecksumFailures >= st.Transmitted {
		e.log.Debugf("icmp_seq=%d: reply without matching probe", seq)
		if !checksumOK {
			return ChecksumFailed
		}
		return Duplicate
	}
	st.Received++
	if !checksumOK {
		st.Received--
		st.ChecksumFailures++
		return ChecksumFailed
	}
	if e.seq.TestAndMarkReceived(seq) {
		st.Received--
		st.Duplicates++
		if !multicast {
			e.log.Debugf("icmp_seq=%d: duplicate reply", seq)
		}
		return Duplicate
	}
	if st.window != nil {
		st.window.markReceived(seq)
	}
	if rtt >= 0 {
		e.recordRTT(rtt)
	}
	return New
}

func (e *Engine) recordRTT(t int64) {
	st := e.st
	st.RTTSum += t
	st.RTTSumSq += float64(t) * float64(t)
	st.RTTCount++
	if t < st.RTTMin {
		st.RTTMin = t
	}
	if t > st.RTTMax {
		st.RTTMax = t
	}
	if st.RTTEWMA == 0 {
		st.RTTEWMA = t * 8
	} else {
		st.RTTEWMA += t - st.RTTEWMA/8
	}
	if st.window != nil {
		st.window.push(t)
	}
	if e.opts.adaptive {
		st.updateInterval(e.opts.userFloor())
	}
}

// RecordError accounts an error answer to seq.
func (e *Engine) RecordError(seq uint16) {
	e.st.Errors++
	e.log.Debugf("icmp_seq=%d: error reply", seq)
}

// Finalize returns the statistics of the session so far.
func (e *Engine) Finalize() Statistics {
	st := e.st
	s := Statistics{
		PacketsSent: st.Transmitted,
		PacketsRecv: st.Received,
		Duplicates:  st.Duplicates,
		Corrupted:   st.ChecksumFailures,
		Errors:      st.Errors,
		EWMARtt:     usec(st.RTTEWMA / 8),
	}
	if !st.lastSend.IsZero() {
		s.Elapsed = st.lastSend.Sub(st.Start)
	}
	if st.Transmitted > 0 {
		if st.window != nil {
			s.Window = len(st.window.status)
			s.PacketLoss = st.window.loss()
		} else {
			s.PacketLoss = float64(st.Transmitted-st.Received) * 100 / float64(st.Transmitted)
		}
	}

	sum, sumSq, n, min, max := st.RTTSum, st.RTTSumSq, st.RTTCount, st.RTTMin, st.RTTMax
	if w := st.window; w != nil {
		sum, sumSq, n, min, max = w.sum, w.sumSq, int64(w.filled), w.min, w.max
	}
	if st.Received > 0 && n > 0 {
		s.Timed = true
		s.MinRtt = usec(min)
		s.AvgRtt = usec(sum / n)
		s.MaxRtt = usec(max)
		s.MDevRtt = usec(mdev(sum, sumSq, n))
	}
	if st.Received > 0 && st.Transmitted > 1 && (st.Interval == 0 || e.opts.flood || e.opts.adaptive) {
		s.IPG = s.Elapsed / time.Duration(st.Transmitted-1)
	}
	return s
}

// Snapshot is a cheap progress report over the whole session, loss is
// rounded down to a whole percent.
func (e *Engine) Snapshot() Statistics {
	st := e.st
	s := Statistics{
		PacketsSent: st.Transmitted,
		PacketsRecv: st.Received,
		Duplicates:  st.Duplicates,
		Corrupted:   st.ChecksumFailures,
		Errors:      st.Errors,
	}
	if st.Transmitted > 0 {
		s.PacketLoss = float64((st.Transmitted - st.Received) * 100 / st.Transmitted)
	}
	if st.Received > 0 && st.RTTCount > 0 {
		s.Timed = true
		s.MinRtt = usec(st.RTTMin)
		s.AvgRtt = usec(st.RTTSum / st.RTTCount)
		s.MaxRtt = usec(st.RTTMax)
		s.EWMARtt = usec(st.RTTEWMA / 8)
	}
	return s
}

// mdev is the population standard deviation of n samples, in microseconds.
func mdev(sum int64, sumSq float64, n int64) int64 {
	sum2 := int64(sumSq)
	var variance int64
	if sum < math.MaxInt32 {
		// Subtract before dividing, it keeps small round trip times exact.
		variance = (sum2 - sum*sum/n) / n
	} else {
		avg := sum / n
		variance = sum2/n - avg*avg
	}
	return llsqrt(variance)
}

// llsqrt is the integer square root, by Newton's method.
func llsqrt(a int64) int64 {
	if a <= 0 {
		return 0
	}
	prev := int64(math.MaxInt64)
	x := a
	for x < prev {
		prev = x
		x = (x + a/x) / 2
	}
	return x
}

func usec(v int64) time.Duration {
	return time.Duration(v) * time.Microsecond
}

func logStats(log logrus.FieldLogger, s Statistics) {
	log.WithFields(logrus.Fields{
		"host":       s.Addr,
		"address":    s.IPAddr.String(),
		"sent":       s.PacketsSent,
		"received":   s.PacketsRecv,
		"duplicates": s.Duplicates,
		"corrupted":  s.Corrupted,
		"errors":     s.Errors,
		"loss":       s.PacketLoss,
		"min":        s.MinRtt,
		"mean":       s.AvgRtt,
		"max":        s.MaxRtt,
		"mdev":       s.MDevRtt,
	}).Debug()
}

package watchping

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

const (
	// minInterval is the floor, in milliseconds, of flood and retry delays.
	minInterval = 10
	// idleDelay is returned when there is nothing left to send.
	idleDelay = 1000
	// maxBackoff bounds the retry delay after a resource exhaustion.
	maxBackoff = 500
	// maxAddend bounds one backoff step, in microseconds.
	maxAddend = 50000
)

func schedInterval(ms int64) int64 {
	if ms < minInterval {
		return minInterval
	}
	return ms
}

// Pacer is a token bucket deciding when the next probe goes out.
type Pacer struct {
	st     *RunState
	wire   Wire
	seq    *SequenceTracker
	engine *Engine
	opts   *options
	log    logrus.FieldLogger

	oomCount int64
}

func NewPacer(st *RunState, w Wire, seq *SequenceTracker, e *Engine, o *options) *Pacer {
	return &Pacer{st: st, wire: w, seq: seq, engine: e, opts: o, log: o.logger}
}

// Tick sends a probe if the bucket allows it. It returns the delay in
// milliseconds until the next probe is due, zero or less meaning now.
func (p *Pacer) Tick() int64 {
	st := p.st
	if st.Exiting || (p.opts.count > 0 && st.Transmitted >= p.opts.count && p.opts.deadline == 0) {
		return idleDelay
	}

	now := p.opts.clock.Now()
	if st.lastSend.IsZero() {
		st.lastSend = now
		st.tokens = st.Interval * (st.Preload - 1)
	} else {
		ntokens := now.Sub(st.lastSend).Milliseconds()
		if st.Interval == 0 {
			// Unlimited rate is held to 100pps while replies do not come back.
			if ntokens < minInterval && st.InFlight() >= st.Preload {
				return minInterval - ntokens
			}
		}
		ntokens += st.tokens
		if limit := st.Interval * st.Preload; limit < ntokens {
			ntokens = limit
		}
		if ntokens < st.Interval {
			return st.Interval - ntokens
		}
		st.lastSend = now
		st.tokens = ntokens - st.Interval
	}

	if p.opts.outstanding && st.Transmitted > 0 && !p.seq.Received(uint16(st.Transmitted)) {
		p.log.Infof("no answer yet for icmp_seq=%d", uint16(st.Transmitted))
	}
	return p.send()
}

func (p *Pacer) send() int64 {
	st := p.st
	seq := uint16(st.Transmitted + 1)
	p.seq.MarkSent(seq)

	status, err := p.wire.SendProbe(Probe{Seq: seq, Sent: p.opts.clock.Now()})
	switch status {
	case Sent:
		p.oomCount = 0
		st.advanceTransmitted()
		return st.Interval - st.tokens
	case WouldBlock:
		st.tokens += st.Interval
		return minInterval
	case ResourceExhausted:
		st.tokens = 0
		if st.RTTEWMA < 8*maxAddend {
			st.RTTAddend += st.RTTEWMA / 8
		} else {
			st.RTTAddend += maxAddend
		}
		if p.opts.adaptive {
			st.updateInterval(p.opts.userFloor())
		}
		backoff := schedInterval(st.Interval / 2)
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
		p.oomCount++
		if p.oomCount*backoff < p.opts.linger.Milliseconds() {
			p.log.Debugf("icmp_seq=%d: %v, retrying in %dms", seq, err, backoff)
			return backoff
		}
		err = fmt.Errorf("send queue stalled for %d attempts: %w", p.oomCount, err)
	default:
		if qe, found, _ := p.wire.DrainErrorQueue(); found {
			p.engine.RecordError(qe.Seq)
			if qe.Err != nil {
				err = qe.Err
			}
		}
	}

	// Count the probe anyway, so that timing stays consistent.
	st.advanceTransmitted()
	p.log.WithError(err).Warnf("icmp_seq=%d: send failed", seq)
	st.tokens = 0
	return schedInterval(st.Interval)
}

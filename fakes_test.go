package watchping

import (
	"encoding/binary"
	"errors"
	"net"
	"sort"
	"sync"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type pending struct {
	seq uint16
	due time.Time
	dup bool
}

// fakeTransport answers probes after the round trip time rtt returns for
// their sequence, on a fake clock. A negative round trip time drops the probe.
type fakeTransport struct {
	clock *fakeClock
	rtt   func(seq uint16) time.Duration
	raw   bool

	// statuses are returned by SendProbe in order, then Sent.
	statuses []SendStatus
	queue    []QueueError
	foreign  int

	// quoted are ICMP errors for these sequences read on the receive path,
	// also reported by the error queue.
	quoted []uint16

	sent     map[uint16]time.Time
	pending  []pending
	probes   []Probe
	filtered int
	closed   bool
}

func newFakeTransport(clock *fakeClock, rtt func(seq uint16) time.Duration) *fakeTransport {
	return &fakeTransport{clock: clock, rtt: rtt, sent: make(map[uint16]time.Time)}
}

func (f *fakeTransport) SendProbe(p Probe) (SendStatus, error) {
	if len(f.statuses) > 0 {
		s := f.statuses[0]
		f.statuses = f.statuses[1:]
		if s != Sent {
			return s, ErrWouldBlock
		}
	}
	f.probes = append(f.probes, p)
	f.sent[p.Seq] = p.Sent
	if f.rtt != nil {
		if d := f.rtt(p.Seq); d >= 0 {
			f.pending = append(f.pending, pending{seq: p.Seq, due: p.Sent.Add(d)})
			sort.Slice(f.pending, func(i, j int) bool { return f.pending[i].due.Before(f.pending[j].due) })
		}
	}
	return Sent, nil
}

func (f *fakeTransport) ParseReply(d Datagram) (Reply, bool) {
	if len(d.Data) != 3 || d.Data[2] > 1 {
		return Reply{}, false
	}
	seq := binary.BigEndian.Uint16(d.Data)
	if d.Data[2] == 1 {
		return Reply{Seq: seq, From: d.From, Err: errors.New("time exceeded"), Queued: true}, true
	}
	sent, ok := f.sent[seq]
	if !ok {
		return Reply{}, false
	}
	return Reply{
		Seq:        seq,
		Sent:       sent,
		Timed:      true,
		ChecksumOK: true,
		Hops:       64,
		Size:       64,
		From:       d.From,
	}, true
}

func (f *fakeTransport) DrainErrorQueue() (QueueError, bool, error) {
	if len(f.queue) == 0 {
		return QueueError{}, false, ErrWouldBlock
	}
	qe := f.queue[0]
	f.queue = f.queue[1:]
	return qe, true, nil
}

func (f *fakeTransport) InstallForeignTrafficFilter() error {
	f.filtered++
	f.foreign = 0
	return nil
}

func (f *fakeTransport) Wait(timeout time.Duration) (bool, bool, error) {
	if len(f.queue) > 0 {
		return false, true, nil
	}
	if f.foreign > 0 || len(f.quoted) > 0 {
		return true, false, nil
	}
	now := f.clock.Now()
	if len(f.pending) > 0 {
		if wait := f.pending[0].due.Sub(now); wait <= timeout {
			if wait > 0 {
				f.clock.Advance(wait)
			}
			return true, false, nil
		}
	}
	f.clock.Advance(timeout)
	return false, false, nil
}

func (f *fakeTransport) Recv(buf []byte) (Datagram, error) {
	now := f.clock.Now()
	if f.foreign > 0 {
		f.foreign--
		n := copy(buf, []byte{0, 1, 9})
		return Datagram{Data: buf[:n], From: net.IPv4(192, 0, 2, 9), Received: now, Hops: 64}, nil
	}
	if len(f.quoted) > 0 {
		seq := f.quoted[0]
		f.quoted = f.quoted[1:]
		binary.BigEndian.PutUint16(buf, seq)
		buf[2] = 1
		return Datagram{Data: buf[:3], From: net.IPv4(198, 51, 100, 1), Received: now, Hops: 64}, nil
	}
	if len(f.pending) == 0 || f.pending[0].due.After(now) {
		return Datagram{}, ErrWouldBlock
	}
	p := f.pending[0]
	f.pending = f.pending[1:]
	binary.BigEndian.PutUint16(buf, p.seq)
	buf[2] = 0
	return Datagram{Data: buf[:3], From: net.IPv4(127, 0, 0, 1), Received: now, Hops: 64}, nil
}

func (f *fakeTransport) Raw() bool {
	return f.raw
}

func (f *fakeTransport) Close() error {
	f.closed = true
	return nil
}

// rtts answers probe n after rtts[n-1].
func rtts(d ...time.Duration) func(uint16) time.Duration {
	return func(seq uint16) time.Duration {
		if int(seq) > len(d) || seq == 0 {
			return -1
		}
		return d[seq-1]
	}
}

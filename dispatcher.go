package watchping

import (
	"context"
	"errors"
	"net"
	"runtime"
	"time"

	"github.com/sirupsen/logrus"
)

// tickResolution is the delay, in milliseconds, below which waiting on the
// socket is pointless and we either spin or sleep minInterval.
const tickResolution = 10

// Packet describes one reply, for display.
type Packet struct {
	Seq       uint16
	Nbytes    int
	IPAddr    net.IP
	Addr      string
	Hops      int
	Rtt       time.Duration
	Timed     bool
	Multicast bool
	Dup       bool
	Corrupted bool
	Err       error
}

// Dispatcher runs one cycle of the session per refresh: it sends what is
// due, waits for replies and drains them.
type Dispatcher struct {
	st     *RunState
	wire   Wire
	sock   Socket
	pacer  *Pacer
	exit   *ExitScheduler
	engine *Engine
	reqs   *Requests
	opts   *options
	log    logrus.FieldLogger
	names  *names

	buf []byte
}

func NewDispatcher(st *RunState, w Wire, s Socket, p *Pacer, x *ExitScheduler, e *Engine, r *Requests, o *options) *Dispatcher {
	return &Dispatcher{
		st:     st,
		wire:   w,
		sock:   s,
		pacer:  p,
		exit:   x,
		engine: e,
		reqs:   r,
		opts:   o,
		log:    o.logger,
		names:  newNames(o.resolverTimeout, r.Done()),
		buf:    make([]byte, 64*1024),
	}
}

// RunCycle runs one refresh cycle and reports whether the session is over.
func (d *Dispatcher) RunCycle(ctx context.Context) bool {
	st := d.st
	if d.shouldStop() {
		return true
	}
	if d.reqs.takeSnapshot() {
		st.StatusRequested = true
	}
	if st.StatusRequested {
		s := d.engine.Snapshot()
		if d.opts.onSnapshot != nil {
			d.opts.onSnapshot(s)
		}
		logStats(d.log, s)
		st.StatusRequested = false
	}

	var next int64
	for {
		next = d.pacer.Tick()
		if d.opts.count > 0 && st.Transmitted >= d.opts.count && d.opts.deadline == 0 {
			next = d.exit.Schedule(next)
		}
		if next > 0 {
			break
		}
	}

	polling := false
	recvErr := false
	if d.opts.adaptive || next < schedInterval(st.Interval) {
		if next <= tickResolution {
			if st.InFlight() > 0 {
				next = minInterval
			} else {
				next = 0
				polling = true
				runtime.Gosched()
			}
		}
	}
	if !polling {
		readable, errQueue, err := d.sock.Wait(d.waitBudget(next))
		if err != nil {
			d.log.WithError(err).Debug("poll failed")
			readable, errQueue, err = d.sock.Wait(d.waitBudget(minInterval))
		}
		if err == nil && !readable && !errQueue {
			return d.shouldStop()
		}
		recvErr = errQueue
	}

	d.drain(ctx, recvErr)
	return d.shouldStop()
}

// shouldStop evaluates the termination conditions, in order.
func (d *Dispatcher) shouldStop() bool {
	st := d.st
	now := d.opts.clock.Now()
	if d.opts.deadline > 0 && !st.DeadlineArmed {
		st.deadlineAt = st.Start.Add(d.opts.deadline)
		st.DeadlineArmed = true
	}
	if d.reqs.stopRequested() {
		st.Exiting = true
	}
	if st.DeadlineArmed && !now.Before(st.deadlineAt) {
		st.Exiting = true
	}
	if !st.exitAt.IsZero() && !now.Before(st.exitAt) {
		st.Exiting = true
	}
	switch {
	case st.Exiting:
		return true
	case d.opts.count > 0 && st.Received+st.Errors >= d.opts.count:
		return true
	case d.opts.deadline > 0 && st.Errors > 0:
		return true
	}
	return false
}

// waitBudget converts next to a duration, never past a pending timer.
func (d *Dispatcher) waitBudget(next int64) time.Duration {
	budget := time.Duration(next) * time.Millisecond
	now := d.opts.clock.Now()
	for _, at := range []time.Time{d.st.deadlineAt, d.st.exitAt} {
		if at.IsZero() {
			continue
		}
		if left := at.Sub(now); left < budget {
			budget = left
		}
	}
	if budget < 0 {
		return 0
	}
	return budget
}

func (d *Dispatcher) drain(ctx context.Context, recvErr bool) {
	st := d.st
	for {
		notOurs := false
		dg, err := d.sock.Recv(d.buf)
		if err != nil {
			if errors.Is(err, ErrWouldBlock) && !recvErr {
				break
			}
			recvErr = false
			qe, found, qerr := d.wire.DrainErrorQueue()
			switch {
			case found:
				d.engine.RecordError(qe.Seq)
				d.deliver(ctx, &Packet{Seq: qe.Seq, Err: qe.Err})
			case qerr != nil:
				if !errors.Is(err, ErrWouldBlock) {
					d.log.WithError(err).Warn("recvmsg")
				}
				return
			default:
				notOurs = true
			}
		} else {
			if st.Latency || dg.Received.IsZero() {
				dg.Received = d.opts.clock.Now()
			}
			reply, ours := d.wire.ParseReply(dg)
			if !ours {
				notOurs = true
			} else {
				d.handle(ctx, reply, dg)
			}
		}

		if notOurs && d.sock.Raw() && !st.FilterInstalled {
			if err := d.wire.InstallForeignTrafficFilter(); err != nil {
				d.log.WithError(err).Warn("failed to install socket filter")
			} else {
				d.log.Debug("foreign echo replies seen, socket filter installed")
			}
			st.FilterInstalled = true
		}
		if st.InFlight() == 0 {
			break
		}
	}
}

func (d *Dispatcher) handle(ctx context.Context, r Reply, dg Datagram) {
	if r.Err != nil {
		if r.Queued {
			d.log.Debugf("icmp_seq=%d: %v, left to the error queue", r.Seq, r.Err)
			return
		}
		d.engine.RecordError(r.Seq)
		d.deliver(ctx, &Packet{Seq: r.Seq, IPAddr: r.From, Nbytes: r.Size, Hops: r.Hops, Err: r.Err})
		return
	}
	rtt := int64(Untimed)
	if r.Timed {
		rtt = d.engine.TripTime(r.Sent, dg.Received)
	}
	status := d.engine.RecordReply(r.Seq, rtt, r.ChecksumOK, r.Multicast)
	pkt := &Packet{
		Seq:       r.Seq,
		Nbytes:    r.Size,
		IPAddr:    r.From,
		Hops:      r.Hops,
		Timed:     r.Timed,
		Multicast: r.Multicast,
		Dup:       status == Duplicate,
		Corrupted: status == ChecksumFailed,
	}
	if r.Timed {
		pkt.Rtt = usec(rtt)
	}
	d.deliver(ctx, pkt)
}

func (d *Dispatcher) deliver(ctx context.Context, pkt *Packet) {
	if d.opts.onRecv == nil {
		return
	}
	if pkt.IPAddr != nil {
		pkt.Addr = pkt.IPAddr.String()
		if !d.opts.numeric {
			pkt.Addr = d.names.name(ctx, pkt.IPAddr)
		}
	}
	d.opts.onRecv(pkt)
}

// Failed reports whether the session should exit with a failure status.
func (d *Dispatcher) Failed() bool {
	return d.st.Received == 0 || (d.opts.deadline > 0 && d.st.Received < d.opts.count)
}

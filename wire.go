package watchping

import (
	"context"
	"errors"
	"net"
	"time"
)

// ErrWouldBlock is returned by non-blocking socket operations with nothing to do.
var ErrWouldBlock = errors.New("operation would block")

// SendStatus is the outcome of a probe transmission.
type SendStatus int

const (
	Sent SendStatus = iota
	// WouldBlock means the socket buffer is full.
	WouldBlock
	// ResourceExhausted means the device queue overflowed or memory ran out.
	ResourceExhausted
	HardError
)

func (s SendStatus) String() string {
	switch s {
	case Sent:
		return "sent"
	case WouldBlock:
		return "would block"
	case ResourceExhausted:
		return "resource exhausted"
	default:
		return "hard error"
	}
}

// Probe is one echo request to put on the wire.
type Probe struct {
	Seq  uint16
	Sent time.Time
}

// Datagram is what a socket read returned. Received is zero when the kernel
// gave no timestamp.
type Datagram struct {
	Data     []byte
	From     net.IP
	Received time.Time
	Hops     int
}

// Reply is a datagram recognized as an answer to one of our probes.
type Reply struct {
	Seq        uint16
	Sent       time.Time
	Timed      bool
	ChecksumOK bool
	Hops       int
	Multicast  bool
	Size       int
	From       net.IP

	// Err is set when the reply is an ICMP error quoting our probe.
	Err error

	// Queued errors are also reported by the socket error queue, which
	// accounts for them.
	Queued bool
}

// QueueError is an error drained from the socket error queue.
type QueueError struct {
	Seq uint16
	// ICMP is set for errors sent back by the network, as opposed to local ones.
	ICMP bool
	Err  error
}

// Wire is the protocol specific part of a session.
type Wire interface {
	SendProbe(p Probe) (SendStatus, error)
	// ParseReply returns false when the datagram is not for this session.
	ParseReply(d Datagram) (Reply, bool)
	// DrainErrorQueue returns false with a nil error when the queued error
	// was not ours, and ErrWouldBlock when the queue is empty.
	DrainErrorQueue() (QueueError, bool, error)
	InstallForeignTrafficFilter() error
}

// Socket is the waiting and reading side of a session.
type Socket interface {
	// Wait blocks until the socket is readable, has a pending error or
	// timeout elapsed.
	Wait(timeout time.Duration) (readable, errQueue bool, err error)
	// Recv never blocks.
	Recv(buf []byte) (Datagram, error)
	// Raw reports whether the socket sees other processes' traffic.
	Raw() bool
}

// Transport is a connected Wire and Socket pair.
type Transport interface {
	Wire
	Socket
	Close() error
}

// Dialer opens a transport towards ip.
type Dialer func(ctx context.Context, ip net.IPAddr) (Transport, error)

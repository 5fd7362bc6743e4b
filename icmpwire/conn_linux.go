//go:build linux

package icmpwire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math/rand"
	"net"
	"time"
	"unsafe"

	"github.com/sirupsen/logrus"
	"golang.org/x/net/bpf"
	"golang.org/x/sys/unix"

	"gitlab.bertha.cloud/partitio/isi/watchping"
)

const (
	// originLocal and friends are sock_extended_err origins.
	originLocal = 1
	originICMP  = 2
	originICMP6 = 3

	sizeofSockExtendedErr = 16
)

// Conn is an ICMP socket bound to one destination.
type Conn struct {
	fd    int
	raw   bool
	v6    bool
	dst   net.IPAddr
	sa    unix.Sockaddr
	codec *codec
	log   logrus.FieldLogger

	oob    []byte
	errBuf []byte
	errOob []byte
}

// Dial opens an ICMP socket towards ip.
func Dial(ip net.IPAddr, cfg Config) (watchping.Transport, error) {
	c, err := dial(ip, cfg)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func dial(ip net.IPAddr, cfg Config) (*Conn, error) {
	cfg.setDefaults()
	v6 := ip.IP.To4() == nil
	domain, proto := unix.AF_INET, unix.IPPROTO_ICMP
	if v6 {
		domain, proto = unix.AF_INET6, unix.IPPROTO_ICMPV6
	}

	raw := cfg.Privileged
	var fd int
	var err error
	if raw {
		fd, err = unix.Socket(domain, unix.SOCK_RAW|unix.SOCK_CLOEXEC, proto)
		if errors.Is(err, unix.EPERM) || errors.Is(err, unix.EACCES) {
			cfg.Logger.Debug("raw socket not permitted, using datagram socket")
			raw = false
		}
	}
	if !raw {
		fd, err = unix.Socket(domain, unix.SOCK_DGRAM|unix.SOCK_CLOEXEC, proto)
	}
	if err != nil {
		return nil, fmt.Errorf("socket: %w", err)
	}

	sa, err := sockaddr(ip)
	if err != nil {
		unix.Close(fd)
		return nil, err
	}
	var ident uint16
	if raw {
		ident = uint16(rand.Intn(1 << 16))
	}
	c := &Conn{
		fd:     fd,
		raw:    raw,
		v6:     v6,
		dst:    ip,
		sa:     sa,
		codec:  newCodec(ip.IP, raw, ident, cfg.PayloadSize, cfg.Pattern),
		log:    cfg.Logger,
		oob:    make([]byte, 512),
		errBuf: make([]byte, 576),
		errOob: make([]byte, 512),
	}
	if err := c.setup(cfg); err != nil {
		unix.Close(fd)
		return nil, err
	}
	c.codec.recverr = true
	return c, nil
}

func sockaddr(ip net.IPAddr) (unix.Sockaddr, error) {
	if ip4 := ip.IP.To4(); ip4 != nil {
		sa := &unix.SockaddrInet4{}
		copy(sa.Addr[:], ip4)
		return sa, nil
	}
	sa := &unix.SockaddrInet6{}
	copy(sa.Addr[:], ip.IP.To16())
	if ip.Zone != "" {
		ifi, err := net.InterfaceByName(ip.Zone)
		if err != nil {
			return nil, fmt.Errorf("invalid zone %s: %w", ip.Zone, err)
		}
		sa.ZoneId = uint32(ifi.Index)
	}
	return sa, nil
}

func (c *Conn) setup(cfg Config) error {
	fd := c.fd
	if !cfg.Latency {
		if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_TIMESTAMP, 1); err != nil {
			c.log.WithError(err).Warn("SO_TIMESTAMP unavailable, falling back to user space timestamps")
		}
	}

	level, recvErr, recvHops, hops := unix.IPPROTO_IP, unix.IP_RECVERR, unix.IP_RECVTTL, unix.IP_TTL
	if c.v6 {
		level, recvErr, recvHops, hops = unix.IPPROTO_IPV6, unix.IPV6_RECVERR, unix.IPV6_RECVHOPLIMIT, unix.IPV6_UNICAST_HOPS
	}
	if err := unix.SetsockoptInt(fd, level, recvErr, 1); err != nil {
		return fmt.Errorf("enable error queue: %w", err)
	}
	if err := unix.SetsockoptInt(fd, level, recvHops, 1); err != nil {
		c.log.WithError(err).Debug("cannot receive hop limits")
	}
	if cfg.TTL > 0 {
		if err := unix.SetsockoptInt(fd, level, hops, cfg.TTL); err != nil {
			return fmt.Errorf("cannot set unicast time-to-live: %w", err)
		}
		if c.dst.IP.IsMulticast() {
			mhops := unix.IP_MULTICAST_TTL
			if c.v6 {
				mhops = unix.IPV6_MULTICAST_HOPS
			}
			if err := unix.SetsockoptInt(fd, level, mhops, cfg.TTL); err != nil {
				return fmt.Errorf("cannot set multicast time-to-live: %w", err)
			}
		}
	}

	timeout := time.Second
	if cfg.Interval < time.Second {
		timeout = max(cfg.Interval, 10*time.Millisecond)
	}
	tv := unix.NsecToTimeval(timeout.Nanoseconds())
	if err := unix.SetsockoptTimeval(fd, unix.SOL_SOCKET, unix.SO_SNDTIMEO, &tv); err != nil {
		c.log.WithError(err).Debug("cannot set send timeout")
	}

	alloc := cfg.PayloadSize + 8 + 60
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_SNDBUF, alloc); err != nil {
		c.log.WithError(err).Debug("cannot set send buffer")
	}
	rcv := alloc * cfg.Preload
	if rcv < 65536 {
		rcv = 65536
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_RCVBUF, rcv); err != nil {
		c.log.WithError(err).Debug("cannot set receive buffer")
	} else if got, err := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_RCVBUF); err == nil && got < rcv {
		c.log.Warnf("probably, rcvbuf is not enough to hold preload")
	}
	return nil
}

func (c *Conn) Raw() bool {
	return c.raw
}

func (c *Conn) SendProbe(p watchping.Probe) (watchping.SendStatus, error) {
	b, err := c.codec.build(p)
	if err != nil {
		return watchping.HardError, err
	}
	err = unix.Sendto(c.fd, b, 0, c.sa)
	switch {
	case err == nil:
		return watchping.Sent, nil
	case errors.Is(err, unix.EAGAIN):
		return watchping.WouldBlock, err
	case errors.Is(err, unix.ENOBUFS), errors.Is(err, unix.ENOMEM):
		return watchping.ResourceExhausted, err
	default:
		return watchping.HardError, err
	}
}

func (c *Conn) ParseReply(d watchping.Datagram) (watchping.Reply, bool) {
	return c.codec.parse(d)
}

func (c *Conn) Wait(timeout time.Duration) (bool, bool, error) {
	fds := []unix.PollFd{{Fd: int32(c.fd), Events: unix.POLLIN}}
	n, err := unix.Poll(fds, int(timeout.Milliseconds()))
	if err != nil {
		if errors.Is(err, unix.EINTR) {
			return false, false, nil
		}
		return false, false, fmt.Errorf("poll: %w", err)
	}
	if n < 1 {
		return false, false, nil
	}
	re := fds[0].Revents
	return re&unix.POLLIN != 0, re&unix.POLLERR != 0, nil
}

func (c *Conn) Recv(buf []byte) (watchping.Datagram, error) {
	n, oobn, _, from, err := unix.Recvmsg(c.fd, buf, c.oob, unix.MSG_DONTWAIT)
	if err != nil {
		if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EINTR) {
			return watchping.Datagram{}, watchping.ErrWouldBlock
		}
		return watchping.Datagram{}, err
	}
	d := watchping.Datagram{Data: buf[:n], From: sockaddrIP(from), Hops: -1}
	cmsgs, err := unix.ParseSocketControlMessage(c.oob[:oobn])
	if err != nil {
		return d, nil
	}
	for _, m := range cmsgs {
		switch {
		case m.Header.Level == unix.SOL_SOCKET && m.Header.Type == unix.SO_TIMESTAMP:
			if len(m.Data) >= int(unsafe.Sizeof(unix.Timeval{})) {
				tv := (*unix.Timeval)(unsafe.Pointer(&m.Data[0]))
				d.Received = time.Unix(tv.Unix())
			}
		case m.Header.Level == unix.IPPROTO_IP && m.Header.Type == unix.IP_TTL,
			m.Header.Level == unix.IPPROTO_IPV6 && m.Header.Type == unix.IPV6_HOPLIMIT:
			if len(m.Data) >= 4 {
				d.Hops = int(int32(binary.NativeEndian.Uint32(m.Data)))
			}
		}
	}
	return d, nil
}

func (c *Conn) DrainErrorQueue() (watchping.QueueError, bool, error) {
	n, oobn, _, _, err := unix.Recvmsg(c.fd, c.errBuf, c.errOob, unix.MSG_ERRQUEUE|unix.MSG_DONTWAIT)
	if err != nil {
		if errors.Is(err, unix.EAGAIN) {
			return watchping.QueueError{}, false, watchping.ErrWouldBlock
		}
		return watchping.QueueError{}, false, err
	}
	cmsgs, err := unix.ParseSocketControlMessage(c.errOob[:oobn])
	if err != nil {
		return watchping.QueueError{}, false, err
	}
	var ee []byte
	for _, m := range cmsgs {
		if (m.Header.Level == unix.IPPROTO_IP && m.Header.Type == unix.IP_RECVERR) ||
			(m.Header.Level == unix.IPPROTO_IPV6 && m.Header.Type == unix.IPV6_RECVERR) {
			ee = m.Data
		}
	}
	if len(ee) < sizeofSockExtendedErr {
		return watchping.QueueError{}, false, nil
	}
	errno := unix.Errno(binary.NativeEndian.Uint32(ee[0:4]))
	origin := ee[4]
	info := binary.NativeEndian.Uint32(ee[8:12])

	seq, ours := c.codec.echoSeq(c.errBuf[:n])
	switch origin {
	case originLocal:
		qe := watchping.QueueError{Seq: seq, Err: fmt.Errorf("local error: %w", errno)}
		if errno == unix.EMSGSIZE {
			qe.Err = fmt.Errorf("local error: message too long, mtu=%d", info)
		}
		return qe, true, nil
	case originICMP, originICMP6:
		if !ours {
			return watchping.QueueError{}, false, nil
		}
		return watchping.QueueError{
			Seq:  seq,
			ICMP: true,
			Err:  fmt.Errorf("from %v: %w", c.offender(ee), errno),
		}, true, nil
	}
	return watchping.QueueError{}, false, nil
}

// offender reads the address following the sock_extended_err.
func (c *Conn) offender(ee []byte) net.IP {
	sa := ee[sizeofSockExtendedErr:]
	if c.v6 {
		if len(sa) < 24 {
			return nil
		}
		return net.IP(append([]byte(nil), sa[8:24]...))
	}
	if len(sa) < 8 {
		return nil
	}
	return net.IP(append([]byte(nil), sa[4:8]...))
}

func (c *Conn) InstallForeignTrafficFilter() error {
	raw, err := bpf.Assemble(foreignFilter(c.codec.ident, c.v6))
	if err != nil {
		return err
	}
	f := make([]unix.SockFilter, len(raw))
	for i, ins := range raw {
		f[i] = unix.SockFilter{Code: ins.Op, Jt: ins.Jt, Jf: ins.Jf, K: ins.K}
	}
	prog := unix.SockFprog{Len: uint16(len(f)), Filter: &f[0]}
	return unix.SetsockoptSockFprog(c.fd, unix.SOL_SOCKET, unix.SO_ATTACH_FILTER, &prog)
}

func (c *Conn) Close() error {
	return unix.Close(c.fd)
}

func sockaddrIP(sa unix.Sockaddr) net.IP {
	switch a := sa.(type) {
	case *unix.SockaddrInet4:
		return net.IP(append([]byte(nil), a.Addr[:]...))
	case *unix.SockaddrInet6:
		return net.IP(append([]byte(nil), a.Addr[:]...))
	}
	return nil
}

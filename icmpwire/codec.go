// Package icmpwire puts ICMP echo requests on the wire and recognizes the
// replies, for IPv4 and IPv6, over raw or datagram ICMP sockets.
package icmpwire

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"net"
	"time"

	"golang.org/x/net/icmp"
	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"

	"gitlab.bertha.cloud/partitio/isi/watchping"
)

const (
	protocolICMP     = 1
	protocolIPv6ICMP = 58

	// timestampLen is the size of the send time carried at the head of the payload.
	timestampLen = 16
	maxPattern   = 16
)

// ParsePattern decodes a fill pattern given as hex digits.
func ParsePattern(s string) ([]byte, error) {
	if len(s)%2 == 1 {
		s += "0"
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("patterns must be specified as hex digits: %s", s)
	}
	if len(b) > maxPattern {
		b = b[:maxPattern]
	}
	return b, nil
}

type codec struct {
	v6      bool
	raw     bool
	ident   uint16
	dst     net.IP
	payload []byte

	// recverr is set once the error queue is enabled on the socket.
	recverr bool
}

func newCodec(dst net.IP, raw bool, ident uint16, size int, pattern []byte) *codec {
	payload := make([]byte, size)
	for i := range payload {
		if len(pattern) == 0 {
			payload[i] = byte(i)
		} else {
			payload[i] = pattern[i%len(pattern)]
		}
	}
	return &codec{
		v6:      dst.To4() == nil,
		raw:     raw,
		ident:   ident,
		dst:     dst,
		payload: payload,
	}
}

func (c *codec) timed() bool {
	return len(c.payload) >= timestampLen
}

func (c *codec) protocol() int {
	if c.v6 {
		return protocolIPv6ICMP
	}
	return protocolICMP
}

func (c *codec) build(p watchping.Probe) ([]byte, error) {
	data := make([]byte, len(c.payload))
	copy(data, c.payload)
	if c.timed() {
		binary.BigEndian.PutUint64(data[0:8], uint64(p.Sent.Unix()))
		binary.BigEndian.PutUint64(data[8:16], uint64(p.Sent.Nanosecond()))
	}
	var typ icmp.Type = ipv4.ICMPTypeEcho
	if c.v6 {
		typ = ipv6.ICMPTypeEchoRequest
	}
	m := icmp.Message{
		Type: typ,
		Body: &icmp.Echo{ID: int(c.ident), Seq: int(p.Seq), Data: data},
	}
	// The kernel computes ICMPv6 checksums.
	return m.Marshal(nil)
}

func (c *codec) parse(d watchping.Datagram) (watchping.Reply, bool) {
	b := d.Data
	hops := d.Hops
	if c.raw && !c.v6 {
		h, err := ipv4.ParseHeader(b)
		if err != nil {
			return watchping.Reply{}, false
		}
		hops = h.TTL
		b = b[h.Len:]
	}
	if len(b) < 8 {
		return watchping.Reply{}, false
	}
	m, err := icmp.ParseMessage(c.protocol(), b)
	if err != nil {
		return watchping.Reply{}, false
	}

	switch body := m.Body.(type) {
	case *icmp.Echo:
		if m.Type != ipv4.ICMPTypeEchoReply && m.Type != ipv6.ICMPTypeEchoReply {
			return watchping.Reply{}, false
		}
		if c.raw && uint16(body.ID) != c.ident {
			return watchping.Reply{}, false
		}
		if !c.matches(body.Data) {
			return watchping.Reply{}, false
		}
		r := watchping.Reply{
			Seq:        uint16(body.Seq),
			Hops:       hops,
			Size:       len(b),
			From:       d.From,
			Multicast:  c.dst.IsMulticast(),
			ChecksumOK: c.v6 || checksum(b) == 0,
		}
		if c.timed() && len(body.Data) >= timestampLen {
			sec := int64(binary.BigEndian.Uint64(body.Data[0:8]))
			nsec := int64(binary.BigEndian.Uint64(body.Data[8:16]))
			r.Sent = time.Unix(sec, nsec)
			r.Timed = true
		}
		return r, true
	case *icmp.DstUnreach:
		return c.quoted(d, m, body.Data, len(b))
	case *icmp.TimeExceeded:
		return c.quoted(d, m, body.Data, len(b))
	case *icmp.PacketTooBig:
		return c.quoted(d, m, body.Data, len(b))
	case *icmp.ParamProb:
		return c.quoted(d, m, body.Data, len(b))
	}
	return watchping.Reply{}, false
}

// matches checks the payload past the timestamp is the one we sent.
func (c *codec) matches(data []byte) bool {
	if len(data) < len(c.payload) {
		return false
	}
	start := 0
	if c.timed() {
		start = timestampLen
	}
	for i := start; i < len(c.payload); i++ {
		if data[i] != c.payload[i] {
			return false
		}
	}
	return true
}

// quoted turns an ICMP error quoting one of our probes into an error reply.
func (c *codec) quoted(d watchping.Datagram, m *icmp.Message, data []byte, size int) (watchping.Reply, bool) {
	seq, ok := c.quotedSeq(data)
	if !ok {
		return watchping.Reply{}, false
	}
	return watchping.Reply{
		Seq:  seq,
		From: d.From,
		Size: size,
		Hops:   d.Hops,
		Err:    fmt.Errorf("%v, code %d", m.Type, m.Code),
		Queued: c.recverr,
	}, true
}

func (c *codec) quotedSeq(data []byte) (uint16, bool) {
	var inner []byte
	if c.v6 {
		h, err := ipv6.ParseHeader(data)
		if err != nil || !h.Dst.Equal(c.dst) {
			return 0, false
		}
		inner = data[ipv6.HeaderLen:]
	} else {
		h, err := ipv4.ParseHeader(data)
		if err != nil || !h.Dst.Equal(c.dst) {
			return 0, false
		}
		inner = data[h.Len:]
	}
	return c.echoSeq(inner)
}

// echoSeq extracts the sequence of one of our echo requests.
func (c *codec) echoSeq(b []byte) (uint16, bool) {
	if len(b) < 8 {
		return 0, false
	}
	req := byte(ipv4.ICMPTypeEcho)
	if c.v6 {
		req = byte(ipv6.ICMPTypeEchoRequest)
	}
	if b[0] != req {
		return 0, false
	}
	if c.raw && binary.BigEndian.Uint16(b[4:6]) != c.ident {
		return 0, false
	}
	return binary.BigEndian.Uint16(b[6:8]), true
}

// checksum is the internet checksum of b, zero for a valid message.
func checksum(b []byte) uint16 {
	var s uint32
	for i := 0; i+1 < len(b); i += 2 {
		s += uint32(b[i])<<8 | uint32(b[i+1])
	}
	if len(b)%2 == 1 {
		s += uint32(b[len(b)-1]) << 8
	}
	for s>>16 != 0 {
		s = s&0xffff + s>>16
	}
	return ^uint16(s)
}

package icmpwire

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/sirupsen/logrus"

	"gitlab.bertha.cloud/partitio/isi/watchping"
)

// ErrUnsupported is returned by Dial on platforms without ICMP socket support.
var ErrUnsupported = errors.New("icmpwire: unsupported platform")

// Config describes the socket to open.
type Config struct {
	// Privileged opens a raw socket, falling back to a datagram ICMP socket
	// when not allowed to.
	Privileged bool
	// PayloadSize is the number of data bytes after the ICMP header.
	PayloadSize int
	Pattern     []byte
	// TTL is the IPv4 time to live or IPv6 hop limit, zero for the default.
	TTL int
	// Interval and Preload size the socket timeouts and buffers.
	Interval time.Duration
	Preload  int
	// Latency disables kernel receive timestamps.
	Latency bool
	Logger  logrus.FieldLogger
}

// DefaultPayloadSize gives 64 bytes ICMP packets.
const DefaultPayloadSize = 56

func (c *Config) setDefaults() {
	if c.PayloadSize < 0 {
		c.PayloadSize = DefaultPayloadSize
	}
	if c.Preload < 1 {
		c.Preload = 1
	}
	if c.Logger == nil {
		c.Logger = logrus.StandardLogger()
	}
}

// Dialer adapts Dial to watchping.Dialer.
func Dialer(cfg Config) watchping.Dialer {
	return func(_ context.Context, ip net.IPAddr) (watchping.Transport, error) {
		return Dial(ip, cfg)
	}
}

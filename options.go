package watchping

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	// MaxDupCheck is the size of the duplicate detection window, in sequence numbers.
	MaxDupCheck = 0x10000
	// MinUserInterval is the smallest interval an unprivileged session may use.
	MinUserInterval = 2 * time.Millisecond
	// DefaultLinger is how long we wait for late replies when nothing was received.
	DefaultLinger = 10 * time.Second
)

type options struct {
	count       int64
	deadline    time.Duration
	interval    time.Duration
	intervalSet bool
	preload     int
	adaptive    bool
	flood       bool
	outstanding bool
	latency     bool
	numeric     bool
	window      int
	linger      time.Duration
	privileged  bool

	network         string
	refresh         time.Duration
	resolverTimeout time.Duration

	clock  Clock
	logger logrus.FieldLogger

	onRecv     func(*Packet)
	onRefresh  func(Statistics)
	onSnapshot func(Statistics)
	onFinish   func(Statistics)
}

var defaultOptions = options{
	interval:        time.Second,
	preload:         1,
	linger:          DefaultLinger,
	privileged:      true,
	network:         "ip",
	refresh:         time.Second,
	resolverTimeout: time.Second,
}

// Option configures a session.
type Option func(*options)

// WithCount stops sending after n probes. Zero means no limit.
func WithCount(n int) Option {
	return func(o *options) { o.count = int64(n) }
}

// WithDeadline stops the session after d, whatever was sent or received.
func WithDeadline(d time.Duration) Option {
	return func(o *options) { o.deadline = d }
}

// WithInterval sets the time between two probes.
func WithInterval(d time.Duration) Option {
	return func(o *options) {
		o.interval = d
		o.intervalSet = true
	}
}

// WithPreload allows an initial burst of n probes.
func WithPreload(n int) Option {
	return func(o *options) { o.preload = n }
}

// WithAdaptive derives the interval from the measured round-trip time.
func WithAdaptive(on bool) Option {
	return func(o *options) { o.adaptive = on }
}

// WithFlood sends as fast as replies come back, or every 10ms.
func WithFlood(on bool) Option {
	return func(o *options) { o.flood = on }
}

// WithOutstanding reports probes that got no answer before the next one is sent.
func WithOutstanding(on bool) Option {
	return func(o *options) { o.outstanding = on }
}

// WithLatency disables kernel receive timestamps and samples the clock instead.
func WithLatency(on bool) Option {
	return func(o *options) { o.latency = on }
}

// WithNumeric disables reverse lookups of reply sources.
func WithNumeric(on bool) Option {
	return func(o *options) { o.numeric = on }
}

// WithWindow keeps statistics over the last n probes in addition to the
// whole-session aggregates. Zero disables it.
func WithWindow(n int) Option {
	return func(o *options) { o.window = n }
}

// WithLinger sets how long to wait for replies once every probe was sent.
func WithLinger(d time.Duration) Option {
	return func(o *options) { o.linger = d }
}

// WithPrivileged tells the session whether it may go below MinUserInterval.
func WithPrivileged(on bool) Option {
	return func(o *options) { o.privileged = on }
}

// WithRefreshInterval sets the pace of the Pinger refresh loop.
func WithRefreshInterval(d time.Duration) Option {
	return func(o *options) { o.refresh = d }
}

// WithNetwork restricts resolution to "ip4" or "ip6".
func WithNetwork(network string) Option {
	return func(o *options) {
		o.network = network
	}
}

// WithResolverTimeout bounds host name resolution.
func WithResolverTimeout(d time.Duration) Option {
	return func(o *options) { o.resolverTimeout = d }
}

// WithClock replaces the wall clock, mostly for tests.
func WithClock(c Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithLogger sets the logger used by the session.
func WithLogger(l logrus.FieldLogger) Option {
	return func(o *options) { o.logger = l }
}

// OnRecv is called for every reply, duplicate and corrupted ones included.
func OnRecv(fn func(*Packet)) Option {
	return func(o *options) { o.onRecv = fn }
}

// OnRefresh is called with the current statistics after every refresh cycle.
func OnRefresh(fn func(Statistics)) Option {
	return func(o *options) { o.onRefresh = fn }
}

// OnSnapshot is called when a snapshot was requested with RequestSnapshot.
func OnSnapshot(fn func(Statistics)) Option {
	return func(o *options) { o.onSnapshot = fn }
}

// OnFinish is called once with the final statistics.
func OnFinish(fn func(Statistics)) Option {
	return func(o *options) { o.onFinish = fn }
}

func buildOptions(opts ...Option) (options, error) {
	o := defaultOptions
	for _, opt := range opts {
		opt(&o)
	}
	if o.clock == nil {
		o.clock = systemClock{}
	}
	if o.logger == nil {
		o.logger = logrus.StandardLogger()
	}
	return o, o.validate()
}

func (o *options) validate() error {
	if o.count < 0 {
		return fmt.Errorf("invalid count: %d", o.count)
	}
	if o.deadline < 0 {
		return fmt.Errorf("invalid deadline: %v", o.deadline)
	}
	if o.interval < 0 {
		return fmt.Errorf("bad timing interval: %v", o.interval)
	}
	if o.preload < 1 || o.preload > MaxDupCheck {
		return fmt.Errorf("invalid preload: %d", o.preload)
	}
	if !o.privileged && o.preload > 3 {
		return fmt.Errorf("cannot set preload to value greater than 3: %d", o.preload)
	}
	switch o.network {
	case "ip", "ip4", "ip6":
	default:
		return fmt.Errorf("unknown network: %s", o.network)
	}
	if o.window < 0 || o.window > MaxDupCheck {
		return fmt.Errorf("invalid window size: %d", o.window)
	}
	if o.linger < time.Millisecond {
		return fmt.Errorf("bad linger time: %v", o.linger)
	}
	if o.refresh < 100*time.Millisecond {
		o.refresh = 100 * time.Millisecond
	}
	if o.flood && !o.intervalSet {
		o.interval = 0
	}
	if !o.privileged && o.interval < MinUserInterval {
		return fmt.Errorf("cannot flood; minimal interval allowed for user is %v", MinUserInterval)
	}
	if o.interval.Milliseconds() >= math.MaxInt32/int64(o.preload) {
		return errors.New("illegal preload and/or interval")
	}
	return nil
}

// userFloor is the adaptive interval floor in milliseconds, zero when privileged.
func (o *options) userFloor() int64 {
	if o.privileged {
		return 0
	}
	return MinUserInterval.Milliseconds()
}

package watchping

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"
)

// Resolve returns the first address of addr. network is one of ip, ip4 or ip6.
func Resolve(ctx context.Context, network, addr string, timeout time.Duration) (net.IPAddr, error) {
	if strings.ContainsRune(addr, '%') {
		ipaddr, err := net.ResolveIPAddr(network, addr)
		if err != nil {
			return net.IPAddr{}, err
		}
		return *ipaddr, nil
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ips, err := net.DefaultResolver.LookupIP(ctx, network, addr)
	if err != nil {
		return net.IPAddr{}, err
	}
	if len(ips) < 1 {
		return net.IPAddr{}, fmt.Errorf("%s : no ip found", addr)
	}
	return net.IPAddr{IP: ips[0]}, nil
}

type lookupFunc func(ctx context.Context, addr string) ([]string, error)

// names resolves reply sources. A lookup is abandoned as soon as a stop is
// requested, the numeric address is used instead.
type names struct {
	lookup  lookupFunc
	timeout time.Duration
	stop    <-chan struct{}
	cache   map[string]string
}

func newNames(timeout time.Duration, stop <-chan struct{}) *names {
	return &names{
		lookup:  net.DefaultResolver.LookupAddr,
		timeout: timeout,
		stop:    stop,
		cache:   make(map[string]string),
	}
}

func (n *names) name(ctx context.Context, ip net.IP) string {
	addr := ip.String()
	if v, ok := n.cache[addr]; ok {
		return v
	}
	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()
	go func() {
		select {
		case <-n.stop:
			cancel()
		case <-ctx.Done():
		}
	}()

	out := addr
	hosts, err := n.lookup(ctx, addr)
	switch {
	case err == nil && len(hosts) > 0:
		out = fmt.Sprintf("%s (%s)", strings.TrimSuffix(hosts[0], "."), addr)
	case ctx.Err() != nil:
		// Interrupted or timed out, try again next time.
		return addr
	}
	n.cache[addr] = out
	return out
}

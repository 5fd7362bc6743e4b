package watchping

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveLiteral(t *testing.T) {
	ctx := context.Background()

	ip, err := Resolve(ctx, "ip", "127.0.0.1", time.Second)
	require.NoError(t, err)
	assert.True(t, ip.IP.Equal(net.IPv4(127, 0, 0, 1)))

	ip, err = Resolve(ctx, "ip6", "::1", time.Second)
	require.NoError(t, err)
	assert.True(t, ip.IP.Equal(net.IPv6loopback))

	_, err = Resolve(ctx, "ip6", "127.0.0.1", time.Second)
	assert.Error(t, err)
}

func TestResolveZone(t *testing.T) {
	ip, err := Resolve(context.Background(), "ip6", "fe80::1%lo", time.Second)
	require.NoError(t, err)
	assert.Equal(t, "lo", ip.Zone)
	assert.True(t, ip.IP.Equal(net.ParseIP("fe80::1")))
}

func TestNamesCache(t *testing.T) {
	calls := 0
	n := newNames(time.Second, make(chan struct{}))
	n.lookup = func(ctx context.Context, addr string) ([]string, error) {
		calls++
		return []string{"localhost."}, nil
	}
	ip := net.IPv4(127, 0, 0, 1)
	assert.Equal(t, "localhost (127.0.0.1)", n.name(context.Background(), ip))
	assert.Equal(t, "localhost (127.0.0.1)", n.name(context.Background(), ip))
	assert.Equal(t, 1, calls)
}

func TestNamesLookupError(t *testing.T) {
	calls := 0
	n := newNames(time.Second, make(chan struct{}))
	n.lookup = func(ctx context.Context, addr string) ([]string, error) {
		calls++
		return nil, errors.New("no such host")
	}
	ip := net.IPv4(192, 0, 2, 1)
	assert.Equal(t, "192.0.2.1", n.name(context.Background(), ip))
	assert.Equal(t, "192.0.2.1", n.name(context.Background(), ip))
	assert.Equal(t, 1, calls)
}

func TestNamesInterruptedByStop(t *testing.T) {
	stop := make(chan struct{})
	close(stop)
	calls := 0
	n := newNames(time.Minute, stop)
	n.lookup = func(ctx context.Context, addr string) ([]string, error) {
		calls++
		<-ctx.Done()
		return nil, ctx.Err()
	}
	ip := net.IPv4(192, 0, 2, 1)

	done := make(chan string)
	go func() {
		done <- n.name(context.Background(), ip)
	}()
	select {
	case name := <-done:
		assert.Equal(t, "192.0.2.1", name)
	case <-time.After(5 * time.Second):
		t.Fatal("lookup was not interrupted")
	}

	// Interrupted lookups are not cached.
	n.name(context.Background(), ip)
	assert.Equal(t, 2, calls)
}

package view

import (
	"errors"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/pterm/pterm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gitlab.bertha.cloud/partitio/isi/watchping"
)

func plain(s string) string {
	return pterm.RemoveColorFromString(s)
}

func TestLevels(t *testing.T) {
	assert.Equal(t, Low, RTTLevel(49*time.Millisecond+999*time.Microsecond))
	assert.Equal(t, Medium, RTTLevel(50*time.Millisecond))
	assert.Equal(t, High, RTTLevel(100*time.Millisecond))

	assert.Equal(t, Low, LossLevel(0.5))
	assert.Equal(t, Medium, LossLevel(1))
	assert.Equal(t, High, LossLevel(30))

	assert.Equal(t, Low, DeviationLevel(9*time.Millisecond))
	assert.Equal(t, Medium, DeviationLevel(10*time.Millisecond))
	assert.Equal(t, High, DeviationLevel(30*time.Millisecond))
}

func TestFormatRTT(t *testing.T) {
	const µs = time.Microsecond
	tests := []struct {
		rtt  time.Duration
		want string
	}{
		{rtt: 123 * µs, want: "0.123 ms"},
		{rtt: 1234 * µs, want: "1.23 ms"},
		{rtt: 12345 * µs, want: "12.3 ms"},
		{rtt: 123456 * µs, want: "123 ms"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatRTT(tt.rtt))
	}
}

func TestPacketLine(t *testing.T) {
	p := &watchping.Packet{
		Seq:    1,
		Nbytes: 64,
		Addr:   "localhost (127.0.0.1)",
		Hops:   64,
		Rtt:    1234 * time.Microsecond,
		Timed:  true,
		Dup:    true,
	}
	assert.Equal(t, "64 bytes from localhost (127.0.0.1): icmp_seq=1 ttl=64 time=1.23 ms (DUP!)", plain(PacketLine(p)))

	p = &watchping.Packet{Seq: 3, Addr: "192.0.2.1", Err: errors.New("time exceeded, code 0")}
	assert.Equal(t, "From 192.0.2.1 icmp_seq=3 time exceeded, code 0", PacketLine(p))
}

func TestSummary(t *testing.T) {
	s := watchping.Statistics{
		Addr:        "example.org",
		PacketsSent: 4,
		PacketsRecv: 4,
		Timed:       true,
		MinRtt:      11 * time.Millisecond,
		AvgRtt:      22 * time.Millisecond,
		MaxRtt:      50 * time.Millisecond,
		MDevRtt:     16 * time.Millisecond,
		Elapsed:     3 * time.Second,
	}
	want := "--- example.org ping statistics ---\n" +
		"4 packets transmitted, 4 received, 0% packet loss, time 3000ms\n" +
		"rtt min/avg/max/mdev = 11.000/22.000/50.000/16.000 ms\n"
	assert.Equal(t, want, plain(Summary(s)))

	s = watchping.Statistics{Addr: "example.org", PacketsSent: 3, PacketsRecv: 2, Errors: 1, PacketLoss: 100.0 / 3}
	assert.Contains(t, plain(Summary(s)), "2 received, +1 errors, 33.3333% packet loss")
}

func TestSnapshotLine(t *testing.T) {
	s := watchping.Statistics{PacketsSent: 10, PacketsRecv: 7, PacketLoss: 30}
	assert.Equal(t, "7/10 packets, 30% loss", SnapshotLine(s))
}

func TestRender(t *testing.T) {
	out := plain(Render(watchping.Statistics{Addr: "h"}, []string{"a", "b"}))
	assert.True(t, strings.HasPrefix(out, "a\nb\n\n--- h ping statistics ---"))
}

func TestPingHeader(t *testing.T) {
	assert.Equal(t, "PING localhost (127.0.0.1) 56(84) bytes of data.", PingHeader("localhost", net.ParseIP("127.0.0.1"), 56))
}

func TestHeaderLine(t *testing.T) {
	now := time.Date(2024, time.March, 5, 10, 4, 5, 0, time.UTC)
	const right = "host: Tue Mar  5 10:04:05 2024"
	const left = "Every 1.0s: "
	rlen := len(right) + 1

	assert.Empty(t, HeaderLine(rlen-1, time.Second, "ping x", "host", now))

	line := HeaderLine(rlen, time.Second, "ping x", "host", now)
	assert.Len(t, line, rlen)
	assert.True(t, strings.HasSuffix(line, right))
	assert.False(t, strings.HasPrefix(line, "Every"))

	line = HeaderLine(200, time.Second, "ping x", "host", now)
	assert.Len(t, line, 200)
	assert.True(t, strings.HasPrefix(line, left+"ping x "))
	assert.True(t, strings.HasSuffix(line, right))

	cmd := strings.Repeat("c", 50)
	width := rlen + len(left) + 20
	line = HeaderLine(width, time.Second, cmd, "host", now)
	assert.Len(t, line, width)
	assert.True(t, strings.HasPrefix(line, left+strings.Repeat("c", 16)+"... "))
	assert.True(t, strings.HasSuffix(line, right))
}

func TestInterval(t *testing.T) {
	d, err := Interval(10 * time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, MinInterval, d)

	t.Setenv("WATCH_INTERVAL", "2.5")
	d, err = Interval(time.Second)
	require.NoError(t, err)
	assert.Equal(t, 2500*time.Millisecond, d)

	t.Setenv("WATCH_INTERVAL", "nope")
	_, err = Interval(time.Second)
	assert.Error(t, err)
}

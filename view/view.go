// Package view renders ping statistics as a refreshing terminal screen.
package view

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pterm/pterm"

	"gitlab.bertha.cloud/partitio/isi/watchping"
)

// FormatRTT prints a round trip time with the precision ping uses.
func FormatRTT(d time.Duration) string {
	us := d.Microseconds()
	switch {
	case us >= 100000-50:
		return fmt.Sprintf("%d ms", (us+500)/1000)
	case us >= 10000-5:
		return fmt.Sprintf("%d.%01d ms", (us+50)/1000, ((us+50)%1000)/100)
	case us >= 1000:
		return fmt.Sprintf("%d.%02d ms", (us+5)/1000, ((us+5)%1000)/10)
	default:
		return fmt.Sprintf("%d.%03d ms", us/1000, us%1000)
	}
}

func millis(d time.Duration) string {
	us := d.Microseconds()
	return fmt.Sprintf("%d.%03d", us/1000, us%1000)
}

// PingHeader is the line printed before the first reply.
func PingHeader(host string, ip fmt.Stringer, size int) string {
	return fmt.Sprintf("PING %s (%s) %d(%d) bytes of data.", host, ip, size, size+28)
}

// PacketLine describes one reply.
func PacketLine(p *watchping.Packet) string {
	if p.Err != nil {
		if p.Addr == "" {
			return fmt.Sprintf("icmp_seq=%d %v", p.Seq, p.Err)
		}
		return fmt.Sprintf("From %s icmp_seq=%d %v", p.Addr, p.Seq, p.Err)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%d bytes from %s: icmp_seq=%d", p.Nbytes, p.Addr, p.Seq)
	if p.Hops >= 0 {
		fmt.Fprintf(&b, " ttl=%d", p.Hops)
	}
	if p.Timed {
		b.WriteString(" time=")
		b.WriteString(RTTLevel(p.Rtt).Sprint(FormatRTT(p.Rtt)))
	}
	if p.Dup && !p.Multicast {
		b.WriteString(" (DUP!)")
	}
	if p.Corrupted {
		b.WriteString(" (BAD CHECKSUM!)")
	}
	return b.String()
}

// Summary is the statistics block.
func Summary(s watchping.Statistics) string {
	var b strings.Builder
	fmt.Fprintf(&b, "--- %s ping statistics ---\n", s.Addr)
	fmt.Fprintf(&b, "%d packets transmitted, %d received", s.PacketsSent, s.PacketsRecv)
	if s.Duplicates > 0 {
		fmt.Fprintf(&b, ", +%d duplicates", s.Duplicates)
	}
	if s.Corrupted > 0 {
		fmt.Fprintf(&b, ", +%d corrupted", s.Corrupted)
	}
	if s.Errors > 0 {
		fmt.Fprintf(&b, ", +%d errors", s.Errors)
	}
	if s.PacketsSent > 0 {
		loss := strconv.FormatFloat(float64(float32(s.PacketLoss)), 'g', 6, 64) + "%"
		fmt.Fprintf(&b, ", %s packet loss, time %dms", LossLevel(s.PacketLoss).Sprint(loss), (s.Elapsed+500*time.Microsecond).Milliseconds())
	}
	b.WriteString("\n")

	comma := ""
	if s.PacketsRecv > 0 && s.Timed {
		fmt.Fprintf(&b, "rtt min/avg/max/mdev = %s/%s/%s/%s ms",
			RTTLevel(s.MinRtt).Sprint(millis(s.MinRtt)),
			RTTLevel(s.AvgRtt).Sprint(millis(s.AvgRtt)),
			RTTLevel(s.MaxRtt).Sprint(millis(s.MaxRtt)),
			DeviationLevel(s.MDevRtt).Sprint(millis(s.MDevRtt)))
		comma = ", "
	}
	if s.IPG > 0 {
		fmt.Fprintf(&b, "%sipg/ewma %s/%s ms", comma, millis(s.IPG), millis(s.EWMARtt))
	}
	b.WriteString("\n")
	return b.String()
}

// SnapshotLine is the one line progress report.
func SnapshotLine(s watchping.Statistics) string {
	line := fmt.Sprintf("%d/%d packets, %d%% loss", s.PacketsRecv, s.PacketsSent, int(s.PacketLoss))
	if s.PacketsRecv > 0 && s.Timed {
		line += fmt.Sprintf(", min/avg/ewma/max = %s/%s/%s/%s ms",
			millis(s.MinRtt), millis(s.AvgRtt), millis(s.EWMARtt), millis(s.MaxRtt))
	}
	return line
}

// Render lays out the recent reply lines followed by the summary.
func Render(s watchping.Statistics, recent []string) string {
	var b strings.Builder
	for _, l := range recent {
		b.WriteString(l)
		b.WriteString("\n")
	}
	b.WriteString("\n")
	b.WriteString(Summary(s))
	return b.String()
}

// View is the refreshing screen. It is safe for concurrent use.
type View struct {
	Command  string
	Interval time.Duration
	Title    bool
	Prologue string

	area     *pterm.AreaPrinter
	hostname string
	lines    int
	recent   []string
	last     watchping.Statistics
	mu       sync.Mutex
}

// New starts a view keeping the last lines replies on screen.
func New(command string, interval time.Duration, title bool, lines int) (*View, error) {
	area, err := pterm.DefaultArea.Start()
	if err != nil {
		return nil, fmt.Errorf("failed to start area: %w", err)
	}
	hostname, _ := os.Hostname()
	return &View{
		Command:  command,
		Interval: interval,
		Title:    title,
		area:     area,
		hostname: hostname,
		lines:    lines,
	}, nil
}

// Packet records a reply line.
func (v *View) Packet(p *watchping.Packet) {
	v.Note(PacketLine(p))
}

// Note records an informational line.
func (v *View) Note(line string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.recent = append(v.recent, line)
	if v.lines > 0 && len(v.recent) > v.lines {
		v.recent = v.recent[len(v.recent)-v.lines:]
	}
}

// Update redraws the screen with s.
func (v *View) Update(s watchping.Statistics) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.last = s
	v.area.Update(v.screen())
}

func (v *View) screen() string {
	var b strings.Builder
	if v.Title {
		b.WriteString(HeaderLine(pterm.GetTerminalWidth(), v.Interval, v.Command, v.hostname, time.Now()))
		b.WriteString("\n\n")
	}
	if v.Prologue != "" {
		b.WriteString(v.Prologue)
		b.WriteString("\n")
	}
	b.WriteString(Render(v.last, v.recent))
	return b.String()
}

// Stop leaves the last screen in place.
func (v *View) Stop() error {
	return v.area.Stop()
}

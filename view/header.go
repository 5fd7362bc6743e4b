package view

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// MinInterval is the shortest refresh period of the screen.
const MinInterval = 100 * time.Millisecond

// Interval returns the screen refresh period: WATCH_INTERVAL when set, d
// otherwise, never less than MinInterval.
func Interval(d time.Duration) (time.Duration, error) {
	if s := os.Getenv("WATCH_INTERVAL"); s != "" {
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, fmt.Errorf("could not parse interval from WATCH_INTERVAL: %w", err)
		}
		d = time.Duration(f * float64(time.Second))
	}
	if d < MinInterval {
		d = MinInterval
	}
	return d, nil
}

// HeaderLine lays out "Every N.Ns: command" on the left and
// "hostname: time" on the right of a width columns line, clipping the
// command first.
func HeaderLine(width int, interval time.Duration, command, hostname string, now time.Time) string {
	left := fmt.Sprintf("Every %.1fs: ", interval.Seconds())
	right := fmt.Sprintf("%s: %s", hostname, now.Format(time.ANSIC))
	hlen := len(left)
	// rlen counts the line feed the right part is laid out with.
	rlen := len(right) + 1
	if width < rlen {
		return ""
	}

	line := []byte(fmt.Sprintf("%*s", width, ""))
	put := func(at int, s string) {
		if at < 0 {
			return
		}
		for i := 0; i < len(s) && at+i < len(line); i++ {
			line[at+i] = s[i]
		}
	}
	if rlen+hlen+1 <= width {
		put(0, left)
		if rlen+hlen+2 <= width {
			switch {
			case width < rlen+hlen+4:
				put(width-rlen-4, "... ")
			case width < rlen+hlen+len(command):
				put(hlen, command[:width-rlen-hlen-4])
				put(width-rlen-4, "... ")
			default:
				put(hlen, command[:min(len(command), width-rlen-hlen)])
			}
		}
	}
	put(width-rlen+1, right)
	return string(line)
}

package view

import (
	"time"

	"github.com/pterm/pterm"
)

// Level grades a measure for colouring.
type Level int

const (
	Low Level = iota
	Medium
	High
)

var styles = map[Level]*pterm.Style{
	Low:    pterm.NewStyle(pterm.FgLightGreen),
	Medium: pterm.NewStyle(pterm.FgLightYellow),
	High:   pterm.NewStyle(pterm.FgLightRed),
}

func grade(v, medium, high int64) Level {
	switch {
	case v < medium:
		return Low
	case v < high:
		return Medium
	default:
		return High
	}
}

// RTTLevel grades a round trip time on its whole milliseconds.
func RTTLevel(d time.Duration) Level {
	return grade(d.Milliseconds(), 50, 100)
}

// DeviationLevel grades a mean deviation on its whole milliseconds.
func DeviationLevel(d time.Duration) Level {
	return grade(d.Milliseconds(), 10, 30)
}

// LossLevel grades a loss percentage.
func LossLevel(pct float64) Level {
	switch {
	case pct < 1:
		return Low
	case pct < 5:
		return Medium
	default:
		return High
	}
}

// Sprint colours s for l.
func (l Level) Sprint(s string) string {
	st, ok := styles[l]
	if !ok {
		return s
	}
	return st.Sprint(s)
}

// Package renko builds fixed-range bars (bricks) from a tick sequence.
package renko

import (
	"math"
	"time"
)

// BarType tags a bar's direction. Partial is the single still-forming bar.
type BarType int

const (
	Partial BarType = iota
	Up
	Down
)

func (t BarType) String() string {
	switch t {
	case Up:
		return "UP"
	case Down:
		return "DOWN"
	}
	return "PARTIAL"
}

// Bar is one fixed-range price segment. For Up and Down bars |Close-Open|
// equals the chart size that produced it.
type Bar struct {
	Time      time.Time `json:"time"`
	Type      BarType   `json:"type"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	TickCount int64     `json:"tick_count"`
	Volume    float64   `json:"volume"`
}

// LineUp is the upper edge of the bar body.
func (b *Bar) LineUp() float64 {
	return math.Max(b.Open, b.Close)
}

// LineDown is the lower edge of the bar body.
func (b *Bar) LineDown() float64 {
	return math.Min(b.Open, b.Close)
}

// Completed reports whether the bar is no longer mutable.
func (b *Bar) Completed() bool {
	return b.Type != Partial
}

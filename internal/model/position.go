package model

import "time"

// Position is an open position as reported by the execution venue.
// Volume is signed: positive = long, negative = short.
type Position struct {
	Ticket       uint64    `json:"ticket"`
	Symbol       string    `json:"symbol"`
	Volume       float64   `json:"volume"`
	PriceOpen    float64   `json:"price_open"`
	PriceCurrent float64   `json:"price_current"`
	Profit       float64   `json:"profit"`
	Magic        uint64    `json:"magic"`
	Time         time.Time `json:"time"`
}

// Long reports whether the position holds net long volume.
func (p *Position) Long() bool {
	return p.Volume > 0
}

// NetVolume sums the signed volume of positions.
func NetVolume(positions []Position) float64 {
	var v float64
	for i := range positions {
		v += positions[i].Volume
	}
	return v
}

package model

import (
	"encoding/json"
	"time"
)

// Rate is a fixed-timeframe OHLC aggregate.
// Time is the bucket start; ticks in [Time, Time+timeframe) belong to it.
type Rate struct {
	Time       time.Time `json:"time"`
	Open       float64   `json:"open"`
	High       float64   `json:"high"`
	Low        float64   `json:"low"`
	Close      float64   `json:"close"`
	TickVolume int64     `json:"tick_volume"`
	Volume     float64   `json:"volume"`
}

// JSON returns the JSON-encoded rate.
func (r *Rate) JSON() []byte {
	b, _ := json.Marshal(r)
	return b
}

// Closes returns the close prices of rates in order.
func Closes(rates []Rate) []float64 {
	out := make([]float64, len(rates))
	for i := range rates {
		out[i] = rates[i].Close
	}
	return out
}

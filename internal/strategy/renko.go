package strategy

import (
	"market-analyzer/internal/marketdata/renko"
	"market-analyzer/internal/model"
)

// Renko evaluates an inner strategy over the range bars instead of the
// time rates. It only re-evaluates when a new bar has opened.
type Renko struct {
	inner Strategy
	bars  BarSource

	lastOpen float64
	seen     bool
	target   float64
}

// NewRenko wraps inner to run over bars.
func NewRenko(inner Strategy, bars BarSource) *Renko {
	return &Renko{inner: inner, bars: bars}
}

func (r *Renko) Name() string { return "renko:" + r.inner.Name() }

// Lookback is 1: the bar window is checked against the inner lookback.
func (r *Renko) Lookback() int { return 1 }

func (r *Renko) Signal(_ []model.Rate) float64 {
	bars := r.bars()
	if len(bars) < r.inner.Lookback() || len(bars) == 0 {
		return r.target
	}
	open := bars[len(bars)-1].Open
	if r.seen && open == r.lastOpen {
		return r.target
	}
	r.lastOpen, r.seen = open, true
	r.target = r.inner.Signal(BarRates(bars))
	return r.target
}

// SetPosition forwards to the inner strategy.
func (r *Renko) SetPosition(volume, profit float64) {
	if pa, ok := r.inner.(PositionAware); ok {
		pa.SetPosition(volume, profit)
	}
}

// BarRates converts range bars into rates so rate strategies can read them.
func BarRates(bars []renko.Bar) []model.Rate {
	out := make([]model.Rate, len(bars))
	for i, b := range bars {
		out[i] = model.Rate{
			Time:       b.Time,
			Open:       b.Open,
			High:       b.High,
			Low:        b.Low,
			Close:      b.Close,
			TickVolume: b.TickCount,
			Volume:     b.Volume,
		}
	}
	return out
}

package strategy

import (
	"math"

	"market-analyzer/internal/indicator"
	"market-analyzer/internal/model"
)

// FollowEMA is long above the EMA and short below it. A new entry needs the
// close to have moved at least MinMove from the previous entry price.
type FollowEMA struct {
	ema     *indicator.EMA
	period  int
	minMove float64
	volume  float64

	lastEntry float64
	target    float64
}

// NewFollowEMA creates a price-versus-EMA strategy.
func NewFollowEMA(period int, minMove, volume float64) *FollowEMA {
	return &FollowEMA{ema: indicator.NewEMA(period), period: period, minMove: minMove, volume: volume}
}

func (f *FollowEMA) Name() string  { return "follow-ema" }
func (f *FollowEMA) Lookback() int { return f.period }

func (f *FollowEMA) Signal(rates []model.Rate) float64 {
	ema, ok := indicator.Last(f.ema, rates)
	if !ok {
		return f.target
	}
	close := rates[len(rates)-1].Close
	if f.lastEntry != 0 && math.Abs(f.lastEntry-close) < f.minMove {
		return f.target
	}
	switch {
	case close > ema:
		f.lastEntry = close
		f.target = f.volume
	case close < ema:
		f.lastEntry = close
		f.target = -f.volume
	}
	return f.target
}

// VolatilityStop trails a stop ATR*Multiplier away from the close and flips
// direction when the close crosses it.
type VolatilityStop struct {
	atr        *indicator.ATR
	period     int
	multiplier float64
	volume     float64
}

// NewVolatilityStop creates an ATR trailing stop strategy.
func NewVolatilityStop(period int, multiplier, volume float64) *VolatilityStop {
	if multiplier <= 0 {
		multiplier = 3
	}
	return &VolatilityStop{atr: indicator.NewATR(period), period: period, multiplier: multiplier, volume: volume}
}

func (v *VolatilityStop) Name() string  { return "atr-stop" }
func (v *VolatilityStop) Lookback() int { return v.period + 1 }

func (v *VolatilityStop) Signal(rates []model.Rate) float64 {
	long, ok := v.trend(rates)
	if !ok {
		return 0
	}
	return signed(long, v.volume)
}

// trend replays the stop over rates and reports whether the final state is long.
func (v *VolatilityStop) trend(rates []model.Rate) (long, ok bool) {
	v.atr.Reset()
	var stop float64
	started := false
	for _, r := range rates {
		v.atr.Update(r)
		if !v.atr.Ready() {
			continue
		}
		band := v.atr.Value() * v.multiplier
		if !started {
			long = true
			stop = r.Close - band
			started = true
			continue
		}
		if long {
			if r.Close < stop {
				long = false
				stop = r.Close + band
			} else {
				stop = math.Max(stop, r.Close-band)
			}
		} else {
			if r.Close > stop {
				long = true
				stop = r.Close - band
			} else {
				stop = math.Min(stop, r.Close+band)
			}
		}
	}
	return long, started
}

// Slope follows the sign of the linear regression slope of the closes.
type Slope struct {
	lr     *indicator.LinReg
	period int
	volume float64
}

// NewSlope creates a linear regression slope strategy.
func NewSlope(period int, volume float64) *Slope {
	if period < 2 {
		period = 2
	}
	return &Slope{lr: indicator.NewLinReg(period), period: period, volume: volume}
}

func (s *Slope) Name() string  { return "linreg" }
func (s *Slope) Lookback() int { return s.period }

func (s *Slope) Signal(rates []model.Rate) float64 {
	slope, ok := indicator.Last(s.lr, rates)
	if !ok || slope == 0 {
		return 0
	}
	return signed(slope > 0, s.volume)
}

// LastBar follows the direction of the most recent rate.
type LastBar struct {
	volume float64
}

// NewLastBar creates a last-bar direction strategy.
func NewLastBar(volume float64) *LastBar { return &LastBar{volume: volume} }

func (l *LastBar) Name() string  { return "last-bar" }
func (l *LastBar) Lookback() int { return 1 }

func (l *LastBar) Signal(rates []model.Rate) float64 {
	if len(rates) == 0 {
		return 0
	}
	r := rates[len(rates)-1]
	if r.Close == r.Open {
		return 0
	}
	return signed(r.Close > r.Open, l.volume)
}

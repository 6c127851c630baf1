package strategy

import (
	"log/slog"

	"market-analyzer/internal/indicator"
	"market-analyzer/internal/model"
)

// Crossover implements a moving average crossover strategy.
//
// Long: fast MA crosses above slow MA (golden cross)
// Short: fast MA crosses below slow MA (death cross)
//
// Optional RSI filter ignores a golden cross when overbought (>70)
// and a death cross when oversold (<30).
type Crossover struct {
	name   string
	fast   indicator.Indicator
	slow   indicator.Indicator
	period int
	volume float64

	rsi *indicator.RSI

	target  float64
	started bool
}

// NewSMACrossover creates a simple moving average crossover.
// fastPeriod < slowPeriod (e.g., 9 and 21).
func NewSMACrossover(fastPeriod, slowPeriod int, volume float64, enableRSI bool, rsiPeriod int) *Crossover {
	return newCrossover("sma-cross", indicator.NewSMA(fastPeriod), indicator.NewSMA(slowPeriod), slowPeriod, volume, enableRSI, rsiPeriod)
}

// NewEMACrossover creates a double EMA crossover.
func NewEMACrossover(fastPeriod, slowPeriod int, volume float64, enableRSI bool, rsiPeriod int) *Crossover {
	return newCrossover("ema-cross", indicator.NewEMA(fastPeriod), indicator.NewEMA(slowPeriod), slowPeriod, volume, enableRSI, rsiPeriod)
}

func newCrossover(name string, fast, slow indicator.Indicator, period int, volume float64, enableRSI bool, rsiPeriod int) *Crossover {
	c := &Crossover{name: name, fast: fast, slow: slow, period: period, volume: volume}
	if enableRSI {
		if rsiPeriod <= 0 {
			rsiPeriod = 14
		}
		c.rsi = indicator.NewRSI(rsiPeriod)
	}
	return c
}

func (c *Crossover) Name() string { return c.name }

// Lookback needs one rate beyond the slow period to see a cross.
func (c *Crossover) Lookback() int { return c.period + 1 }

func (c *Crossover) Signal(rates []model.Rate) float64 {
	if len(rates) < c.Lookback() {
		return c.target
	}

	fast := indicator.Series(c.fast, rates)
	slow := indicator.Series(c.slow, rates)
	n := len(rates)
	f0, f1 := fast[n-1], fast[n-2]
	s0, s1 := slow[n-1], slow[n-2]

	// Before the first evaluated cross, hold the side the averages were on.
	if !c.started {
		c.started = true
		if f1 != s1 {
			c.target = signed(f1 > s1, c.volume)
		}
	}

	lastRSI := 50.0
	if c.rsi != nil {
		if v, ok := indicator.Last(c.rsi, rates); ok {
			lastRSI = v
		}
	}

	switch {
	case f1 <= s1 && f0 > s0:
		if lastRSI > 70 {
			slog.Debug("golden cross filtered", "component", "strategy", "strategy", c.name, "rsi", lastRSI)
			return c.target
		}
		c.target = c.volume
	case f1 >= s1 && f0 < s0:
		if lastRSI < 30 {
			slog.Debug("death cross filtered", "component", "strategy", "strategy", c.name, "rsi", lastRSI)
			return c.target
		}
		c.target = -c.volume
	}
	return c.target
}

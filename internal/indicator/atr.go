package indicator

import (
	"math"

	"market-analyzer/internal/model"
)

// ATR is the Average True Range with Wilder smoothing of the true range.
type ATR struct {
	smma      *SMMA
	prevClose float64
	count     int
}

// NewATR creates an ATR over period rates.
func NewATR(period int) *ATR {
	return &ATR{smma: NewSMMA(period)}
}

func (a *ATR) Name() string { return "ATR" }

func (a *ATR) Update(rate model.Rate) {
	tr := rate.High - rate.Low
	if a.count > 0 {
		tr = trueRange(rate.High, rate.Low, a.prevClose)
	}
	a.smma.push(tr)
	a.prevClose = rate.Close
	a.count++
}

func (a *ATR) Value() float64 { return a.smma.Value() }
func (a *ATR) Ready() bool    { return a.smma.Ready() }

// Reset clears the ATR state for reuse.
func (a *ATR) Reset() {
	a.smma.Reset()
	a.prevClose = 0
	a.count = 0
}

func trueRange(high, low, prevClose float64) float64 {
	return math.Max(high-low, math.Max(math.Abs(high-prevClose), math.Abs(low-prevClose)))
}

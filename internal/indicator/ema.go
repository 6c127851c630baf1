package indicator

import "market-analyzer/internal/model"

// EMA is the exponential moving average of closes, seeded with their SMA.
type EMA struct {
	s smoother
}

// NewEMA creates an EMA with multiplier 2/(period+1).
func NewEMA(period int) *EMA {
	period = atLeast(period, 1)
	return &EMA{s: smoother{period: period, alpha: 2 / float64(period+1)}}
}

func (e *EMA) Name() string           { return "EMA" }
func (e *EMA) Update(rate model.Rate) { e.s.push(rate.Close) }
func (e *EMA) Value() float64         { return e.s.value() }
func (e *EMA) Ready() bool            { return e.s.ready() }
func (e *EMA) Reset()                 { e.s.reset() }

package indicator

import "market-analyzer/internal/model"

// SMMA is Wilder's smoothed moving average: SMA seed, then
// (prev*(period-1) + x) / period. ATR and RSI smooth their inputs with it.
type SMMA struct {
	s smoother
}

// NewSMMA creates an SMMA over period inputs.
func NewSMMA(period int) *SMMA {
	period = atLeast(period, 1)
	return &SMMA{s: wilder(period)}
}

func wilder(period int) smoother {
	return smoother{period: period, alpha: 1 / float64(period)}
}

func (s *SMMA) Name() string           { return "SMMA" }
func (s *SMMA) Update(rate model.Rate) { s.push(rate.Close) }
func (s *SMMA) push(x float64)         { s.s.push(x) }
func (s *SMMA) Value() float64         { return s.s.value() }
func (s *SMMA) Ready() bool            { return s.s.ready() }
func (s *SMMA) Reset()                 { s.s.reset() }

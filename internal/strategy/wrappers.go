package strategy

import (
	"math"

	"market-analyzer/internal/model"
)

type wrapped struct {
	inner Strategy
}

func (w wrapped) Lookback() int { return w.inner.Lookback() }

func (w wrapped) SetPosition(volume, profit float64) {
	if pa, ok := w.inner.(PositionAware); ok {
		pa.SetPosition(volume, profit)
	}
}

type follow struct{ wrapped }

// FollowTrend returns s unchanged apart from its name.
func FollowTrend(s Strategy) Strategy { return follow{wrapped{s}} }

func (f follow) Name() string                      { return "follow:" + f.inner.Name() }
func (f follow) Signal(rates []model.Rate) float64 { return f.inner.Signal(rates) }

type fade struct{ wrapped }

// Fade trades against s.
func Fade(s Strategy) Strategy { return fade{wrapped{s}} }

func (f fade) Name() string { return "fade:" + f.inner.Name() }

func (f fade) Signal(rates []model.Rate) float64 {
	v := f.inner.Signal(rates)
	if v == 0 {
		return 0
	}
	return -v
}

// MartingaleStrategy doubles the target each time a position is reversed
// at a loss, up to 2^MaxPower, and resets after a winning reversal.
type MartingaleStrategy struct {
	wrapped
	MaxPower int

	power    int
	volume   float64
	profit   float64
	lastSign float64
}

// Martingale wraps s with loss-doubling position sizing.
func Martingale(s Strategy, maxPower int) *MartingaleStrategy {
	if maxPower < 0 {
		maxPower = 0
	}
	return &MartingaleStrategy{wrapped: wrapped{s}, MaxPower: maxPower}
}

func (m *MartingaleStrategy) Name() string { return "martingale:" + m.inner.Name() }

// SetPosition records the held position used to score the next reversal.
func (m *MartingaleStrategy) SetPosition(volume, profit float64) {
	m.volume, m.profit = volume, profit
	m.wrapped.SetPosition(volume, profit)
}

// Power is the current doubling exponent.
func (m *MartingaleStrategy) Power() int { return m.power }

func (m *MartingaleStrategy) Signal(rates []model.Rate) float64 {
	v := m.inner.Signal(rates)
	sign := sgn(v)
	if sign != m.lastSign && m.volume != 0 {
		if m.profit < 0 {
			if m.power < m.MaxPower {
				m.power++
			}
		} else {
			m.power = 0
		}
	}
	m.lastSign = sign
	return v * math.Pow(2, float64(m.power))
}

func sgn(v float64) float64 {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	}
	return 0
}

package agg

import (
	"sync"

	"market-analyzer/internal/indicator"
	"market-analyzer/internal/model"
)

// ATRSize derives a brick size from the average true range of finalized
// rates: multiplier * ATR, never below min. Size is 0 until the ATR is
// ready, which keeps the chart at its configured size.
type ATRSize struct {
	mu         sync.Mutex
	atr        *indicator.ATR
	multiplier float64
	min        float64
}

// NewATRSize creates a sizer over period rates.
func NewATRSize(period int, multiplier, min float64) *ATRSize {
	return &ATRSize{atr: indicator.NewATR(period), multiplier: multiplier, min: min}
}

// Update feeds one finalized rate.
func (s *ATRSize) Update(r model.Rate) {
	s.mu.Lock()
	s.atr.Update(r)
	s.mu.Unlock()
}

// Size returns the current brick size, or 0 while warming up.
func (s *ATRSize) Size() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.atr.Ready() {
		return 0
	}
	size := s.multiplier * s.atr.Value()
	if size < s.min {
		return s.min
	}
	return size
}

// Reset drops the ATR history.
func (s *ATRSize) Reset() {
	s.mu.Lock()
	s.atr.Reset()
	s.mu.Unlock()
}

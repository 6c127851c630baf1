// Package agg turns an accepted tick stream into range bars.
package agg

import (
	"log/slog"
	"sync"

	"market-analyzer/internal/marketdata/renko"
	"market-analyzer/internal/model"
)

// Aggregator feeds trade ticks into a renko chart and reports every completed
// bar. One loop writes; Snapshot and Levels may be called from any goroutine.
type Aggregator struct {
	mu    sync.Mutex
	chart *renko.Chart
	log   *slog.Logger

	// SizeFn, when set, is consulted on every tick for a dynamic bar size.
	// Non-positive values keep the current size.
	SizeFn func() float64

	// OnBar is called for every completed bar (optional, metrics hook).
	OnBar func(renko.Bar)
}

// New creates an Aggregator with a fixed initial bar size.
func New(size float64, log *slog.Logger) *Aggregator {
	if log == nil {
		log = slog.Default()
	}
	return &Aggregator{
		chart: renko.New(size),
		log:   log.With("component", "agg"),
	}
}

// ProcessTrade folds a tick already accepted by the store's gate into the
// chart. Quote-only ticks carry no trade price and are ignored.
func (a *Aggregator) ProcessTrade(tick model.Tick) []renko.Bar {
	if !tick.Trade() {
		return nil
	}
	size := 0.0
	if a.SizeFn != nil {
		size = a.SizeFn()
	}
	a.mu.Lock()
	before := a.chart.Size()
	done := a.chart.Ingest(tick.Time, tick.Last, tick.Volume, size)
	after := a.chart.Size()
	a.mu.Unlock()

	if after != before {
		a.log.Debug("brick size changed", "from", before, "to", after)
	}
	if a.OnBar != nil {
		for _, b := range done {
			a.OnBar(b)
		}
	}
	return done
}

// Size returns the current bar size.
func (a *Aggregator) Size() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.chart.Size()
}

// Snapshot returns copies of the full bar sequence and its de-duplicated view.
func (a *Aggregator) Snapshot() (bars, unique []renko.Bar) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.chart.Bars(), a.chart.Unique()
}

// Levels returns the reversal levels of the forming bar.
func (a *Aggregator) Levels() (up, down float64, ok bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.chart.Levels()
}

// Reset clears the chart.
func (a *Aggregator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.chart.Reset()
}

package tfbuilder

import (
	"sort"
	"time"

	"market-analyzer/internal/model"
)

// Window keeps the most recent rates of one timeframe, newest last.
// The newest rate may still be forming and is replaced when an update for the
// same bucket arrives.
type Window struct {
	span  time.Duration
	rates []model.Rate
}

// NewWindow creates a window keeping rates no older than span.
func NewWindow(span time.Duration) *Window {
	return &Window{span: span}
}

// Merge folds rates (ordered by time) into the window.
func (w *Window) Merge(rates []model.Rate) {
	for _, r := range rates {
		n := len(w.rates)
		switch {
		case n > 0 && r.Time.Equal(w.rates[n-1].Time):
			w.rates[n-1] = r
		case n > 0 && r.Time.Before(w.rates[n-1].Time):
			i := sort.Search(n, func(i int) bool { return !w.rates[i].Time.Before(r.Time) })
			if w.rates[i].Time.Equal(r.Time) {
				w.rates[i] = r
			}
		default:
			w.rates = append(w.rates, r)
		}
	}
}

// Trim drops rates older than now - span.
func (w *Window) Trim(now time.Time) {
	cut := now.Add(-w.span)
	i := sort.Search(len(w.rates), func(i int) bool { return !w.rates[i].Time.Before(cut) })
	if i > 0 {
		w.rates = append(w.rates[:0], w.rates[i:]...)
	}
}

// Rates returns a copy of the window.
func (w *Window) Rates() []model.Rate {
	out := make([]model.Rate, len(w.rates))
	copy(out, w.rates)
	return out
}

// Last returns the newest rate.
func (w *Window) Last() (model.Rate, bool) {
	if len(w.rates) == 0 {
		return model.Rate{}, false
	}
	return w.rates[len(w.rates)-1], true
}

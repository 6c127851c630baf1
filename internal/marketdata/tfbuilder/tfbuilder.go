// Package tfbuilder resamples ticks into fixed-timeframe rates, both in batch
// (Resample) and incrementally as ticks are folded (Builder).
package tfbuilder

import (
	"time"

	"market-analyzer/internal/model"
)

// Builder maintains one forming rate for a single timeframe and finalizes it
// when a trade arrives in a later bucket. Designed for a single consumer.
type Builder struct {
	tf      time.Duration
	forming model.Rate
	started bool

	// volume of non-trade ticks seen before the first trade of pendingAt
	pending   float64
	pendingAt time.Time

	// StaleTolerance rejects trades older than the forming bucket start by
	// more than this duration. Set to 0 to disable.
	StaleTolerance time.Duration

	// Metrics hooks
	OnRate      func(r model.Rate) // called on a finalized rate (optional)
	OnStaleTick func()             // called when a stale trade is rejected (optional)
}

// New creates a Builder for the given timeframe.
func New(tf time.Duration) *Builder {
	return &Builder{
		tf:             tf,
		StaleTolerance: 2 * time.Second,
	}
}

// Timeframe returns the builder's bucket width.
func (b *Builder) Timeframe() time.Duration { return b.tf }

// Add folds a tick into the forming rate. Only trades move prices; every
// tick's volume counts toward its bucket. When a trade opens a new bucket the
// previous rate is returned with done = true.
func (b *Builder) Add(tk model.Tick) (finalized model.Rate, done bool) {
	bucket := tk.Time.Truncate(b.tf)
	if !tk.Trade() {
		b.addVolume(bucket, tk.Volume)
		return model.Rate{}, false
	}

	if b.started && bucket.Before(b.forming.Time) {
		if b.StaleTolerance > 0 && b.forming.Time.Sub(tk.Time) > b.StaleTolerance {
			if b.OnStaleTick != nil {
				b.OnStaleTick()
			}
			return model.Rate{}, false
		}
		// Late but tolerated: fold into the forming rate.
		fold(&b.forming, &tk)
		return model.Rate{}, false
	}

	if b.started && bucket.Equal(b.forming.Time) {
		fold(&b.forming, &tk)
		return model.Rate{}, false
	}

	if b.started {
		finalized, done = b.forming, true
		if b.OnRate != nil {
			b.OnRate(finalized)
		}
	}
	b.forming = openRate(bucket, &tk)
	if b.pendingAt.Equal(bucket) {
		b.forming.Volume += b.pending
	}
	b.pending, b.pendingAt = 0, time.Time{}
	b.started = true
	return finalized, done
}

func (b *Builder) addVolume(bucket time.Time, vol float64) {
	if vol == 0 {
		return
	}
	if b.started && bucket.Equal(b.forming.Time) {
		b.forming.Volume += vol
		return
	}
	if b.started && bucket.Before(b.forming.Time) {
		return
	}
	if !b.pendingAt.Equal(bucket) {
		b.pending, b.pendingAt = 0, bucket
	}
	b.pending += vol
}

// Forming returns the rate currently being built.
func (b *Builder) Forming() (model.Rate, bool) {
	return b.forming, b.started
}

// Reset drops the forming rate.
func (b *Builder) Reset() {
	b.forming = model.Rate{}
	b.started = false
	b.pending, b.pendingAt = 0, time.Time{}
}

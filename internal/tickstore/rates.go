package tickstore

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"market-analyzer/internal/marketdata/tfbuilder"
	"market-analyzer/internal/model"
)

// RatesConfig holds online rates provider settings.
type RatesConfig struct {
	Symbol    string
	Timeframe time.Duration
	Window    time.Duration
	ChunkSize int
}

// Rates keeps a rolling window of feed rates for one timeframe, backed by a
// sorted-set cache keyed by (symbol, day, timeframe).
type Rates struct {
	cfg    RatesConfig
	win    *tfbuilder.Window
	feed   model.MarketData
	cache  model.RateCache
	status model.StatusRecorder
	log    *slog.Logger
}

// NewRates creates an online rates provider. cache may be nil.
func NewRates(cfg RatesConfig, feed model.MarketData, cache model.RateCache, status model.StatusRecorder, log *slog.Logger) *Rates {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 5000
	}
	if log == nil {
		log = slog.Default()
	}
	return &Rates{
		cfg:    cfg,
		win:    tfbuilder.NewWindow(cfg.Window),
		feed:   feed,
		cache:  cache,
		status: status,
		log:    log.With("component", "rates", "symbol", cfg.Symbol),
	}
}

// Refresh brings the window up to now and returns it. The newest rate may be
// forming. ok is false when the feed reported a non-OK status.
func (r *Rates) Refresh(ctx context.Context, now time.Time) (rates []model.Rate, ok bool, err error) {
	from := now.Add(-r.cfg.Window)
	if last, has := r.win.Last(); has && last.Time.After(from) {
		// Re-read the newest bucket, it may have been forming.
		from = last.Time
	}
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	if r.cache != nil {
		cached, err := r.cache.RangeRates(ctx, r.cfg.Symbol, day, r.cfg.Timeframe, from, now)
		if err != nil {
			r.log.Warn("rate cache read failed", "error", err)
			if r.status != nil {
				r.status.CheckStatus(model.GetRates, model.StatusError, fmt.Sprintf("cache read: %v", err))
			}
			cached = nil
		}
		r.win.Merge(cached)
		if n := len(cached); n > 0 && cached[n-1].Time.After(from) {
			from = cached[n-1].Time
		}
	}

	stream, err := r.feed.StreamRates(ctx, r.cfg.Symbol, from, now, r.cfg.Timeframe, r.cfg.ChunkSize)
	if err != nil {
		return nil, false, fmt.Errorf("stream rates: %w", err)
	}
	for batch := range stream {
		if r.status != nil && !r.status.CheckStatus(model.GetRates, batch.Status, r.cfg.Symbol) {
			return r.win.Rates(), false, nil
		}
		if r.status == nil && batch.Status != model.StatusOK {
			return r.win.Rates(), false, nil
		}
		r.win.Merge(batch.Rates)
		if r.cache != nil && len(batch.Rates) > 0 {
			if err := r.cache.AddRates(ctx, r.cfg.Symbol, day, r.cfg.Timeframe, batch.Rates); err != nil {
				r.log.Warn("cache rates failed", "error", err)
			}
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	r.win.Trim(now)
	return r.win.Rates(), true, nil
}

package loop

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"market-analyzer/internal/clock"
	"market-analyzer/internal/marketdata/agg"
	"market-analyzer/internal/marketdata/renko"
	"market-analyzer/internal/marketdata/tfbuilder"
	"market-analyzer/internal/state"
	"market-analyzer/internal/tickstore"
)

// MarketDataConfig holds market data loop settings.
type MarketDataConfig struct {
	Timeframe time.Duration
	Window    time.Duration
	// Live pulls new feed ticks on every iteration after the initial load.
	Live bool
	// PublishQuote publishes the store's synthetic quote as the last tick.
	// Used in backtests, where no live quote exists.
	PublishQuote bool
}

// MarketDataLoop hydrates the tick store, folds the ticks visible at the
// clock's now into the range chart and publishes bars and rates.
type MarketDataLoop struct {
	Base
	cfg   MarketDataConfig
	clock clock.Clock
	store *tickstore.Store
	agg   *agg.Aggregator
	rates *tickstore.Rates
	st    *state.State
	tf    *tfbuilder.Builder
	sizer *agg.ATRSize

	day    time.Time
	loaded bool
	cursor int // index of the next store tick to fold into the chart
}

// NewMarketDataLoop creates the loop. rates may be nil, in which case rates
// are resampled from the tick store.
func NewMarketDataLoop(cfg MarketDataConfig, clk clock.Clock, store *tickstore.Store, a *agg.Aggregator, rates *tickstore.Rates, st *state.State, log *slog.Logger) *MarketDataLoop {
	if cfg.Timeframe <= 0 {
		cfg.Timeframe = time.Minute
	}
	return &MarketDataLoop{
		Base:  NewBase("market-data", log),
		cfg:   cfg,
		clock: clk,
		store: store,
		agg:   a,
		rates: rates,
		st:    st,
		tf:    tfbuilder.New(cfg.Timeframe),
	}
}

// Builder returns the incremental rate builder fed with every folded tick,
// so callers can attach hooks.
func (l *MarketDataLoop) Builder() *tfbuilder.Builder { return l.tf }

// UseDynamicSize sizes bricks from the ATR of the rates the builder
// finalizes. Until the ATR is ready the configured size applies.
func (l *MarketDataLoop) UseDynamicSize(s *agg.ATRSize) {
	l.sizer = s
	l.agg.SizeFn = s.Size
}

func (l *MarketDataLoop) CanRun() bool { return true }

func (l *MarketDataLoop) Run(ctx context.Context) error {
	now := l.clock.Now()
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	if !day.Equal(l.day) {
		l.day = day
		l.loaded = false
		l.cursor = 0
		l.store.Reset()
		l.agg.Reset()
		l.tf.Reset()
		if l.sizer != nil {
			l.sizer.Reset()
		}
	}

	if !l.loaded {
		ok, err := l.store.Load(ctx, l.st.Symbol(), day)
		if err != nil {
			return fmt.Errorf("load ticks: %w", err)
		}
		if !ok {
			return nil
		}
		l.loaded = true
		l.log.Info("market data loaded", "day", day.Format("2006-01-02"), "ticks", l.store.Len())
	} else if l.cfg.Live {
		if _, _, err := l.store.Pull(ctx, now); err != nil {
			return fmt.Errorf("pull ticks: %w", err)
		}
	}

	completed := l.fold(now)

	all, unique := l.agg.Snapshot()
	bars := state.Bars{All: all, Unique: unique, Size: l.agg.Size()}
	bars.Up, bars.Down, _ = l.agg.Levels()
	l.st.SetBars(bars)
	if len(completed) > 0 {
		last := completed[len(completed)-1]
		l.log.Debug("bars completed", "count", len(completed), "type", last.Type.String(), "close", last.Close)
	}

	if err := l.publishRates(ctx, now); err != nil {
		return err
	}

	if l.cfg.PublishQuote {
		if q, ok := l.store.LatestQuote(now); ok {
			l.st.SetLastTick(q)
		}
	}
	return nil
}

// fold feeds the store ticks up to now into the chart.
func (l *MarketDataLoop) fold(now time.Time) []renko.Bar {
	ticks := l.store.Ticks()
	var completed []renko.Bar
	for ; l.cursor < len(ticks) && !ticks[l.cursor].Time.After(now); l.cursor++ {
		if r, done := l.tf.Add(ticks[l.cursor]); done && l.sizer != nil {
			l.sizer.Update(r)
		}
		completed = append(completed, l.agg.ProcessTrade(ticks[l.cursor])...)
	}
	return completed
}

func (l *MarketDataLoop) publishRates(ctx context.Context, now time.Time) error {
	if l.rates == nil {
		l.st.SetRates(l.store.Resample(now.Add(-l.cfg.Window), now, l.cfg.Timeframe))
		return nil
	}
	rates, ok, err := l.rates.Refresh(ctx, now)
	if err != nil {
		return fmt.Errorf("refresh rates: %w", err)
	}
	if ok {
		l.st.SetRates(rates)
	}
	return nil
}

// Bars returns the published de-duplicated bar view; used as a strategy bar
// source.
func (l *MarketDataLoop) Bars() []renko.Bar {
	return l.st.Bars().Value.Unique
}

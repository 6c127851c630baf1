package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"market-analyzer/internal/clock"
	"market-analyzer/internal/execution"
	"market-analyzer/internal/ledger"
	"market-analyzer/internal/loop"
	"market-analyzer/internal/marketdata/feed"
	"market-analyzer/internal/model"
	"market-analyzer/internal/notification"
	"market-analyzer/internal/state"
	"market-analyzer/internal/tickstore"

	"github.com/schollz/progressbar/v3"
	"github.com/shopspring/decimal"
)

// runLive wires the live loops against the feed server and runs them until
// ctx is cancelled.
func (a *app) runLive(ctx context.Context) error {
	cfg := a.cfg
	session, err := a.session()
	if err != nil {
		return err
	}
	clk := clock.Wall{Location: session.Location()}

	st := a.newState(clk, session)
	tickCache, rateCache, rdb := a.caches(ctx)
	a.startMetrics(st)
	a.liveness(ctx, rdb, nil)

	client, err := feed.New(feed.Config{URL: cfg.Feed.URL, RequestTimeout: cfg.Feed.RequestTimeout, StreamTimeout: cfg.Feed.StreamTimeout}, a.log)
	if err != nil {
		return fmt.Errorf("feed client: %w", err)
	}
	client.OnReconnect = a.prom.FeedReconnects.Inc
	client.OnConnected = func(up bool) {
		a.health.SetFeedConnected(up)
		if !up {
			a.alert(notification.AlertWarning, "feed disconnected", cfg.Feed.URL)
		}
	}
	go client.Run(ctx)

	store := a.newStore(client, tickCache, st)

	var rates *tickstore.Rates
	if cfg.OnlineRates {
		rates = tickstore.NewRates(tickstore.RatesConfig{
			Symbol:    cfg.Symbol.Name,
			Timeframe: cfg.Timeframe,
			Window:    cfg.Window,
			ChunkSize: cfg.StreamingData.ChunkSize,
		}, client, rateCache, st, a.log)
	}

	md := loop.NewMarketDataLoop(loop.MarketDataConfig{
		Timeframe: cfg.Timeframe,
		Window:    cfg.Window,
		Live:      true,
	}, clk, store, a.newAggregator(), rates, st, a.log)
	a.hookMarketData(md)

	strat, err := a.buildStrategy(md.Bars)
	if err != nil {
		return err
	}
	wrapper := a.newWrapper(client, st)
	production := cfg.ProductionMode()
	if !production {
		a.log.Warn("order execution disabled, strategy runs read-only")
	}

	lastTick := loop.NewLastTickLoop(client, st, a.log)
	lastTick.OnQuote = func(q model.Quote) { a.health.SetLastTickTime(q.Time) }

	sanity := loop.NewSanityLoop(loop.SanityConfig{
		Execute:        cfg.SanityTest.Execute && production,
		Offset:         cfg.SanityTest.Offset,
		Volume:         cfg.Symbol.StandardLot,
		WhileDelay:     cfg.Order.WhileDelay,
		WaitingTimeout: cfg.Order.WaitingTimeout,
	}, wrapper, st, a.log)
	sanity.OnResult = func(s state.SanityStatus) {
		if s.Passed {
			a.alert(notification.AlertInfo, "sanity test passed", cfg.Symbol.Name)
			return
		}
		a.alert(notification.AlertCritical, "sanity test failed", s.Comment)
	}

	marketState := loop.NewFunc("market-state", a.log, nil, func(context.Context) error {
		open := 0.0
		if st.OpenMarket() {
			open = 1
		}
		a.prom.MarketState.Set(open)
		return nil
	})

	o := loop.New(a.log, a.prom, a.health)
	o.Add(loop.NewPositionLoop(client, st, a.log), cfg.Order.WhileDelay)
	o.Add(loop.NewOrdersLoop(client, st, a.log), cfg.Order.WhileDelay)
	o.Add(lastTick, cfg.Order.WhileDelay)
	o.Add(md, time.Second)
	o.Add(sanity, time.Second)
	o.Add(a.newStrategyLoop(strat, wrapper, st, production), cfg.Order.WhileDelay)
	o.Add(marketState, 30*time.Second)

	a.log.Info("live loops ready",
		"loops", o.Loops(),
		"feed", cfg.Feed.URL,
		"market", session.StatusString(clk.Now()),
	)
	return o.Run(ctx)
}

// runBacktest replays the configured day. The day's ticks come from the feed
// server or, with sim, from an in-process random walk.
func (a *app) runBacktest(ctx context.Context, sim bool, seed int64) error {
	cfg := a.cfg
	session, err := a.session()
	if err != nil {
		return err
	}
	start, end, err := cfg.BacktestRange()
	if err != nil {
		return err
	}
	clk := clock.NewVirtual(start, end, cfg.Backtest.Step, cfg.Timeframe)
	if err := clk.Err(); err != nil {
		return err
	}

	st := a.newState(clk, session)
	tickCache, _, rdb := a.caches(ctx)
	journal, err := a.journal()
	if err != nil {
		return err
	}
	a.startMetrics(st)

	var source model.MarketData
	if sim {
		market := feed.NewSim(feed.SimConfig{
			Symbol: cfg.Symbol.Name,
			Price:  cfg.BrickSize * 100,
			Tick:   cfg.BrickSize / 10,
			Spread: cfg.BrickSize / 10,
			Seed:   seed,
		}, clk, a.log)
		n := market.Generate(start, end, time.Second)
		a.log.Info("generated in-process market", "ticks", n, "seed", seed)
		source = market
		a.health.SetFeedConnected(true)
	} else {
		client, err := feed.New(feed.Config{URL: cfg.Feed.URL, RequestTimeout: cfg.Feed.RequestTimeout, StreamTimeout: cfg.Feed.StreamTimeout}, a.log)
		if err != nil {
			return fmt.Errorf("feed client: %w", err)
		}
		client.OnReconnect = a.prom.FeedReconnects.Inc
		client.OnConnected = a.health.SetFeedConnected
		go client.Run(ctx)
		if !loop.Await(ctx, 100*time.Millisecond, 10*time.Second, client.Connected) {
			return errors.New("feed server not reachable")
		}
		source = client
	}

	store := a.newStore(source, tickCache, st)
	led := ledger.New()
	paper := execution.NewPaper(execution.PaperConfig{Symbol: cfg.Symbol.Name}, led, clk,
		func() (model.Quote, bool) { return store.LatestQuote(clk.Now()) }, a.log)
	paper.OnFill = func(f execution.Fill) {
		a.log.Debug("paper fill", "ticket", f.Ticket, "type", f.Type.String(), "price", f.Price, "volume", f.Volume)
	}

	md := loop.NewMarketDataLoop(loop.MarketDataConfig{
		Timeframe:    cfg.Timeframe,
		Window:       cfg.Window,
		PublishQuote: true,
	}, clk, store, a.newAggregator(), nil, st, a.log)
	a.hookMarketData(md)

	strat, err := a.buildStrategy(md.Bars)
	if err != nil {
		return err
	}

	parts := loop.BacktestParts{
		Clock:    clk,
		Market:   md,
		Paper:    paper,
		Ledger:   led,
		Position: loop.NewPositionLoop(paper, st, a.log),
		Orders:   loop.NewOrdersLoop(paper, st, a.log),
		Strategy: a.newStrategyLoop(strat, a.newWrapper(paper, st), st, true),
		State:    st,
	}
	if journal != nil {
		parts.Journal = journal
		a.liveness(ctx, rdb, journal.DB())
	} else {
		a.liveness(ctx, rdb, nil)
	}

	bt := loop.NewBacktestLoop(loop.BacktestConfig{
		Symbol:   cfg.Symbol.Name,
		Strategy: strat.Name(),
		Profit:   decimal.NewFromFloat(cfg.Strategy.Profit),
	}, parts, a.log)
	bar := progressbar.Default(int64(end.Sub(start)/cfg.Backtest.Step), "replaying "+start.Format("2006-01-02")+" with "+strat.Name())
	defer bar.Finish()
	var last ledger.Balance
	bt.OnStep = func(b ledger.Balance) {
		last = b
		bar.Add(1)
		a.prom.BacktestSteps.Inc()
		a.prom.LedgerVolume.Set(b.Volume.InexactFloat64())
		a.prom.LedgerProfit.Set(b.Profit.InexactFloat64())
	}

	// The loop stops itself when the day is exhausted, the profit target is
	// reached or the clock fails.
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		loop.Await(runCtx, 50*time.Millisecond, end.Sub(start)+time.Hour, bt.Stopped)
		cancel()
	}()

	a.log.Info("backtest started", "run_id", bt.RunID(), "start", start, "end", end, "step", cfg.Backtest.Step)
	o := loop.New(a.log, a.prom, a.health)
	o.Add(bt, 0)
	if err := o.Run(runCtx); err != nil {
		return err
	}
	if err := clk.Err(); err != nil {
		return err
	}

	select {
	case <-bt.Done():
		a.log.Info("backtest complete", "run_id", bt.RunID(), "steps", bt.Steps(), "errors", st.ErrorCount())
		a.notify.Send(ctx, notification.Alert{
			Level:   notification.AlertInfo,
			Title:   "backtest complete",
			Message: fmt.Sprintf("run %s: %s %s, %d steps, profit %s", bt.RunID(), cfg.Symbol.Name, strat.Name(), bt.Steps(), last.Profit.String()),
		})
		return nil
	default:
		return errors.New("backtest interrupted")
	}
}

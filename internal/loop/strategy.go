package loop

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"market-analyzer/internal/order"
	"market-analyzer/internal/state"
	"market-analyzer/internal/strategy"
)

// StrategyConfig holds strategy loop settings.
type StrategyConfig struct {
	// Enabled lets the loop send orders. It is the production mode flag in
	// live runs and always set against the paper broker.
	Enabled        bool
	WhileDelay     time.Duration
	WaitingTimeout time.Duration
}

// StrategyLoop turns the strategy's target position into market orders.
type StrategyLoop struct {
	Base
	cfg      StrategyConfig
	strategy strategy.Strategy
	wrapper  *order.Wrapper
	st       *state.State

	// Refresh, when set, is called before every confirmation check to
	// republish positions. Backtests use it since no position loop runs
	// concurrently there.
	Refresh func(ctx context.Context) error

	// Metrics hooks (optional)
	OnAuction        func()
	OnConfirmTimeout func()
}

func NewStrategyLoop(cfg StrategyConfig, s strategy.Strategy, wrapper *order.Wrapper, st *state.State, log *slog.Logger) *StrategyLoop {
	return &StrategyLoop{
		Base:     NewBase("strategy", log),
		cfg:      cfg,
		strategy: s,
		wrapper:  wrapper,
		st:       st,
	}
}

func (l *StrategyLoop) CanRun() bool {
	if !l.cfg.Enabled || !l.st.ReadyForTrading() {
		return false
	}
	if l.st.WarnAuction() {
		q := l.st.LastTick().Value
		l.log.Warn("auction quote, not trading", "bid", q.Bid.TakeOr(0), "ask", q.Ask.TakeOr(0))
		if l.OnAuction != nil {
			l.OnAuction()
		}
		return false
	}
	return l.st.OpenMarket() && !l.st.Delayed()
}

func (l *StrategyLoop) Run(ctx context.Context) error {
	rates := l.st.Rates().Value
	if len(rates) < l.strategy.Lookback() {
		return nil
	}

	if pa, ok := l.strategy.(strategy.PositionAware); ok {
		var profit float64
		for _, p := range l.st.Position().Value {
			profit += p.Profit
		}
		pa.SetPosition(l.st.NetVolume(), profit)
	}

	target := l.strategy.Signal(rates)
	_, err := l.MoveTo(ctx, target)
	return err
}

// MoveTo sends the market order that brings the net position to target and
// waits for the position to confirm it. It reports whether an order was sent.
func (l *StrategyLoop) MoveTo(ctx context.Context, target float64) (bool, error) {
	current := l.st.NetVolume()
	diff := l.wrapper.RoundVolume(target - current)
	if diff == 0 {
		return false, nil
	}

	reply, err := l.wrapper.Market(ctx, diff)
	if err != nil {
		return false, fmt.Errorf("market order: %w", err)
	}
	if !reply.Done() {
		return false, nil
	}
	l.log.Info("order sent", "strategy", l.strategy.Name(), "target", target, "volume", diff, "price", reply.Price, "ticket", reply.Ticket)

	want := current + diff
	confirmed := Await(ctx, l.cfg.WhileDelay, l.cfg.WaitingTimeout, func() bool {
		if l.Refresh != nil {
			if err := l.Refresh(ctx); err != nil {
				return false
			}
		}
		return math.Abs(l.st.NetVolume()-want) < 1e-9
	})
	if !confirmed && ctx.Err() == nil {
		l.log.Warn("position not confirmed", "want", want, "have", l.st.NetVolume(), "timeout", l.cfg.WaitingTimeout)
		if l.OnConfirmTimeout != nil {
			l.OnConfirmTimeout()
		}
	}
	return true, nil
}

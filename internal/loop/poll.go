package loop

import (
	"context"
	"fmt"
	"log/slog"

	"market-analyzer/internal/model"
	"market-analyzer/internal/state"
)

// PositionLoop publishes the broker's open positions of the state symbol.
type PositionLoop struct {
	Base
	broker model.Broker
	st     *state.State
}

func NewPositionLoop(broker model.Broker, st *state.State, log *slog.Logger) *PositionLoop {
	return &PositionLoop{Base: NewBase("position", log), broker: broker, st: st}
}

func (l *PositionLoop) CanRun() bool { return true }

func (l *PositionLoop) Run(ctx context.Context) error {
	positions, status, err := l.broker.Positions(ctx, l.st.Symbol())
	if err != nil {
		l.st.CheckStatus(model.GetPosition, model.StatusDisconnected, err.Error())
		return fmt.Errorf("positions: %w", err)
	}
	if !l.st.CheckStatus(model.GetPosition, status, l.st.Symbol()) {
		return nil
	}
	l.st.SetPosition(positions)
	return nil
}

// OrdersLoop publishes the broker's pending orders of the state symbol.
type OrdersLoop struct {
	Base
	broker model.Broker
	st     *state.State
}

func NewOrdersLoop(broker model.Broker, st *state.State, log *slog.Logger) *OrdersLoop {
	return &OrdersLoop{Base: NewBase("orders", log), broker: broker, st: st}
}

func (l *OrdersLoop) CanRun() bool { return true }

func (l *OrdersLoop) Run(ctx context.Context) error {
	orders, status, err := l.broker.Orders(ctx, l.st.Symbol())
	if err != nil {
		l.st.CheckStatus(model.GetOrders, model.StatusDisconnected, err.Error())
		return fmt.Errorf("orders: %w", err)
	}
	if !l.st.CheckStatus(model.GetOrders, status, l.st.Symbol()) {
		return nil
	}
	l.st.SetOrders(orders)
	return nil
}

// LastTickLoop publishes the feed's latest quote.
type LastTickLoop struct {
	Base
	feed model.MarketData
	st   *state.State

	// OnQuote is called with every published quote (optional).
	OnQuote func(q model.Quote)
}

func NewLastTickLoop(feed model.MarketData, st *state.State, log *slog.Logger) *LastTickLoop {
	return &LastTickLoop{Base: NewBase("last-tick", log), feed: feed, st: st}
}

func (l *LastTickLoop) CanRun() bool { return true }

func (l *LastTickLoop) Run(ctx context.Context) error {
	tick, status, err := l.feed.LastTick(ctx, l.st.Symbol())
	if err != nil {
		l.st.CheckStatus(model.GetLastTick, model.StatusDisconnected, err.Error())
		return fmt.Errorf("last tick: %w", err)
	}
	if !l.st.CheckStatus(model.GetLastTick, status, l.st.Symbol()) {
		return nil
	}
	q := model.QuoteFromTick(tick)
	l.st.SetLastTick(q)
	if l.OnQuote != nil {
		l.OnQuote(q)
	}
	return nil
}

package loop

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"market-analyzer/internal/clock"
	"market-analyzer/internal/execution"
	"market-analyzer/internal/ledger"
	"market-analyzer/internal/state"
	"market-analyzer/internal/store/sqlite"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Journal persists finished backtest runs.
type Journal interface {
	RecordRun(ctx context.Context, r sqlite.Run) error
	RecordTransactions(ctx context.Context, runID string, txs []ledger.Transaction) error
	RecordError(ctx context.Context, runID string, e state.ErrorOccurrence) error
}

// BacktestConfig holds backtest loop settings.
type BacktestConfig struct {
	Symbol   string
	Strategy string
	// Profit ends the run once the balance reaches it. Zero disables.
	Profit decimal.Decimal
}

// BacktestLoop replays one day against the paper broker. Every iteration
// advances the virtual clock one step and then runs, in order: market data,
// limit order matching, position and order refresh and the strategy. The
// fixed order keeps runs deterministic. When the clock is exhausted the run
// is journaled and the loop stops itself.
type BacktestLoop struct {
	Base
	cfg      BacktestConfig
	clock    *clock.Virtual
	market   *MarketDataLoop
	paper    *execution.Paper
	ledger   *ledger.Ledger
	position *PositionLoop
	orders   *OrdersLoop
	strategy *StrategyLoop
	journal  Journal
	st       *state.State

	runID   string
	started time.Time
	steps   int
	target  bool // profit target reached

	done     chan struct{}
	doneOnce sync.Once

	// OnStep is called with the balance after every step (optional, metrics hook).
	OnStep func(b ledger.Balance)
}

// BacktestParts are the collaborators a backtest composes.
type BacktestParts struct {
	Clock    *clock.Virtual
	Market   *MarketDataLoop
	Paper    *execution.Paper
	Ledger   *ledger.Ledger
	Position *PositionLoop
	Orders   *OrdersLoop
	Strategy *StrategyLoop
	Journal  Journal // may be nil
	State    *state.State
}

func NewBacktestLoop(cfg BacktestConfig, p BacktestParts, log *slog.Logger) *BacktestLoop {
	l := &BacktestLoop{
		Base:     NewBase("backtest", log),
		cfg:      cfg,
		clock:    p.Clock,
		market:   p.Market,
		paper:    p.Paper,
		ledger:   p.Ledger,
		position: p.Position,
		orders:   p.Orders,
		strategy: p.Strategy,
		journal:  p.Journal,
		st:       p.State,
		runID:    uuid.NewString(),
		started:  time.Now(),
		done:     make(chan struct{}),
	}
	if l.strategy.Refresh == nil {
		l.strategy.Refresh = l.position.Run
	}
	return l
}

// RunID returns the id the run is journaled under.
func (l *BacktestLoop) RunID() string { return l.runID }

// Done is closed once the run finished.
func (l *BacktestLoop) Done() <-chan struct{} { return l.done }

// Steps returns the number of clock steps taken.
func (l *BacktestLoop) Steps() int { return l.steps }

func (l *BacktestLoop) CanRun() bool { return true }

func (l *BacktestLoop) Run(ctx context.Context) error {
	switch res := l.clock.Advance(); res {
	case clock.Failed:
		l.Stop()
		return fmt.Errorf("backtest clock: %w", l.clock.Err())
	case clock.Exhausted:
		return l.finish(ctx)
	}
	l.steps++
	if !l.st.Sanity().Valid() {
		// no order path to check against the paper broker
		l.st.SetSanity(state.SanityStatus{Comment: "skipped"})
	}

	if err := l.market.Run(ctx); err != nil {
		return err
	}
	if fills := l.paper.Match(); len(fills) > 0 {
		l.log.Debug("limit orders filled", "count", len(fills))
	}
	if err := l.position.Run(ctx); err != nil {
		return err
	}
	if err := l.orders.Run(ctx); err != nil {
		return err
	}

	balance, ok := l.balance()
	if ok && l.OnStep != nil {
		l.OnStep(balance)
	}
	if ok && l.cfg.Profit.IsPositive() && balance.Profit.GreaterThanOrEqual(l.cfg.Profit) {
		l.target = true
	}

	if l.clock.EndOfDay() || l.target {
		if l.st.NetVolume() != 0 && l.st.MarketReady() {
			if _, err := l.strategy.MoveTo(ctx, 0); err != nil {
				return err
			}
		}
		if l.target && l.st.NetVolume() == 0 {
			l.log.Info("profit target reached", "profit", balance.Profit.String())
			return l.finish(ctx)
		}
		return nil
	}

	if l.strategy.CanRun() {
		return l.strategy.Run(ctx)
	}
	return nil
}

// balance marks the ledger against the published quote.
func (l *BacktestLoop) balance() (ledger.Balance, bool) {
	q := l.st.LastTick().Value
	if q.Bid.IsNone() || q.Ask.IsNone() {
		return ledger.Balance{}, false
	}
	book := ledger.Book{Bid: decimal.NewFromFloat(q.Bid.Unwrap()), Ask: decimal.NewFromFloat(q.Ask.Unwrap())}
	return l.ledger.Balance(book), true
}

func (l *BacktestLoop) finish(ctx context.Context) error {
	l.Stop()

	var err error
	l.doneOnce.Do(func() {
		defer close(l.done)

		summary := l.ledger.Summary()
		balance, _ := l.balance()
		l.log.Info("backtest finished",
			"run_id", l.runID,
			"steps", l.steps,
			"profit", balance.Profit.String(),
			"min_profit", summary.MinProfit.String(),
			"max_profit", summary.MaxProfit.String(),
			"total_lots", summary.TotalLots.String(),
		)
		if l.journal == nil {
			return
		}
		err = l.record(ctx, balance, summary)
	})
	return err
}

func (l *BacktestLoop) record(ctx context.Context, balance ledger.Balance, summary ledger.Summary) error {
	run := sqlite.Run{
		ID:         l.runID,
		Symbol:     l.cfg.Symbol,
		Strategy:   l.cfg.Strategy,
		StartedAt:  l.started,
		FinishedAt: time.Now(),
		Steps:      l.steps,
		Volume:     balance.Volume,
		Profit:     balance.Profit,
		Summary:    summary,
	}
	if err := l.journal.RecordRun(ctx, run); err != nil {
		return fmt.Errorf("journal run: %w", err)
	}

	var txs []ledger.Transaction
	for _, p := range l.ledger.Positions() {
		txs = append(txs, p.Transactions()...)
	}
	if err := l.journal.RecordTransactions(ctx, l.runID, txs); err != nil {
		return fmt.Errorf("journal transactions: %w", err)
	}
	for _, e := range l.st.Errors() {
		if err := l.journal.RecordError(ctx, l.runID, e); err != nil {
			return fmt.Errorf("journal error: %w", err)
		}
	}
	return nil
}

package loop

import (
	"context"
	"errors"
	"testing"
	"time"

	"market-analyzer/internal/clock"
	"market-analyzer/internal/execution"
	"market-analyzer/internal/ledger"
	"market-analyzer/internal/marketdata/agg"
	"market-analyzer/internal/marketdata/renko"
	"market-analyzer/internal/mocks"
	"market-analyzer/internal/model"
	"market-analyzer/internal/order"
	"market-analyzer/internal/state"
	"market-analyzer/internal/store/sqlite"
	"market-analyzer/internal/tickstore"

	"github.com/moznion/go-optional"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

var open = time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)

type fixedClock struct{ t time.Time }

func (c *fixedClock) Now() time.Time { return c.t }

// constant always asks for the same position.
type constant struct{ target float64 }

func (c constant) Name() string                  { return "constant" }
func (c constant) Lookback() int                 { return 1 }
func (c constant) Signal(_ []model.Rate) float64 { return c.target }

type fakeJournal struct {
	runs   []sqlite.Run
	txs    []ledger.Transaction
	errors []state.ErrorOccurrence
}

func (j *fakeJournal) RecordRun(_ context.Context, r sqlite.Run) error {
	j.runs = append(j.runs, r)
	return nil
}

func (j *fakeJournal) RecordTransactions(_ context.Context, _ string, txs []ledger.Transaction) error {
	j.txs = append(j.txs, txs...)
	return nil
}

func (j *fakeJournal) RecordError(_ context.Context, _ string, e state.ErrorOccurrence) error {
	j.errors = append(j.errors, e)
	return nil
}

// quoteTick is the i-th tick of the session, 30 seconds apart.
func quoteTick(i int) model.Tick {
	base := 100 + float64(i)
	return model.Tick{
		Time:   open.Add(time.Duration(i) * 30 * time.Second),
		Bid:    base,
		Ask:    base + 1,
		Last:   base + 0.5,
		Volume: 1,
		Flags:  model.FlagBid | model.FlagAsk | model.FlagLast | model.FlagVolume,
	}
}

func stream(ticks []model.Tick) <-chan model.TickBatch {
	ch := make(chan model.TickBatch, 1)
	ch <- model.TickBatch{Ticks: ticks}
	close(ch)
	return ch
}

func quote(bid, ask float64, at time.Time) model.Quote {
	return model.Quote{Time: at, Bid: optional.Some(bid), Ask: optional.Some(ask), Last: optional.Some(bid)}
}

func readyState(clk clock.Clock, maxInfo time.Duration) *state.State {
	st := state.New(state.Config{Symbol: "WIN", MaxInformation: maxInfo}, clk, nil, nil)
	st.SetBars(state.Bars{All: []renko.Bar{{Time: open, Type: renko.Partial, Open: 100, Close: 100}}})
	st.SetLastTick(quote(100, 101, clk.Now()))
	st.SetSanity(state.SanityStatus{Comment: "skipped"})
	return st
}

func TestPositionLoop(t *testing.T) {
	ctrl := gomock.NewController(t)
	broker := mocks.NewMockBroker(ctrl)
	st := state.New(state.Config{Symbol: "WIN"}, &fixedClock{open}, nil, nil)
	l := NewPositionLoop(broker, st, nil)

	broker.EXPECT().Positions(gomock.Any(), "WIN").Return([]model.Position{{Volume: 2}, {Volume: -0.5}}, model.StatusOK, nil)
	require.NoError(t, l.Run(context.Background()))
	assert.Equal(t, 1.5, st.NetVolume())

	broker.EXPECT().Positions(gomock.Any(), "WIN").Return(nil, model.StatusTimeout, nil)
	require.NoError(t, l.Run(context.Background()))
	assert.Equal(t, 1.5, st.NetVolume(), "a failed poll keeps the last snapshot")

	broker.EXPECT().Positions(gomock.Any(), "WIN").Return(nil, model.StatusOK, errors.New("conn reset"))
	assert.Error(t, l.Run(context.Background()))

	errs := st.Errors()
	require.Len(t, errs, 2)
	assert.Equal(t, model.StatusTimeout, errs[0].Status)
	assert.Equal(t, model.StatusDisconnected, errs[1].Status)
	assert.Equal(t, model.GetPosition, errs[1].Op)
}

func TestOrdersLoop(t *testing.T) {
	ctrl := gomock.NewController(t)
	broker := mocks.NewMockBroker(ctrl)
	st := state.New(state.Config{Symbol: "WIN"}, &fixedClock{open}, nil, nil)
	l := NewOrdersLoop(broker, st, nil)

	broker.EXPECT().Orders(gomock.Any(), "WIN").Return([]model.Order{{Ticket: 3}}, model.StatusOK, nil)
	require.NoError(t, l.Run(context.Background()))
	require.Len(t, st.Orders().Value, 1)
	assert.Equal(t, uint64(3), st.Orders().Value[0].Ticket)
}

func TestLastTickLoop(t *testing.T) {
	ctrl := gomock.NewController(t)
	feed := mocks.NewMockMarketData(ctrl)
	st := state.New(state.Config{Symbol: "WIN"}, &fixedClock{open}, nil, nil)
	l := NewLastTickLoop(feed, st, nil)
	var seen int
	l.OnQuote = func(model.Quote) { seen++ }

	feed.EXPECT().LastTick(gomock.Any(), "WIN").Return(quoteTick(0), model.StatusOK, nil)
	require.NoError(t, l.Run(context.Background()))
	q := st.LastTick().Value
	assert.Equal(t, 100.0, q.Bid.Unwrap())
	assert.Equal(t, 101.0, q.Ask.Unwrap())
	assert.Equal(t, 1, seen)

	feed.EXPECT().LastTick(gomock.Any(), "WIN").Return(model.Tick{}, model.StatusNotFound, nil)
	require.NoError(t, l.Run(context.Background()))
	assert.Equal(t, 1, seen)
	assert.Equal(t, uint64(1), st.ErrorCount())
}

func TestMarketDataLoop_FoldsTicksUpToNow(t *testing.T) {
	ctrl := gomock.NewController(t)
	feed := mocks.NewMockMarketData(ctrl)

	var ticks []model.Tick
	for i := 0; i <= 10; i++ {
		ticks = append(ticks, quoteTick(i))
	}
	feed.EXPECT().StreamTicks(gomock.Any(), "WIN", gomock.Any(), gomock.Any(), gomock.Any()).
		Return(stream(ticks), nil)

	clk := clock.NewVirtual(open, open.Add(5*time.Minute), time.Minute, time.Minute)
	st := state.New(state.Config{Symbol: "WIN"}, clk, nil, nil)
	store := tickstore.New(tickstore.Config{Symbol: "WIN"}, feed, nil, st, nil)
	l := NewMarketDataLoop(MarketDataConfig{Timeframe: time.Minute, Window: 10 * time.Minute, PublishQuote: true},
		clk, store, agg.New(1, nil), nil, st, nil)

	require.Equal(t, clock.More, clk.Advance())
	require.NoError(t, l.Run(context.Background()))

	assert.Equal(t, 11, store.Len())
	assert.NotEmpty(t, st.Bars().Value.All)
	assert.Len(t, st.Rates().Value, 2)
	q := st.LastTick().Value
	assert.Equal(t, 102.0, q.Bid.Unwrap(), "quote as of 10:01 is the third tick")

	// the store is loaded once; later iterations only fold
	require.Equal(t, clock.More, clk.Advance())
	require.NoError(t, l.Run(context.Background()))
	assert.Equal(t, 104.0, st.LastTick().Value.Bid.Unwrap())
	assert.Len(t, st.Rates().Value, 3)
	assert.True(t, st.MarketReady())
}

func TestMarketDataLoop_DynamicBrickSize(t *testing.T) {
	ctrl := gomock.NewController(t)
	feed := mocks.NewMockMarketData(ctrl)

	var ticks []model.Tick
	for i := 0; i <= 10; i++ {
		ticks = append(ticks, quoteTick(i))
	}
	feed.EXPECT().StreamTicks(gomock.Any(), "WIN", gomock.Any(), gomock.Any(), gomock.Any()).
		Return(stream(ticks), nil)

	clk := clock.NewVirtual(open, open.Add(5*time.Minute), time.Minute, time.Minute)
	st := state.New(state.Config{Symbol: "WIN"}, clk, nil, nil)
	store := tickstore.New(tickstore.Config{Symbol: "WIN"}, feed, nil, st, nil)
	l := NewMarketDataLoop(MarketDataConfig{Timeframe: time.Minute, Window: 10 * time.Minute},
		clk, store, agg.New(1, nil), nil, st, nil)
	l.UseDynamicSize(agg.NewATRSize(1, 3, 0))

	// 10:00 rate finalized by the 10:01 tick: range 1, ATR 1
	require.Equal(t, clock.More, clk.Advance())
	require.NoError(t, l.Run(context.Background()))
	bars := st.Bars().Value
	assert.Equal(t, 3.0, bars.Size)
	assert.InDelta(t, 2*bars.Size, bars.Up-bars.Down, 1e-9)

	// 10:01 rate gaps up by 2 from the previous close: ATR 2
	require.Equal(t, clock.More, clk.Advance())
	require.NoError(t, l.Run(context.Background()))
	assert.Equal(t, 6.0, st.Bars().Value.Size)
}

func TestSanityLoop(t *testing.T) {
	ctrl := gomock.NewController(t)
	broker := mocks.NewMockBroker(ctrl)
	clk := &fixedClock{open}
	st := state.New(state.Config{Symbol: "WIN"}, clk, nil, nil)
	st.SetLastTick(quote(1000, 1005, open))
	w := order.New(order.Config{Symbol: "WIN"}, broker, st, nil)

	broker.EXPECT().SendOrder(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, req model.OrderRequest) (model.OrderReply, error) {
			if req.Action == model.ActionPending {
				assert.Equal(t, model.OrderBuyLimit, req.Type)
				assert.Equal(t, 500.0, req.Price)
				st.SetOrders([]model.Order{{Ticket: 7, Type: req.Type, Price: req.Price}})
				return model.OrderReply{Retcode: model.RetcodePlaced, Ticket: 7, Status: model.StatusOK}, nil
			}
			assert.Equal(t, model.ActionRemove, req.Action)
			assert.Equal(t, uint64(7), req.Ticket)
			st.SetOrders(nil)
			return model.OrderReply{Retcode: model.RetcodeDone, Ticket: 7, Status: model.StatusOK}, nil
		}).Times(2)

	l := NewSanityLoop(SanityConfig{Execute: true, Offset: 500, WhileDelay: time.Millisecond, WaitingTimeout: time.Second}, w, st, nil)
	assert.False(t, l.Stopped())
	require.NoError(t, l.Run(context.Background()))

	s := st.Sanity().Value
	assert.True(t, s.Executed)
	assert.True(t, s.Passed, s.Comment)
	assert.True(t, l.Stopped(), "the check runs once")
}

func TestSanityLoop_Skipped(t *testing.T) {
	st := state.New(state.Config{Symbol: "WIN"}, &fixedClock{open}, nil, nil)
	l := NewSanityLoop(SanityConfig{}, nil, st, nil)
	require.NoError(t, l.Run(context.Background()))
	assert.False(t, st.Sanity().Value.Executed)
	assert.True(t, l.Stopped())
}

func TestSanityLoop_Rejected(t *testing.T) {
	ctrl := gomock.NewController(t)
	broker := mocks.NewMockBroker(ctrl)
	st := state.New(state.Config{Symbol: "WIN"}, &fixedClock{open}, nil, nil)
	st.SetLastTick(quote(1000, 1005, open))
	w := order.New(order.Config{Symbol: "WIN"}, broker, st, nil)

	broker.EXPECT().SendOrder(gomock.Any(), gomock.Any()).
		Return(model.OrderReply{Retcode: model.RetcodeNoMoney, Status: model.StatusOK, Comment: "no money"}, nil)

	l := NewSanityLoop(SanityConfig{Execute: true, Offset: 500}, w, st, nil)
	var reported []state.SanityStatus
	l.OnResult = func(s state.SanityStatus) { reported = append(reported, s) }
	require.NoError(t, l.Run(context.Background()))
	s := st.Sanity().Value
	assert.True(t, s.Executed)
	assert.False(t, s.Passed)
	assert.Contains(t, s.Comment, "no money")
	require.Len(t, reported, 1)
	assert.Equal(t, s, reported[0])
}

func TestStrategyLoop_CanRun(t *testing.T) {
	clk := &fixedClock{open}

	l := NewStrategyLoop(StrategyConfig{}, constant{1}, nil, readyState(clk, 0), nil)
	assert.False(t, l.CanRun(), "disabled")

	empty := state.New(state.Config{Symbol: "WIN"}, clk, nil, nil)
	l = NewStrategyLoop(StrategyConfig{Enabled: true}, constant{1}, nil, empty, nil)
	assert.False(t, l.CanRun(), "no bars yet")

	st := readyState(clk, 0)
	st.SetLastTick(quote(101, 100, open))
	l = NewStrategyLoop(StrategyConfig{Enabled: true}, constant{1}, nil, st, nil)
	auctions := 0
	l.OnAuction = func() { auctions++ }
	assert.False(t, l.CanRun(), "crossed quote")
	assert.Equal(t, 1, auctions)

	st = readyState(clk, time.Second)
	clk.t = open.Add(time.Minute)
	l = NewStrategyLoop(StrategyConfig{Enabled: true}, constant{1}, nil, st, nil)
	assert.False(t, l.CanRun(), "stale quote")

	st = readyState(clk, time.Second)
	l = NewStrategyLoop(StrategyConfig{Enabled: true}, constant{1}, nil, st, nil)
	assert.True(t, l.CanRun())
}

func TestStrategyLoop_CanRunFollowsSanity(t *testing.T) {
	clk := &fixedClock{open}
	st := readyState(clk, 0)
	l := NewStrategyLoop(StrategyConfig{Enabled: true}, constant{1}, nil, st, nil)

	st.SetSanity(state.SanityStatus{Executed: true, Passed: false, Comment: "test order never listed"})
	assert.False(t, l.CanRun(), "failed sanity check")

	pending := state.New(state.Config{Symbol: "WIN"}, clk, nil, nil)
	pending.SetBars(st.Bars().Value)
	pending.SetLastTick(st.LastTick().Value)
	l = NewStrategyLoop(StrategyConfig{Enabled: true}, constant{1}, nil, pending, nil)
	assert.False(t, l.CanRun(), "sanity check not run yet")

	pending.SetSanity(state.SanityStatus{Executed: true, Passed: true})
	assert.True(t, l.CanRun())
}

func TestStrategyLoop_SendsDifferenceAndConfirms(t *testing.T) {
	ctrl := gomock.NewController(t)
	broker := mocks.NewMockBroker(ctrl)
	st := readyState(&fixedClock{open}, 0)
	st.SetRates([]model.Rate{{Time: open, Close: 100}})
	st.SetPosition([]model.Position{{Volume: -1}})
	w := order.New(order.Config{Symbol: "WIN"}, broker, st, nil)

	broker.EXPECT().SendOrder(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, req model.OrderRequest) (model.OrderReply, error) {
			assert.Equal(t, model.OrderBuy, req.Type)
			assert.Equal(t, 3.0, req.Volume)
			return model.OrderReply{Retcode: model.RetcodeDone, Ticket: 1, Volume: req.Volume, Status: model.StatusOK}, nil
		})

	l := NewStrategyLoop(StrategyConfig{Enabled: true, WhileDelay: time.Millisecond, WaitingTimeout: time.Second}, constant{2}, w, st, nil)
	refreshes := 0
	l.Refresh = func(context.Context) error {
		refreshes++
		st.SetPosition([]model.Position{{Volume: 2}})
		return nil
	}
	timeouts := 0
	l.OnConfirmTimeout = func() { timeouts++ }

	require.NoError(t, l.Run(context.Background()))
	assert.Equal(t, 1, refreshes)
	assert.Zero(t, timeouts)

	// at target: nothing to send
	require.NoError(t, l.Run(context.Background()))
}

func TestStrategyLoop_ConfirmationTimeout(t *testing.T) {
	ctrl := gomock.NewController(t)
	broker := mocks.NewMockBroker(ctrl)
	st := readyState(&fixedClock{open}, 0)
	st.SetRates([]model.Rate{{Time: open, Close: 100}})
	w := order.New(order.Config{Symbol: "WIN"}, broker, st, nil)

	broker.EXPECT().SendOrder(gomock.Any(), gomock.Any()).
		Return(model.OrderReply{Retcode: model.RetcodeDone, Status: model.StatusOK}, nil)

	l := NewStrategyLoop(StrategyConfig{Enabled: true, WhileDelay: 5 * time.Millisecond, WaitingTimeout: 20 * time.Millisecond}, constant{-1}, w, st, nil)
	timeouts := 0
	l.OnConfirmTimeout = func() { timeouts++ }

	require.NoError(t, l.Run(context.Background()))
	assert.Equal(t, 1, timeouts)
}

func TestBacktestLoop_RunsDayAndJournals(t *testing.T) {
	ctrl := gomock.NewController(t)
	feed := mocks.NewMockMarketData(ctrl)

	var ticks []model.Tick
	for i := 0; i <= 10; i++ {
		ticks = append(ticks, quoteTick(i))
	}
	feed.EXPECT().StreamTicks(gomock.Any(), "WIN", gomock.Any(), gomock.Any(), gomock.Any()).
		Return(stream(ticks), nil)

	clk := clock.NewVirtual(open, open.Add(5*time.Minute), time.Minute, time.Minute)
	st := state.New(state.Config{Symbol: "WIN"}, clk, nil, nil)
	store := tickstore.New(tickstore.Config{Symbol: "WIN"}, feed, nil, st, nil)
	led := ledger.New()
	paper := execution.NewPaper(execution.PaperConfig{Symbol: "WIN"}, led, clk,
		func() (model.Quote, bool) { return store.LatestQuote(clk.Now()) }, nil)
	w := order.New(order.Config{Symbol: "WIN", PriceDecimals: 2}, paper, st, nil)
	journal := &fakeJournal{}

	bt := NewBacktestLoop(BacktestConfig{Symbol: "WIN", Strategy: "constant"}, BacktestParts{
		Clock: clk,
		Market: NewMarketDataLoop(MarketDataConfig{Timeframe: time.Minute, Window: 10 * time.Minute, PublishQuote: true},
			clk, store, agg.New(1, nil), nil, st, nil),
		Paper:    paper,
		Ledger:   led,
		Position: NewPositionLoop(paper, st, nil),
		Orders:   NewOrdersLoop(paper, st, nil),
		Strategy: NewStrategyLoop(StrategyConfig{Enabled: true, WaitingTimeout: time.Second}, constant{1}, w, st, nil),
		Journal:  journal,
		State:    st,
	}, nil)

	var balances int
	bt.OnStep = func(ledger.Balance) { balances++ }

	for i := 0; i < 10 && !bt.Stopped(); i++ {
		require.NoError(t, bt.Run(context.Background()))
	}

	select {
	case <-bt.Done():
	default:
		t.Fatal("backtest did not finish")
	}
	assert.Equal(t, 5, bt.Steps())
	assert.Equal(t, 5, balances)
	assert.Zero(t, st.NetVolume(), "flattened at end of day")

	// bought at the 10:01 ask, sold at the 10:04 bid
	fills := paper.Fills()
	require.Len(t, fills, 2)
	assert.Equal(t, 103.0, fills[0].Price)
	assert.Equal(t, 108.0, fills[1].Price)

	require.Len(t, journal.runs, 1)
	run := journal.runs[0]
	assert.Equal(t, bt.RunID(), run.ID)
	assert.Equal(t, 5, run.Steps)
	assert.True(t, run.Profit.Equal(decimal.NewFromInt(5)), run.Profit.String())
	assert.Len(t, journal.txs, 2)
}

func TestBacktestLoop_ProfitTargetEndsRun(t *testing.T) {
	ctrl := gomock.NewController(t)
	feed := mocks.NewMockMarketData(ctrl)

	var ticks []model.Tick
	for i := 0; i <= 20; i++ {
		ticks = append(ticks, quoteTick(i))
	}
	feed.EXPECT().StreamTicks(gomock.Any(), "WIN", gomock.Any(), gomock.Any(), gomock.Any()).
		Return(stream(ticks), nil)

	clk := clock.NewVirtual(open, open.Add(10*time.Minute), time.Minute, time.Minute)
	st := state.New(state.Config{Symbol: "WIN"}, clk, nil, nil)
	store := tickstore.New(tickstore.Config{Symbol: "WIN"}, feed, nil, st, nil)
	led := ledger.New()
	paper := execution.NewPaper(execution.PaperConfig{Symbol: "WIN"}, led, clk,
		func() (model.Quote, bool) { return store.LatestQuote(clk.Now()) }, nil)
	w := order.New(order.Config{Symbol: "WIN"}, paper, st, nil)

	bt := NewBacktestLoop(BacktestConfig{Symbol: "WIN", Profit: decimal.NewFromInt(2)}, BacktestParts{
		Clock: clk,
		Market: NewMarketDataLoop(MarketDataConfig{Timeframe: time.Minute, Window: 10 * time.Minute, PublishQuote: true},
			clk, store, agg.New(1, nil), nil, st, nil),
		Paper:    paper,
		Ledger:   led,
		Position: NewPositionLoop(paper, st, nil),
		Orders:   NewOrdersLoop(paper, st, nil),
		Strategy: NewStrategyLoop(StrategyConfig{Enabled: true, WaitingTimeout: time.Second}, constant{1}, w, st, nil),
		State:    st,
	}, nil)

	for i := 0; i < 20 && !bt.Stopped(); i++ {
		require.NoError(t, bt.Run(context.Background()))
	}
	assert.True(t, bt.Stopped())
	assert.Less(t, bt.Steps(), 10, "ended before the clock ran out")
	assert.Zero(t, st.NetVolume())
}

func TestBacktestLoop_MisconfiguredClock(t *testing.T) {
	clk := clock.NewVirtual(open, open.Add(-time.Minute), time.Minute, time.Minute)
	st := state.New(state.Config{Symbol: "WIN"}, clk, nil, nil)
	bt := NewBacktestLoop(BacktestConfig{}, BacktestParts{
		Clock:    clk,
		Strategy: NewStrategyLoop(StrategyConfig{}, constant{}, nil, st, nil),
		State:    st,
	}, nil)

	err := bt.Run(context.Background())
	assert.ErrorIs(t, err, clock.ErrInvalidRange)
	assert.True(t, bt.Stopped())
}

package agg

import (
	"testing"
	"time"

	"market-analyzer/internal/marketdata/renko"
	"market-analyzer/internal/model"
)

var base = time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)

func trade(ms int, price, vol float64) model.Tick {
	return model.Tick{
		Time:   base.Add(time.Duration(ms) * time.Millisecond),
		Last:   price,
		Volume: vol,
		Flags:  model.FlagLast | model.FlagVolume,
	}
}

func TestGate_RejectsZeroTimeAndRegressions(t *testing.T) {
	var g Gate
	if g.Accept(model.Tick{Last: 1}) {
		t.Error("expected zero-time tick to be rejected")
	}
	if g.Accept(model.Tick{Time: time.Unix(0, 0), Last: 1}) {
		t.Error("expected epoch tick to be rejected")
	}
	if !g.Accept(trade(10, 100, 1)) {
		t.Fatal("expected first tick to be accepted")
	}
	if g.Accept(trade(10, 100, 1)) {
		t.Error("expected identical tick to be rejected")
	}
	if g.Accept(trade(10, 101, 1)) {
		t.Error("expected same-time tick to be rejected")
	}
	if g.Accept(trade(5, 101, 1)) {
		t.Error("expected older tick to be rejected")
	}
	if !g.Accept(trade(11, 101, 1)) {
		t.Error("expected newer tick to be accepted")
	}
	last, ok := g.Last()
	if !ok || last.Last != 101 {
		t.Errorf("expected last=101, got %+v", last)
	}
}

func TestAggregator_ProcessTradeReportsCompletedBars(t *testing.T) {
	a := New(2, nil)
	var hooked []renko.Bar
	a.OnBar = func(b renko.Bar) { hooked = append(hooked, b) }

	var bars []renko.Bar
	for _, tk := range []model.Tick{
		trade(0, 100, 1),
		trade(1, 103, 1),
		{Time: base.Add(2 * time.Millisecond), Bid: 102, Flags: model.FlagBid},
		trade(3, 96, 1),
	} {
		bars = append(bars, a.ProcessTrade(tk)...)
	}

	if len(bars) != 3 {
		t.Fatalf("expected 3 completed bars, got %d", len(bars))
	}
	if bars[0].Type != renko.Up || bars[1].Type != renko.Down || bars[2].Type != renko.Down {
		t.Errorf("unexpected types: %v %v %v", bars[0].Type, bars[1].Type, bars[2].Type)
	}
	if len(hooked) != 3 {
		t.Errorf("expected OnBar for every completed bar, got %d", len(hooked))
	}

	all, uniq := a.Snapshot()
	if len(all) != 4 {
		t.Errorf("expected 4 bars, got %d", len(all))
	}
	if len(uniq) != 2 {
		t.Errorf("expected 2 unique bars, got %d", len(uniq))
	}
	up, down, ok := a.Levels()
	if !ok || up != 100 || down != 96 {
		t.Errorf("expected levels 100/96 around open 98, got %v/%v ok=%v", up, down, ok)
	}
}

func TestAggregator_DynamicSize(t *testing.T) {
	a := New(2, nil)
	size := 2.0
	a.SizeFn = func() float64 { return size }

	a.ProcessTrade(trade(0, 100, 1))
	size = 10
	if done := a.ProcessTrade(trade(1, 105, 1)); len(done) != 0 {
		t.Errorf("expected no bars with size 10, got %d", len(done))
	}
	size = 0 // ignored, keeps 10
	if done := a.ProcessTrade(trade(2, 111, 1)); len(done) != 1 {
		t.Errorf("expected 1 bar, got %d", len(done))
	}
	if a.Size() != 10 {
		t.Errorf("expected size 10, got %v", a.Size())
	}

	a.SizeFn = nil
	a.Reset()
	if a.Size() != 2 {
		t.Errorf("expected reset to restore size 2, got %v", a.Size())
	}
}

func TestATRSize(t *testing.T) {
	s := NewATRSize(2, 0.5, 3)
	if s.Size() != 0 {
		t.Errorf("expected 0 while warming up, got %v", s.Size())
	}
	s.Update(model.Rate{High: 110, Low: 100, Close: 105}) // TR 10
	s.Update(model.Rate{High: 120, Low: 110, Close: 115}) // TR 15
	if got := s.Size(); got != 6.25 {
		t.Errorf("expected 0.5 * 12.5, got %v", got)
	}

	s.Update(model.Rate{High: 115, Low: 115, Close: 115}) // TR 0, ATR 6.25
	if got := s.Size(); got != 3.125 {
		t.Errorf("expected 3.125, got %v", got)
	}
	s.Update(model.Rate{High: 115, Low: 115, Close: 115}) // ATR 3.125
	if got := s.Size(); got != 3 {
		t.Errorf("expected floor at min 3, got %v", got)
	}

	s.Reset()
	if s.Size() != 0 {
		t.Errorf("expected 0 after reset, got %v", s.Size())
	}
}

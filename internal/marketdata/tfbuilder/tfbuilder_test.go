package tfbuilder

import (
	"testing"
	"time"

	"market-analyzer/internal/model"
)

var base = time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)

func trade(sec float64, price, vol float64) model.Tick {
	return model.Tick{
		Time:   base.Add(time.Duration(sec * float64(time.Second))),
		Last:   price,
		Volume: vol,
		Flags:  model.FlagLast | model.FlagVolume,
	}
}

func TestBoundaries_CompletenessAndSpacing(t *testing.T) {
	cases := []struct {
		from, to time.Time
		tf       time.Duration
	}{
		{base.Add(17 * time.Second), base.Add(3*time.Minute + 5*time.Second), 15 * time.Second},
		{base, base.Add(10 * time.Minute), time.Minute},
		{base.Add(59 * time.Second), base.Add(61 * time.Second), 5 * time.Minute},
		{base, base, 30 * time.Second},
	}
	for _, c := range cases {
		b := Boundaries(c.from, c.to, c.tf)
		if len(b) == 0 {
			t.Fatalf("expected boundaries for %v..%v", c.from, c.to)
		}
		lo := c.from.Truncate(time.Minute)
		hi := c.to.Truncate(time.Minute)
		if !c.to.Equal(hi) {
			hi = hi.Add(time.Minute)
		}
		hi = hi.Add(c.tf)
		for i, x := range b {
			if x.Before(lo) || !x.Before(hi) {
				t.Errorf("boundary %v outside [%v, %v)", x, lo, hi)
			}
			if i > 0 && x.Sub(b[i-1]) != c.tf {
				t.Errorf("expected spacing %v, got %v", c.tf, x.Sub(b[i-1]))
			}
		}
	}
	if Boundaries(base.Add(time.Minute), base, time.Minute) != nil {
		t.Error("expected nil for inverted range")
	}
}

func TestResample_OHLCPerBucket(t *testing.T) {
	ticks := []model.Tick{
		trade(1, 10, 1),
		trade(5, 12, 2),
		{Time: base.Add(6 * time.Second), Bid: 11, Flags: model.FlagBid},
		trade(9, 9, 1),
		trade(14, 11, 4),
		// bucket 15..30 only carries quotes
		{Time: base.Add(20 * time.Second), Bid: 11, Ask: 12, Flags: model.FlagBid | model.FlagAsk},
		trade(31, 15, 1),
	}
	rates := Resample(ticks, base, base.Add(40*time.Second), 15*time.Second)
	if len(rates) != 2 {
		t.Fatalf("expected 2 rates, got %d", len(rates))
	}
	r := rates[0]
	if !r.Time.Equal(base) {
		t.Errorf("expected bucket %v, got %v", base, r.Time)
	}
	if r.Open != 10 || r.High != 12 || r.Low != 9 || r.Close != 11 {
		t.Errorf("unexpected OHLC: %+v", r)
	}
	if r.TickVolume != 4 || r.Volume != 8 {
		t.Errorf("expected tick_volume=4 volume=8, got %d %v", r.TickVolume, r.Volume)
	}
	if !rates[1].Time.Equal(base.Add(30*time.Second)) || rates[1].Open != 15 {
		t.Errorf("unexpected second rate: %+v", rates[1])
	}
}

func TestResample_SkipsTicksBeforeFromAndAfterTo(t *testing.T) {
	ticks := []model.Tick{trade(1, 1, 1), trade(20, 2, 1), trade(80, 3, 1)}
	rates := Resample(ticks, base.Add(10*time.Second), base.Add(30*time.Second), time.Minute)
	if len(rates) != 1 {
		t.Fatalf("expected 1 rate, got %d", len(rates))
	}
	if rates[0].Open != 2 || rates[0].TickVolume != 1 {
		t.Errorf("unexpected rate: %+v", rates[0])
	}
}

func volumeOnly(sec, vol float64) model.Tick {
	return model.Tick{
		Time:   base.Add(time.Duration(sec * float64(time.Second))),
		Bid:    10,
		Volume: vol,
		Flags:  model.FlagBid | model.FlagVolume,
	}
}

func TestResample_VolumeCountsEveryTick(t *testing.T) {
	ticks := []model.Tick{
		volumeOnly(1, 3), // before the first trade of the bucket
		trade(2, 10, 1),
		volumeOnly(3, 2),
		trade(4, 11, 1),
		volumeOnly(20, 7), // bucket without a trade
	}
	rates := Resample(ticks, base, base.Add(30*time.Second), 15*time.Second)
	if len(rates) != 1 {
		t.Fatalf("expected 1 rate, got %d", len(rates))
	}
	if rates[0].Volume != 7 {
		t.Errorf("expected volume 3+1+2+1=7, got %v", rates[0].Volume)
	}
	if rates[0].TickVolume != 2 || rates[0].Open != 10 || rates[0].Close != 11 {
		t.Errorf("expected prices from trades only, got %+v", rates[0])
	}

	b := New(15 * time.Second)
	var built model.Rate
	for _, tk := range append(ticks, trade(31, 12, 1)) {
		if r, done := b.Add(tk); done {
			built = r
		}
	}
	if built.Volume != rates[0].Volume || built.TickVolume != rates[0].TickVolume {
		t.Errorf("expected builder to match resample, got %+v want %+v", built, rates[0])
	}
	if f, _ := b.Forming(); f.Volume != 1 {
		t.Errorf("expected volume of a bucket without trades to be dropped, got %v", f.Volume)
	}
}

func TestBuilder_FinalizesOnNewBucket(t *testing.T) {
	b := New(time.Minute)
	b.StaleTolerance = 0
	var finalized []model.Rate
	b.OnRate = func(r model.Rate) { finalized = append(finalized, r) }

	for i := 0; i < 60; i++ {
		if _, done := b.Add(trade(float64(i), float64(100+i), 1)); done {
			t.Fatalf("unexpected finalization at second %d", i)
		}
	}
	r, done := b.Add(trade(60, 50, 1))
	if !done {
		t.Fatal("expected finalization on bucket change")
	}
	if r.Open != 100 || r.High != 159 || r.Low != 100 || r.Close != 159 || r.TickVolume != 60 {
		t.Errorf("unexpected rate: %+v", r)
	}
	if len(finalized) != 1 {
		t.Errorf("expected OnRate once, got %d", len(finalized))
	}
	f, ok := b.Forming()
	if !ok || f.Open != 50 || !f.Time.Equal(base.Add(time.Minute)) {
		t.Errorf("unexpected forming rate: %+v", f)
	}
}

func TestBuilder_StaleTickRejected(t *testing.T) {
	b := New(time.Minute)
	stale := 0
	b.OnStaleTick = func() { stale++ }

	b.Add(trade(65, 10, 1))
	b.Add(trade(59.5, 11, 1)) // 0.5s behind bucket start, tolerated
	b.Add(trade(10, 12, 1))   // 50s behind, rejected

	if stale != 1 {
		t.Errorf("expected 1 stale tick, got %d", stale)
	}
	f, _ := b.Forming()
	if f.High != 11 || f.TickVolume != 2 {
		t.Errorf("unexpected forming rate: %+v", f)
	}
}

func TestBuilder_ResetStartsOver(t *testing.T) {
	b := New(time.Minute)
	b.Add(trade(1, 10, 1))
	b.Reset()
	if _, ok := b.Forming(); ok {
		t.Fatal("expected no forming rate after reset")
	}
	if _, done := b.Add(trade(61, 11, 1)); done {
		t.Error("expected the first rate after reset not to finalize anything")
	}
}

func TestWindow_MergeAndTrim(t *testing.T) {
	w := NewWindow(5 * time.Minute)
	w.Merge([]model.Rate{
		{Time: base, Close: 1},
		{Time: base.Add(time.Minute), Close: 2},
		{Time: base.Add(2 * time.Minute), Close: 3},
	})
	w.Merge([]model.Rate{{Time: base.Add(2 * time.Minute), Close: 4}})
	if last, _ := w.Last(); last.Close != 4 {
		t.Errorf("expected forming rate replaced, got %v", last.Close)
	}
	if len(w.Rates()) != 3 {
		t.Errorf("expected 3 rates, got %d", len(w.Rates()))
	}

	w.Trim(base.Add(6 * time.Minute))
	rates := w.Rates()
	if len(rates) != 2 || rates[0].Close != 2 {
		t.Errorf("unexpected window after trim: %+v", rates)
	}
}

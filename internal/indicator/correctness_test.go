package indicator

import (
	"math"
	"testing"

	"market-analyzer/internal/model"
)

// ────────────────────────────────────────────────────────────
// Helper
// ────────────────────────────────────────────────────────────

func rate(close float64) model.Rate {
	return model.Rate{Open: close, High: close + 0.5, Low: close - 0.5, Close: close}
}

func rates(closes ...float64) []model.Rate {
	out := make([]model.Rate, len(closes))
	for i, c := range closes {
		out[i] = rate(c)
	}
	return out
}

func assertClose(t *testing.T, label string, got, want, tol float64) {
	t.Helper()
	if math.Abs(got-want) > tol {
		t.Errorf("%s: got %.6f, want %.6f (tol=%.6f, diff=%.6f)", label, got, want, tol, math.Abs(got-want))
	}
}

// ────────────────────────────────────────────────────────────
// SMA
// ────────────────────────────────────────────────────────────

func TestSMA_Correctness_Period3(t *testing.T) {
	// (100+102+104)/3 = 102, (102+104+103)/3 = 103, (104+103+105)/3 = 104
	sma := NewSMA(3)
	prices := []float64{100, 102, 104, 103, 105}
	expected := []float64{0, 0, 102.0, 103.0, 104.0}
	ready := []bool{false, false, true, true, true}

	for i, p := range prices {
		sma.Update(rate(p))
		if sma.Ready() != ready[i] {
			t.Errorf("rate %d: Ready()=%v, want %v", i, sma.Ready(), ready[i])
		}
		if ready[i] {
			assertClose(t, "SMA(3)", sma.Value(), expected[i], 0.0001)
		}
	}
}

func TestSMA_RingWrapsAndResets(t *testing.T) {
	sma := NewSMA(2)
	for _, p := range []float64{1, 2, 3, 4, 5} {
		sma.Update(rate(p))
	}
	assertClose(t, "SMA(2) after wrap", sma.Value(), 4.5, 1e-9)
	w := sma.window()
	if len(w) != 2 || w[0] != 4 || w[1] != 5 {
		t.Errorf("expected window [4 5], got %v", w)
	}

	sma.Reset()
	sma.Update(rate(7))
	if sma.Ready() {
		t.Error("expected not ready after reset")
	}
	if w := sma.window(); len(w) != 1 || w[0] != 7 {
		t.Errorf("expected window [7], got %v", w)
	}
}

// ────────────────────────────────────────────────────────────
// EMA
// ────────────────────────────────────────────────────────────

func TestEMA_Correctness_Period3(t *testing.T) {
	// multiplier = 0.5, seed = 102, then 102.5, 103.75
	ema := NewEMA(3)
	prices := []float64{100, 102, 104, 103, 105}
	expected := []float64{0, 0, 102.0, 102.5, 103.75}

	for i, p := range prices {
		ema.Update(rate(p))
		if i >= 2 {
			assertClose(t, "EMA(3)", ema.Value(), expected[i], 0.0001)
		}
	}
}

// ────────────────────────────────────────────────────────────
// SMMA
// ────────────────────────────────────────────────────────────

func TestSMMA_Correctness_Period3(t *testing.T) {
	// seed 102, then (102*2+103)/3, then (prev*2+105)/3
	smma := NewSMMA(3)
	prices := []float64{100, 102, 104, 103, 105}
	expected := []float64{0, 0, 102.0, 102.3333, 103.2222}

	for i, p := range prices {
		smma.Update(rate(p))
		if i >= 2 {
			assertClose(t, "SMMA(3)", smma.Value(), expected[i], 0.001)
		}
	}
}

// ────────────────────────────────────────────────────────────
// RSI
// ────────────────────────────────────────────────────────────

func TestRSI_AllUp_Is100(t *testing.T) {
	rsi := NewRSI(5)
	for i := 0; i < 10; i++ {
		rsi.Update(rate(100 + float64(i)))
	}
	assertClose(t, "RSI all up", rsi.Value(), 100, 0.0001)
}

func TestRSI_AllDown_Is0(t *testing.T) {
	rsi := NewRSI(5)
	for i := 0; i < 10; i++ {
		rsi.Update(rate(100 - float64(i)))
	}
	assertClose(t, "RSI all down", rsi.Value(), 0, 0.0001)
}

func TestRSI_ReadyAfterPeriodPlusOne(t *testing.T) {
	rsi := NewRSI(3)
	for i, p := range []float64{1, 2, 3} {
		rsi.Update(rate(p))
		if rsi.Ready() {
			t.Errorf("rate %d: expected not ready", i)
		}
	}
	rsi.Update(rate(4))
	if !rsi.Ready() {
		t.Error("expected ready after period+1 rates")
	}
}

func TestRSI_WilderAverages(t *testing.T) {
	rsi := NewRSI(2)
	for _, p := range []float64{10, 12, 11} {
		rsi.Update(rate(p))
	}
	// gains 2,0 -> 1; losses 0,1 -> 0.5
	assertClose(t, "RSI seed", rsi.Value(), 100-100/3.0, 0.0001)

	rsi.Update(rate(13)) // gain 1.5, loss 0.25
	assertClose(t, "RSI smoothed", rsi.Value(), 100-100/7.0, 0.0001)

	rsi.Reset()
	if rsi.Ready() || rsi.Value() != 0 {
		t.Error("expected reset RSI to be empty")
	}
}

// ────────────────────────────────────────────────────────────
// ATR
// ────────────────────────────────────────────────────────────

func TestATR_WilderTrueRange(t *testing.T) {
	atr := NewATR(2)
	atr.Update(model.Rate{High: 11, Low: 9, Close: 10})  // TR 2
	atr.Update(model.Rate{High: 14, Low: 12, Close: 13}) // TR max(2, 4, 2) = 4
	if !atr.Ready() {
		t.Fatal("expected ready")
	}
	assertClose(t, "ATR seed", atr.Value(), 3, 0.0001)

	atr.Update(model.Rate{High: 13, Low: 12, Close: 12}) // TR max(1, 0, 1) = 1
	assertClose(t, "ATR smoothed", atr.Value(), 2, 0.0001)
}

// ────────────────────────────────────────────────────────────
// LinReg
// ────────────────────────────────────────────────────────────

func TestLinReg_PerfectLine(t *testing.T) {
	lr := NewLinReg(4)
	for _, p := range []float64{1, 3, 5, 7, 9} {
		lr.Update(rate(p))
	}
	assertClose(t, "slope", lr.Value(), 2, 1e-9)
	assertClose(t, "fitted last", lr.Intercept(), 9, 1e-9)
}

func TestLinReg_NotReady(t *testing.T) {
	lr := NewLinReg(3)
	lr.Update(rate(1))
	if lr.Ready() {
		t.Error("expected not ready")
	}
}

// ────────────────────────────────────────────────────────────
// Series helpers
// ────────────────────────────────────────────────────────────

func TestSeries_ResetsAndZeroFillsWarmup(t *testing.T) {
	sma := NewSMA(2)
	sma.Update(rate(1000))
	got := Series(sma, rates(1, 3, 5))
	want := []float64{0, 2, 4}
	for i := range want {
		assertClose(t, "series", got[i], want[i], 1e-9)
	}

	v, ok := Last(sma, rates(2, 4))
	if !ok {
		t.Fatal("expected ready")
	}
	assertClose(t, "last", v, 3, 1e-9)
}

func TestEMA_MoreResponsiveThanSMA(t *testing.T) {
	prices := []float64{100, 100, 100, 100, 100, 110, 120, 130}
	ema, _ := Last(NewEMA(5), rates(prices...))
	sma, _ := Last(NewSMA(5), rates(prices...))
	if ema <= sma {
		t.Errorf("expected EMA %.2f > SMA %.2f in an uptrend", ema, sma)
	}
}

package indicator

import (
	"math"

	"market-analyzer/internal/model"
)

// RSI is the relative strength index: Wilder averages of close-to-close
// gains and losses. It needs period+1 rates.
type RSI struct {
	gain, loss smoother
	prev       float64
	primed     bool
}

// NewRSI creates an RSI, typically over 14 rates.
func NewRSI(period int) *RSI {
	period = atLeast(period, 1)
	return &RSI{gain: wilder(period), loss: wilder(period)}
}

func (r *RSI) Name() string { return "RSI" }

func (r *RSI) Update(rate model.Rate) {
	if !r.primed {
		r.prev, r.primed = rate.Close, true
		return
	}
	d := rate.Close - r.prev
	r.prev = rate.Close
	r.gain.push(math.Max(d, 0))
	r.loss.push(math.Max(-d, 0))
}

func (r *RSI) Ready() bool { return r.gain.ready() }

func (r *RSI) Value() float64 {
	if !r.Ready() {
		return 0
	}
	if r.loss.acc == 0 {
		return 100
	}
	return 100 - 100/(1+r.gain.acc/r.loss.acc)
}

func (r *RSI) Reset() {
	r.gain.reset()
	r.loss.reset()
	r.prev, r.primed = 0, false
}

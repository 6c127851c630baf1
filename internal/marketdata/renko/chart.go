package renko

import (
	"math"
	"time"
)

// epsilon absorbs float noise when comparing prices to multiples of the size.
const epsilon = 1e-9

// Chart is an append-only sequence of bars. Only the last bar is ever
// mutated, and only while it is Partial. A Chart has a single writer.
type Chart struct {
	initial float64
	size    float64
	bars    []Bar
}

// New creates an empty chart with the given bar size.
func New(size float64) *Chart {
	return &Chart{initial: size, size: size}
}

// Size returns the size used for the next bucket computation.
func (c *Chart) Size() float64 {
	return c.size
}

// Ingest folds one tick into the chart and returns the bars it completed,
// oldest first. An optional positive size replaces the chart size from this
// call on.
func (c *Chart) Ingest(t time.Time, price, volume float64, size ...float64) []Bar {
	if len(size) > 0 && size[0] > 0 {
		c.size = size[0]
	}

	if len(c.bars) == 0 {
		c.bars = append(c.bars, Bar{
			Time:      t,
			Type:      Partial,
			Open:      price,
			High:      price,
			Low:       price,
			Close:     price,
			TickCount: 1,
			Volume:    volume,
		})
		return nil
	}

	last := &c.bars[len(c.bars)-1]
	n := c.count(math.Abs(price - last.Open))
	if n == 0 {
		last.Close = price
		last.High = math.Max(math.Max(last.Open, last.High), math.Max(last.Low, last.Close))
		last.Low = math.Min(math.Min(last.Open, last.High), math.Min(last.Low, last.Close))
		last.TickCount++
		last.Volume += volume
		return nil
	}

	dir, step := Up, c.size
	if price < last.Open {
		dir, step = Down, -c.size
	}

	first := len(c.bars) - 1
	last.Type = dir
	last.Close = last.Open + step
	if dir == Up {
		last.High = last.Close
	} else {
		last.Low = last.Close
	}

	prev := last.Close
	for i := 1; i < n; i++ {
		cl := prev + step
		c.bars = append(c.bars, Bar{
			Time:  t,
			Type:  dir,
			Open:  prev,
			High:  math.Max(prev, cl),
			Low:   math.Min(prev, cl),
			Close: cl,
		})
		prev = cl
	}

	completed := make([]Bar, len(c.bars)-first)
	copy(completed, c.bars[first:])

	c.bars = append(c.bars, Bar{
		Time:      t,
		Type:      Partial,
		Open:      prev,
		High:      math.Max(price, prev),
		Low:       math.Min(price, prev),
		Close:     price,
		TickCount: 1,
		Volume:    volume,
	})
	return completed
}

// count returns how many bar edges delta has crossed. An edge that is only
// touched (delta an exact multiple of the size) is not counted as crossed.
func (c *Chart) count(delta float64) int {
	if c.size <= 0 {
		return 0
	}
	q := delta / c.size
	r := math.Round(q)
	if r > 0 && math.Abs(q-r) < epsilon {
		return int(r) - 1
	}
	return int(math.Floor(q))
}

// Bars returns a copy of the full bar sequence including the partial bar.
func (c *Chart) Bars() []Bar {
	out := make([]Bar, len(c.bars))
	copy(out, c.bars)
	return out
}

// Len returns the number of bars including the partial bar.
func (c *Chart) Len() int {
	return len(c.bars)
}

// Last returns the most recent bar.
func (c *Chart) Last() (Bar, bool) {
	if len(c.bars) == 0 {
		return Bar{}, false
	}
	return c.bars[len(c.bars)-1], true
}

// Reset drops the whole history and restores the initial size.
func (c *Chart) Reset() {
	c.bars = c.bars[:0]
	c.size = c.initial
}

// Unique projects the bars without the forming one, dropping any bar whose
// upper edge equals the previously kept bar's upper edge. Reversal pattern
// detection reads this view.
func (c *Chart) Unique() []Bar {
	return Unique(c.bars)
}

// Unique applies the de-duplication projection to an arbitrary bar sequence.
func Unique(bars []Bar) []Bar {
	if len(bars) < 2 {
		return nil
	}
	out := make([]Bar, 0, len(bars)-1)
	for _, b := range bars[:len(bars)-1] {
		if n := len(out); n > 0 && math.Abs(out[n-1].LineUp()-b.LineUp()) < epsilon {
			continue
		}
		out = append(out, b)
	}
	return out
}

// Levels returns the prices the forming bar has to pass to complete an Up
// or a Down bar.
func (c *Chart) Levels() (up, down float64, ok bool) {
	last, ok := c.Last()
	if !ok {
		return 0, 0, false
	}
	return last.Open + c.size, last.Open - c.size, true
}

package tfbuilder

import (
	"sort"
	"time"

	"market-analyzer/internal/model"
)

// Boundaries returns the bucket starts covering [from, to]. The grid is
// anchored at from floored to the minute and steps by tf; the last bucket is
// the one containing to.
func Boundaries(from, to time.Time, tf time.Duration) []time.Time {
	if tf <= 0 || to.Before(from) {
		return nil
	}
	start := from.Truncate(time.Minute)
	out := make([]time.Time, 0, int(to.Sub(start)/tf)+1)
	for t := start; !t.After(to); t = t.Add(tf) {
		out = append(out, t)
	}
	return out
}

// Resample aggregates the trade prices of ticks in [from, to] into rates of
// timeframe tf. ticks must be ordered by time. OHLC and TickVolume come from
// trade prices; Volume sums every tick in the bucket. Buckets with no trade
// price produce no rate.
func Resample(ticks []model.Tick, from, to time.Time, tf time.Duration) []model.Rate {
	bounds := Boundaries(from, to, tf)
	if len(bounds) == 0 || len(ticks) == 0 {
		return nil
	}

	start := sort.Search(len(ticks), func(i int) bool {
		return !ticks[i].Time.Before(from)
	})

	rates := make([]model.Rate, len(bounds))
	vols := make([]float64, len(bounds))
	filled := make([]bool, len(bounds))
	for i := start; i < len(ticks); i++ {
		tk := &ticks[i]
		if tk.Time.After(to) {
			break
		}
		idx := sort.Search(len(bounds), func(j int) bool {
			return bounds[j].After(tk.Time)
		}) - 1
		if idx < 0 {
			continue
		}
		vols[idx] += tk.Volume
		if !tk.Trade() {
			continue
		}
		r := &rates[idx]
		if !filled[idx] {
			*r = openRate(bounds[idx], tk)
			filled[idx] = true
			continue
		}
		fold(r, tk)
	}

	out := rates[:0]
	for i := range rates {
		if filled[i] {
			rates[i].Volume = vols[i]
			out = append(out, rates[i])
		}
	}
	return out
}

// openRate starts a rate at bucket from its first trade.
func openRate(bucket time.Time, tk *model.Tick) model.Rate {
	return model.Rate{
		Time:       bucket,
		Open:       tk.Last,
		High:       tk.Last,
		Low:        tk.Last,
		Close:      tk.Last,
		TickVolume: 1,
		Volume:     tk.Volume,
	}
}

// fold adds one trade tick to a started rate.
func fold(r *model.Rate, tk *model.Tick) {
	if tk.Last > r.High {
		r.High = tk.Last
	}
	if tk.Last < r.Low {
		r.Low = tk.Last
	}
	r.Close = tk.Last
	r.TickVolume++
	r.Volume += tk.Volume
}

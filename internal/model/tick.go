package model

import (
	"encoding/json"
	"time"

	"github.com/moznion/go-optional"
)

// TickFlag is the bitmask of legs carried by a tick. Values follow the
// MetaTrader tick flag layout so feed payloads can be passed through as-is.
type TickFlag uint32

const (
	FlagBid    TickFlag = 1 << 1
	FlagAsk    TickFlag = 1 << 2
	FlagLast   TickFlag = 1 << 3
	FlagVolume TickFlag = 1 << 4
	FlagBuy    TickFlag = 1 << 5
	FlagSell   TickFlag = 1 << 6
)

// Tick is a single immutable market data event. Bid, Ask and Last are only
// meaningful when the matching flag is set.
type Tick struct {
	Time   time.Time `json:"time"`
	Bid    float64   `json:"bid,omitempty"`
	Ask    float64   `json:"ask,omitempty"`
	Last   float64   `json:"last,omitempty"`
	Volume float64   `json:"volume,omitempty"`
	Flags  TickFlag  `json:"flags"`
}

// Has reports whether every bit of f is set on the tick.
func (t *Tick) Has(f TickFlag) bool {
	return t.Flags&f == f
}

// Trade reports whether the tick carries a last-trade price.
func (t *Tick) Trade() bool {
	return t.Last > 0
}

// Same reports whether o carries an identical payload.
func (t *Tick) Same(o *Tick) bool {
	return t.Time.Equal(o.Time) &&
		t.Bid == o.Bid && t.Ask == o.Ask && t.Last == o.Last &&
		t.Volume == o.Volume && t.Flags == o.Flags
}

// JSON returns the JSON-encoded tick (ignoring errors for hot-path usage).
func (t *Tick) JSON() []byte {
	b, _ := json.Marshal(t)
	return b
}

// Quote is a synthetic "last known" quote assembled from ticks whose legs
// may have arrived as separate events.
type Quote struct {
	Time  time.Time
	Bid   optional.Option[float64]
	Ask   optional.Option[float64]
	Last  optional.Option[float64]
	Flags TickFlag
}

// Complete reports whether all three legs are present.
func (q Quote) Complete() bool {
	return q.Bid.IsSome() && q.Ask.IsSome() && q.Last.IsSome()
}

// Auction reports a crossed or locked book: bid >= ask. It is an unreliable
// quote and is surfaced to callers, never corrected.
func (q Quote) Auction() bool {
	if q.Bid.IsNone() || q.Ask.IsNone() {
		return false
	}
	return q.Bid.Unwrap() >= q.Ask.Unwrap()
}

// Tick flattens the quote back into a tick with zero for missing legs.
func (q Quote) Tick() Tick {
	return Tick{
		Time:  q.Time,
		Bid:   q.Bid.TakeOr(0),
		Ask:   q.Ask.TakeOr(0),
		Last:  q.Last.TakeOr(0),
		Flags: q.Flags,
	}
}

// QuoteFromTick lifts a fully populated tick into a Quote.
func QuoteFromTick(t Tick) Quote {
	q := Quote{Time: t.Time, Flags: t.Flags}
	if t.Bid > 0 {
		q.Bid = optional.Some(t.Bid)
	}
	if t.Ask > 0 {
		q.Ask = optional.Some(t.Ask)
	}
	if t.Last > 0 {
		q.Last = optional.Some(t.Last)
	}
	return q
}

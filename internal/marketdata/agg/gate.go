package agg

import "market-analyzer/internal/model"

// Gate is the ingestion filter for a tick stream. It rejects ticks with no
// timestamp, ticks that do not move time forward and exact repeats of the
// last accepted tick. A Gate has a single writer.
type Gate struct {
	last model.Tick
	seen bool
}

// Accept reports whether t is a new tick and, if so, remembers it.
func (g *Gate) Accept(t model.Tick) bool {
	if t.Time.IsZero() || t.Time.UnixNano() == 0 {
		return false
	}
	if g.seen {
		if t.Same(&g.last) || !t.Time.After(g.last.Time) {
			return false
		}
	}
	g.last = t
	g.seen = true
	return true
}

// Last returns the last accepted tick.
func (g *Gate) Last() (model.Tick, bool) {
	return g.last, g.seen
}

// Reset forgets the last accepted tick.
func (g *Gate) Reset() {
	g.last = model.Tick{}
	g.seen = false
}

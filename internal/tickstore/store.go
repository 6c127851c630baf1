// Package tickstore keeps the ticks of one instrument in an append-only log
// indexed by second, and answers window, resample and synthetic quote queries
// over it.
package tickstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"market-analyzer/internal/marketdata/agg"
	"market-analyzer/internal/marketdata/tfbuilder"
	"market-analyzer/internal/model"

	"github.com/moznion/go-optional"
)

// partition marks where the ticks of one second start in the log.
type partition struct {
	key   int64 // unix second
	start int
}

// Config holds tick store settings.
type Config struct {
	Symbol    string
	ChunkSize int
}

// Store is the single-writer tick log of one instrument. Append, Load and
// Reset must be called from the owning loop; queries may run in the same loop
// without further synchronization.
type Store struct {
	cfg    Config
	ticks  []model.Tick
	parts  []partition
	gate   agg.Gate
	feed   model.MarketData
	cache  model.TickCache
	status model.StatusRecorder
	log    *slog.Logger

	// Metrics hooks (optional)
	OnAppend func()
	OnReject func()
}

// New creates an empty store. feed, cache and status may be nil when the
// store is filled by Append only.
func New(cfg Config, feed model.MarketData, cache model.TickCache, status model.StatusRecorder, log *slog.Logger) *Store {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 5000
	}
	if log == nil {
		log = slog.Default()
	}
	return &Store{
		cfg:    cfg,
		feed:   feed,
		cache:  cache,
		status: status,
		log:    log.With("component", "tickstore", "symbol", cfg.Symbol),
	}
}

// Symbol returns the instrument the store holds.
func (s *Store) Symbol() string { return s.cfg.Symbol }

// Append adds a tick to the log if the ingestion gate accepts it.
func (s *Store) Append(t model.Tick) bool {
	if !s.gate.Accept(t) {
		if s.OnReject != nil {
			s.OnReject()
		}
		return false
	}
	key := t.Time.Unix()
	if n := len(s.parts); n == 0 || s.parts[n-1].key != key {
		s.parts = append(s.parts, partition{key: key, start: len(s.ticks)})
	}
	s.ticks = append(s.ticks, t)
	if s.OnAppend != nil {
		s.OnAppend()
	}
	return true
}

// Len returns the number of ticks held.
func (s *Store) Len() int { return len(s.ticks) }

// Partitions returns the number of one-second partitions.
func (s *Store) Partitions() int { return len(s.parts) }

// LastTime returns the time of the newest tick.
func (s *Store) LastTime() (time.Time, bool) {
	if len(s.ticks) == 0 {
		return time.Time{}, false
	}
	return s.ticks[len(s.ticks)-1].Time, true
}

// Ticks returns the underlying log. Callers must not modify it.
func (s *Store) Ticks() []model.Tick { return s.ticks }

// Reset drops every tick.
func (s *Store) Reset() {
	s.ticks = s.ticks[:0]
	s.parts = s.parts[:0]
	s.gate.Reset()
}

// end returns the log index one past partition p.
func (s *Store) end(p int) int {
	if p+1 < len(s.parts) {
		return s.parts[p+1].start
	}
	return len(s.ticks)
}

// Window returns the ticks with time in [from, to], in order.
func (s *Store) Window(from, to time.Time) []model.Tick {
	if to.Before(from) {
		return nil
	}
	lo := from.Unix()
	hi := to.Unix()
	p := sort.Search(len(s.parts), func(i int) bool { return s.parts[i].key >= lo })

	var out []model.Tick
	for ; p < len(s.parts) && s.parts[p].key <= hi; p++ {
		for _, t := range s.ticks[s.parts[p].start:s.end(p)] {
			if t.Time.Before(from) || t.Time.After(to) {
				continue
			}
			out = append(out, t)
		}
	}
	return out
}

// Resample aggregates the held trades in [from, to] into rates of timeframe tf.
func (s *Store) Resample(from, to time.Time, tf time.Duration) []model.Rate {
	return tfbuilder.Resample(s.ticks, from, to, tf)
}

// LatestQuote reconstructs the last known bid, ask and trade price as of
// asOf by scanning ticks backward. ok is false when no leg was found.
func (s *Store) LatestQuote(asOf time.Time) (q model.Quote, ok bool) {
	key := asOf.Unix()
	p := sort.Search(len(s.parts), func(i int) bool { return s.parts[i].key > key }) - 1

	for ; p >= 0; p-- {
		lo, hi := s.parts[p].start, s.end(p)
		j := lo + sort.Search(hi-lo, func(k int) bool { return s.ticks[lo+k].Time.After(asOf) })
		for k := j - 1; k >= lo; k-- {
			t := &s.ticks[k]
			if q.Time.IsZero() {
				q.Time = t.Time
			}
			if q.Bid.IsNone() && t.Has(model.FlagBid) && t.Bid > 0 {
				q.Bid = optional.Some(t.Bid)
				q.Flags |= model.FlagBid
			}
			if q.Ask.IsNone() && t.Has(model.FlagAsk) && t.Ask > 0 {
				q.Ask = optional.Some(t.Ask)
				q.Flags |= model.FlagAsk
			}
			if q.Last.IsNone() && t.Has(model.FlagLast) && t.Last > 0 {
				q.Last = optional.Some(t.Last)
				q.Flags |= model.FlagLast
			}
			if q.Complete() {
				return q, true
			}
		}
	}
	return q, q.Flags != 0
}

// ErrNoFeed is returned by Load when the store was built without a feed.
var ErrNoFeed = errors.New("tickstore: no market data feed")

// Load hydrates the store with the ticks of symbol for day: first from the
// cache, then from the feed starting after the newest cached tick. Every tick
// fetched from the feed is appended to the cache before Load returns.
// It returns false without an error when the feed reports a non-OK status.
func (s *Store) Load(ctx context.Context, symbol string, day time.Time) (bool, error) {
	if s.feed == nil {
		return false, ErrNoFeed
	}
	if symbol != "" {
		s.cfg.Symbol = symbol
	}

	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	end := start.AddDate(0, 0, 1)

	if s.cache != nil {
		cached, err := s.cache.ReadTicks(ctx, s.cfg.Symbol, start)
		if err != nil {
			// an unreachable cache is a miss; the feed backfills the whole day
			s.cacheFailed(model.GetTicks, "read", err)
			cached = nil
		}
		n := 0
		for _, t := range cached {
			if s.Append(t) {
				n++
			}
		}
		s.log.Debug("cache hydrated", "ticks", n)
	}

	from := start
	if last, ok := s.LastTime(); ok && last.After(from) {
		from = last
	}
	fetched, ok, err := s.pull(ctx, start, from, end)
	if err != nil || !ok {
		return ok, err
	}

	s.log.Info("ticks loaded", "day", start.Format("2006-01-02"), "fetched", fetched, "total", len(s.ticks))
	return true, nil
}

// Pull fetches the feed ticks newer than the newest held tick up to to and
// appends them to the store and the cache. The store must have been loaded.
func (s *Store) Pull(ctx context.Context, to time.Time) (int, bool, error) {
	if s.feed == nil {
		return 0, false, ErrNoFeed
	}
	last, ok := s.LastTime()
	if !ok {
		last = time.Date(to.Year(), to.Month(), to.Day(), 0, 0, 0, 0, to.Location())
	}
	if !to.After(last) {
		return 0, true, nil
	}
	day := time.Date(last.Year(), last.Month(), last.Day(), 0, 0, 0, 0, last.Location())
	return s.pull(ctx, day, last, to)
}

// pull streams (from, to] into the store, caching the fresh ticks under day.
func (s *Store) pull(ctx context.Context, day, from, to time.Time) (int, bool, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	stream, err := s.feed.StreamTicks(ctx, s.cfg.Symbol, from, to, s.cfg.ChunkSize)
	if err != nil {
		return 0, false, fmt.Errorf("stream ticks: %w", err)
	}

	fetched := 0
	for batch := range stream {
		if !s.recordStatus(model.GetTicks, batch.Status) {
			return fetched, false, nil
		}
		fresh := make([]model.Tick, 0, len(batch.Ticks))
		for _, t := range batch.Ticks {
			if !t.Time.After(from) {
				continue
			}
			if s.Append(t) {
				fresh = append(fresh, t)
			}
		}
		if len(fresh) > 0 && s.cache != nil {
			if err := s.cache.AppendTicks(ctx, s.cfg.Symbol, day, fresh); err != nil {
				s.cacheFailed(model.GetTicks, "write", err)
			}
		}
		fetched += len(fresh)
	}
	if err := ctx.Err(); err != nil {
		return fetched, false, err
	}
	return fetched, true, nil
}

// cacheFailed logs a cache error and records it in the error log. The store
// keeps serving from the feed.
func (s *Store) cacheFailed(op model.ResponseType, action string, err error) {
	s.log.Warn("tick cache "+action+" failed", "error", err)
	if s.status != nil {
		s.status.CheckStatus(op, model.StatusError, fmt.Sprintf("cache %s: %v", action, err))
	}
}

func (s *Store) recordStatus(op model.ResponseType, st model.Status) bool {
	if s.status != nil {
		return s.status.CheckStatus(op, st, s.cfg.Symbol)
	}
	return st == model.StatusOK
}

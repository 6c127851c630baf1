// Package state holds the process-wide trading state of one instrument.
// Every field is an immutable snapshot swapped atomically by exactly one
// writer loop; readers load the current snapshot and never lock.
package state

import (
	"log/slog"
	"sync/atomic"
	"time"

	"market-analyzer/internal/clock"
	"market-analyzer/internal/marketdata/renko"
	"market-analyzer/internal/markethours"
	"market-analyzer/internal/model"
	"market-analyzer/internal/ringbuf"
)

// Snapshot is a field value and the time it was published.
type Snapshot[T any] struct {
	Value     T
	UpdatedAt time.Time
}

// Valid reports whether the field was ever published.
func (s Snapshot[T]) Valid() bool {
	return !s.UpdatedAt.IsZero()
}

type field[T any] struct {
	p atomic.Pointer[Snapshot[T]]
}

func (f *field[T]) store(v T, at time.Time) {
	f.p.Store(&Snapshot[T]{Value: v, UpdatedAt: at})
}

func (f *field[T]) load() Snapshot[T] {
	if s := f.p.Load(); s != nil {
		return *s
	}
	return Snapshot[T]{}
}

// Bars is the published range chart: every bar, the de-duplicated view, the
// brick size in use and the reversal levels of the forming bar.
type Bars struct {
	All    []renko.Bar
	Unique []renko.Bar
	Size   float64
	Up     float64
	Down   float64
}

// SanityStatus is the result of the order path self-check.
type SanityStatus struct {
	Executed bool
	Passed   bool
	Comment  string
}

// ErrorOccurrence is one non-OK collaborator status.
type ErrorOccurrence struct {
	Time    time.Time          `json:"time"`
	Op      model.ResponseType `json:"op"`
	Status  model.Status       `json:"status"`
	Comment string             `json:"comment"`
}

// Config holds state settings.
type Config struct {
	Symbol         string
	ErrorLogSize   int
	MaxInformation time.Duration // maximum age of the last tick before Delayed
}

// State is the shared state of one instrument. Slices handed to setters are
// owned by the state afterwards and must not be modified by the caller.
type State struct {
	cfg     Config
	clock   clock.Clock
	session *markethours.Session

	position field[[]model.Position]
	orders   field[[]model.Order]
	lastTick field[model.Quote]
	bars     field[Bars]
	rates    field[[]model.Rate]
	sanity   field[SanityStatus]

	errors *ringbuf.Ring[ErrorOccurrence]
	log    *slog.Logger

	// OnError is called for every recorded error (optional, metrics hook).
	OnError func(e ErrorOccurrence)
}

// New creates the state. session may be nil for an always-open market.
func New(cfg Config, clk clock.Clock, session *markethours.Session, log *slog.Logger) *State {
	if cfg.ErrorLogSize <= 0 {
		cfg.ErrorLogSize = 256
	}
	if clk == nil {
		clk = clock.Wall{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &State{
		cfg:     cfg,
		clock:   clk,
		session: session,
		errors:  ringbuf.New[ErrorOccurrence](cfg.ErrorLogSize),
		log:     log.With("component", "state", "symbol", cfg.Symbol),
	}
}

// Symbol returns the instrument the state belongs to.
func (s *State) Symbol() string { return s.cfg.Symbol }

// Now returns the state clock's time.
func (s *State) Now() time.Time { return s.clock.Now() }

// Writers. Each is called by exactly one loop.

func (s *State) SetPosition(v []model.Position) { s.position.store(v, s.clock.Now()) }
func (s *State) SetOrders(v []model.Order)      { s.orders.store(v, s.clock.Now()) }
func (s *State) SetLastTick(v model.Quote)      { s.lastTick.store(v, s.clock.Now()) }
func (s *State) SetBars(v Bars)                 { s.bars.store(v, s.clock.Now()) }
func (s *State) SetRates(v []model.Rate)        { s.rates.store(v, s.clock.Now()) }
func (s *State) SetSanity(v SanityStatus)       { s.sanity.store(v, s.clock.Now()) }

// Readers.

func (s *State) Position() Snapshot[[]model.Position] { return s.position.load() }
func (s *State) Orders() Snapshot[[]model.Order]      { return s.orders.load() }
func (s *State) LastTick() Snapshot[model.Quote]      { return s.lastTick.load() }
func (s *State) Bars() Snapshot[Bars]                 { return s.bars.load() }
func (s *State) Rates() Snapshot[[]model.Rate]        { return s.rates.load() }
func (s *State) Sanity() Snapshot[SanityStatus]       { return s.sanity.load() }

// CheckStatus records a non-OK status for op into the error log and reports
// whether status is OK.
func (s *State) CheckStatus(op model.ResponseType, status model.Status, comment string) bool {
	if status == model.StatusOK {
		return true
	}
	e := ErrorOccurrence{
		Time:    s.clock.Now(),
		Op:      op,
		Status:  status,
		Comment: comment,
	}
	s.errors.Push(e)
	s.log.Warn("collaborator status", "op", op.String(), "status", status.String(), "comment", comment)
	if s.OnError != nil {
		s.OnError(e)
	}
	return false
}

// Errors returns the retained error log, oldest first.
func (s *State) Errors() []ErrorOccurrence {
	return s.errors.Snapshot()
}

// ErrorCount returns how many errors were ever recorded.
func (s *State) ErrorCount() uint64 {
	return s.errors.Total()
}

// WarnAuction reports a crossed or locked last quote.
func (s *State) WarnAuction() bool {
	return s.lastTick.load().Value.Auction()
}

// OpenMarket reports whether the trading session is open now.
func (s *State) OpenMarket() bool {
	if s.session == nil {
		return true
	}
	return s.session.IsOpen(s.clock.Now())
}

// MarketReady reports whether bars and a two-sided quote have been published.
// The sanity check waits for it.
func (s *State) MarketReady() bool {
	bars := s.bars.load()
	if len(bars.Value.All) == 0 {
		return false
	}
	q := s.lastTick.load().Value
	return q.Bid.IsSome() && q.Ask.IsSome()
}

// SanityCleared reports whether the order path check was skipped or passed.
// A check that has not finished yet does not clear.
func (s *State) SanityCleared() bool {
	sanity := s.sanity.load()
	if !sanity.Valid() {
		return false
	}
	return !sanity.Value.Executed || sanity.Value.Passed
}

// ReadyForTrading reports whether the market is ready and the sanity check
// cleared.
func (s *State) ReadyForTrading() bool {
	return s.MarketReady() && s.SanityCleared()
}

// Delayed reports whether the last tick is older than the configured
// maximum information delay. A state without a tick is delayed.
func (s *State) Delayed() bool {
	tick := s.lastTick.load()
	if !tick.Valid() {
		return true
	}
	if s.cfg.MaxInformation <= 0 {
		return false
	}
	return s.clock.Now().Sub(tick.Value.Time) > s.cfg.MaxInformation
}

// NetVolume is the signed volume of the published positions.
func (s *State) NetVolume() float64 {
	return model.NetVolume(s.position.load().Value)
}

package model

import (
	"context"
	"time"
)

// ── Collaborator ports ──
// The core depends on these capabilities only; concrete transports and
// stores live under internal/marketdata/feed and internal/store.

// TickBatch is one chunk of a streamed tick range query.
// A non-OK Status terminates the stream.
type TickBatch struct {
	Ticks  []Tick
	Status Status
}

// RateBatch is one chunk of a streamed rate range query.
type RateBatch struct {
	Rates  []Rate
	Status Status
}

// MarketData is the market-data collaborator.
type MarketData interface {
	// StreamTicks streams ticks in (from, to]. The channel is closed when
	// the range is exhausted, a non-OK batch was sent, or ctx is cancelled.
	StreamTicks(ctx context.Context, symbol string, from, to time.Time, chunk int) (<-chan TickBatch, error)

	// StreamRates streams rates of the given timeframe in [from, to].
	StreamRates(ctx context.Context, symbol string, from, to time.Time, timeframe time.Duration, chunk int) (<-chan RateBatch, error)

	// LastTick requests the venue's latest quote.
	LastTick(ctx context.Context, symbol string) (Tick, Status, error)
}

// Broker is the order-execution collaborator.
type Broker interface {
	SendOrder(ctx context.Context, req OrderRequest) (OrderReply, error)
	Positions(ctx context.Context, symbol string) ([]Position, Status, error)
	Orders(ctx context.Context, symbol string) ([]Order, Status, error)
}

// TickCache persists ticks of one (symbol, day) as an ordered append list.
type TickCache interface {
	ReadTicks(ctx context.Context, symbol string, day time.Time) ([]Tick, error)
	AppendTicks(ctx context.Context, symbol string, day time.Time, ticks []Tick) error
}

// RateCache keeps rates of one (symbol, day, timeframe) in a sorted set scored by time.
type RateCache interface {
	AddRates(ctx context.Context, symbol string, day time.Time, timeframe time.Duration, rates []Rate) error
	RangeRates(ctx context.Context, symbol string, day time.Time, timeframe time.Duration, from, to time.Time) ([]Rate, error)
}

// StatusRecorder records non-OK collaborator statuses into the shared error log.
// It returns true when status is OK.
type StatusRecorder interface {
	CheckStatus(op ResponseType, status Status, comment string) bool
}

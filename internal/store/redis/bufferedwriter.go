package redis

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"market-analyzer/internal/logger"
	"market-analyzer/internal/model"
)

// pendingWrite represents a write that was buffered during circuit-open state.
type pendingWrite struct {
	symbol    string
	day       time.Time
	timeframe time.Duration
	ticks     []model.Tick
	rates     []model.Rate
}

// BufferedCache wraps a Cache. While the circuit is open, writes are kept
// locally and replayed when the circuit closes again. Reads pass through.
type BufferedCache struct {
	*Cache
	ctx context.Context
	log *slog.Logger

	mu     sync.Mutex
	buffer []pendingWrite
	maxBuf int // max buffered writes before dropping oldest (default: 10000)

	// Callbacks
	OnBuffer func()          // called when a write is buffered (for metrics)
	OnFlush  func(count int) // called after flushing buffered writes
}

// NewBufferedCache creates a BufferedCache. ctx bounds the replay writes.
func NewBufferedCache(ctx context.Context, c *Cache, maxBufferSize int) *BufferedCache {
	if maxBufferSize <= 0 {
		maxBufferSize = 10000
	}
	bc := &BufferedCache{
		Cache:  c,
		ctx:    ctx,
		log:    logger.For(c.log, "buffered-cache"),
		buffer: make([]pendingWrite, 0, 256),
		maxBuf: maxBufferSize,
	}

	// Register flush on circuit close
	prevCallback := c.cb.OnStateChange
	c.cb.OnStateChange = func(from, to State) {
		if prevCallback != nil {
			prevCallback(from, to)
		}
		if to == StateClosed {
			go bc.flush()
		}
	}
	return bc
}

// AppendTicks writes through the breaker, buffering when it is open.
func (bc *BufferedCache) AppendTicks(ctx context.Context, symbol string, day time.Time, ticks []model.Tick) error {
	err := bc.Cache.AppendTicks(ctx, symbol, day, ticks)
	if errors.Is(err, ErrCircuitOpen) {
		bc.bufferWrite(pendingWrite{symbol: symbol, day: day, ticks: append([]model.Tick(nil), ticks...)})
		return nil // buffered, not lost
	}
	return err
}

// AddRates writes through the breaker, buffering when it is open.
func (bc *BufferedCache) AddRates(ctx context.Context, symbol string, day time.Time, timeframe time.Duration, rates []model.Rate) error {
	err := bc.Cache.AddRates(ctx, symbol, day, timeframe, rates)
	if errors.Is(err, ErrCircuitOpen) {
		bc.bufferWrite(pendingWrite{symbol: symbol, day: day, timeframe: timeframe, rates: append([]model.Rate(nil), rates...)})
		return nil
	}
	return err
}

func (bc *BufferedCache) bufferWrite(pw pendingWrite) {
	bc.mu.Lock()
	defer bc.mu.Unlock()

	if len(bc.buffer) >= bc.maxBuf {
		// Buffer full, drop oldest
		bc.buffer = bc.buffer[1:]
	}
	bc.buffer = append(bc.buffer, pw)

	if bc.OnBuffer != nil {
		bc.OnBuffer()
	}
}

// flush replays all buffered writes through the underlying cache.
func (bc *BufferedCache) flush() {
	bc.mu.Lock()
	if len(bc.buffer) == 0 {
		bc.mu.Unlock()
		return
	}
	// Take ownership of the buffer
	toFlush := bc.buffer
	bc.buffer = make([]pendingWrite, 0, 256)
	bc.mu.Unlock()

	flushed := 0
	for _, pw := range toFlush {
		var err error
		if pw.rates != nil {
			err = bc.Cache.AddRates(bc.ctx, pw.symbol, pw.day, pw.timeframe, pw.rates)
		} else {
			err = bc.Cache.AppendTicks(bc.ctx, pw.symbol, pw.day, pw.ticks)
		}
		if err != nil {
			bc.log.Error("replay buffered write", "symbol", pw.symbol, "error", err)
			continue
		}
		flushed++
	}

	bc.log.Info("flushed buffered writes", "count", flushed)
	if bc.OnFlush != nil {
		bc.OnFlush(flushed)
	}
}

// PendingCount returns the number of buffered writes waiting to be flushed.
func (bc *BufferedCache) PendingCount() int {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	return len(bc.buffer)
}

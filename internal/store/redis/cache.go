// Package redis caches ticks and rates of a trading day in Redis.
//
// Ticks of one (symbol, day) live in a list in arrival order; rates of one
// (symbol, day, timeframe) live in a sorted set scored by bucket start.
// Every call goes through the circuit breaker.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"market-analyzer/internal/logger"
	"market-analyzer/internal/model"

	goredis "github.com/go-redis/redis/v8"
)

const dayLayout = "20060102"

// Config configures the Redis connection.
type Config struct {
	Addr     string // Redis address, e.g. "localhost:6379"
	Password string
	DB       int
	TTL      time.Duration // expiry of cached keys, 0 keeps them forever
}

// Connect creates a client and pings the server.
func Connect(ctx context.Context, cfg Config) (*goredis.Client, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}

// TickKey is the list key of a day of ticks.
func TickKey(symbol string, day time.Time) string {
	return fmt.Sprintf("%s:ticks:backtest:%s", symbol, day.Format(dayLayout))
}

// RateKey is the sorted-set key of a day of rates of one timeframe.
func RateKey(symbol string, day time.Time, timeframe time.Duration) string {
	return fmt.Sprintf("%s:%s:rates:%ds", symbol, day.Format(dayLayout), int64(timeframe/time.Second))
}

// Cache implements model.TickCache and model.RateCache.
type Cache struct {
	client *goredis.Client
	cb     *CircuitBreaker
	ttl    time.Duration
	log    *slog.Logger

	// OnOp is called with the name and duration of every call (optional, metrics hook).
	OnOp func(op string, d time.Duration)
}

// NewCache wraps client. cb may be nil.
func NewCache(client *goredis.Client, cb *CircuitBreaker, ttl time.Duration, log *slog.Logger) *Cache {
	if cb == nil {
		cb = NewCircuitBreaker(5, 10*time.Second)
	}
	return &Cache{client: client, cb: cb, ttl: ttl, log: logger.For(log, "redis")}
}

// Client returns the underlying Redis client for health checks.
func (c *Cache) Client() *goredis.Client { return c.client }

// Breaker returns the circuit breaker guarding the cache.
func (c *Cache) Breaker() *CircuitBreaker { return c.cb }

// ReadTicks returns the cached ticks of (symbol, day) in order.
func (c *Cache) ReadTicks(ctx context.Context, symbol string, day time.Time) ([]model.Tick, error) {
	var raw []string
	err := c.do("read_ticks", func() error {
		var err error
		raw, err = c.client.LRange(ctx, TickKey(symbol, day), 0, -1).Result()
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("read ticks: %w", err)
	}

	ticks := make([]model.Tick, 0, len(raw))
	for _, s := range raw {
		var t model.Tick
		if err := json.Unmarshal([]byte(s), &t); err != nil {
			c.log.Warn("skipping malformed cached tick", "key", TickKey(symbol, day), "error", err)
			continue
		}
		ticks = append(ticks, t)
	}
	return ticks, nil
}

// AppendTicks pushes ticks to the end of the (symbol, day) list.
func (c *Cache) AppendTicks(ctx context.Context, symbol string, day time.Time, ticks []model.Tick) error {
	if len(ticks) == 0 {
		return nil
	}
	key := TickKey(symbol, day)
	vals := make([]interface{}, len(ticks))
	for i := range ticks {
		vals[i] = ticks[i].JSON()
	}

	err := c.do("append_ticks", func() error {
		pipe := c.client.TxPipeline()
		pipe.RPush(ctx, key, vals...)
		if c.ttl > 0 {
			pipe.Expire(ctx, key, c.ttl)
		}
		_, err := pipe.Exec(ctx)
		return err
	})
	if err != nil {
		return fmt.Errorf("append ticks: %w", err)
	}
	return nil
}

// AddRates stores rates scored by bucket start. A rate replaces any cached
// rate with the same start.
func (c *Cache) AddRates(ctx context.Context, symbol string, day time.Time, timeframe time.Duration, rates []model.Rate) error {
	if len(rates) == 0 {
		return nil
	}
	key := RateKey(symbol, day, timeframe)

	err := c.do("add_rates", func() error {
		pipe := c.client.TxPipeline()
		for i := range rates {
			score := strconv.FormatInt(rates[i].Time.Unix(), 10)
			pipe.ZRemRangeByScore(ctx, key, score, score)
			pipe.ZAdd(ctx, key, &goredis.Z{Score: float64(rates[i].Time.Unix()), Member: rates[i].JSON()})
		}
		if c.ttl > 0 {
			pipe.Expire(ctx, key, c.ttl)
		}
		_, err := pipe.Exec(ctx)
		return err
	})
	if err != nil {
		return fmt.Errorf("add rates: %w", err)
	}
	return nil
}

// RangeRates returns cached rates with start in [from, to], oldest first.
func (c *Cache) RangeRates(ctx context.Context, symbol string, day time.Time, timeframe time.Duration, from, to time.Time) ([]model.Rate, error) {
	var raw []string
	err := c.do("range_rates", func() error {
		var err error
		raw, err = c.client.ZRangeByScore(ctx, RateKey(symbol, day, timeframe), &goredis.ZRangeBy{
			Min: strconv.FormatInt(from.Unix(), 10),
			Max: strconv.FormatInt(to.Unix(), 10),
		}).Result()
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("range rates: %w", err)
	}

	rates := make([]model.Rate, 0, len(raw))
	for _, s := range raw {
		var r model.Rate
		if err := json.Unmarshal([]byte(s), &r); err != nil {
			c.log.Warn("skipping malformed cached rate", "error", err)
			continue
		}
		rates = append(rates, r)
	}
	return rates, nil
}

func (c *Cache) do(op string, fn func() error) error {
	start := time.Now()
	err := c.cb.Execute(fn)
	if c.OnOp != nil {
		c.OnOp(op, time.Since(start))
	}
	return err
}

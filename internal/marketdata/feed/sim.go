package feed

import (
	"context"
	"log/slog"
	"math"
	"math/rand"
	"sync"
	"time"

	"market-analyzer/internal/clock"
	"market-analyzer/internal/execution"
	"market-analyzer/internal/ledger"
	"market-analyzer/internal/logger"
	"market-analyzer/internal/model"
	"market-analyzer/internal/tickstore"
)

// SimConfig configures a simulated market.
type SimConfig struct {
	Symbol string
	Price  float64 // starting last price
	Spread float64 // ask - bid
	Tick   float64 // minimum price move
	Seed   int64
}

// Sim is a random-walk market of one symbol with a paper broker attached.
// It implements Source.
type Sim struct {
	cfg   SimConfig
	clock clock.Clock
	log   *slog.Logger
	paper *execution.Paper

	mu    sync.Mutex
	store *tickstore.Store
	rng   *rand.Rand
	price float64
}

// NewSim creates a simulated market.
func NewSim(cfg SimConfig, clk clock.Clock, log *slog.Logger) *Sim {
	if cfg.Tick <= 0 {
		cfg.Tick = 1
	}
	if cfg.Spread <= 0 {
		cfg.Spread = cfg.Tick
	}
	if cfg.Price <= 0 {
		cfg.Price = 1000
	}
	if clk == nil {
		clk = clock.Wall{}
	}
	s := &Sim{
		cfg:   cfg,
		clock: clk,
		log:   logger.For(log, "sim").With("symbol", cfg.Symbol),
		store: tickstore.New(tickstore.Config{Symbol: cfg.Symbol}, nil, nil, nil, log),
		rng:   rand.New(rand.NewSource(cfg.Seed)),
		price: cfg.Price,
	}
	s.paper = execution.NewPaper(execution.PaperConfig{Symbol: cfg.Symbol}, ledger.New(), clk, s.quote, log)
	return s
}

func (s *Sim) quote() (model.Quote, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.LatestQuote(s.clock.Now())
}

// Step generates one tick at t and matches resting orders against it.
func (s *Sim) Step(t time.Time) model.Tick {
	s.mu.Lock()
	move := float64(s.rng.Intn(3)-1) * s.cfg.Tick
	s.price = math.Max(s.cfg.Tick, math.Round((s.price+move)/s.cfg.Tick)*s.cfg.Tick)
	half := s.cfg.Spread / 2
	tick := model.Tick{
		Time:   t,
		Bid:    s.price - half,
		Ask:    s.price + half,
		Last:   s.price,
		Volume: float64(s.rng.Intn(10) + 1),
		Flags:  model.FlagBid | model.FlagAsk | model.FlagLast | model.FlagVolume,
	}
	s.store.Append(tick)
	s.mu.Unlock()

	s.paper.Match()
	return tick
}

// Generate fills [from, to) with one tick every interval.
func (s *Sim) Generate(from, to time.Time, every time.Duration) int {
	n := 0
	for t := from; t.Before(to); t = t.Add(every) {
		s.Step(t)
		n++
	}
	s.log.Debug("generated ticks", "count", n, "from", from, "to", to)
	return n
}

// Run generates a tick every interval at the clock's now until ctx is done.
func (s *Sim) Run(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Step(s.clock.Now())
		}
	}
}

func chunks[T any](items []T, size int) [][]T {
	if size <= 0 {
		size = len(items)
	}
	var out [][]T
	for len(items) > 0 {
		n := min(size, len(items))
		out = append(out, items[:n])
		items = items[n:]
	}
	return out
}

// StreamTicks streams the generated ticks in [from, to].
func (s *Sim) StreamTicks(ctx context.Context, symbol string, from, to time.Time, chunk int) (<-chan model.TickBatch, error) {
	out := make(chan model.TickBatch)
	if symbol != s.cfg.Symbol {
		go func() {
			defer close(out)
			select {
			case out <- model.TickBatch{Status: model.StatusNotFound}:
			case <-ctx.Done():
			}
		}()
		return out, nil
	}

	s.mu.Lock()
	ticks := append([]model.Tick(nil), s.store.Window(from, to)...)
	s.mu.Unlock()

	go func() {
		defer close(out)
		for _, c := range chunks(ticks, chunk) {
			select {
			case out <- model.TickBatch{Ticks: c}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// StreamRates streams rates resampled from the generated ticks.
func (s *Sim) StreamRates(ctx context.Context, symbol string, from, to time.Time, timeframe time.Duration, chunk int) (<-chan model.RateBatch, error) {
	out := make(chan model.RateBatch)
	if symbol != s.cfg.Symbol {
		go func() {
			defer close(out)
			select {
			case out <- model.RateBatch{Status: model.StatusNotFound}:
			case <-ctx.Done():
			}
		}()
		return out, nil
	}

	s.mu.Lock()
	rates := s.store.Resample(from, to, timeframe)
	s.mu.Unlock()

	go func() {
		defer close(out)
		for _, c := range chunks(rates, chunk) {
			select {
			case out <- model.RateBatch{Rates: c}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// LastTick returns the synthetic quote at the clock's now.
func (s *Sim) LastTick(_ context.Context, symbol string) (model.Tick, model.Status, error) {
	if symbol != s.cfg.Symbol {
		return model.Tick{}, model.StatusNotFound, nil
	}
	q, ok := s.quote()
	if !ok {
		return model.Tick{}, model.StatusNotFound, nil
	}
	return q.Tick(), model.StatusOK, nil
}

func (s *Sim) SendOrder(ctx context.Context, req model.OrderRequest) (model.OrderReply, error) {
	if req.Symbol != s.cfg.Symbol {
		return model.OrderReply{Status: model.StatusNotFound, Comment: "unknown symbol"}, nil
	}
	return s.paper.SendOrder(ctx, req)
}

func (s *Sim) Positions(ctx context.Context, symbol string) ([]model.Position, model.Status, error) {
	return s.paper.Positions(ctx, symbol)
}

func (s *Sim) Orders(ctx context.Context, symbol string) ([]model.Order, model.Status, error) {
	return s.paper.Orders(ctx, symbol)
}

package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"market-analyzer/config"
	"market-analyzer/internal/api"
	"market-analyzer/internal/clock"
	"market-analyzer/internal/logger"
	"market-analyzer/internal/loop"
	"market-analyzer/internal/marketdata/agg"
	"market-analyzer/internal/marketdata/renko"
	"market-analyzer/internal/markethours"
	"market-analyzer/internal/metrics"
	"market-analyzer/internal/model"
	"market-analyzer/internal/notification"
	"market-analyzer/internal/order"
	"market-analyzer/internal/state"
	redisstore "market-analyzer/internal/store/redis"
	"market-analyzer/internal/store/sqlite"
	"market-analyzer/internal/strategy"
	"market-analyzer/internal/tickstore"

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// app holds what both commands share: settings, logging, metrics and the
// optional storage.
type app struct {
	cfg    *config.Settings
	log    *slog.Logger
	reg    *prometheus.Registry
	prom   *metrics.Metrics
	health *metrics.HealthStatus
	notify notification.Notifier

	closers []func()
}

func newApp(path string, backtest bool, date string) (*app, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	cfg.Backtest.Enabled = backtest
	if date != "" {
		cfg.Backtest.Date = date
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	level, err := logger.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, err
	}
	log := logger.Init("analyzer", logger.Options{Level: level, Format: cfg.Log.Format})

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	a := &app{
		cfg:    cfg,
		log:    log,
		reg:    reg,
		prom:   metrics.NewMetrics(reg),
		health: metrics.NewHealthStatus(),
		notify: notifier(cfg.Notify, log),
	}
	log.Info("settings loaded",
		"symbol", cfg.Symbol.Name,
		"strategy", cfg.Strategy.Use,
		"timeframe", cfg.Timeframe,
		"brick_size", cfg.BrickSize,
		"backtest", cfg.Backtest.Enabled,
		"production", cfg.ProductionMode(),
	)
	return a, nil
}

// close runs the registered cleanups in reverse order.
func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func (a *app) onClose(f func()) { a.closers = append(a.closers, f) }

// notifier builds the configured alert channels. Alerts always reach the log.
func notifier(cfg config.Notify, log *slog.Logger) notification.Notifier {
	channels := notification.Multi{notification.NewLogNotifier(log)}
	if cfg.WebhookURL != "" {
		channels = append(channels, notification.NewWebhookNotifier(cfg.WebhookURL, log))
	}
	if cfg.TelegramToken != "" {
		channels = append(channels, notification.NewTelegramNotifier("", cfg.TelegramToken, cfg.TelegramChat, log))
	}
	return channels
}

// alert delivers in the background so a slow channel never holds a loop.
func (a *app) alert(level notification.AlertLevel, title, message string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := a.notify.Send(ctx, notification.Alert{Level: level, Title: title, Message: message}); err != nil {
			a.log.Warn("alert delivery failed", "title", title, "error", err)
		}
	}()
}

// startMetrics serves /metrics, /healthz and the state API.
func (a *app) startMetrics(st *state.State) {
	if a.cfg.Metrics.Addr == "" {
		return
	}
	srv := metrics.NewServer(a.cfg.Metrics.Addr, a.health, a.reg, a.log)
	srv.Mount(api.Prefix+"/", api.NewRouter(st, a.log))
	srv.Start()
	a.onClose(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Stop(ctx)
	})
}

// caches connects the Redis cache. Both returns are nil when the cache is
// disabled or unreachable; the analyzer then runs on the feed alone.
func (a *app) caches(ctx context.Context) (model.TickCache, model.RateCache, *goredis.Client) {
	rc := a.cfg.Redis
	if !rc.Enabled {
		return nil, nil, nil
	}
	a.health.RequireRedis = true

	client, err := redisstore.Connect(ctx, redisstore.Config{Addr: rc.Addr, Password: rc.Password, DB: rc.DB, TTL: rc.TTL})
	if err != nil {
		a.log.Warn("redis unavailable, continuing without cache", "addr", rc.Addr, "error", err)
		return nil, nil, nil
	}
	a.onClose(func() { client.Close() })

	cb := redisstore.NewCircuitBreaker(5, 10*time.Second)
	cb.OnStateChange = func(from, to redisstore.State) {
		a.prom.RedisCircuitBreakerState.Set(float64(to))
		if to == redisstore.StateOpen {
			a.prom.RedisCircuitBreakerTrips.Inc()
		}
	}

	cache := redisstore.NewCache(client, cb, rc.TTL, a.log)
	cache.OnOp = func(op string, d time.Duration) {
		a.prom.CacheOpDur.WithLabelValues(op).Observe(d.Seconds())
	}
	buffered := redisstore.NewBufferedCache(ctx, cache, rc.Buffer)
	buffered.OnFlush = func(n int) {
		a.log.Info("replayed buffered cache writes", "count", n)
	}
	a.log.Info("redis cache ready", "addr", rc.Addr)
	return buffered, buffered, client
}

// journal opens the SQLite journal, or returns nil when none is configured.
func (a *app) journal() (*sqlite.Journal, error) {
	if a.cfg.SQLite.Path == "" {
		return nil, nil
	}
	if err := os.MkdirAll(filepath.Dir(a.cfg.SQLite.Path), 0o755); err != nil {
		return nil, fmt.Errorf("journal dir: %w", err)
	}
	j, err := sqlite.Open(sqlite.Config{DBPath: a.cfg.SQLite.Path}, a.log)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	j.OnCommit = func(d time.Duration) {
		a.prom.JournalCommitDur.Observe(d.Seconds())
	}
	a.health.RequireSQLite = true
	a.health.SQLiteOK = true
	a.onClose(func() { j.Close() })
	return j, nil
}

func (a *app) liveness(ctx context.Context, rdb *goredis.Client, db *sql.DB) {
	if rdb == nil && db == nil {
		return
	}
	a.health.StartLivenessChecker(ctx, rdb, db, 10*time.Second)
}

func (a *app) session() (*markethours.Session, error) {
	loc, err := a.cfg.Location()
	if err != nil {
		return nil, err
	}
	open, close, err := a.cfg.Session()
	if err != nil {
		return nil, err
	}
	return markethours.New(loc, open, close, a.cfg.Holidays)
}

func (a *app) newState(clk clock.Clock, session *markethours.Session) *state.State {
	st := state.New(state.Config{
		Symbol:         a.cfg.Symbol.Name,
		ErrorLogSize:   a.cfg.ErrorLogSize,
		MaxInformation: a.cfg.Order.MaximumInformationDelay,
	}, clk, session, a.log)
	st.OnError = func(e state.ErrorOccurrence) {
		a.prom.CollaboratorErrors.WithLabelValues(e.Op.String(), e.Status.String()).Inc()
	}
	return st
}

func (a *app) newStore(feed model.MarketData, cache model.TickCache, st *state.State) *tickstore.Store {
	store := tickstore.New(tickstore.Config{
		Symbol:    a.cfg.Symbol.Name,
		ChunkSize: a.cfg.StreamingData.ChunkSize,
	}, feed, cache, st, a.log)
	store.OnAppend = a.prom.TicksTotal.Inc
	store.OnReject = a.prom.TicksRejected.Inc
	return store
}

func (a *app) newAggregator() *agg.Aggregator {
	ag := agg.New(a.cfg.BrickSize, a.log)
	ag.OnBar = func(b renko.Bar) {
		a.prom.BarsTotal.WithLabelValues(b.Type.String()).Inc()
	}
	return ag
}

func (a *app) hookMarketData(md *loop.MarketDataLoop) {
	b := md.Builder()
	b.OnRate = func(model.Rate) { a.prom.RatesTotal.Inc() }
	b.OnStaleTick = a.prom.StaleTicks.Inc

	if atr := a.cfg.BrickATR; atr.Period > 0 {
		md.UseDynamicSize(agg.NewATRSize(atr.Period, atr.Multiplier, atr.Min))
		a.log.Info("dynamic brick size", "atr_period", atr.Period, "multiplier", atr.Multiplier, "min", atr.Min)
	}
}

func (a *app) newWrapper(broker model.Broker, st *state.State) *order.Wrapper {
	w := order.New(order.Config{
		Symbol:                a.cfg.Symbol.Name,
		Deviation:             a.cfg.Order.Deviation,
		Magic:                 a.cfg.Order.Magic,
		PriceDecimals:         a.cfg.Symbol.PriceDecimals,
		VolumeDecimals:        a.cfg.Symbol.VolumeDecimals,
		MaximumPriceProximity: a.cfg.Order.MaximumPriceProximity,
	}, broker, st, a.log)
	w.OnReply = func(req model.OrderRequest, reply model.OrderReply) {
		a.prom.OrdersTotal.WithLabelValues(req.Type.String(), strconv.FormatUint(uint64(reply.Retcode), 10)).Inc()
	}
	return w
}

func (a *app) buildStrategy(bars strategy.BarSource) (strategy.Strategy, error) {
	s := a.cfg.Strategy
	return strategy.NewRegistry().Build(s.Use, strategy.Settings{
		Volume:             s.Volume,
		FastPeriod:         s.FastPeriod,
		SlowPeriod:         s.SlowPeriod,
		RSIFilter:          s.RSIFilter,
		RSIPeriod:          s.RSIPeriod,
		FollowPeriod:       s.FollowPeriod,
		MinMove:            s.MinMove,
		AtrPeriod:          s.AtrPeriod,
		AtrMultiplier:      s.AtrMultiplier,
		LinRegPeriod:       s.LinRegPeriod,
		RenkoUse:           s.RenkoUse,
		MartingaleMaxPower: s.MartingaleMaxPower,
	}, bars)
}

func (a *app) newStrategyLoop(s strategy.Strategy, w *order.Wrapper, st *state.State, enabled bool) *loop.StrategyLoop {
	sl := loop.NewStrategyLoop(loop.StrategyConfig{
		Enabled:        enabled,
		WhileDelay:     a.cfg.Order.WhileDelay,
		WaitingTimeout: a.cfg.Order.WaitingTimeout,
	}, s, w, st, a.log)
	sl.OnAuction = a.prom.AuctionWarnings.Inc
	sl.OnConfirmTimeout = func() {
		a.prom.ConfirmTimeouts.WithLabelValues(sl.Name()).Inc()
	}
	return sl
}

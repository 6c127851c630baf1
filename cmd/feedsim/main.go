// cmd/feedsim serves a local simulated market and paper broker.
// It serves the feed protocol from a random-walk market so the analyzer can run
// without a venue. Orders fill on a paper broker.
//
// Config (env vars):
//
//	FEEDSIM_ADDR         listen address (default: ":9001")
//	FEEDSIM_SYMBOL       simulated symbol (default: "WIN")
//	FEEDSIM_PRICE        starting price (default: "120000")
//	FEEDSIM_TICK         minimum price move (default: "5")
//	FEEDSIM_SPREAD       ask - bid (default: "5")
//	FEEDSIM_INTERVAL_MS  tick interval milliseconds (default: "250")
//	FEEDSIM_HISTORY      generate today's ticks since midnight at startup (default: "true")
//	LOG_LEVEL            debug, info, warn, error (default: "info")
package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"market-analyzer/internal/clock"
	"market-analyzer/internal/logger"
	"market-analyzer/internal/marketdata/feed"
)

func main() {
	level, err := logger.ParseLevel(envOrDefault("LOG_LEVEL", "info"))
	log := logger.Init("feedsim", logger.Options{Level: level})
	if err != nil {
		log.Warn("invalid log level, using info", "error", err)
	}

	addr := envOrDefault("FEEDSIM_ADDR", ":9001")
	interval := time.Duration(envIntOrDefault("FEEDSIM_INTERVAL_MS", 250)) * time.Millisecond
	clk := clock.Wall{Location: time.UTC}

	sim := feed.NewSim(feed.SimConfig{
		Symbol: envOrDefault("FEEDSIM_SYMBOL", "WIN"),
		Price:  envFloatOrDefault("FEEDSIM_PRICE", 120000),
		Tick:   envFloatOrDefault("FEEDSIM_TICK", 5),
		Spread: envFloatOrDefault("FEEDSIM_SPREAD", 5),
		Seed:   time.Now().UnixNano(),
	}, clk, log)

	if envOrDefault("FEEDSIM_HISTORY", "true") == "true" {
		now := clk.Now()
		midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
		n := sim.Generate(midnight, now, interval)
		log.Info("history generated", "ticks", n, "from", midnight)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go sim.Run(ctx, interval)

	srv := feed.NewServer(sim, log)
	mux := http.NewServeMux()
	mux.Handle("/ws", srv)
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "ok", "service": "feedsim"})
	})

	httpSrv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		httpSrv.Shutdown(shutdownCtx)
	}()

	log.Info("listening", "addr", addr, "ws", "ws://localhost"+addr+"/ws", "interval", interval)
	if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error("server error", "error", err)
		os.Exit(1)
	}
	log.Info("shutdown complete")
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envIntOrDefault(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envFloatOrDefault(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

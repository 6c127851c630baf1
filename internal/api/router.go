// Package api serves a read-only JSON view of the shared trading state.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"market-analyzer/internal/logger"
	"market-analyzer/internal/marketdata/renko"
	"market-analyzer/internal/model"
	"market-analyzer/internal/state"

	"github.com/gorilla/mux"
)

// Prefix is where the router expects to be mounted.
const Prefix = "/api/v1"

// QuoteDTO is a quote with absent legs omitted.
type QuoteDTO struct {
	Time    time.Time `json:"time"`
	Bid     *float64  `json:"bid,omitempty"`
	Ask     *float64  `json:"ask,omitempty"`
	Last    *float64  `json:"last,omitempty"`
	Auction bool      `json:"auction"`
}

// StateDTO summarises the state.
type StateDTO struct {
	Symbol     string     `json:"symbol"`
	Now        time.Time  `json:"now"`
	MarketOpen bool       `json:"market_open"`
	Ready      bool       `json:"ready_for_trading"`
	Delayed    bool       `json:"delayed"`
	NetVolume  float64    `json:"net_volume"`
	Bars       int        `json:"bars"`
	UniqueBars int        `json:"unique_bars"`
	BrickSize  float64    `json:"brick_size"`
	ReversalUp float64    `json:"reversal_up"`
	ReversalDn float64    `json:"reversal_down"`
	Rates      int        `json:"rates"`
	Errors     uint64     `json:"errors"`
	LastTick   *QuoteDTO  `json:"last_tick,omitempty"`
	Sanity     *SanityDTO `json:"sanity,omitempty"`
}

// SanityDTO is the order path self-check result.
type SanityDTO struct {
	Executed bool   `json:"executed"`
	Passed   bool   `json:"passed"`
	Comment  string `json:"comment"`
}

// ErrorDTO is one error log entry with names instead of codes.
type ErrorDTO struct {
	Time    time.Time `json:"time"`
	Op      string    `json:"op"`
	Status  string    `json:"status"`
	Comment string    `json:"comment"`
}

type handler struct {
	st  *state.State
	log *slog.Logger
}

// NewRouter builds the routes over st.
func NewRouter(st *state.State, log *slog.Logger) *mux.Router {
	h := &handler{st: st, log: logger.For(log, "api")}

	router := mux.NewRouter()
	api := router.PathPrefix(Prefix).Subrouter()
	api.HandleFunc("/health", h.health).Methods(http.MethodGet)
	api.HandleFunc("/state", h.state).Methods(http.MethodGet)
	api.HandleFunc("/bars", h.bars).Methods(http.MethodGet)
	api.HandleFunc("/rates", h.rates).Methods(http.MethodGet)
	api.HandleFunc("/positions", h.positions).Methods(http.MethodGet)
	api.HandleFunc("/orders", h.orders).Methods(http.MethodGet)
	api.HandleFunc("/errors", h.errors).Methods(http.MethodGet)
	return router
}

func (h *handler) write(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Warn("encode response", "error", err)
	}
}

// limit parses the optional ?limit= parameter. Zero means everything.
func limit(r *http.Request) (int, bool) {
	v := r.URL.Query().Get("limit")
	if v == "" {
		return 0, true
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

func tail[T any](items []T, n int) []T {
	if n == 0 || n >= len(items) {
		return items
	}
	return items[len(items)-n:]
}

func (h *handler) health(w http.ResponseWriter, _ *http.Request) {
	h.write(w, map[string]string{"status": "ok", "symbol": h.st.Symbol()})
}

func quoteDTO(q model.Quote) *QuoteDTO {
	dto := &QuoteDTO{Time: q.Time, Auction: q.Auction()}
	if q.Bid.IsSome() {
		v := q.Bid.Unwrap()
		dto.Bid = &v
	}
	if q.Ask.IsSome() {
		v := q.Ask.Unwrap()
		dto.Ask = &v
	}
	if q.Last.IsSome() {
		v := q.Last.Unwrap()
		dto.Last = &v
	}
	return dto
}

func (h *handler) state(w http.ResponseWriter, _ *http.Request) {
	bars := h.st.Bars().Value
	out := StateDTO{
		Symbol:     h.st.Symbol(),
		Now:        h.st.Now(),
		MarketOpen: h.st.OpenMarket(),
		Ready:      h.st.ReadyForTrading(),
		Delayed:    h.st.Delayed(),
		NetVolume:  h.st.NetVolume(),
		Bars:       len(bars.All),
		UniqueBars: len(bars.Unique),
		BrickSize:  bars.Size,
		ReversalUp: bars.Up,
		ReversalDn: bars.Down,
		Rates:      len(h.st.Rates().Value),
		Errors:     h.st.ErrorCount(),
	}
	if tick := h.st.LastTick(); tick.Valid() {
		out.LastTick = quoteDTO(tick.Value)
	}
	if sanity := h.st.Sanity(); sanity.Valid() {
		out.Sanity = &SanityDTO{
			Executed: sanity.Value.Executed,
			Passed:   sanity.Value.Passed,
			Comment:  sanity.Value.Comment,
		}
	}
	h.write(w, out)
}

func (h *handler) bars(w http.ResponseWriter, r *http.Request) {
	n, ok := limit(r)
	if !ok {
		http.Error(w, "invalid limit", http.StatusBadRequest)
		return
	}
	published := h.st.Bars().Value
	var bars []renko.Bar
	if r.URL.Query().Get("unique") == "true" {
		bars = published.Unique
	} else {
		bars = published.All
	}
	out := make([]map[string]any, 0, len(bars))
	for _, b := range tail(bars, n) {
		out = append(out, map[string]any{
			"time":       b.Time,
			"type":       b.Type.String(),
			"open":       b.Open,
			"high":       b.High,
			"low":        b.Low,
			"close":      b.Close,
			"tick_count": b.TickCount,
			"volume":     b.Volume,
		})
	}
	h.write(w, out)
}

func (h *handler) rates(w http.ResponseWriter, r *http.Request) {
	n, ok := limit(r)
	if !ok {
		http.Error(w, "invalid limit", http.StatusBadRequest)
		return
	}
	h.write(w, tail(h.st.Rates().Value, n))
}

func (h *handler) positions(w http.ResponseWriter, _ *http.Request) {
	positions := h.st.Position().Value
	if positions == nil {
		positions = []model.Position{}
	}
	h.write(w, positions)
}

func (h *handler) orders(w http.ResponseWriter, _ *http.Request) {
	orders := h.st.Orders().Value
	if orders == nil {
		orders = []model.Order{}
	}
	h.write(w, orders)
}

func (h *handler) errors(w http.ResponseWriter, _ *http.Request) {
	errs := h.st.Errors()
	out := make([]ErrorDTO, 0, len(errs))
	for _, e := range errs {
		out = append(out, ErrorDTO{Time: e.Time, Op: e.Op.String(), Status: e.Status.String(), Comment: e.Comment})
	}
	h.write(w, out)
}

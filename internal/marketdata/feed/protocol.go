// Package feed speaks the analyzer's market data and broker protocol over a
// single WebSocket: JSON requests {id, method, params} answered by one or
// more response frames {id, status, comment, result, done}. Streaming
// methods answer with several frames, the last one carrying done=true.
package feed

import (
	"encoding/json"
	"time"

	"market-analyzer/internal/model"
)

// Methods.
const (
	MethodTicks     = "ticks"
	MethodRates     = "rates"
	MethodLastTick  = "last_tick"
	MethodSendOrder = "send_order"
	MethodPositions = "positions"
	MethodOrders    = "orders"
)

// Request is one call.
type Request struct {
	ID     uint64          `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

// Response is one answer frame.
type Response struct {
	ID      uint64          `json:"id"`
	Status  string          `json:"status"`
	Comment string          `json:"comment,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Done    bool            `json:"done"`
}

// StatusCode decodes the frame status.
func (r *Response) StatusCode() model.Status {
	return model.ParseStatus(r.Status)
}

// RangeParams selects ticks or rates of a symbol in [From, To].
type RangeParams struct {
	Symbol    string    `json:"symbol"`
	From      time.Time `json:"from"`
	To        time.Time `json:"to"`
	Timeframe int64     `json:"timeframe,omitempty"` // seconds, rates only
	Chunk     int       `json:"chunk,omitempty"`
}

// SymbolParams selects a symbol.
type SymbolParams struct {
	Symbol string `json:"symbol"`
}

func encode(v any) json.RawMessage {
	b, _ := json.Marshal(v)
	return b
}

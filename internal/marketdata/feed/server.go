package feed

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"market-analyzer/internal/logger"
	"market-analyzer/internal/model"

	"github.com/gorilla/websocket"
)

// Source is what a Server exposes.
type Source interface {
	model.MarketData
	model.Broker
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(_ *http.Request) bool { return true },
}

// Server serves the protocol for a Source. Each request is handled on its
// own goroutine; frames of one connection are written one at a time.
type Server struct {
	src Source
	log *slog.Logger

	// OnRequest is called with the method of every request (optional).
	OnRequest func(method string)
}

// NewServer creates a protocol server.
func NewServer(src Source, log *slog.Logger) *Server {
	return &Server{src: src, log: logger.For(log, "feed-server")}
}

type peer struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (p *peer) send(resp Response) error {
	b, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return p.conn.WriteMessage(websocket.TextMessage, b)
}

// ServeHTTP upgrades the connection and serves requests until it closes.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("upgrade error", "error", err)
		return
	}
	s.log.Info("client connected", "remote", r.RemoteAddr)

	ctx, cancel := context.WithCancel(r.Context())
	var wg sync.WaitGroup
	defer func() {
		cancel()
		wg.Wait()
		conn.Close()
		s.log.Info("client disconnected", "remote", r.RemoteAddr)
	}()

	p := &peer{conn: conn}
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var req Request
		if err := json.Unmarshal(raw, &req); err != nil {
			s.log.Warn("parse error", "error", err)
			continue
		}
		if s.OnRequest != nil {
			s.OnRequest(req.Method)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.handle(ctx, p, req)
		}()
	}
}

func (s *Server) handle(ctx context.Context, p *peer, req Request) {
	reply := func(st model.Status, comment string, result any) {
		resp := Response{ID: req.ID, Status: st.String(), Comment: comment, Done: true}
		if result != nil {
			resp.Result = encode(result)
		}
		if err := p.send(resp); err != nil {
			s.log.Debug("write failed", "method", req.Method, "error", err)
		}
	}

	switch req.Method {
	case MethodTicks, MethodRates:
		var params RangeParams
		if err := json.Unmarshal(req.Params, &params); err != nil {
			reply(model.StatusInvalidRequest, err.Error(), nil)
			return
		}
		s.stream(ctx, p, req, params)

	case MethodLastTick:
		var params SymbolParams
		if err := json.Unmarshal(req.Params, &params); err != nil {
			reply(model.StatusInvalidRequest, err.Error(), nil)
			return
		}
		tick, st, err := s.src.LastTick(ctx, params.Symbol)
		if err != nil {
			reply(model.StatusError, err.Error(), nil)
			return
		}
		reply(st, "", tick)

	case MethodPositions:
		var params SymbolParams
		if err := json.Unmarshal(req.Params, &params); err != nil {
			reply(model.StatusInvalidRequest, err.Error(), nil)
			return
		}
		positions, st, err := s.src.Positions(ctx, params.Symbol)
		if err != nil {
			reply(model.StatusError, err.Error(), nil)
			return
		}
		reply(st, "", positions)

	case MethodOrders:
		var params SymbolParams
		if err := json.Unmarshal(req.Params, &params); err != nil {
			reply(model.StatusInvalidRequest, err.Error(), nil)
			return
		}
		orders, st, err := s.src.Orders(ctx, params.Symbol)
		if err != nil {
			reply(model.StatusError, err.Error(), nil)
			return
		}
		reply(st, "", orders)

	case MethodSendOrder:
		var order model.OrderRequest
		if err := json.Unmarshal(req.Params, &order); err != nil {
			reply(model.StatusInvalidRequest, err.Error(), nil)
			return
		}
		r, err := s.src.SendOrder(ctx, order)
		if err != nil {
			reply(model.StatusError, err.Error(), nil)
			return
		}
		reply(r.Status, r.Comment, r)

	default:
		reply(model.StatusInvalidRequest, "unknown method "+req.Method, nil)
	}
}

// stream answers a ticks or rates request with one frame per batch and a
// final empty frame marked done.
func (s *Server) stream(ctx context.Context, p *peer, req Request, params RangeParams) {
	send := func(st model.Status, result any, done bool) bool {
		resp := Response{ID: req.ID, Status: st.String(), Done: done}
		if result != nil {
			resp.Result = encode(result)
		}
		return p.send(resp) == nil
	}

	if req.Method == MethodTicks {
		ch, err := s.src.StreamTicks(ctx, params.Symbol, params.From, params.To, params.Chunk)
		if err != nil {
			send(model.StatusError, nil, true)
			return
		}
		for b := range ch {
			if b.Status != model.StatusOK {
				send(b.Status, nil, true)
				return
			}
			if !send(model.StatusOK, b.Ticks, false) {
				return
			}
		}
	} else {
		tf := time.Duration(params.Timeframe) * time.Second
		ch, err := s.src.StreamRates(ctx, params.Symbol, params.From, params.To, tf, params.Chunk)
		if err != nil {
			send(model.StatusError, nil, true)
			return
		}
		for b := range ch {
			if b.Status != model.StatusOK {
				send(b.Status, nil, true)
				return
			}
			if !send(model.StatusOK, b.Rates, false) {
				return
			}
		}
	}
	send(model.StatusOK, nil, true)
}

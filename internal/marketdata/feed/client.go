package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"market-analyzer/internal/logger"
	"market-analyzer/internal/model"

	"github.com/gorilla/websocket"
	"github.com/jpillora/backoff"
)

var (
	// ErrNotConnected is returned when no connection is up.
	ErrNotConnected = errors.New("feed: not connected")
	// ErrDisconnected is returned when the connection dropped mid-call.
	ErrDisconnected = errors.New("feed: connection lost")
)

// Config holds client settings.
type Config struct {
	// URL of the feed server, e.g. "ws://localhost:9001/ws"
	URL string

	// ReconnectDelay is the initial delay before reconnection attempts.
	// Defaults to 2 seconds if zero.
	ReconnectDelay time.Duration

	// MaxReconnectDelay caps the exponential backoff. Defaults to 30s.
	MaxReconnectDelay time.Duration

	// RequestTimeout bounds unary calls. Defaults to 5s.
	RequestTimeout time.Duration

	// StreamTimeout bounds a whole streaming call. Defaults to 2m.
	StreamTimeout time.Duration
}

func (c *Config) defaults() {
	if c.ReconnectDelay == 0 {
		c.ReconnectDelay = 2 * time.Second
	}
	if c.MaxReconnectDelay == 0 {
		c.MaxReconnectDelay = 30 * time.Second
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = 5 * time.Second
	}
	if c.StreamTimeout == 0 {
		c.StreamTimeout = 2 * time.Minute
	}
}

// session is one live connection.
type session struct {
	conn *websocket.Conn
	wmu  sync.Mutex
	lost chan struct{}
}

func (s *session) write(req Request) error {
	b, err := json.Marshal(req)
	if err != nil {
		return err
	}
	s.wmu.Lock()
	defer s.wmu.Unlock()
	s.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return s.conn.WriteMessage(websocket.TextMessage, b)
}

// callBuffer is how many frames may wait for a slow consumer before its
// call is dropped.
const callBuffer = 16

// call is an outstanding request. dropped is closed when the reader gave up
// on it.
type call struct {
	frames  chan Response
	dropped chan struct{}
}

// Client implements model.MarketData and model.Broker over one WebSocket
// connection, reconnecting with exponential backoff.
type Client struct {
	cfg Config
	log *slog.Logger
	seq atomic.Uint64

	mu    sync.Mutex
	sess  *session
	calls map[uint64]*call

	// Optional hooks.
	OnReconnect func()
	OnConnected func(up bool)
}

// New creates a client. Returns an error if the URL is unparseable.
func New(cfg Config, log *slog.Logger) (*Client, error) {
	cfg.defaults()
	if _, err := url.Parse(cfg.URL); err != nil {
		return nil, err
	}
	return &Client{
		cfg:   cfg,
		log:   logger.For(log, "feed"),
		calls: make(map[uint64]*call),
	}, nil
}

// Connected reports whether a connection is up.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sess != nil
}

// Run keeps the connection up until ctx is cancelled.
func (c *Client) Run(ctx context.Context) error {
	b := &backoff.Backoff{
		Min:    c.cfg.ReconnectDelay,
		Max:    c.cfg.MaxReconnectDelay,
		Factor: 2,
		Jitter: true,
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		connected, err := c.runOnce(ctx)
		if err == nil {
			return nil
		}
		if connected {
			b.Reset()
		}

		delay := b.Duration()
		c.log.Warn("disconnected, reconnecting", "error", err, "delay", delay, "attempt", b.Attempt())
		if c.OnReconnect != nil {
			c.OnReconnect()
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}
	}
}

// runOnce makes a single connection and reads until disconnect or ctx cancel.
func (c *Client) runOnce(ctx context.Context) (connected bool, err error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.cfg.URL, nil)
	if err != nil {
		return false, err
	}
	sess := &session{conn: conn, lost: make(chan struct{})}

	c.mu.Lock()
	c.sess = sess
	c.mu.Unlock()
	c.log.Info("connected", "url", c.cfg.URL)
	if c.OnConnected != nil {
		c.OnConnected(true)
	}

	stop := make(chan struct{})
	defer func() {
		close(stop)
		c.mu.Lock()
		c.sess = nil
		c.mu.Unlock()
		close(sess.lost)
		conn.Close()
		if c.OnConnected != nil {
			c.OnConnected(false)
		}
	}()

	go func() {
		select {
		case <-ctx.Done():
			sess.wmu.Lock()
			conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "shutdown"))
			sess.wmu.Unlock()
			conn.Close()
		case <-stop:
		}
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return true, nil
			}
			return true, err
		}

		var resp Response
		if err := json.Unmarshal(raw, &resp); err != nil {
			c.log.Warn("parse error", "error", err, "raw", string(raw))
			continue
		}
		c.dispatch(resp)
	}
}

// dispatch hands a frame to its call without blocking the reader. A call
// whose buffer is full is dropped.
func (c *Client) dispatch(resp Response) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cl := c.calls[resp.ID]
	if cl == nil {
		c.log.Debug("frame for unknown call", "id", resp.ID)
		return
	}
	select {
	case cl.frames <- resp:
	default:
		c.log.Warn("call dropped, consumer too slow", "id", resp.ID, "buffered", len(cl.frames))
		delete(c.calls, resp.ID)
		close(cl.dropped)
	}
}

// start sends a request and registers its call.
func (c *Client) start(method string, params any) (uint64, *call, *session, error) {
	c.mu.Lock()
	sess := c.sess
	if sess == nil {
		c.mu.Unlock()
		return 0, nil, nil, ErrNotConnected
	}
	id := c.seq.Add(1)
	cl := &call{frames: make(chan Response, callBuffer), dropped: make(chan struct{})}
	c.calls[id] = cl
	c.mu.Unlock()

	if err := sess.write(Request{ID: id, Method: method, Params: encode(params)}); err != nil {
		c.finish(id)
		return 0, nil, nil, fmt.Errorf("send %s: %w", method, err)
	}
	return id, cl, sess, nil
}

func (c *Client) finish(id uint64) {
	c.mu.Lock()
	delete(c.calls, id)
	c.mu.Unlock()
}

// unary performs a single-frame call and decodes its result into out.
// A timeout is reported as a status, a dropped connection as an error.
func (c *Client) unary(ctx context.Context, method string, params, out any) (model.Status, string, error) {
	id, cl, sess, err := c.start(method, params)
	if err != nil {
		return model.StatusDisconnected, "", err
	}
	defer c.finish(id)

	timer := time.NewTimer(c.cfg.RequestTimeout)
	defer timer.Stop()

	select {
	case resp := <-cl.frames:
		st := resp.StatusCode()
		if st == model.StatusOK && out != nil && len(resp.Result) > 0 {
			if err := json.Unmarshal(resp.Result, out); err != nil {
				return model.StatusError, err.Error(), nil
			}
		}
		return st, resp.Comment, nil
	case <-sess.lost:
		return model.StatusDisconnected, "", ErrDisconnected
	case <-timer.C:
		return model.StatusTimeout, method + " timed out", nil
	case <-ctx.Done():
		return model.StatusTimeout, "", ctx.Err()
	}
}

// stream performs a multi-frame call. Each frame is handed to emit until
// emit declines, a frame carries done, a non-OK status ends the stream, the
// connection drops or StreamTimeout elapses. end runs once the call is over.
func (c *Client) stream(ctx context.Context, method string, params any, emit func(Response) bool, end func()) error {
	id, cl, sess, err := c.start(method, params)
	if err != nil {
		return err
	}

	go func() {
		defer end()
		defer c.finish(id)
		timer := time.NewTimer(c.cfg.StreamTimeout)
		defer timer.Stop()
		fail := func(st model.Status, comment string) {
			emit(Response{ID: id, Status: st.String(), Comment: comment, Done: true})
		}
		for {
			select {
			case resp := <-cl.frames:
				if !emit(resp) || resp.Done || resp.StatusCode() != model.StatusOK {
					return
				}
			case <-cl.dropped:
				fail(model.StatusError, method+" dropped, consumer too slow")
				return
			case <-sess.lost:
				fail(model.StatusDisconnected, "")
				return
			case <-timer.C:
				c.log.Warn("stream timed out", "method", method, "id", id, "timeout", c.cfg.StreamTimeout)
				fail(model.StatusTimeout, method+" timed out")
				return
			case <-ctx.Done():
				return
			}
		}
	}()
	return nil
}

// batches decodes the frames of a streaming call into batches of T.
func batches[T, B any](ctx context.Context, c *Client, method string, params any, wrap func([]T, model.Status) B) (<-chan B, error) {
	out := make(chan B)
	err := c.stream(ctx, method, params, func(resp Response) bool {
		st := resp.StatusCode()
		var items []T
		if st == model.StatusOK && len(resp.Result) > 0 {
			if err := json.Unmarshal(resp.Result, &items); err != nil {
				st = model.StatusError
			}
		}
		if st == model.StatusOK && len(items) == 0 {
			return true
		}
		select {
		case out <- wrap(items, st):
			return true
		case <-ctx.Done():
			return false
		}
	}, func() { close(out) })
	if err != nil {
		return nil, err
	}
	return out, nil
}

// StreamTicks streams the ticks of symbol in [from, to] in chunks.
func (c *Client) StreamTicks(ctx context.Context, symbol string, from, to time.Time, chunk int) (<-chan model.TickBatch, error) {
	params := RangeParams{Symbol: symbol, From: from, To: to, Chunk: chunk}
	return batches(ctx, c, MethodTicks, params, func(ticks []model.Tick, st model.Status) model.TickBatch {
		return model.TickBatch{Ticks: ticks, Status: st}
	})
}

// StreamRates streams the rates of symbol in [from, to] in chunks.
func (c *Client) StreamRates(ctx context.Context, symbol string, from, to time.Time, timeframe time.Duration, chunk int) (<-chan model.RateBatch, error) {
	params := RangeParams{Symbol: symbol, From: from, To: to, Timeframe: int64(timeframe / time.Second), Chunk: chunk}
	return batches(ctx, c, MethodRates, params, func(rates []model.Rate, st model.Status) model.RateBatch {
		return model.RateBatch{Rates: rates, Status: st}
	})
}

// LastTick returns the newest tick of symbol.
func (c *Client) LastTick(ctx context.Context, symbol string) (model.Tick, model.Status, error) {
	var t model.Tick
	st, _, err := c.unary(ctx, MethodLastTick, SymbolParams{Symbol: symbol}, &t)
	return t, st, err
}

// SendOrder submits an order request.
func (c *Client) SendOrder(ctx context.Context, req model.OrderRequest) (model.OrderReply, error) {
	var reply model.OrderReply
	st, comment, err := c.unary(ctx, MethodSendOrder, req, &reply)
	if err != nil {
		return model.OrderReply{Status: st}, err
	}
	if st != model.StatusOK {
		return model.OrderReply{Status: st, Comment: comment}, nil
	}
	return reply, nil
}

// Positions returns the open positions of symbol.
func (c *Client) Positions(ctx context.Context, symbol string) ([]model.Position, model.Status, error) {
	var out []model.Position
	st, _, err := c.unary(ctx, MethodPositions, SymbolParams{Symbol: symbol}, &out)
	return out, st, err
}

// Orders returns the pending orders of symbol.
func (c *Client) Orders(ctx context.Context, symbol string) ([]model.Order, model.Status, error) {
	var out []model.Order
	st, _, err := c.unary(ctx, MethodOrders, SymbolParams{Symbol: symbol}, &out)
	return out, st, err
}

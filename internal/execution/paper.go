// Package execution simulates the execution venue for backtests.
//
// Paper implements model.Broker over the ledger: market orders fill at the
// synthetic quote, pending limit orders rest until Match sees the quote
// cross them. Positions and orders are read back through the same polling
// API the live broker exposes.
package execution

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"market-analyzer/internal/clock"
	"market-analyzer/internal/ledger"
	"market-analyzer/internal/logger"
	"market-analyzer/internal/model"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Fill represents a simulated order fill.
type Fill struct {
	OrderID  string          `json:"order_id"`
	Ticket   uint64          `json:"ticket"`
	Type     model.OrderType `json:"type"`
	Price    float64         `json:"price"`
	Volume   float64         `json:"volume"` // signed
	FilledAt time.Time       `json:"filled_at"`
	Slippage float64         `json:"slippage"`
}

// QuoteSource returns the quote orders execute against.
type QuoteSource func() (model.Quote, bool)

// PaperConfig holds simulation parameters.
type PaperConfig struct {
	Symbol   string
	Slippage float64 // price units added to buys and taken from sells
}

// Paper is a simulated broker. Safe for concurrent use.
type Paper struct {
	mu      sync.Mutex
	cfg     PaperConfig
	ledger  *ledger.Ledger
	clock   clock.Clock
	quote   QuoteSource
	pending []model.Order
	fills   []Fill
	seq     uint64
	log     *slog.Logger

	// OnFill is called after every fill with the broker locked (optional).
	OnFill func(f Fill)
}

// NewPaper creates a paper broker writing into l.
func NewPaper(cfg PaperConfig, l *ledger.Ledger, clk clock.Clock, quote QuoteSource, log *slog.Logger) *Paper {
	return &Paper{
		cfg:    cfg,
		ledger: l,
		clock:  clk,
		quote:  quote,
		log:    logger.For(log, "paper").With("symbol", cfg.Symbol),
	}
}

// SendOrder executes or books req.
func (p *Paper) SendOrder(_ context.Context, req model.OrderRequest) (model.OrderReply, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch req.Action {
	case model.ActionDeal:
		return p.deal(req), nil
	case model.ActionPending:
		if !req.Type.Limit() || req.Volume <= 0 {
			return reject(model.RetcodeInvalid, "invalid pending order"), nil
		}
		p.seq++
		p.pending = append(p.pending, model.Order{
			Ticket:    p.seq,
			Symbol:    p.cfg.Symbol,
			Type:      req.Type,
			Price:     req.Price,
			Volume:    req.Volume,
			Magic:     req.Magic,
			SetupTime: p.clock.Now(),
		})
		return model.OrderReply{Retcode: model.RetcodePlaced, Ticket: p.seq, Price: req.Price, Volume: req.Volume, Status: model.StatusOK}, nil
	case model.ActionModify:
		i := p.find(req.Ticket)
		if i < 0 {
			return reject(model.RetcodeInvalid, fmt.Sprintf("order %d not found", req.Ticket)), nil
		}
		p.pending[i].Price = req.Price
		return model.OrderReply{Retcode: model.RetcodeDone, Ticket: req.Ticket, Price: req.Price, Volume: p.pending[i].Volume, Status: model.StatusOK}, nil
	case model.ActionRemove:
		i := p.find(req.Ticket)
		if i < 0 {
			return reject(model.RetcodeInvalid, fmt.Sprintf("order %d not found", req.Ticket)), nil
		}
		p.pending = append(p.pending[:i], p.pending[i+1:]...)
		return model.OrderReply{Retcode: model.RetcodeDone, Ticket: req.Ticket, Status: model.StatusOK}, nil
	}
	return reject(model.RetcodeInvalid, "unknown action"), nil
}

func (p *Paper) deal(req model.OrderRequest) model.OrderReply {
	if req.Volume <= 0 || req.Type.Limit() {
		return reject(model.RetcodeInvalid, "invalid deal")
	}
	q, ok := p.quote()
	if !ok || q.Bid.IsNone() || q.Ask.IsNone() {
		return reject(model.RetcodeNoQuotes, "no quotes")
	}

	slip := decimal.NewFromFloat(p.cfg.Slippage)
	book := ledger.Book{
		Bid: decimal.NewFromFloat(q.Bid.Unwrap()).Sub(slip),
		Ask: decimal.NewFromFloat(q.Ask.Unwrap()).Add(slip),
	}
	vol := decimal.NewFromFloat(req.Volume)
	if !req.Type.Buy() {
		vol = vol.Neg()
	}

	tx, err := p.ledger.Execute(p.clock.Now(), book, vol)
	if err != nil {
		return reject(model.RetcodeRejected, err.Error())
	}
	p.seq++
	p.record(p.seq, req.Type, tx, p.cfg.Slippage)
	return model.OrderReply{
		Retcode: model.RetcodeDone,
		Ticket:  p.seq,
		Price:   tx.Price.InexactFloat64(),
		Volume:  req.Volume,
		Status:  model.StatusOK,
	}
}

// Match fills every resting limit order the current quote crosses: buy
// limits when ask <= price, sell limits when bid >= price. Fills happen at
// the limit price. It returns the fills made.
func (p *Paper) Match() []Fill {
	q, ok := p.quote()
	if !ok {
		return nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	var made []Fill
	kept := p.pending[:0]
	for _, o := range p.pending {
		crossed := false
		switch o.Type {
		case model.OrderBuyLimit:
			crossed = q.Ask.IsSome() && q.Ask.Unwrap() <= o.Price
		case model.OrderSellLimit:
			crossed = q.Bid.IsSome() && q.Bid.Unwrap() >= o.Price
		}
		if !crossed {
			kept = append(kept, o)
			continue
		}

		vol := decimal.NewFromFloat(o.Volume)
		if !o.Type.Buy() {
			vol = vol.Neg()
		}
		tx, err := p.ledger.Add(ledger.Transaction{Time: p.clock.Now(), Price: decimal.NewFromFloat(o.Price), Volume: vol})
		if err != nil {
			p.log.Error("limit fill failed", "ticket", o.Ticket, "error", err)
			kept = append(kept, o)
			continue
		}
		made = append(made, p.record(o.Ticket, o.Type, tx, 0))
	}
	p.pending = kept
	return made
}

// Positions reports the ledger's open position.
func (p *Paper) Positions(_ context.Context, symbol string) ([]model.Position, model.Status, error) {
	if symbol != p.cfg.Symbol {
		return nil, model.StatusNotFound, nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	pos := p.ledger.OpenPosition()
	if pos == nil {
		return []model.Position{}, model.StatusOK, nil
	}

	vol := pos.BalanceVolume()
	open, err := pos.OpenPrice()
	if err != nil {
		return nil, model.StatusError, nil
	}
	out := model.Position{
		Ticket:    uint64(len(p.ledger.Positions())),
		Symbol:    p.cfg.Symbol,
		Volume:    vol.InexactFloat64(),
		PriceOpen: open.InexactFloat64(),
		Time:      pos.Transactions()[0].Time,
	}
	if q, ok := p.quote(); ok && q.Bid.IsSome() && q.Ask.IsSome() {
		book := ledger.Book{Bid: decimal.NewFromFloat(q.Bid.Unwrap()), Ask: decimal.NewFromFloat(q.Ask.Unwrap())}
		mark := book.Mark(vol)
		out.PriceCurrent = mark.InexactFloat64()
		out.Profit = pos.Profit(mark).InexactFloat64()
	}
	return []model.Position{out}, model.StatusOK, nil
}

// Orders returns the resting limit orders.
func (p *Paper) Orders(_ context.Context, symbol string) ([]model.Order, model.Status, error) {
	if symbol != p.cfg.Symbol {
		return nil, model.StatusNotFound, nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]model.Order, len(p.pending))
	copy(out, p.pending)
	return out, model.StatusOK, nil
}

// Fills returns a snapshot of all fills.
func (p *Paper) Fills() []Fill {
	p.mu.Lock()
	defer p.mu.Unlock()
	cp := make([]Fill, len(p.fills))
	copy(cp, p.fills)
	return cp
}

// Reset drops resting orders and fills. The ledger is left alone.
func (p *Paper) Reset() {
	p.mu.Lock()
	p.pending = nil
	p.fills = nil
	p.mu.Unlock()
}

func (p *Paper) find(ticket uint64) int {
	for i, o := range p.pending {
		if o.Ticket == ticket {
			return i
		}
	}
	return -1
}

// record must be called with mu held.
func (p *Paper) record(ticket uint64, typ model.OrderType, tx ledger.Transaction, slippage float64) Fill {
	f := Fill{
		OrderID:  uuid.NewString(),
		Ticket:   ticket,
		Type:     typ,
		Price:    tx.Price.InexactFloat64(),
		Volume:   tx.Volume.InexactFloat64(),
		FilledAt: tx.Time,
		Slippage: slippage,
	}
	p.fills = append(p.fills, f)

	p.log.Info("paper fill", "type", typ.String(), "ticket", ticket, "price", f.Price, "volume", f.Volume, "order_id", f.OrderID)
	if p.OnFill != nil {
		p.OnFill(f)
	}
	return f
}

func reject(code model.Retcode, comment string) model.OrderReply {
	return model.OrderReply{Retcode: code, Comment: comment, Status: model.StatusOK}
}

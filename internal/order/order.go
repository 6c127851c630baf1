// Package order builds and sends order requests for one instrument.
package order

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"market-analyzer/internal/logger"
	"market-analyzer/internal/model"

	"github.com/shopspring/decimal"
)

// ErrInvalidOrderType is returned when a pending order is not a limit order.
var ErrInvalidOrderType = errors.New("invalid order type")

// Config holds the instrument and request defaults.
type Config struct {
	Symbol                string
	Deviation             uint64
	Magic                 uint64
	PriceDecimals         int32
	VolumeDecimals        int32
	MaximumPriceProximity float64 // 0 disables the distance guard
}

// Wrapper sends requests to the broker and records non-accepted replies.
type Wrapper struct {
	cfg    Config
	broker model.Broker
	status model.StatusRecorder
	log    *slog.Logger

	// OnReply is called for every reply received (optional, metrics hook).
	OnReply func(req model.OrderRequest, reply model.OrderReply)
}

// New creates a wrapper. status may be nil.
func New(cfg Config, broker model.Broker, status model.StatusRecorder, log *slog.Logger) *Wrapper {
	return &Wrapper{
		cfg:    cfg,
		broker: broker,
		status: status,
		log:    logger.For(log, "order").With("symbol", cfg.Symbol),
	}
}

// Buy sends a market buy.
func (w *Wrapper) Buy(ctx context.Context, volume float64) (model.OrderReply, error) {
	return w.Send(ctx, w.deal(model.OrderBuy, volume))
}

// Sell sends a market sell.
func (w *Wrapper) Sell(ctx context.Context, volume float64) (model.OrderReply, error) {
	return w.Send(ctx, w.deal(model.OrderSell, volume))
}

// Market buys a positive volume and sells a negative one.
func (w *Wrapper) Market(ctx context.Context, volume float64) (model.OrderReply, error) {
	if volume > 0 {
		return w.Buy(ctx, volume)
	}
	return w.Sell(ctx, -volume)
}

// BuyLimit places a pending buy limit.
func (w *Wrapper) BuyLimit(ctx context.Context, price, volume float64) (model.OrderReply, error) {
	return w.Place(ctx, model.OrderBuyLimit, price, volume)
}

// SellLimit places a pending sell limit.
func (w *Wrapper) SellLimit(ctx context.Context, price, volume float64) (model.OrderReply, error) {
	return w.Place(ctx, model.OrderSellLimit, price, volume)
}

// Place sends a pending limit order of the given type.
func (w *Wrapper) Place(ctx context.Context, typ model.OrderType, price, volume float64) (model.OrderReply, error) {
	req, err := w.limit(typ, price, volume)
	if err != nil {
		return model.OrderReply{}, err
	}
	return w.Send(ctx, req)
}

// Modify moves a pending order to price.
func (w *Wrapper) Modify(ctx context.Context, ticket uint64, price float64) (model.OrderReply, error) {
	return w.Send(ctx, model.OrderRequest{
		Action:   model.ActionModify,
		Symbol:   w.cfg.Symbol,
		Ticket:   ticket,
		Price:    w.RoundPrice(price),
		TypeTime: model.TimeDay,
	})
}

// Cancel removes a pending order.
func (w *Wrapper) Cancel(ctx context.Context, ticket uint64) (model.OrderReply, error) {
	return w.Send(ctx, model.OrderRequest{
		Action: model.ActionRemove,
		Symbol: w.cfg.Symbol,
		Ticket: ticket,
	})
}

// CancelOthers cancels every order except keep and returns how many
// cancellations were accepted.
func (w *Wrapper) CancelOthers(ctx context.Context, orders []model.Order, keep uint64) (int, error) {
	n := 0
	for _, o := range orders {
		if o.Ticket == keep {
			continue
		}
		reply, err := w.Cancel(ctx, o.Ticket)
		if err != nil {
			return n, fmt.Errorf("cancel %d: %w", o.Ticket, err)
		}
		if reply.Done() {
			n++
		}
	}
	return n, nil
}

// Send submits req. Transport failures are recorded as a disconnected
// status and returned; rejected replies are recorded and logged but are
// not errors.
func (w *Wrapper) Send(ctx context.Context, req model.OrderRequest) (model.OrderReply, error) {
	reply, err := w.broker.SendOrder(ctx, req)
	if err != nil {
		w.record(model.StatusDisconnected, err.Error())
		return reply, fmt.Errorf("send order: %w", err)
	}
	if w.OnReply != nil {
		w.OnReply(req, reply)
	}

	if reply.Status != model.StatusOK {
		w.record(reply.Status, reply.Comment)
	} else if !reply.Done() {
		w.record(model.StatusError, fmt.Sprintf("retcode %d: %s", reply.Retcode, reply.Comment))
	}
	if !reply.Done() {
		w.log.Error("order not accepted",
			"action", req.Action, "type", req.Type.String(), "price", req.Price, "volume", req.Volume,
			"retcode", reply.Retcode, "status", reply.Status.String(), "comment", reply.Comment)
		return reply, nil
	}

	w.log.Info("order accepted",
		"action", req.Action, "type", req.Type.String(), "ticket", reply.Ticket,
		"price", reply.Price, "volume", reply.Volume)
	return reply, nil
}

// PermittedDistance reports whether price is within the configured
// proximity of the quote's nearest side.
func (w *Wrapper) PermittedDistance(price float64, q model.Quote) bool {
	if w.cfg.MaximumPriceProximity <= 0 {
		return true
	}
	if q.Bid.IsNone() || q.Ask.IsNone() {
		return false
	}
	bid, ask := q.Bid.Unwrap(), q.Ask.Unwrap()
	d := math.Min(math.Abs(price-bid), math.Abs(price-ask))
	return d <= w.cfg.MaximumPriceProximity
}

// RoundPrice rounds to the instrument's price decimals.
func (w *Wrapper) RoundPrice(p float64) float64 {
	return decimal.NewFromFloat(p).Round(w.cfg.PriceDecimals).InexactFloat64()
}

// RoundVolume rounds to the instrument's volume decimals.
func (w *Wrapper) RoundVolume(v float64) float64 {
	return decimal.NewFromFloat(v).Round(w.cfg.VolumeDecimals).InexactFloat64()
}

func (w *Wrapper) deal(typ model.OrderType, volume float64) model.OrderRequest {
	return model.OrderRequest{
		Action:    model.ActionDeal,
		Symbol:    w.cfg.Symbol,
		Magic:     w.cfg.Magic,
		Volume:    w.RoundVolume(volume),
		Deviation: w.cfg.Deviation,
		Type:      typ,
		Filling:   model.FillingIOC,
		TypeTime:  model.TimeGTC,
	}
}

func (w *Wrapper) limit(typ model.OrderType, price, volume float64) (model.OrderRequest, error) {
	if !typ.Limit() {
		return model.OrderRequest{}, fmt.Errorf("%w: %s", ErrInvalidOrderType, typ)
	}
	return model.OrderRequest{
		Action:    model.ActionPending,
		Symbol:    w.cfg.Symbol,
		Magic:     w.cfg.Magic,
		Price:     w.RoundPrice(price),
		Volume:    w.RoundVolume(volume),
		Deviation: w.cfg.Deviation,
		Type:      typ,
		Filling:   model.FillingReturn,
		TypeTime:  model.TimeDay,
	}, nil
}

func (w *Wrapper) record(st model.Status, comment string) {
	if w.status != nil {
		w.status.CheckStatus(model.SendOrder, st, comment)
	}
}

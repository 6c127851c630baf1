package model

import "time"

// OrderType is the side and kind of an order.
type OrderType int

const (
	OrderBuy OrderType = iota
	OrderSell
	OrderBuyLimit
	OrderSellLimit
	OrderBuyStop
	OrderSellStop
)

func (t OrderType) String() string {
	switch t {
	case OrderBuy:
		return "BUY"
	case OrderSell:
		return "SELL"
	case OrderBuyLimit:
		return "BUY_LIMIT"
	case OrderSellLimit:
		return "SELL_LIMIT"
	case OrderBuyStop:
		return "BUY_STOP"
	case OrderSellStop:
		return "SELL_STOP"
	}
	return "UNKNOWN"
}

// Buy reports whether the order adds long volume.
func (t OrderType) Buy() bool {
	return t == OrderBuy || t == OrderBuyLimit || t == OrderBuyStop
}

// Limit reports whether the type is a pending limit order.
func (t OrderType) Limit() bool {
	return t == OrderBuyLimit || t == OrderSellLimit
}

// TradeAction is the kind of request sent to the execution venue.
type TradeAction int

const (
	ActionDeal TradeAction = iota + 1
	ActionPending
	ActionModify
	ActionRemove
)

// Filling is the fill policy of an order.
type Filling int

const (
	FillingFOK Filling = iota
	FillingIOC
	FillingReturn
)

// TypeTime is the lifetime policy of a pending order.
type TypeTime int

const (
	TimeGTC TypeTime = iota
	TimeDay
)

// Retcode is the trade server return code of a sent order.
type Retcode uint32

const (
	RetcodePlaced   Retcode = 10008
	RetcodeDone     Retcode = 10009
	RetcodeRejected Retcode = 10006
	RetcodeInvalid  Retcode = 10013
	RetcodeNoMoney  Retcode = 10019
	RetcodeNoQuotes Retcode = 10021
)

// OrderRequest is the request shape accepted by the execution venue.
type OrderRequest struct {
	Action    TradeAction `json:"action"`
	Symbol    string      `json:"symbol"`
	Magic     uint64      `json:"magic"`
	Ticket    uint64      `json:"ticket,omitempty"`
	Volume    float64     `json:"volume"`
	Price     float64     `json:"price"`
	Deviation uint64      `json:"deviation"`
	Type      OrderType   `json:"type"`
	Filling   Filling     `json:"filling"`
	TypeTime  TypeTime    `json:"type_time"`
	Comment   string      `json:"comment,omitempty"`
}

// OrderReply is the venue's answer to an OrderRequest.
type OrderReply struct {
	Retcode Retcode `json:"retcode"`
	Ticket  uint64  `json:"ticket"`
	Volume  float64 `json:"volume"`
	Price   float64 `json:"price"`
	Comment string  `json:"comment"`
	Status  Status  `json:"status"`
}

// Done reports whether the venue accepted the request.
func (r OrderReply) Done() bool {
	return r.Status == StatusOK && (r.Retcode == RetcodeDone || r.Retcode == RetcodePlaced)
}

// Order is a pending order as reported by the venue.
type Order struct {
	Ticket    uint64    `json:"ticket"`
	Symbol    string    `json:"symbol"`
	Type      OrderType `json:"type"`
	Price     float64   `json:"price"`
	Volume    float64   `json:"volume"`
	Magic     uint64    `json:"magic"`
	SetupTime time.Time `json:"setup_time"`
}

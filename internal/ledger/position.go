// Package ledger tracks signed-volume transactions as positions and folds
// their profit into run statistics.
package ledger

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrPositionClosed is returned when adding to a position whose net volume is zero.
	ErrPositionClosed = errors.New("ledger: position closed")
	// ErrNoTransactions is returned when a price is requested from an empty position.
	ErrNoTransactions = errors.New("ledger: position has no transactions")
	// ErrZeroVolume is returned for a transaction without volume.
	ErrZeroVolume = errors.New("ledger: zero volume")
)

// Transaction is one fill. Volume is signed: positive buys, negative sells.
type Transaction struct {
	Time   time.Time       `json:"time"`
	Price  decimal.Decimal `json:"price"`
	Volume decimal.Decimal `json:"volume"`
}

// Position is a run of transactions from flat back to flat. Once its net
// volume returns to zero it is closed and immutable.
type Position struct {
	txs []Transaction
}

// Add appends a transaction.
func (p *Position) Add(tx Transaction) error {
	if tx.Volume.IsZero() {
		return ErrZeroVolume
	}
	if p.Closed() {
		return ErrPositionClosed
	}
	p.txs = append(p.txs, tx)
	return nil
}

// Closed reports whether the position has transactions and no net volume.
func (p *Position) Closed() bool {
	return len(p.txs) > 0 && p.BalanceVolume().IsZero()
}

// Transactions returns a copy of the transactions in order.
func (p *Position) Transactions() []Transaction {
	out := make([]Transaction, len(p.txs))
	copy(out, p.txs)
	return out
}

// BalanceVolume is the sum of signed volumes.
func (p *Position) BalanceVolume() decimal.Decimal {
	sum := decimal.Zero
	for _, tx := range p.txs {
		sum = sum.Add(tx.Volume)
	}
	return sum
}

// OpenPrice is the volume-weighted buy price and the volume-weighted sell
// price, averaged when both sides exist.
func (p *Position) OpenPrice() (decimal.Decimal, error) {
	if len(p.txs) == 0 {
		return decimal.Zero, ErrNoTransactions
	}
	var buyNotional, buyVol, sellNotional, sellVol decimal.Decimal
	for _, tx := range p.txs {
		if tx.Volume.IsPositive() {
			buyNotional = buyNotional.Add(tx.Price.Mul(tx.Volume))
			buyVol = buyVol.Add(tx.Volume)
		} else {
			v := tx.Volume.Neg()
			sellNotional = sellNotional.Add(tx.Price.Mul(v))
			sellVol = sellVol.Add(v)
		}
	}
	switch {
	case buyVol.IsZero():
		return sellNotional.Div(sellVol), nil
	case sellVol.IsZero():
		return buyNotional.Div(buyVol), nil
	}
	buy := buyNotional.Div(buyVol)
	sell := sellNotional.Div(sellVol)
	return buy.Add(sell).Div(decimal.NewFromInt(2)), nil
}

// Profit is the realized plus unrealized result against mark:
// -(sum(price*volume) + mark*(-balance)).
func (p *Position) Profit(mark decimal.Decimal) decimal.Decimal {
	sum := decimal.Zero
	for _, tx := range p.txs {
		sum = sum.Add(tx.Price.Mul(tx.Volume))
	}
	return sum.Add(mark.Mul(p.BalanceVolume().Neg())).Neg()
}

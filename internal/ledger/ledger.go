package ledger

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// Book is the bid/ask pair a transaction executes against.
type Book struct {
	Bid decimal.Decimal
	Ask decimal.Decimal
}

// Mark returns the price a position of the given signed volume is valued
// at: bid for long, ask for short.
func (b Book) Mark(volume decimal.Decimal) decimal.Decimal {
	if volume.IsNegative() {
		return b.Ask
	}
	return b.Bid
}

// Balance is the aggregate open volume and profit of a ledger.
type Balance struct {
	Volume decimal.Decimal `json:"volume"`
	Profit decimal.Decimal `json:"profit"`
}

// Summary is the running envelope of a backtest run. Every Balance call only
// ever widens it.
type Summary struct {
	MinVolume decimal.Decimal `json:"min_volume"`
	MaxVolume decimal.Decimal `json:"max_volume"`
	MinProfit decimal.Decimal `json:"min_profit"`
	MaxProfit decimal.Decimal `json:"max_profit"`
	MinLot    decimal.Decimal `json:"min_lot"`
	MaxLot    decimal.Decimal `json:"max_lot"`
	TotalLots decimal.Decimal `json:"total_lots"`
	Updates   int             `json:"updates"`
}

// Ledger is the ordered list of positions of one run. At most one position
// is open at a time.
type Ledger struct {
	mu        sync.Mutex
	positions []*Position
	summary   Summary

	// OnTransaction is called after a transaction was recorded (optional).
	OnTransaction func(tx Transaction)
}

// New creates an empty ledger.
func New() *Ledger {
	return &Ledger{}
}

// Execute records volume against book: buys fill at the ask, sells at the
// bid. A new position is opened only when none is open.
func (l *Ledger) Execute(t time.Time, book Book, volume decimal.Decimal) (Transaction, error) {
	price := book.Bid
	if volume.IsPositive() {
		price = book.Ask
	}
	return l.Add(Transaction{Time: t, Price: price, Volume: volume})
}

// Add records a transaction at its own price.
func (l *Ledger) Add(tx Transaction) (Transaction, error) {
	l.mu.Lock()
	pos := l.openPosition()
	if pos == nil {
		pos = &Position{}
		l.positions = append(l.positions, pos)
	}
	err := pos.Add(tx)
	if err != nil && len(pos.txs) == 0 {
		l.positions = l.positions[:len(l.positions)-1]
	}
	l.mu.Unlock()

	if err != nil {
		return Transaction{}, err
	}
	if l.OnTransaction != nil {
		l.OnTransaction(tx)
	}
	return tx, nil
}

// OpenPosition returns the open position, or nil when flat.
func (l *Ledger) OpenPosition() *Position {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.openPosition()
}

func (l *Ledger) openPosition() *Position {
	for _, p := range l.positions {
		if !p.BalanceVolume().IsZero() {
			return p
		}
	}
	return nil
}

// Positions returns the positions in order.
func (l *Ledger) Positions() []*Position {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]*Position, len(l.positions))
	copy(out, l.positions)
	return out
}

// Balance aggregates open volume and profit across positions, marking each
// position by its own side, and widens the summary with the result.
func (l *Ledger) Balance(book Book) Balance {
	l.mu.Lock()
	defer l.mu.Unlock()

	var b Balance
	for _, p := range l.positions {
		vol := p.BalanceVolume()
		b.Volume = b.Volume.Add(vol)
		b.Profit = b.Profit.Add(p.Profit(book.Mark(vol)))
	}
	l.widen(b)
	return b
}

// widen folds a balance and the transaction sizes into the summary. The
// volume and profit envelopes start at zero, the flat state every run begins
// from. Lot sizes are absolute, so MinLot starts at the first transaction.
func (l *Ledger) widen(b Balance) {
	s := &l.summary
	s.Updates++

	if b.Volume.LessThan(s.MinVolume) {
		s.MinVolume = b.Volume
	}
	if b.Volume.GreaterThan(s.MaxVolume) {
		s.MaxVolume = b.Volume
	}
	if b.Profit.LessThan(s.MinProfit) {
		s.MinProfit = b.Profit
	}
	if b.Profit.GreaterThan(s.MaxProfit) {
		s.MaxProfit = b.Profit
	}

	total := decimal.Zero
	lots := 0
	for _, p := range l.positions {
		for _, tx := range p.txs {
			lot := tx.Volume.Abs()
			total = total.Add(lot)
			if (lots == 0 && s.MinLot.IsZero()) || lot.LessThan(s.MinLot) {
				s.MinLot = lot
			}
			if lot.GreaterThan(s.MaxLot) {
				s.MaxLot = lot
			}
			lots++
		}
	}
	if total.GreaterThan(s.TotalLots) {
		s.TotalLots = total
	}
}

// Summary returns the current run statistics.
func (l *Ledger) Summary() Summary {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.summary
}

// Reset drops all positions and statistics.
func (l *Ledger) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.positions = nil
	l.summary = Summary{}
}

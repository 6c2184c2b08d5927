package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Direction of a position.
type Direction string

const (
	DirectionLong  Direction = "long"
	DirectionShort Direction = "short"
)

// Signal is a directional trading signal: +1 buy, -1 sell, 0 hold.
type Signal int

const (
	SignalSell Signal = -1
	SignalHold Signal = 0
	SignalBuy  Signal = 1
)

// Exit reasons recorded on closed trades.
const (
	ExitReasonStopLoss   = "stop_loss"
	ExitReasonTakeProfit = "take_profit"
	ExitReasonSignal     = "signal"
	ExitReasonEndOfData  = "end_of_backtest"
)

// Entry is a fully specified trade a strategy wants to take.
type Entry struct {
	Direction  Direction
	EntryPrice float64
	StopLoss   float64
	TakeProfit float64
	Size       float64
	Time       time.Time
}

// Trade is a single round trip (or an open position while ExitTime is zero).
type Trade struct {
	ID         string
	Symbol     string
	Direction  Direction
	EntryTime  time.Time
	ExitTime   time.Time
	EntryPrice float64
	ExitPrice  float64
	Size       float64
	StopLoss   float64
	TakeProfit float64
	PnL        decimal.Decimal
	PnLPct     float64
	FeesPaid   decimal.Decimal
	ExitReason string
}

// NewTrade creates an open trade with a fresh id.
func NewTrade(symbol string, dir Direction, entryTime time.Time, entryPrice, size float64) *Trade {
	return &Trade{
		ID:         uuid.NewString(),
		Symbol:     symbol,
		Direction:  dir,
		EntryTime:  entryTime,
		EntryPrice: entryPrice,
		Size:       size,
	}
}

// Closed reports whether the trade has an exit.
func (t *Trade) Closed() bool {
	return !t.ExitTime.IsZero()
}

// Win reports whether the trade closed with positive PnL.
func (t *Trade) Win() bool {
	return t.PnL.IsPositive()
}

// Duration of the round trip. Zero while the trade is open.
func (t *Trade) Duration() time.Duration {
	if !t.Closed() {
		return 0
	}
	return t.ExitTime.Sub(t.EntryTime)
}

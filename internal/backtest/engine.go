// Package backtest runs strategies bar by bar over historical candles with
// commission, intrabar stop/target exits and equity tracking.
package backtest

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/algobot/gotrade/internal/domain"
)

var log = logrus.WithField("component", "backtest")

// Lifecycle events emitted through the EventSink.
const (
	EventBeforeBacktest = "before_backtest"
	EventTradeOpened    = "trade_opened"
	EventTradeClosed    = "trade_closed"
	EventAfterBacktest  = "after_backtest"
)

// Strategy is anything the engine can drive bar by bar.
type Strategy interface {
	Symbol() string
	Evaluate(index int) *domain.Entry
}

// ExitSignaler is an optional Strategy upgrade for strategies that close
// positions on a signal rather than (or in addition to) stops and targets.
type ExitSignaler interface {
	ShouldExit(index int, t *domain.Trade) bool
}

// EventSink receives lifecycle events; the runner wires it to the rule
// dispatcher. Errors propagate so enforced journaling rules can abort a run
// report, not the simulation itself.
type EventSink interface {
	Emit(ctx context.Context, name string, meta map[string]string) error
}

// Engine simulates one strategy over one candle series.
type Engine struct {
	strategy   Strategy
	initial    decimal.Decimal
	commission decimal.Decimal // fraction of traded value per fill

	equity   decimal.Decimal
	open     *domain.Trade
	trades   []*domain.Trade
	curve    []decimal.Decimal
	sink     EventSink
	sinkErrs []error
}

// New builds an engine. commission is a fraction of traded value per fill
// (0.0005 = 5 bps). sink may be nil.
func New(strategy Strategy, initialCapital, commission float64, sink EventSink) *Engine {
	return &Engine{
		strategy:   strategy,
		initial:    decimal.NewFromFloat(initialCapital),
		commission: decimal.NewFromFloat(commission),
		sink:       sink,
	}
}

func (e *Engine) emit(ctx context.Context, name string, meta map[string]string) {
	if e.sink == nil {
		return
	}
	if err := e.sink.Emit(ctx, name, meta); err != nil {
		e.sinkErrs = append(e.sinkErrs, fmt.Errorf("%s: %w", name, err))
	}
}

// Run walks the series once and returns the result. Signals act on the
// candle that produced them (entries are limit taps at the strategy's price);
// stops and targets are checked intrabar on every later candle.
func (e *Engine) Run(ctx context.Context, series domain.Series) (*Result, error) {
	log.Infof("starting backtest: %s, %d candles", e.strategy.Symbol(), len(series))
	e.equity = e.initial
	e.open = nil
	e.trades = nil
	e.curve = make([]decimal.Decimal, 0, len(series))
	e.sinkErrs = nil

	e.emit(ctx, EventBeforeBacktest, map[string]string{
		"symbol":  e.strategy.Symbol(),
		"candles": fmt.Sprintf("%d", len(series)),
	})

	for i, candle := range series {
		if e.open != nil {
			e.checkExits(ctx, candle)
		}
		if e.open != nil {
			if es, ok := e.strategy.(ExitSignaler); ok && es.ShouldExit(i, e.open) {
				e.closePosition(ctx, candle.OpenTime, candle.Close, domain.ExitReasonSignal)
			}
		}
		if e.open == nil {
			if entry := e.strategy.Evaluate(i); entry != nil {
				e.openPosition(ctx, entry)
			}
		} else {
			// keep the state machine moving even while positioned
			e.strategy.Evaluate(i)
		}
		e.curve = append(e.curve, e.markToMarket(candle.Close))
	}

	if e.open != nil {
		last := series[len(series)-1]
		e.closePosition(ctx, last.OpenTime, last.Close, domain.ExitReasonEndOfData)
		e.curve[len(e.curve)-1] = e.equity
	}

	result := newResult(e.strategy.Symbol(), e.initial, e.trades, e.curve, timestamps(series))
	e.emit(ctx, EventAfterBacktest, map[string]string{
		"symbol": e.strategy.Symbol(),
		"trades": fmt.Sprintf("%d", len(e.trades)),
	})

	if len(e.sinkErrs) > 0 {
		return result, fmt.Errorf("backtest: %d lifecycle event error(s), first: %w", len(e.sinkErrs), e.sinkErrs[0])
	}
	return result, nil
}

func (e *Engine) openPosition(ctx context.Context, entry *domain.Entry) {
	trade := domain.NewTrade(e.strategy.Symbol(), entry.Direction, entry.Time, entry.EntryPrice, entry.Size)
	trade.StopLoss = entry.StopLoss
	trade.TakeProfit = entry.TakeProfit

	fees := decimal.NewFromFloat(entry.EntryPrice * entry.Size).Mul(e.commission)
	trade.FeesPaid = fees
	e.equity = e.equity.Sub(fees)
	e.open = trade

	log.Infof("opened %s %s %.4f @ %.2f", trade.Direction, trade.Symbol, trade.Size, trade.EntryPrice)
	e.emit(ctx, EventTradeOpened, map[string]string{
		"trade_id":  trade.ID,
		"symbol":    trade.Symbol,
		"direction": string(trade.Direction),
	})
}

// checkExits applies stop loss then take profit against the candle's range.
// When both are inside the same bar the stop wins: the pessimistic fill.
func (e *Engine) checkExits(ctx context.Context, candle domain.Candle) {
	t := e.open
	if t.Direction == domain.DirectionLong {
		if t.StopLoss > 0 && candle.Low <= t.StopLoss {
			e.closePosition(ctx, candle.OpenTime, t.StopLoss, domain.ExitReasonStopLoss)
			return
		}
		if t.TakeProfit > 0 && candle.High >= t.TakeProfit {
			e.closePosition(ctx, candle.OpenTime, t.TakeProfit, domain.ExitReasonTakeProfit)
		}
		return
	}
	if t.StopLoss > 0 && candle.High >= t.StopLoss {
		e.closePosition(ctx, candle.OpenTime, t.StopLoss, domain.ExitReasonStopLoss)
		return
	}
	if t.TakeProfit > 0 && candle.Low <= t.TakeProfit {
		e.closePosition(ctx, candle.OpenTime, t.TakeProfit, domain.ExitReasonTakeProfit)
	}
}

func (e *Engine) closePosition(ctx context.Context, ts time.Time, price float64, reason string) {
	t := e.open
	gross := grossPnL(t, price)
	fees := decimal.NewFromFloat(price * t.Size).Mul(e.commission)

	t.ExitTime = ts
	t.ExitPrice = price
	t.PnL = gross.Sub(fees)
	t.FeesPaid = t.FeesPaid.Add(fees)
	t.ExitReason = reason
	if notional := t.EntryPrice * t.Size; notional != 0 {
		pct, _ := gross.Div(decimal.NewFromFloat(notional)).Float64()
		t.PnLPct = pct * 100
	}

	e.equity = e.equity.Add(t.PnL)
	e.trades = append(e.trades, t)
	e.open = nil

	log.Infof("closed %s %s @ %.2f (%s), pnl %s", t.Direction, t.Symbol, price, reason, t.PnL.StringFixed(2))
	e.emit(ctx, EventTradeClosed, map[string]string{
		"trade_id": t.ID,
		"symbol":   t.Symbol,
		"reason":   reason,
		"pnl":      t.PnL.String(),
	})
}

func (e *Engine) markToMarket(price float64) decimal.Decimal {
	if e.open == nil {
		return e.equity
	}
	return e.equity.Add(grossPnL(e.open, price))
}

func grossPnL(t *domain.Trade, price float64) decimal.Decimal {
	diff := price - t.EntryPrice
	if t.Direction == domain.DirectionShort {
		diff = -diff
	}
	return decimal.NewFromFloat(diff * t.Size)
}

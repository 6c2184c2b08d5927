package backtest

import (
	"github.com/algobot/gotrade/internal/domain"
	"github.com/algobot/gotrade/internal/signals"
)

// SignalStrategy adapts a signal generator to the engine. Long only: a buy
// signal opens a position at the candle close, a sell signal closes it. No
// stop or target, exits come from the generator or the end of data.
type SignalStrategy struct {
	symbol  string
	series  domain.Series
	signals []domain.Signal
	size    float64
	sizes   []float64 // optional per-bar sizes, overriding size
}

// NewSignalStrategy precomputes the generator's signals over the series.
// size is the position size in units per trade.
func NewSignalStrategy(symbol string, gen signals.Generator, series domain.Series, size float64) *SignalStrategy {
	return &SignalStrategy{
		symbol:  symbol,
		series:  series,
		signals: gen.Generate(series),
		size:    size,
	}
}

// SetSizes replaces the fixed per-trade size with a precomputed per-bar
// schedule, such as an ATR risk schedule from the portfolio package. A bar
// with size zero (sizer warmup) takes no entry.
func (s *SignalStrategy) SetSizes(sizes []float64) {
	s.sizes = sizes
}

func (s *SignalStrategy) Symbol() string { return s.symbol }

func (s *SignalStrategy) Evaluate(index int) *domain.Entry {
	if index >= len(s.signals) || s.signals[index] != domain.SignalBuy {
		return nil
	}
	size := s.size
	if s.sizes != nil {
		if index >= len(s.sizes) || s.sizes[index] <= 0 {
			return nil
		}
		size = s.sizes[index]
	}
	c := s.series[index]
	return &domain.Entry{
		Direction:  domain.DirectionLong,
		EntryPrice: c.Close,
		Size:       size,
		Time:       c.OpenTime,
	}
}

// ShouldExit closes the open position on a sell signal.
func (s *SignalStrategy) ShouldExit(index int, _ *domain.Trade) bool {
	return index < len(s.signals) && s.signals[index] == domain.SignalSell
}

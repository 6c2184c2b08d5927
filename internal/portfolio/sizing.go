// Package portfolio sizes positions off account equity and market
// volatility.
package portfolio

import (
	"math"

	"github.com/algobot/gotrade/internal/domain"
	"github.com/algobot/gotrade/internal/indicators"
)

// ATRSizer risks a fixed fraction of equity per trade, scaled down by the
// average true range so more volatile markets get smaller positions.
type ATRSizer struct {
	RiskPerTrade float64 // fraction of equity, 0.01 = 1%
	Window       int
}

// NewATRSizer uses the standard 14 period window.
func NewATRSizer(riskPerTrade float64) *ATRSizer {
	return &ATRSizer{RiskPerTrade: riskPerTrade, Window: 14}
}

// Size returns the position size in asset units for the latest candle, zero
// while the ATR is still warming up.
func (s *ATRSizer) Size(equity float64, series domain.Series) float64 {
	sizes := s.Sizes(equity, series)
	if len(sizes) == 0 {
		return 0
	}
	return sizes[len(sizes)-1]
}

// Sizes returns the per-bar position size series. Bars inside the ATR warmup
// are zero.
func (s *ATRSizer) Sizes(equity float64, series domain.Series) []float64 {
	atr := indicators.ATR(series.Highs(), series.Lows(), series.Closes(), s.Window)
	riskAmount := equity * s.RiskPerTrade

	out := make([]float64, len(atr))
	for i, v := range atr {
		if math.IsNaN(v) || v <= 0 {
			continue
		}
		out[i] = riskAmount / v
	}
	return out
}

// FixedFraction sizes a position as a fraction of equity at the given price.
// The simple fallback when no volatility data is available.
func FixedFraction(equity, fraction, price float64) float64 {
	if price <= 0 || fraction <= 0 {
		return 0
	}
	return equity * fraction / price
}

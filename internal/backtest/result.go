package backtest

import (
	"math"
	"time"

	"github.com/shopspring/decimal"

	"github.com/algobot/gotrade/internal/domain"
)

// barsPerYear annualizes the Sharpe ratio assuming daily bars, as the
// original research framework did regardless of the actual timeframe.
const barsPerYear = 252

// Result is a finished backtest: the closed trades, the mark-to-market
// equity curve and the derived performance metrics.
type Result struct {
	Symbol     string
	Trades     []*domain.Trade
	Equity     []decimal.Decimal
	Timestamps []time.Time
	Metrics    Metrics
}

// Metrics are the standard performance numbers.
type Metrics struct {
	TotalTrades      int
	WinRate          float64 // 0..1
	ProfitFactor     float64
	TotalPnL         decimal.Decimal
	TotalPnLPct      float64
	AvgWin           decimal.Decimal
	AvgLoss          decimal.Decimal // positive magnitude
	MaxDrawdownPct   float64
	SharpeRatio      float64
	AvgDurationHours float64
	Expectancy       float64
}

func timestamps(series domain.Series) []time.Time {
	out := make([]time.Time, len(series))
	for i, c := range series {
		out[i] = c.OpenTime
	}
	return out
}

func newResult(symbol string, initial decimal.Decimal, trades []*domain.Trade, curve []decimal.Decimal, ts []time.Time) *Result {
	r := &Result{
		Symbol:     symbol,
		Trades:     trades,
		Equity:     curve,
		Timestamps: ts,
	}
	r.Metrics = computeMetrics(initial, trades, curve)
	return r
}

func computeMetrics(initial decimal.Decimal, trades []*domain.Trade, curve []decimal.Decimal) Metrics {
	var m Metrics
	m.TotalTrades = len(trades)
	if len(trades) == 0 {
		return m
	}

	var wins, losses []*domain.Trade
	total := decimal.Zero
	var hours float64
	for _, t := range trades {
		total = total.Add(t.PnL)
		hours += t.Duration().Hours()
		if t.Win() {
			wins = append(wins, t)
		} else {
			losses = append(losses, t)
		}
	}
	m.TotalPnL = total
	if initial.IsPositive() {
		pct, _ := total.Div(initial).Float64()
		m.TotalPnLPct = pct * 100
	}
	m.WinRate = float64(len(wins)) / float64(len(trades))
	m.AvgDurationHours = hours / float64(len(trades))

	grossWin := decimal.Zero
	for _, t := range wins {
		grossWin = grossWin.Add(t.PnL)
	}
	grossLoss := decimal.Zero
	for _, t := range losses {
		grossLoss = grossLoss.Sub(t.PnL) // positive magnitude
	}
	if len(wins) > 0 {
		m.AvgWin = grossWin.Div(decimal.NewFromInt(int64(len(wins))))
	}
	if len(losses) > 0 {
		m.AvgLoss = grossLoss.Div(decimal.NewFromInt(int64(len(losses))))
	}
	if grossLoss.IsPositive() {
		pf, _ := grossWin.Div(grossLoss).Float64()
		m.ProfitFactor = pf
	} else if grossWin.IsPositive() {
		m.ProfitFactor = math.Inf(1)
	}

	avgWin, _ := m.AvgWin.Float64()
	avgLoss, _ := m.AvgLoss.Float64()
	m.Expectancy = m.WinRate*avgWin - (1-m.WinRate)*avgLoss

	m.MaxDrawdownPct = maxDrawdown(curve)
	m.SharpeRatio = sharpe(curve)
	return m
}

// maxDrawdown is the largest peak-to-trough equity loss, as a percentage.
func maxDrawdown(curve []decimal.Decimal) float64 {
	if len(curve) == 0 {
		return 0
	}
	peak := curve[0]
	maxDD := 0.0
	for _, v := range curve {
		if v.GreaterThan(peak) {
			peak = v
		}
		if peak.IsPositive() {
			dd, _ := peak.Sub(v).Div(peak).Float64()
			if dd > maxDD {
				maxDD = dd
			}
		}
	}
	return maxDD * 100
}

// sharpe is the annualized Sharpe ratio of per-bar equity returns, zero risk
// free rate.
func sharpe(curve []decimal.Decimal) float64 {
	if len(curve) < 2 {
		return 0
	}
	returns := make([]float64, 0, len(curve)-1)
	for i := 1; i < len(curve); i++ {
		prev, _ := curve[i-1].Float64()
		cur, _ := curve[i].Float64()
		if prev == 0 {
			continue
		}
		returns = append(returns, cur/prev-1)
	}
	if len(returns) < 2 {
		return 0
	}
	var sum float64
	for _, r := range returns {
		sum += r
	}
	mean := sum / float64(len(returns))
	var sq float64
	for _, r := range returns {
		d := r - mean
		sq += d * d
	}
	std := math.Sqrt(sq / float64(len(returns)-1))
	if std == 0 {
		return 0
	}
	return mean / std * math.Sqrt(barsPerYear)
}

package signals

import (
	"github.com/algobot/gotrade/internal/domain"
	"github.com/algobot/gotrade/internal/indicators"
)

func init() {
	Register("crossover", newCrossover)
	Register("rsi", newRSISignal)
	Register("macd", newMACDSignal)
	Register("bollinger_breakout", newBollingerBreakout)
	Register("atr_breakout", newATRBreakout)
	Register("stochastic", newStochastic)
	Register("composite_ma_rsi", newCompositeMARSI)
}

// crossover: +1 while the fast SMA is above the slow, -1 below.
type crossover struct {
	fast, slow int
}

func newCrossover(params map[string]float64) Generator {
	return &crossover{
		fast: int(param(params, "fast", 50)),
		slow: int(param(params, "slow", 200)),
	}
}

func (g *crossover) ID() string { return "crossover" }

func (g *crossover) Generate(series domain.Series) []domain.Signal {
	closes := series.Closes()
	fast := indicators.SMA(closes, g.fast)
	slow := indicators.SMA(closes, g.slow)
	out := holdAll(len(series))
	for i := range series {
		if !validNum(fast[i]) || !validNum(slow[i]) {
			continue
		}
		switch {
		case fast[i] > slow[i]:
			out[i] = domain.SignalBuy
		case fast[i] < slow[i]:
			out[i] = domain.SignalSell
		}
	}
	return out
}

// rsiSignal: buy below the oversold threshold, sell above overbought.
type rsiSignal struct {
	window               int
	overbought, oversold float64
}

func newRSISignal(params map[string]float64) Generator {
	return &rsiSignal{
		window:     int(param(params, "window", 14)),
		overbought: param(params, "overbought", 70),
		oversold:   param(params, "oversold", 30),
	}
}

func (g *rsiSignal) ID() string { return "rsi" }

func (g *rsiSignal) Generate(series domain.Series) []domain.Signal {
	vals := indicators.RSI(series.Closes(), g.window)
	out := holdAll(len(series))
	for i, v := range vals {
		if !validNum(v) {
			continue
		}
		switch {
		case v < g.oversold:
			out[i] = domain.SignalBuy
		case v > g.overbought:
			out[i] = domain.SignalSell
		}
	}
	return out
}

// macdSignal: sign of the MACD/signal-line crossover.
type macdSignal struct {
	fast, slow, signal int
}

func newMACDSignal(params map[string]float64) Generator {
	return &macdSignal{
		fast:   int(param(params, "fast", 12)),
		slow:   int(param(params, "slow", 26)),
		signal: int(param(params, "signal", 9)),
	}
}

func (g *macdSignal) ID() string { return "macd" }

func (g *macdSignal) Generate(series domain.Series) []domain.Signal {
	macd, signalLine, _ := indicators.MACD(series.Closes(), g.fast, g.slow, g.signal)
	out := holdAll(len(series))
	for i := range series {
		switch {
		case macd[i] > signalLine[i]:
			out[i] = domain.SignalBuy
		case macd[i] < signalLine[i]:
			out[i] = domain.SignalSell
		}
	}
	return out
}

// bollingerBreakout: +1 closing above the upper band, -1 below the lower.
type bollingerBreakout struct {
	window int
	numStd float64
}

func newBollingerBreakout(params map[string]float64) Generator {
	return &bollingerBreakout{
		window: int(param(params, "window", 20)),
		numStd: param(params, "num_std", 2.0),
	}
}

func (g *bollingerBreakout) ID() string { return "bollinger_breakout" }

func (g *bollingerBreakout) Generate(series domain.Series) []domain.Signal {
	closes := series.Closes()
	upper, _, lower := indicators.Bollinger(closes, g.window, g.numStd)
	out := holdAll(len(series))
	for i := range series {
		if !validNum(upper[i]) || !validNum(lower[i]) {
			continue
		}
		switch {
		case closes[i] > upper[i]:
			out[i] = domain.SignalBuy
		case closes[i] < lower[i]:
			out[i] = domain.SignalSell
		}
	}
	return out
}

// atrBreakout: close moving more than atrMult ATRs from the previous close.
type atrBreakout struct {
	window  int
	atrMult float64
}

func newATRBreakout(params map[string]float64) Generator {
	return &atrBreakout{
		window:  int(param(params, "window", 14)),
		atrMult: param(params, "atr_mult", 1.5),
	}
}

func (g *atrBreakout) ID() string { return "atr_breakout" }

func (g *atrBreakout) Generate(series domain.Series) []domain.Signal {
	closes := series.Closes()
	atr := indicators.ATR(series.Highs(), series.Lows(), closes, g.window)
	out := holdAll(len(series))
	for i := 1; i < len(series); i++ {
		if !validNum(atr[i]) {
			continue
		}
		switch {
		case closes[i] > closes[i-1]+g.atrMult*atr[i]:
			out[i] = domain.SignalBuy
		case closes[i] < closes[i-1]-g.atrMult*atr[i]:
			out[i] = domain.SignalSell
		}
	}
	return out
}

// stochastic: %K thresholds, buy oversold / sell overbought.
type stochastic struct {
	window               int
	overbought, oversold float64
}

func newStochastic(params map[string]float64) Generator {
	return &stochastic{
		window:     int(param(params, "window", 14)),
		overbought: param(params, "overbought", 80),
		oversold:   param(params, "oversold", 20),
	}
}

func (g *stochastic) ID() string { return "stochastic" }

func (g *stochastic) Generate(series domain.Series) []domain.Signal {
	k := indicators.StochasticK(series.Closes(), series.Lows(), series.Highs(), g.window)
	out := holdAll(len(series))
	for i, v := range k {
		if !validNum(v) {
			continue
		}
		switch {
		case v < g.oversold:
			out[i] = domain.SignalBuy
		case v > g.overbought:
			out[i] = domain.SignalSell
		}
	}
	return out
}

// compositeMARSI: long only when price is above the MA while RSI shows the
// pullback is oversold.
type compositeMARSI struct {
	maWindow, rsiWindow int
	rsiThresh           float64
}

func newCompositeMARSI(params map[string]float64) Generator {
	return &compositeMARSI{
		maWindow:  int(param(params, "ma_window", 50)),
		rsiWindow: int(param(params, "rsi_window", 14)),
		rsiThresh: param(params, "rsi_thresh", 30),
	}
}

func (g *compositeMARSI) ID() string { return "composite_ma_rsi" }

func (g *compositeMARSI) Generate(series domain.Series) []domain.Signal {
	closes := series.Closes()
	ma := indicators.SMA(closes, g.maWindow)
	rsi := indicators.RSI(closes, g.rsiWindow)
	out := holdAll(len(series))
	for i := range series {
		if !validNum(ma[i]) || !validNum(rsi[i]) {
			continue
		}
		if closes[i] > ma[i] && rsi[i] < g.rsiThresh {
			out[i] = domain.SignalBuy
		}
	}
	return out
}

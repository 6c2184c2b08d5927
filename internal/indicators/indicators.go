// Package indicators provides the numeric kernels used by the signal
// generators and strategies. All functions take float64 slices (oldest ->
// newest) and return slices of the same length; positions inside the warmup
// window hold NaN, matching rolling-window semantics.
package indicators

import "math"

var nan = math.NaN()

// SMA is the simple moving average over window.
func SMA(series []float64, window int) []float64 {
	out := make([]float64, len(series))
	if window <= 0 {
		for i := range out {
			out[i] = nan
		}
		return out
	}
	var sum float64
	for i, v := range series {
		sum += v
		if i >= window {
			sum -= series[i-window]
		}
		if i >= window-1 {
			out[i] = sum / float64(window)
		} else {
			out[i] = nan
		}
	}
	return out
}

// EMA is the exponential moving average with span window (alpha = 2/(window+1)),
// seeded from the first value with no warmup NaNs.
func EMA(series []float64, window int) []float64 {
	out := make([]float64, len(series))
	if len(series) == 0 {
		return out
	}
	alpha := 2.0 / (float64(window) + 1.0)
	out[0] = series[0]
	for i := 1; i < len(series); i++ {
		out[i] = alpha*series[i] + (1-alpha)*out[i-1]
	}
	return out
}

// RSI is the Relative Strength Index over window, using simple rolling means
// of gains and losses.
func RSI(series []float64, window int) []float64 {
	out := make([]float64, len(series))
	if len(series) == 0 {
		return out
	}
	gains := make([]float64, len(series))
	losses := make([]float64, len(series))
	out[0] = nan
	for i := 1; i < len(series); i++ {
		delta := series[i] - series[i-1]
		if delta > 0 {
			gains[i] = delta
		} else {
			losses[i] = -delta
		}
	}
	avgGain := SMA(gains[1:], window)
	avgLoss := SMA(losses[1:], window)
	for i := 1; i < len(series); i++ {
		g, l := avgGain[i-1], avgLoss[i-1]
		if math.IsNaN(g) || math.IsNaN(l) {
			out[i] = nan
			continue
		}
		if l == 0 {
			out[i] = 100
			continue
		}
		rs := g / l
		out[i] = 100 - 100/(1+rs)
	}
	return out
}

// MACD returns the MACD line, signal line and histogram.
func MACD(series []float64, fast, slow, signal int) (macd, signalLine, histogram []float64) {
	emaFast := EMA(series, fast)
	emaSlow := EMA(series, slow)
	macd = make([]float64, len(series))
	for i := range series {
		macd[i] = emaFast[i] - emaSlow[i]
	}
	signalLine = EMA(macd, signal)
	histogram = make([]float64, len(series))
	for i := range series {
		histogram[i] = macd[i] - signalLine[i]
	}
	return macd, signalLine, histogram
}

// Bollinger returns the upper, middle and lower bands (middle = SMA, bands
// at numStd sample standard deviations).
func Bollinger(series []float64, window int, numStd float64) (upper, middle, lower []float64) {
	middle = SMA(series, window)
	upper = make([]float64, len(series))
	lower = make([]float64, len(series))
	for i := range series {
		if i < window-1 {
			upper[i], lower[i] = nan, nan
			continue
		}
		var sq float64
		for j := i - window + 1; j <= i; j++ {
			d := series[j] - middle[i]
			sq += d * d
		}
		std := math.Sqrt(sq / float64(window-1))
		upper[i] = middle[i] + numStd*std
		lower[i] = middle[i] - numStd*std
	}
	return upper, middle, lower
}

// ATR is the average true range over window (rolling mean of true range).
func ATR(high, low, close []float64, window int) []float64 {
	tr := make([]float64, len(close))
	for i := range close {
		hl := high[i] - low[i]
		if i == 0 {
			tr[i] = hl
			continue
		}
		hc := math.Abs(high[i] - close[i-1])
		lc := math.Abs(low[i] - close[i-1])
		tr[i] = math.Max(hl, math.Max(hc, lc))
	}
	return SMA(tr, window)
}

// StochasticK is the %K stochastic oscillator over window.
func StochasticK(close, low, high []float64, window int) []float64 {
	out := make([]float64, len(close))
	for i := range close {
		if i < window-1 {
			out[i] = nan
			continue
		}
		lowest, highest := low[i], high[i]
		for j := i - window + 1; j <= i; j++ {
			lowest = math.Min(lowest, low[j])
			highest = math.Max(highest, high[j])
		}
		if highest == lowest {
			out[i] = nan
			continue
		}
		out[i] = 100 * (close[i] - lowest) / (highest - lowest)
	}
	return out
}

// ADX is the average directional index over window (Wilder smoothing).
func ADX(high, low, close []float64, window int) []float64 {
	n := len(close)
	out := make([]float64, n)
	for i := range out {
		out[i] = nan
	}
	if n <= window*2 {
		return out
	}

	plusDM := make([]float64, n)
	minusDM := make([]float64, n)
	tr := make([]float64, n)
	for i := 1; i < n; i++ {
		up := high[i] - high[i-1]
		down := low[i-1] - low[i]
		if up > down && up > 0 {
			plusDM[i] = up
		}
		if down > up && down > 0 {
			minusDM[i] = down
		}
		hl := high[i] - low[i]
		hc := math.Abs(high[i] - close[i-1])
		lc := math.Abs(low[i] - close[i-1])
		tr[i] = math.Max(hl, math.Max(hc, lc))
	}

	// Wilder smoothing: seed with the sum of the first window values, then
	// smooth = prev - prev/window + current.
	var smTR, smPlus, smMinus float64
	for i := 1; i <= window; i++ {
		smTR += tr[i]
		smPlus += plusDM[i]
		smMinus += minusDM[i]
	}
	dx := make([]float64, n)
	for i := range dx {
		dx[i] = nan
	}
	for i := window + 1; i < n; i++ {
		smTR = smTR - smTR/float64(window) + tr[i]
		smPlus = smPlus - smPlus/float64(window) + plusDM[i]
		smMinus = smMinus - smMinus/float64(window) + minusDM[i]
		if smTR == 0 {
			continue
		}
		pdi := 100 * smPlus / smTR
		mdi := 100 * smMinus / smTR
		if pdi+mdi == 0 {
			continue
		}
		dx[i] = 100 * math.Abs(pdi-mdi) / (pdi + mdi)
	}

	var sumDX float64
	start := window*2 + 1
	for i := window + 1; i < start && i < n; i++ {
		sumDX += dx[i]
	}
	if start-1 < n {
		out[start-1] = sumDX / float64(window)
		for i := start; i < n; i++ {
			out[i] = (out[i-1]*float64(window-1) + dx[i]) / float64(window)
		}
	}
	return out
}

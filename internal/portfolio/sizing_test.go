package portfolio

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/algobot/gotrade/internal/domain"
)

func constantRangeSeries(n int, spread float64) domain.Series {
	t0 := time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)
	out := make(domain.Series, n)
	for i := range out {
		c := 100.0
		out[i] = domain.Candle{
			OpenTime: t0.Add(time.Duration(i) * time.Hour),
			Open:     c, High: c + spread/2, Low: c - spread/2, Close: c,
		}
	}
	return out
}

func TestATRSizerConstantRange(t *testing.T) {
	// every bar spans exactly 2.0, so ATR converges to 2.0
	series := constantRangeSeries(30, 2.0)
	sizer := NewATRSizer(0.01)

	// 1% of 10000 = 100 risked over an ATR of 2
	require.InDelta(t, 50.0, sizer.Size(10000, series), 0.1)
}

func TestATRSizerScalesInverselyWithVolatility(t *testing.T) {
	sizer := NewATRSizer(0.01)
	calm := sizer.Size(10000, constantRangeSeries(30, 1.0))
	wild := sizer.Size(10000, constantRangeSeries(30, 4.0))
	require.Greater(t, calm, wild)
}

func TestATRSizerWarmup(t *testing.T) {
	series := constantRangeSeries(30, 2.0)
	sizes := NewATRSizer(0.01).Sizes(10000, series)
	require.Len(t, sizes, len(series))
	require.Zero(t, sizes[0])
	require.Positive(t, sizes[len(sizes)-1])
}

func TestFixedFraction(t *testing.T) {
	require.Equal(t, 50.0, FixedFraction(10000, 0.5, 100))
	require.Zero(t, FixedFraction(10000, 0.5, 0))
}

package bosfvg

import (
	"math"
	"testing"
	"time"

	"github.com/algobot/gotrade/internal/domain"
)

var ny = mustLoadNY()

func mustLoadNY() *time.Location {
	tz, err := time.LoadLocation("America/New_York")
	if err != nil {
		panic(err)
	}
	return tz
}

func testConfig() Config {
	cfg := DefaultConfig("BTCUSDT")
	cfg.OpeningRangeEnd = "09:40" // short range keeps the scripted days small
	cfg.EntryStartHour = 9
	cfg.ADXThreshold = 10
	return cfg
}

type dayBuilder struct {
	start time.Time
	bars  domain.Series
}

func (b *dayBuilder) add(o, h, l, c float64) {
	b.bars = append(b.bars, domain.Candle{
		OpenTime: b.start.Add(time.Duration(len(b.bars)) * time.Minute),
		Open:     o, High: h, Low: l, Close: c,
		Volume: 1000,
	})
}

// longDay scripts one session from 09:00: a 30 bar uptrend for indicator
// warmup, an opening range holding a bullish FVG at 09:32-09:34, a break of
// structure at 09:40 and a tap back into the gap at 09:42.
func longDay(start time.Time) domain.Series {
	b := &dayBuilder{start: start}
	for i := 0; i < 30; i++ {
		c := 100 + 0.1*float64(i)
		b.add(c-0.05, c+0.05, c-0.15, c)
	}
	b.add(103.0, 103.1, 102.9, 103.0)
	b.add(103.0, 103.1, 102.9, 103.0)
	b.add(103.0, 103.1, 102.9, 103.0) // gap candle 1, high 103.1
	b.add(103.0, 103.6, 103.0, 103.6) // full body middle candle
	b.add(103.5, 103.7, 103.3, 103.5) // gap candle 3, low 103.3
	for i := 0; i < 5; i++ {
		b.add(103.5, 103.6, 103.4, 103.5) // doji drift, weak bodies
	}
	b.add(103.6, 103.9, 103.6, 103.8) // 09:40 close above HOD 103.6
	b.add(103.8, 103.9, 103.7, 103.8) // 09:41 gap hunt
	b.add(103.5, 103.6, 103.2, 103.4) // 09:42 taps the 103.1-103.3 gap
	return b.bars
}

// shortDay mirrors longDay: downtrend warmup, a bearish FVG, a break below
// the LOD and a tap from below.
func shortDay(start time.Time) domain.Series {
	b := &dayBuilder{start: start}
	for i := 0; i < 30; i++ {
		c := 107 - 0.1*float64(i)
		b.add(c+0.05, c+0.15, c-0.05, c)
	}
	b.add(104.0, 104.1, 103.9, 104.0)
	b.add(104.0, 104.1, 103.9, 104.0)
	b.add(104.0, 104.1, 103.9, 104.0) // gap candle 1, low 103.9
	b.add(103.9, 103.9, 103.3, 103.3) // full body middle candle
	b.add(103.4, 103.6, 103.2, 103.4) // gap candle 3, high 103.6
	for i := 0; i < 5; i++ {
		b.add(103.4, 103.5, 103.3, 103.4)
	}
	b.add(103.3, 103.4, 103.1, 103.2) // 09:40 close below LOD 103.3
	b.add(103.2, 103.3, 103.1, 103.2) // 09:41 gap hunt
	b.add(103.3, 103.7, 103.2, 103.4) // 09:42 taps the 103.6-103.9 gap
	return b.bars
}

func runAll(t *testing.T, s *Strategy, series domain.Series) []*domain.Entry {
	t.Helper()
	var entries []*domain.Entry
	for i := range series {
		if e := s.Evaluate(i); e != nil {
			entries = append(entries, e)
		}
	}
	return entries
}

func near(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestLongEntry(t *testing.T) {
	s, err := New(testConfig(), 10000)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	series := longDay(time.Date(2024, 3, 4, 9, 0, 0, 0, ny))
	s.SetData(series, nil)

	entries := runAll(t, s, series)
	if len(entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(entries))
	}
	e := entries[0]
	if e.Direction != domain.DirectionLong {
		t.Fatalf("direction = %s, want long", e.Direction)
	}
	if !near(e.EntryPrice, 103.3) {
		t.Fatalf("entry = %v, want 103.3 (top of the gap)", e.EntryPrice)
	}
	if !near(e.StopLoss, 103.0) {
		t.Fatalf("stop = %v, want 103.0 (middle candle low)", e.StopLoss)
	}
	wantTP := 103.3 + (103.3-103.0)*2
	if !near(e.TakeProfit, wantTP) {
		t.Fatalf("target = %v, want %v (2R)", e.TakeProfit, wantTP)
	}
	// 1% of 10000 risked over 0.3 per unit
	wantSize := 100.0 / (e.EntryPrice - e.StopLoss)
	if !near(e.Size, wantSize) {
		t.Fatalf("size = %v, want %v", e.Size, wantSize)
	}
}

func TestShortEntry(t *testing.T) {
	s, err := New(testConfig(), 10000)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	series := shortDay(time.Date(2024, 3, 4, 9, 0, 0, 0, ny))
	s.SetData(series, nil)

	entries := runAll(t, s, series)
	if len(entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(entries))
	}
	e := entries[0]
	if e.Direction != domain.DirectionShort {
		t.Fatalf("direction = %s, want short", e.Direction)
	}
	if !near(e.EntryPrice, 103.6) {
		t.Fatalf("entry = %v, want 103.6 (bottom of the gap)", e.EntryPrice)
	}
	if !near(e.StopLoss, 103.9) {
		t.Fatalf("stop = %v, want 103.9 (middle candle high)", e.StopLoss)
	}
	if !near(e.TakeProfit, 103.0) {
		t.Fatalf("target = %v, want 103.0 (2R)", e.TakeProfit)
	}
}

func TestOneTradePerDay(t *testing.T) {
	s, err := New(testConfig(), 10000)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	series := longDay(time.Date(2024, 3, 4, 9, 0, 0, 0, ny))
	// more breakout and tap bars after the first entry
	b := &dayBuilder{start: series[0].OpenTime, bars: series}
	b.add(103.4, 104.2, 103.4, 104.1)
	b.add(104.0, 104.1, 103.2, 103.3)
	s.SetData(b.bars, nil)

	if entries := runAll(t, s, b.bars); len(entries) != 1 {
		t.Fatalf("entries = %d, want 1 per day", len(entries))
	}
}

func TestDailyStateResets(t *testing.T) {
	s, err := New(testConfig(), 10000)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	d1 := longDay(time.Date(2024, 3, 4, 9, 0, 0, 0, ny))
	d2 := longDay(time.Date(2024, 3, 5, 9, 0, 0, 0, ny))
	series := append(append(domain.Series{}, d1...), d2...)
	s.SetData(series, nil)

	entries := runAll(t, s, series)
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want one per day", len(entries))
	}
	if entries[1].Time.In(ny).Day() != 5 {
		t.Fatalf("second entry on day %d, want 5", entries[1].Time.In(ny).Day())
	}
}

func TestEntryHourWindow(t *testing.T) {
	cfg := testConfig()
	cfg.EntryStartHour = 10 // the scripted tap lands at 09:42
	s, err := New(cfg, 10000)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	series := longDay(time.Date(2024, 3, 4, 9, 0, 0, 0, ny))
	s.SetData(series, nil)

	if entries := runAll(t, s, series); len(entries) != 0 {
		t.Fatalf("entries = %d, want 0 outside the entry window", len(entries))
	}
}

func TestADXGate(t *testing.T) {
	cfg := testConfig()
	cfg.ADXThreshold = 101 // unreachable
	s, err := New(cfg, 10000)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	series := longDay(time.Date(2024, 3, 4, 9, 0, 0, 0, ny))
	s.SetData(series, nil)

	if entries := runAll(t, s, series); len(entries) != 0 {
		t.Fatalf("entries = %d, want 0 below the ADX gate", len(entries))
	}
}

func TestHTFFilterBlocksCounterTrendLong(t *testing.T) {
	cfg := testConfig()
	cfg.UseHTFFilter = true
	s, err := New(cfg, 10000)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	series := longDay(time.Date(2024, 3, 4, 9, 0, 0, 0, ny))

	htf := domain.Series{}
	for i := 0; i < 25; i++ {
		ot := time.Date(2024, 3, 4, 2, 0, 0, 0, ny).Add(time.Duration(i) * 15 * time.Minute)
		htf = append(htf, domain.Candle{OpenTime: ot, Open: 200, High: 200, Low: 200, Close: 200})
	}
	s.SetData(series, htf)

	if entries := runAll(t, s, series); len(entries) != 0 {
		t.Fatalf("entries = %d, want 0 with price below the HTF EMA", len(entries))
	}

	// same day with the trend filter agreeing
	s2, _ := New(cfg, 10000)
	htfLow := domain.Series{}
	for i := 0; i < 25; i++ {
		ot := time.Date(2024, 3, 4, 2, 0, 0, 0, ny).Add(time.Duration(i) * 15 * time.Minute)
		htfLow = append(htfLow, domain.Candle{OpenTime: ot, Open: 50, High: 50, Low: 50, Close: 50})
	}
	s2.SetData(series, htfLow)
	if entries := runAll(t, s2, series); len(entries) != 1 {
		t.Fatalf("entries = %d, want 1 with the HTF EMA below price", len(entries))
	}
}

func TestFindFVGSkipsWeakMiddle(t *testing.T) {
	s, err := New(testConfig(), 10000)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	series := longDay(time.Date(2024, 3, 4, 9, 0, 0, 0, ny))
	s.SetData(series, nil)

	// index 41 is the bar after the breakout; the dojis between it and the
	// gap at 32-34 must all be rejected for their weak middle candles.
	zone := s.findFVG(41, domain.DirectionLong)
	if zone == nil {
		t.Fatal("no zone found")
	}
	if !near(zone.bottom, 103.1) || !near(zone.top, 103.3) {
		t.Fatalf("zone = (%v, %v), want (103.1, 103.3)", zone.bottom, zone.top)
	}
	if !near(zone.stopLoss, 103.0) {
		t.Fatalf("zone stop = %v, want 103.0", zone.stopLoss)
	}
}

func TestEvaluateWithoutData(t *testing.T) {
	s, err := New(testConfig(), 10000)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if e := s.Evaluate(50); e != nil {
		t.Fatal("expected nil before SetData")
	}
}

func TestConfigValidation(t *testing.T) {
	cfg := DefaultConfig("")
	if _, err := New(cfg, 10000); err == nil {
		t.Fatal("expected error for empty symbol")
	}
	cfg = DefaultConfig("BTCUSDT")
	cfg.TradingStart = "9:3x"
	if _, err := New(cfg, 10000); err == nil {
		t.Fatal("expected error for bad session time")
	}
	cfg = DefaultConfig("BTCUSDT")
	cfg.Timezone = "Mars/Olympus"
	if _, err := New(cfg, 10000); err == nil {
		t.Fatal("expected error for bad timezone")
	}
	cfg = DefaultConfig("BTCUSDT")
	cfg.RiskPerTrade = 0
	if _, err := New(cfg, 10000); err == nil {
		t.Fatal("expected error for zero risk")
	}
}

func TestParseClock(t *testing.T) {
	c, err := parseClock("09:30")
	if err != nil {
		t.Fatalf("parseClock: %v", err)
	}
	if c != clock(9*60+30) {
		t.Fatalf("clock = %d, want 570", c)
	}
	if _, err := parseClock("25:00"); err == nil {
		t.Fatal("expected error for 25:00")
	}
}

package bosfvg

import (
	"fmt"
	"time"
)

const ID = "bos_fvg"

// Config for the BOS+FVG intraday strategy. Times are wall-clock "HH:MM" in
// Timezone.
type Config struct {
	Symbol          string  `yaml:"symbol" json:"symbol"`
	RiskPerTrade    float64 `yaml:"riskPerTrade" json:"riskPerTrade"`       // percent of account risked per trade
	RewardRatio     float64 `yaml:"rewardRatio" json:"rewardRatio"`         // take profit in R multiples
	TradingStart    string  `yaml:"tradingStart" json:"tradingStart"`       // session open
	OpeningRangeEnd string  `yaml:"openingRangeEnd" json:"openingRangeEnd"` // opening range lock-in
	TradingEnd      string  `yaml:"tradingEnd" json:"tradingEnd"`           // session close
	Timezone        string  `yaml:"timezone" json:"timezone"`
	ADXThreshold    float64 `yaml:"adxThreshold" json:"adxThreshold"`     // minimum trend strength
	EntryStartHour  int     `yaml:"entryStartHour" json:"entryStartHour"` // signals allowed from this local hour
	EntryEndHour    int     `yaml:"entryEndHour" json:"entryEndHour"`     // ...up to (exclusive) this local hour
	UseHTFFilter    bool    `yaml:"useHtfFilter" json:"useHtfFilter"`     // gate entries by the higher-timeframe EMA
}

// DefaultConfig mirrors the strategy's published rules: 1% risk, 2R target,
// 09:30-16:00 session with a one hour opening range, ADX 25 gate and entries
// only in the 08:00-12:00 New York window.
func DefaultConfig(symbol string) Config {
	return Config{
		Symbol:          symbol,
		RiskPerTrade:    1.0,
		RewardRatio:     2.0,
		TradingStart:    "09:30",
		OpeningRangeEnd: "10:30",
		TradingEnd:      "16:00",
		Timezone:        "America/New_York",
		ADXThreshold:    25,
		EntryStartHour:  8,
		EntryEndHour:    12,
	}
}

func (c Config) validate() error {
	if c.Symbol == "" {
		return fmt.Errorf("bosfvg: symbol is required")
	}
	if c.RiskPerTrade <= 0 || c.RiskPerTrade > 100 {
		return fmt.Errorf("bosfvg: riskPerTrade %.2f out of (0,100]", c.RiskPerTrade)
	}
	if c.RewardRatio <= 0 {
		return fmt.Errorf("bosfvg: rewardRatio must be positive")
	}
	for _, ts := range []string{c.TradingStart, c.OpeningRangeEnd, c.TradingEnd} {
		if _, err := parseClock(ts); err != nil {
			return fmt.Errorf("bosfvg: bad time %q: %w", ts, err)
		}
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("bosfvg: bad timezone %q: %w", c.Timezone, err)
	}
	return nil
}

// clock is minutes since midnight.
type clock int

func parseClock(s string) (clock, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, err
	}
	return clock(t.Hour()*60 + t.Minute()), nil
}

func clockOf(t time.Time) clock {
	return clock(t.Hour()*60 + t.Minute())
}

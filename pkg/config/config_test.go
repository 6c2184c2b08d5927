package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

const sampleConfig = `
symbol: ETHUSDT
data:
  source: csv
  csvPath: candles.csv
strategy:
  name: signal
  signal:
    generator: rsi
    params:
      window: 7
      overbought: 75
    size: 2
backtest:
  initialCapital: 25000
rules:
  files: [rules/base.yaml]
  mergePolicy: reject
logging:
  level: debug
`

func TestLoadFromFile(t *testing.T) {
	cfg, err := LoadFromFile(writeConfig(t, sampleConfig))
	if err != nil {
		t.Fatalf("LoadFromFile: %v", err)
	}
	if cfg.Symbol != "ETHUSDT" {
		t.Fatalf("symbol = %q", cfg.Symbol)
	}
	if cfg.Strategy.Name != "signal" || cfg.Strategy.Signal.Generator != "rsi" {
		t.Fatalf("strategy = %+v", cfg.Strategy)
	}
	if cfg.Strategy.Signal.Params["window"] != 7 {
		t.Fatalf("params = %v", cfg.Strategy.Signal.Params)
	}
	if cfg.Backtest.InitialCapital != 25000 {
		t.Fatalf("initial capital = %v", cfg.Backtest.InitialCapital)
	}
	// defaults survive a partial file
	if cfg.Backtest.CommissionRate != 0.0005 {
		t.Fatalf("commission = %v, want default", cfg.Backtest.CommissionRate)
	}
	if cfg.Server.Listen != ":8080" {
		t.Fatalf("listen = %q, want default", cfg.Server.Listen)
	}
	if cfg.Rules.MergePolicy != "reject" {
		t.Fatalf("merge policy = %q", cfg.Rules.MergePolicy)
	}
	if cfg.Logging.Level != "debug" {
		t.Fatalf("log level = %q", cfg.Logging.Level)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("GOTRADE_SYMBOL", "SOLUSDT")
	t.Setenv("GOTRADE_LOG_LEVEL", "warn")
	t.Setenv("GOTRADE_RULES_FILES", "a.yaml, b.yaml")

	cfg, err := LoadFromFile(writeConfig(t, sampleConfig))
	if err != nil {
		t.Fatalf("LoadFromFile: %v", err)
	}
	if cfg.Symbol != "SOLUSDT" {
		t.Fatalf("symbol = %q, want env override", cfg.Symbol)
	}
	if cfg.Logging.Level != "warn" {
		t.Fatalf("log level = %q, want env override", cfg.Logging.Level)
	}
	if len(cfg.Rules.Files) != 2 || cfg.Rules.Files[1] != "b.yaml" {
		t.Fatalf("rules files = %v", cfg.Rules.Files)
	}
}

func TestValidate(t *testing.T) {
	cases := map[string]func(*Config){
		"missing symbol":      func(c *Config) { c.Symbol = "" },
		"unknown source":      func(c *Config) { c.Data.Source = "ftp" },
		"csv without path":    func(c *Config) { c.Data.CSVPath = "" },
		"unknown strategy":    func(c *Config) { c.Strategy.Name = "hodl" },
		"signal no generator": func(c *Config) { c.Strategy = StrategyConfig{Name: "signal"} },
		"zero capital":        func(c *Config) { c.Backtest.InitialCapital = 0 },
		"bad commission":      func(c *Config) { c.Backtest.CommissionRate = 0.5 },
		"bad merge policy":    func(c *Config) { c.Rules.MergePolicy = "first_wins" },
	}
	for name, mutate := range cases {
		cfg := Default()
		cfg.Data.CSVPath = "candles.csv"
		mutate(&cfg)
		if err := cfg.Validate(); err == nil {
			t.Errorf("%s: expected a validation error", name)
		}
	}
}

func TestBinanceSourceValidation(t *testing.T) {
	cfg := Default()
	cfg.Data = DataConfig{Source: "binance", Interval: "1h"}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error without start/end")
	}
	cfg.Data.Start = "2024-01-01T00:00:00Z"
	cfg.Data.End = "2024-02-01T00:00:00Z"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestOverridesApplyBeforeValidation(t *testing.T) {
	// csv source without a path: only valid once the flag-style override
	// fills it in
	path := writeConfig(t, "symbol: BTCUSDT\ndata:\n  source: csv\n")

	if _, err := LoadFromFile(path); err == nil {
		t.Fatal("expected validation error without csvPath")
	}

	cfg, err := LoadFromFile(path, func(c *Config) {
		c.Data.CSVPath = "candles.csv"
	})
	if err != nil {
		t.Fatalf("LoadFromFile with override: %v", err)
	}
	if cfg.Data.CSVPath != "candles.csv" {
		t.Fatalf("csvPath = %q, want candles.csv", cfg.Data.CSVPath)
	}
}

func TestSignalSizerValidation(t *testing.T) {
	cfg := Default()
	cfg.Strategy.Name = "signal"
	cfg.Strategy.Signal = &SignalConfig{Generator: "rsi", Sizer: "atr", Risk: 0.01}
	cfg.Data.CSVPath = "candles.csv"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	cfg.Strategy.Signal.Sizer = "martingale"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for unknown sizer")
	}
}

// Package config loads the workbench configuration from YAML with
// environment variable overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/algobot/gotrade/internal/rules"
	"github.com/algobot/gotrade/internal/strategies/bosfvg"
	"github.com/algobot/gotrade/pkg/logger"
)

// DataConfig selects the candle source.
type DataConfig struct {
	Source   string `yaml:"source"`   // "csv" or "binance"
	CSVPath  string `yaml:"csvPath"`  // for source csv
	Interval string `yaml:"interval"` // for source binance, e.g. "1h"
	Start    string `yaml:"start"`    // RFC3339, for source binance
	End      string `yaml:"end"`      // RFC3339, for source binance

	HTFCSVPath  string `yaml:"htfCsvPath"`  // optional higher timeframe candles
	HTFInterval string `yaml:"htfInterval"` // e.g. "4h"
}

// SignalConfig configures a registered signal generator.
type SignalConfig struct {
	Generator string             `yaml:"generator"` // e.g. "rsi", "crossover"
	Params    map[string]float64 `yaml:"params"`
	Size      float64            `yaml:"size"`  // units per trade, for sizer fixed
	Sizer     string             `yaml:"sizer"` // "fixed" (default) or "atr"
	Risk      float64            `yaml:"risk"`  // equity fraction per ATR unit, for sizer atr
}

// StrategyConfig selects either the BOS+FVG strategy or a signal generator.
type StrategyConfig struct {
	Name   string         `yaml:"name"` // "bos_fvg" or "signal"
	BOSFVG *bosfvg.Config `yaml:"bosFvg"`
	Signal *SignalConfig  `yaml:"signal"`
}

type BacktestConfig struct {
	InitialCapital float64 `yaml:"initialCapital"`
	CommissionRate float64 `yaml:"commissionRate"` // fraction per fill, 0.0005 = 5 bps
}

// RulesConfig points at the rule documents dispatched on backtest lifecycle
// events.
type RulesConfig struct {
	Files       []string `yaml:"files"`
	MergePolicy string   `yaml:"mergePolicy"` // "last_wins" (default) or "reject"
}

// Policy maps the configured merge policy name onto the registry constant.
// Validate has already rejected unknown names.
func (r RulesConfig) Policy() rules.MergePolicy {
	if r.MergePolicy == "reject" {
		return rules.MergeReject
	}
	return rules.MergeLastWins
}

type JournalConfig struct {
	Path string `yaml:"path"`
}

type ServerConfig struct {
	Listen string `yaml:"listen"`
}

type Config struct {
	Symbol   string         `yaml:"symbol"`
	Data     DataConfig     `yaml:"data"`
	Strategy StrategyConfig `yaml:"strategy"`
	Backtest BacktestConfig `yaml:"backtest"`
	Rules    RulesConfig    `yaml:"rules"`
	Journal  JournalConfig  `yaml:"journal"`
	Server   ServerConfig   `yaml:"server"`
	Logging  logger.Config  `yaml:"logging"`
}

// Default fills the values a minimal config file can omit.
func Default() Config {
	return Config{
		Symbol: "BTCUSDT",
		Data: DataConfig{
			Source:   "csv",
			Interval: "1h",
		},
		Strategy: StrategyConfig{Name: bosfvg.ID},
		Backtest: BacktestConfig{
			InitialCapital: 10000,
			CommissionRate: 0.0005,
		},
		Rules:   RulesConfig{MergePolicy: "last_wins"},
		Journal: JournalConfig{Path: "gotrade.db"},
		Server:  ServerConfig{Listen: ":8080"},
		Logging: logger.Config{Level: "info", MaxSize: 50, MaxBackups: 5, MaxAge: 14},
	}
}

// LoadFromFile reads path, applies env and caller overrides (flag values,
// typically), then validates the result.
func LoadFromFile(path string, overrides ...func(*Config)) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.applyEnv()
	for _, o := range overrides {
		o(&cfg)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// env overrides, GOTRADE_*
func (c *Config) applyEnv() {
	if v := os.Getenv("GOTRADE_SYMBOL"); v != "" {
		c.Symbol = v
	}
	if v := os.Getenv("GOTRADE_DATA_SOURCE"); v != "" {
		c.Data.Source = v
	}
	if v := os.Getenv("GOTRADE_CSV_PATH"); v != "" {
		c.Data.CSVPath = v
	}
	if v := os.Getenv("GOTRADE_JOURNAL_PATH"); v != "" {
		c.Journal.Path = v
	}
	if v := os.Getenv("GOTRADE_LISTEN"); v != "" {
		c.Server.Listen = v
	}
	if v := os.Getenv("GOTRADE_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("GOTRADE_INITIAL_CAPITAL"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Backtest.InitialCapital = f
		}
	}
	if v := os.Getenv("GOTRADE_RULES_FILES"); v != "" {
		var files []string
		for _, f := range strings.Split(v, ",") {
			if f = strings.TrimSpace(f); f != "" {
				files = append(files, f)
			}
		}
		c.Rules.Files = files
	}
}

func (c *Config) Validate() error {
	if c.Symbol == "" {
		return fmt.Errorf("config: symbol is required")
	}
	switch c.Data.Source {
	case "csv":
		if c.Data.CSVPath == "" {
			return fmt.Errorf("config: data.csvPath is required for the csv source")
		}
	case "binance":
		if c.Data.Interval == "" || c.Data.Start == "" || c.Data.End == "" {
			return fmt.Errorf("config: data.interval, data.start and data.end are required for the binance source")
		}
	default:
		return fmt.Errorf("config: unknown data source %q", c.Data.Source)
	}
	switch c.Strategy.Name {
	case bosfvg.ID:
	case "signal":
		if c.Strategy.Signal == nil || c.Strategy.Signal.Generator == "" {
			return fmt.Errorf("config: strategy.signal.generator is required")
		}
		switch c.Strategy.Signal.Sizer {
		case "", "fixed", "atr":
		default:
			return fmt.Errorf("config: unknown strategy.signal.sizer %q", c.Strategy.Signal.Sizer)
		}
	default:
		return fmt.Errorf("config: unknown strategy %q", c.Strategy.Name)
	}
	if c.Backtest.InitialCapital <= 0 {
		return fmt.Errorf("config: backtest.initialCapital must be positive")
	}
	if c.Backtest.CommissionRate < 0 || c.Backtest.CommissionRate >= 0.1 {
		return fmt.Errorf("config: backtest.commissionRate %v out of [0, 0.1)", c.Backtest.CommissionRate)
	}
	switch c.Rules.MergePolicy {
	case "last_wins", "reject":
	default:
		return fmt.Errorf("config: unknown rules.mergePolicy %q", c.Rules.MergePolicy)
	}
	return nil
}

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/algobot/gotrade/internal/backtest"
	"github.com/algobot/gotrade/internal/data"
	"github.com/algobot/gotrade/internal/domain"
	"github.com/algobot/gotrade/internal/journal"
	"github.com/algobot/gotrade/internal/portfolio"
	"github.com/algobot/gotrade/internal/rules"
	"github.com/algobot/gotrade/internal/signals"
	"github.com/algobot/gotrade/internal/strategies/bosfvg"
	"github.com/algobot/gotrade/pkg/config"
	"github.com/algobot/gotrade/pkg/logger"
)

// dispatcherSink forwards backtest lifecycle events into the rule dispatcher.
type dispatcherSink struct {
	d *rules.Dispatcher
}

func (s dispatcherSink) Emit(ctx context.Context, name string, meta map[string]string) error {
	_, err := s.d.Dispatch(ctx, rules.Event{Name: name, Meta: meta, Time: time.Now().UTC()})
	return err
}

func main() {
	var (
		configPath = flag.String("config", "config.yaml", "config file path")
		csvPath    = flag.String("csv", "", "override candle CSV path")
		noJournal  = flag.Bool("no-journal", false, "skip persisting the run")
	)
	flag.Parse()

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fatal(fmt.Errorf("load .env: %w", err))
	}

	cfg, err := config.LoadFromFile(*configPath, func(c *config.Config) {
		if *csvPath != "" {
			c.Data.Source = "csv"
			c.Data.CSVPath = *csvPath
		}
	})
	if err != nil {
		fatal(err)
	}
	if err := logger.Init(cfg.Logging); err != nil {
		fatal(err)
	}

	ctx := context.Background()

	series, htf, err := loadCandles(ctx, cfg)
	if err != nil {
		fatal(err)
	}
	logrus.Infof("loaded %d candles for %s", len(series), cfg.Symbol)

	strategy, name, err := buildStrategy(cfg, series, htf)
	if err != nil {
		fatal(err)
	}

	var j *journal.Journal
	if !*noJournal {
		if j, err = journal.Open(cfg.Journal.Path); err != nil {
			fatal(err)
		}
		defer j.Close()
	}

	sink, err := buildSink(cfg, j)
	if err != nil {
		fatal(err)
	}

	engine := backtest.New(strategy, cfg.Backtest.InitialCapital, cfg.Backtest.CommissionRate, sink)
	started := time.Now().UTC()
	result, runErr := engine.Run(ctx, series)
	if result == nil {
		fatal(runErr)
	}
	if runErr != nil {
		logrus.Warnf("rule enforcement failed during run: %v", runErr)
	}

	if j != nil {
		runID := uuid.NewString()
		if err := persistRun(ctx, j, runID, name, cfg, started, result); err != nil {
			fatal(err)
		}
		logrus.Infof("run %s journaled to %s", runID, cfg.Journal.Path)
	}

	printReport(cfg.Symbol, name, result)
	if runErr != nil {
		os.Exit(1)
	}
}

func loadCandles(ctx context.Context, cfg *config.Config) (series, htf domain.Series, err error) {
	switch cfg.Data.Source {
	case "csv":
		if series, err = data.LoadCSV(cfg.Data.CSVPath); err != nil {
			return nil, nil, err
		}
		if cfg.Data.HTFCSVPath != "" {
			if htf, err = data.LoadCSV(cfg.Data.HTFCSVPath); err != nil {
				return nil, nil, err
			}
		}
		return series, htf, nil

	case "binance":
		start, err := time.Parse(time.RFC3339, cfg.Data.Start)
		if err != nil {
			return nil, nil, fmt.Errorf("data.start: %w", err)
		}
		end, err := time.Parse(time.RFC3339, cfg.Data.End)
		if err != nil {
			return nil, nil, fmt.Errorf("data.end: %w", err)
		}
		client := data.NewBinanceClient("")
		if series, err = client.Klines(ctx, cfg.Symbol, cfg.Data.Interval, start, end); err != nil {
			return nil, nil, err
		}
		if cfg.Data.HTFInterval != "" {
			if htf, err = client.Klines(ctx, cfg.Symbol, cfg.Data.HTFInterval, start, end); err != nil {
				return nil, nil, err
			}
		}
		return series, htf, nil
	}
	return nil, nil, fmt.Errorf("unknown data source %q", cfg.Data.Source)
}

func buildStrategy(cfg *config.Config, series, htf domain.Series) (backtest.Strategy, string, error) {
	switch cfg.Strategy.Name {
	case "bos_fvg":
		sc := bosfvg.DefaultConfig(cfg.Symbol)
		if cfg.Strategy.BOSFVG != nil {
			sc = *cfg.Strategy.BOSFVG
		}
		s, err := bosfvg.New(sc, cfg.Backtest.InitialCapital)
		if err != nil {
			return nil, "", err
		}
		s.SetData(series, htf)
		return s, "bos_fvg", nil

	case "signal":
		sc := cfg.Strategy.Signal
		if sc == nil {
			return nil, "", fmt.Errorf("strategy.signal section is required for the signal strategy")
		}
		gen, err := signals.New(sc.Generator, sc.Params)
		if err != nil {
			return nil, "", err
		}
		size := sc.Size
		if size <= 0 {
			size = 1
		}
		st := backtest.NewSignalStrategy(cfg.Symbol, gen, series, size)
		if sc.Sizer == "atr" {
			risk := sc.Risk
			if risk <= 0 {
				risk = 0.01
			}
			st.SetSizes(portfolio.NewATRSizer(risk).Sizes(cfg.Backtest.InitialCapital, series))
		}
		return st, "signal:" + sc.Generator, nil
	}
	return nil, "", fmt.Errorf("unknown strategy %q", cfg.Strategy.Name)
}

// buildSink wires the rule dispatcher between the engine and the journal.
// Without rule files the engine runs with no sink at all.
func buildSink(cfg *config.Config, j *journal.Journal) (backtest.EventSink, error) {
	if len(cfg.Rules.Files) == 0 {
		return nil, nil
	}

	reg := rules.NewRegistry()
	if err := reg.LoadFiles(cfg.Rules.Policy(), cfg.Rules.Files...); err != nil {
		return nil, fmt.Errorf("load rules: %w", err)
	}
	logrus.Infof("loaded %d rules from %d files", reg.Len(), len(cfg.Rules.Files))

	var handler rules.ActionHandler
	var audit rules.AuditLogger
	if j != nil {
		handler, audit = j, j
	} else {
		handler = rules.ActionHandlerFunc(func(ctx context.Context, action string, ev rules.Event) error {
			logrus.WithField("event", ev.Name).Infof("action %s", action)
			return nil
		})
	}
	return dispatcherSink{d: rules.NewDispatcher(reg, handler, audit)}, nil
}

func persistRun(ctx context.Context, j *journal.Journal, runID, strategy string, cfg *config.Config, started time.Time, result *backtest.Result) error {
	run := journal.Run{
		ID:             runID,
		Symbol:         cfg.Symbol,
		Strategy:       strategy,
		StartedAt:      started,
		FinishedAt:     time.Now().UTC(),
		InitialCapital: decimal.NewFromFloat(cfg.Backtest.InitialCapital),
		TotalTrades:    result.Metrics.TotalTrades,
		WinRate:        result.Metrics.WinRate,
		ProfitFactor:   result.Metrics.ProfitFactor,
		TotalPnL:       result.Metrics.TotalPnL,
		MaxDrawdownPct: result.Metrics.MaxDrawdownPct,
		SharpeRatio:    result.Metrics.SharpeRatio,
	}
	if err := j.RecordRun(ctx, run); err != nil {
		return err
	}
	for _, t := range result.Trades {
		if err := j.RecordTrade(ctx, runID, t); err != nil {
			return err
		}
	}
	return nil
}

func printReport(symbol, strategy string, r *backtest.Result) {
	m := r.Metrics
	fmt.Printf("\n%s / %s\n", symbol, strategy)
	fmt.Printf("  trades          %d\n", m.TotalTrades)
	fmt.Printf("  win rate        %.1f%%\n", m.WinRate*100)
	fmt.Printf("  profit factor   %.2f\n", m.ProfitFactor)
	fmt.Printf("  total pnl       %s (%.2f%%)\n", m.TotalPnL.StringFixed(2), m.TotalPnLPct)
	fmt.Printf("  avg win/loss    %s / %s\n", m.AvgWin.StringFixed(2), m.AvgLoss.StringFixed(2))
	fmt.Printf("  expectancy      %.2f\n", m.Expectancy)
	fmt.Printf("  max drawdown    %.2f%%\n", m.MaxDrawdownPct)
	fmt.Printf("  sharpe          %.2f\n", m.SharpeRatio)
	fmt.Printf("  avg duration    %.1fh\n", m.AvgDurationHours)
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, "error:", err)
	os.Exit(1)
}

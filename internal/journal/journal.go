// Package journal persists completed trades, backtest runs and rule activity
// in SQLite. It doubles as the action handler and audit sink for the rule
// dispatcher, so record-keeping rules land in the same database as the trades
// they describe.
package journal

import (
	"context"
	"database/sql"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"github.com/algobot/gotrade/internal/domain"
	"github.com/algobot/gotrade/internal/rules"
)

var log = logrus.WithField("component", "journal")

type Journal struct {
	db *sql.DB
}

// Open creates or opens the journal database at path. ":memory:" works for
// tests.
func Open(path string) (*Journal, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open journal db: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite is happiest on a single connection
	db.SetMaxIdleConns(1)

	j := &Journal{db: db}
	if err := j.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return j, nil
}

func (j *Journal) Close() error { return j.db.Close() }

func (j *Journal) migrate() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	stmts := []string{
		`PRAGMA journal_mode=WAL;`,
		`
CREATE TABLE IF NOT EXISTS runs (
  id TEXT PRIMARY KEY,
  symbol TEXT NOT NULL,
  strategy TEXT NOT NULL,
  started_at TEXT NOT NULL,
  finished_at TEXT NOT NULL,
  initial_capital TEXT NOT NULL,
  total_trades INTEGER NOT NULL,
  win_rate REAL NOT NULL,
  profit_factor REAL NOT NULL,
  total_pnl TEXT NOT NULL,
  max_drawdown_pct REAL NOT NULL,
  sharpe_ratio REAL NOT NULL
);`,
		`
CREATE TABLE IF NOT EXISTS trades (
  id TEXT PRIMARY KEY,
  run_id TEXT NOT NULL,
  symbol TEXT NOT NULL,
  direction TEXT NOT NULL,
  entry_time TEXT NOT NULL,
  exit_time TEXT NOT NULL,
  entry_price REAL NOT NULL,
  exit_price REAL NOT NULL,
  size REAL NOT NULL,
  stop_loss REAL NOT NULL,
  take_profit REAL NOT NULL,
  pnl TEXT NOT NULL,
  pnl_pct REAL NOT NULL,
  fees_paid TEXT NOT NULL,
  exit_reason TEXT NOT NULL
);`,
		`CREATE INDEX IF NOT EXISTS idx_trades_run ON trades(run_id, exit_time);`,
		`
CREATE TABLE IF NOT EXISTS rule_events (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  action TEXT NOT NULL,
  event TEXT NOT NULL,
  meta TEXT NOT NULL,
  ts TEXT NOT NULL
);`,
		`
CREATE TABLE IF NOT EXISTS rule_audit (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  kind TEXT NOT NULL, -- "dispatch" | "fired"
  event TEXT NOT NULL,
  detail TEXT NOT NULL,
  ts TEXT NOT NULL
);`,
	}
	for _, stmt := range stmts {
		if _, err := j.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate journal: %w", err)
		}
	}
	return nil
}

// RecordTrade stores one closed trade under a run id.
func (j *Journal) RecordTrade(ctx context.Context, runID string, t *domain.Trade) error {
	_, err := j.db.ExecContext(ctx, `
INSERT INTO trades (id, run_id, symbol, direction, entry_time, exit_time, entry_price, exit_price, size, stop_loss, take_profit, pnl, pnl_pct, fees_paid, exit_reason)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
`, t.ID, runID, t.Symbol, string(t.Direction),
		t.EntryTime.Format(time.RFC3339Nano), t.ExitTime.Format(time.RFC3339Nano),
		t.EntryPrice, t.ExitPrice, t.Size, t.StopLoss, t.TakeProfit,
		t.PnL.String(), t.PnLPct, t.FeesPaid.String(), t.ExitReason)
	if err != nil {
		return fmt.Errorf("insert trade: %w", err)
	}
	return nil
}

// Run is a stored backtest run summary.
type Run struct {
	ID             string          `json:"id"`
	Symbol         string          `json:"symbol"`
	Strategy       string          `json:"strategy"`
	StartedAt      time.Time       `json:"started_at"`
	FinishedAt     time.Time       `json:"finished_at"`
	InitialCapital decimal.Decimal `json:"initial_capital"`
	TotalTrades    int             `json:"total_trades"`
	WinRate        float64         `json:"win_rate"`
	ProfitFactor   float64         `json:"profit_factor"`
	TotalPnL       decimal.Decimal `json:"total_pnl"`
	MaxDrawdownPct float64         `json:"max_drawdown_pct"`
	SharpeRatio    float64         `json:"sharpe_ratio"`
}

// RecordRun stores a run summary.
func (j *Journal) RecordRun(ctx context.Context, r Run) error {
	_, err := j.db.ExecContext(ctx, `
INSERT INTO runs (id, symbol, strategy, started_at, finished_at, initial_capital, total_trades, win_rate, profit_factor, total_pnl, max_drawdown_pct, sharpe_ratio)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?)
`, r.ID, r.Symbol, r.Strategy,
		r.StartedAt.Format(time.RFC3339Nano), r.FinishedAt.Format(time.RFC3339Nano),
		r.InitialCapital.String(), r.TotalTrades, r.WinRate, r.ProfitFactor,
		r.TotalPnL.String(), r.MaxDrawdownPct, r.SharpeRatio)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// ListRuns returns run summaries, newest first.
func (j *Journal) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 || limit > 2000 {
		limit = 200
	}
	rows, err := j.db.QueryContext(ctx, `
SELECT id, symbol, strategy, started_at, finished_at, initial_capital, total_trades, win_rate, profit_factor, total_pnl, max_drawdown_pct, sharpe_ratio
FROM runs
ORDER BY started_at DESC
LIMIT ?
`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var (
			r                 Run
			started, finished string
			initial, pnl      string
		)
		if err := rows.Scan(&r.ID, &r.Symbol, &r.Strategy, &started, &finished, &initial,
			&r.TotalTrades, &r.WinRate, &r.ProfitFactor, &pnl, &r.MaxDrawdownPct, &r.SharpeRatio); err != nil {
			return nil, err
		}
		r.StartedAt, _ = time.Parse(time.RFC3339Nano, started)
		r.FinishedAt, _ = time.Parse(time.RFC3339Nano, finished)
		r.InitialCapital, _ = decimal.NewFromString(initial)
		r.TotalPnL, _ = decimal.NewFromString(pnl)
		out = append(out, r)
	}
	return out, rows.Err()
}

// ListTrades returns a run's trades ordered by exit time. runID "" lists
// across runs.
func (j *Journal) ListTrades(ctx context.Context, runID string, limit int) ([]*domain.Trade, error) {
	if limit <= 0 || limit > 5000 {
		limit = 500
	}
	rows, err := j.db.QueryContext(ctx, `
SELECT id, symbol, direction, entry_time, exit_time, entry_price, exit_price, size, stop_loss, take_profit, pnl, pnl_pct, fees_paid, exit_reason
FROM trades
WHERE (?='' OR run_id=?)
ORDER BY exit_time
LIMIT ?
`, runID, runID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Trade
	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func scanTrade(rows *sql.Rows) (*domain.Trade, error) {
	var (
		t                   domain.Trade
		direction           string
		entryTime, exitTime string
		pnl, fees           string
	)
	if err := rows.Scan(&t.ID, &t.Symbol, &direction, &entryTime, &exitTime,
		&t.EntryPrice, &t.ExitPrice, &t.Size, &t.StopLoss, &t.TakeProfit,
		&pnl, &t.PnLPct, &fees, &t.ExitReason); err != nil {
		return nil, err
	}
	t.Direction = domain.Direction(direction)
	t.EntryTime, _ = time.Parse(time.RFC3339Nano, entryTime)
	t.ExitTime, _ = time.Parse(time.RFC3339Nano, exitTime)
	t.PnL, _ = decimal.NewFromString(pnl)
	t.FeesPaid, _ = decimal.NewFromString(fees)
	return &t, nil
}

// Summary aggregates a run's trades the way the report generator does.
type Summary struct {
	TotalTrades   int             `json:"total_trades"`
	WinningTrades int             `json:"winning_trades"`
	LosingTrades  int             `json:"losing_trades"`
	WinRate       float64         `json:"win_rate"` // percent
	TotalPnL      decimal.Decimal `json:"total_pnl"`
	ProfitFactor  float64         `json:"profit_factor"`
	AverageWin    decimal.Decimal `json:"average_win"`
	AverageLoss   decimal.Decimal `json:"average_loss"` // positive magnitude
	MaxWin        decimal.Decimal `json:"max_win"`
	MaxLoss       decimal.Decimal `json:"max_loss"`
	Expectancy    float64         `json:"expectancy"`
}

// Summarize computes the summary for one run (or all trades with runID "").
func (j *Journal) Summarize(ctx context.Context, runID string) (Summary, error) {
	trades, err := j.ListTrades(ctx, runID, 5000)
	if err != nil {
		return Summary{}, err
	}
	var s Summary
	s.TotalTrades = len(trades)
	if len(trades) == 0 {
		return s, nil
	}

	grossWin, grossLoss := decimal.Zero, decimal.Zero
	for i, t := range trades {
		s.TotalPnL = s.TotalPnL.Add(t.PnL)
		if i == 0 || t.PnL.GreaterThan(s.MaxWin) {
			s.MaxWin = t.PnL
		}
		if i == 0 || t.PnL.LessThan(s.MaxLoss) {
			s.MaxLoss = t.PnL
		}
		if t.Win() {
			s.WinningTrades++
			grossWin = grossWin.Add(t.PnL)
		} else {
			s.LosingTrades++
			grossLoss = grossLoss.Sub(t.PnL)
		}
	}
	s.WinRate = float64(s.WinningTrades) / float64(s.TotalTrades) * 100
	if s.WinningTrades > 0 {
		s.AverageWin = grossWin.Div(decimal.NewFromInt(int64(s.WinningTrades)))
	}
	if s.LosingTrades > 0 {
		s.AverageLoss = grossLoss.Div(decimal.NewFromInt(int64(s.LosingTrades)))
	}
	if grossLoss.IsPositive() {
		pf, _ := grossWin.Div(grossLoss).Float64()
		s.ProfitFactor = pf
	}
	winRate := s.WinRate / 100
	avgWin, _ := s.AverageWin.Float64()
	avgLoss, _ := s.AverageLoss.Float64()
	s.Expectancy = winRate*avgWin - (1-winRate)*avgLoss
	return s, nil
}

var csvHeader = []string{
	"id", "symbol", "direction", "entry_time", "exit_time",
	"entry_price", "exit_price", "size", "pnl", "pnl_pct", "fees_paid", "exit_reason",
}

// ExportCSV writes a run's trades as CSV.
func (j *Journal) ExportCSV(ctx context.Context, w io.Writer, runID string) error {
	trades, err := j.ListTrades(ctx, runID, 5000)
	if err != nil {
		return err
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, t := range trades {
		rec := []string{
			t.ID, t.Symbol, string(t.Direction),
			t.EntryTime.Format(time.RFC3339), t.ExitTime.Format(time.RFC3339),
			strconv.FormatFloat(t.EntryPrice, 'f', -1, 64),
			strconv.FormatFloat(t.ExitPrice, 'f', -1, 64),
			strconv.FormatFloat(t.Size, 'f', -1, 64),
			t.PnL.String(),
			strconv.FormatFloat(t.PnLPct, 'f', -1, 64),
			t.FeesPaid.String(),
			t.ExitReason,
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// Execute implements rules.ActionHandler: every action fired against the
// journal is recorded with the event that triggered it.
func (j *Journal) Execute(ctx context.Context, action string, ev rules.Event) error {
	meta, err := json.Marshal(ev.Meta)
	if err != nil {
		return fmt.Errorf("encode event meta: %w", err)
	}
	_, err = j.db.ExecContext(ctx, `
INSERT INTO rule_events (action, event, meta, ts) VALUES (?,?,?,?)
`, action, ev.Name, string(meta), ev.Time.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("record action %s: %w", action, err)
	}
	return nil
}

// RuleEvent is one recorded action execution.
type RuleEvent struct {
	ID     int64             `json:"id"`
	Action string            `json:"action"`
	Event  string            `json:"event"`
	Meta   map[string]string `json:"meta"`
	TS     time.Time         `json:"ts"`
}

// ListRuleEvents returns recorded actions, newest first.
func (j *Journal) ListRuleEvents(ctx context.Context, limit int) ([]RuleEvent, error) {
	if limit <= 0 || limit > 2000 {
		limit = 200
	}
	rows, err := j.db.QueryContext(ctx, `
SELECT id, action, event, meta, ts FROM rule_events ORDER BY id DESC LIMIT ?
`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RuleEvent
	for rows.Next() {
		var (
			e        RuleEvent
			meta, ts string
		)
		if err := rows.Scan(&e.ID, &e.Action, &e.Event, &meta, &ts); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(meta), &e.Meta); err != nil {
			e.Meta = map[string]string{}
		}
		e.TS, _ = time.Parse(time.RFC3339Nano, ts)
		out = append(out, e)
	}
	return out, rows.Err()
}

// Dispatched implements rules.AuditLogger.
func (j *Journal) Dispatched(event string, fired []string, ts time.Time) {
	j.audit("dispatch", event, fired, ts)
}

// RuleFired implements rules.AuditLogger.
func (j *Journal) RuleFired(event, rule string, actions []string, ts time.Time) {
	j.audit("fired", event, map[string]interface{}{"rule": rule, "actions": actions}, ts)
}

func (j *Journal) audit(kind, event string, detail interface{}, ts time.Time) {
	b, _ := json.Marshal(detail)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := j.db.ExecContext(ctx, `
INSERT INTO rule_audit (kind, event, detail, ts) VALUES (?,?,?,?)
`, kind, event, string(b), ts.Format(time.RFC3339Nano)); err != nil {
		log.Warnf("audit write failed: %v", err)
	}
}

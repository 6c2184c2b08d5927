package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/algobot/gotrade/internal/domain"
	"github.com/algobot/gotrade/internal/journal"
	"github.com/algobot/gotrade/internal/rules"
)

const rulesDoc = `
risk:
  description: risk controls
  children: [max-loss]
max-loss:
  parent: risk
  triggers: [trade_closed]
  actions: [record_loss]
  enforced: true
`

func testServer(t *testing.T) (*Server, *journal.Journal) {
	t.Helper()
	j, err := journal.Open(":memory:")
	if err != nil {
		t.Fatalf("open journal: %v", err)
	}
	t.Cleanup(func() { j.Close() })

	reg := rules.NewRegistry()
	if err := reg.Load(rules.MergeLastWins, []byte(rulesDoc)); err != nil {
		t.Fatalf("load rules: %v", err)
	}
	return New(j, reg), j
}

func doGET(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, into interface{}) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), into); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
}

func seedTrade(t *testing.T, j *journal.Journal, runID string, pnl float64) *domain.Trade {
	t.Helper()
	entry := time.Date(2024, 3, 4, 14, 30, 0, 0, time.UTC)
	tr := domain.NewTrade("BTCUSDT", domain.DirectionLong, entry, 100, 1)
	tr.ExitTime = entry.Add(2 * time.Hour)
	tr.ExitPrice = 100 + pnl
	tr.PnL = decimal.NewFromFloat(pnl)
	tr.ExitReason = domain.ExitReasonTakeProfit
	if err := j.RecordTrade(context.Background(), runID, tr); err != nil {
		t.Fatalf("record trade: %v", err)
	}
	return tr
}

func TestHealthz(t *testing.T) {
	s, _ := testServer(t)
	w := doGET(t, s.Router(), "/healthz")
	if w.Code != http.StatusOK {
		t.Fatalf("healthz status = %d", w.Code)
	}
}

func TestRunsAndTrades(t *testing.T) {
	s, j := testServer(t)
	r := s.Router()

	if err := j.RecordRun(context.Background(), journal.Run{
		ID:             "run-1",
		Symbol:         "BTCUSDT",
		Strategy:       "bos_fvg",
		StartedAt:      time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC),
		FinishedAt:     time.Date(2024, 3, 4, 0, 1, 0, 0, time.UTC),
		InitialCapital: decimal.NewFromInt(10000),
		TotalTrades:    2,
	}); err != nil {
		t.Fatalf("record run: %v", err)
	}
	seedTrade(t, j, "run-1", 30)
	seedTrade(t, j, "run-1", -10)
	seedTrade(t, j, "run-2", 5)

	var runsResp struct {
		Runs []journal.Run `json:"runs"`
	}
	w := doGET(t, r, "/api/runs")
	if w.Code != http.StatusOK {
		t.Fatalf("runs status = %d", w.Code)
	}
	decode(t, w, &runsResp)
	if len(runsResp.Runs) != 1 || runsResp.Runs[0].ID != "run-1" {
		t.Fatalf("runs = %+v", runsResp.Runs)
	}

	var tradesResp struct {
		Trades []json.RawMessage `json:"trades"`
	}
	w = doGET(t, r, "/api/runs/run-1/trades")
	decode(t, w, &tradesResp)
	if len(tradesResp.Trades) != 2 {
		t.Fatalf("run-1 trades = %d, want 2", len(tradesResp.Trades))
	}

	w = doGET(t, r, "/api/trades")
	tradesResp.Trades = nil
	decode(t, w, &tradesResp)
	if len(tradesResp.Trades) != 3 {
		t.Fatalf("all trades = %d, want 3", len(tradesResp.Trades))
	}
}

func TestRunSummary(t *testing.T) {
	s, j := testServer(t)
	seedTrade(t, j, "run-1", 30)
	seedTrade(t, j, "run-1", -10)

	var summary journal.Summary
	w := doGET(t, s.Router(), "/api/runs/run-1/summary")
	if w.Code != http.StatusOK {
		t.Fatalf("summary status = %d", w.Code)
	}
	decode(t, w, &summary)
	if summary.TotalTrades != 2 || summary.WinningTrades != 1 {
		t.Fatalf("summary = %+v", summary)
	}
	if summary.ProfitFactor != 3 {
		t.Fatalf("profit factor = %v, want 3", summary.ProfitFactor)
	}
}

func TestRunExportCSV(t *testing.T) {
	s, j := testServer(t)
	seedTrade(t, j, "run-1", 30)

	w := doGET(t, s.Router(), "/api/runs/run-1/export.csv")
	if w.Code != http.StatusOK {
		t.Fatalf("export status = %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/csv") {
		t.Fatalf("content type = %q", ct)
	}
	lines := strings.Split(strings.TrimSpace(w.Body.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("csv lines = %d, want header + 1 row", len(lines))
	}
	if !strings.HasPrefix(lines[0], "id,symbol,direction") {
		t.Fatalf("csv header = %q", lines[0])
	}
}

func TestRuleEventsEndpoint(t *testing.T) {
	s, j := testServer(t)
	ev := rules.Event{Name: "trade_closed", Time: time.Now().UTC()}
	if err := j.Execute(context.Background(), "record_loss", ev); err != nil {
		t.Fatalf("execute: %v", err)
	}

	var resp struct {
		Events []journal.RuleEvent `json:"events"`
	}
	w := doGET(t, s.Router(), "/api/events")
	decode(t, w, &resp)
	if len(resp.Events) != 1 || resp.Events[0].Action != "record_loss" {
		t.Fatalf("events = %+v", resp.Events)
	}
}

func TestRulesList(t *testing.T) {
	s, _ := testServer(t)

	var resp struct {
		State string     `json:"state"`
		Rules []ruleView `json:"rules"`
	}
	w := doGET(t, s.Router(), "/api/rules")
	if w.Code != http.StatusOK {
		t.Fatalf("rules status = %d", w.Code)
	}
	decode(t, w, &resp)
	if resp.State != "ready" {
		t.Fatalf("state = %q, want ready", resp.State)
	}
	if len(resp.Rules) != 2 {
		t.Fatalf("rules = %d, want 2", len(resp.Rules))
	}
}

func TestRuleGet(t *testing.T) {
	s, _ := testServer(t)
	r := s.Router()

	var resp struct {
		Rule        ruleView `json:"rule"`
		Ancestors   []string `json:"ancestors"`
		Descendants []string `json:"descendants"`
	}
	w := doGET(t, r, "/api/rules/max-loss")
	if w.Code != http.StatusOK {
		t.Fatalf("rule status = %d", w.Code)
	}
	decode(t, w, &resp)
	if resp.Rule.Name != "max-loss" || !resp.Rule.Enforced {
		t.Fatalf("rule = %+v", resp.Rule)
	}
	if len(resp.Ancestors) != 1 || resp.Ancestors[0] != "risk" {
		t.Fatalf("ancestors = %v", resp.Ancestors)
	}

	w = doGET(t, r, "/api/rules/nope")
	if w.Code != http.StatusNotFound {
		t.Fatalf("unknown rule status = %d", w.Code)
	}
}

func TestRulesListWithoutRegistry(t *testing.T) {
	j, err := journal.Open(":memory:")
	if err != nil {
		t.Fatalf("open journal: %v", err)
	}
	defer j.Close()
	s := New(j, nil)

	var resp struct {
		State string     `json:"state"`
		Rules []ruleView `json:"rules"`
	}
	w := doGET(t, s.Router(), "/api/rules")
	decode(t, w, &resp)
	if resp.State != "unloaded" || len(resp.Rules) != 0 {
		t.Fatalf("resp = %+v", resp)
	}

	w = doGET(t, s.Router(), "/api/rules/risk")
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
}

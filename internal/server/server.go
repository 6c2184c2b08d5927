// Package server exposes the journal and the rule registry over a small
// HTTP API.
package server

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/algobot/gotrade/internal/journal"
	"github.com/algobot/gotrade/internal/rules"
)

var log = logrus.WithField("component", "server")

type Server struct {
	journal  *journal.Journal
	registry *rules.Registry // may be nil when no rules are loaded
}

func New(j *journal.Journal, reg *rules.Registry) *Server {
	return &Server{journal: j, registry: reg}
}

func (s *Server) Router() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusOK) })

	api := r.Group("/api")

	runs := api.Group("/runs")
	runs.GET("", s.handleRunsList)
	runs.GET("/:runID/trades", s.handleRunTrades)
	runs.GET("/:runID/summary", s.handleRunSummary)
	runs.GET("/:runID/export.csv", s.handleRunExport)

	api.GET("/trades", s.handleAllTrades)
	api.GET("/events", s.handleRuleEvents)

	rulesAPI := api.Group("/rules")
	rulesAPI.GET("", s.handleRulesList)
	rulesAPI.GET("/:name", s.handleRuleGet)

	return r
}

// Run serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context, listen string) error {
	srv := &http.Server{Addr: listen, Handler: s.Router()}

	errCh := make(chan error, 1)
	go func() {
		log.Infof("listening on %s", listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func limitParam(c *gin.Context) int {
	n, err := strconv.Atoi(c.DefaultQuery("limit", "0"))
	if err != nil {
		return 0
	}
	return n
}

func (s *Server) handleRunsList(c *gin.Context) {
	runs, err := s.journal.ListRuns(c.Request.Context(), limitParam(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs})
}

func (s *Server) handleRunTrades(c *gin.Context) {
	trades, err := s.journal.ListTrades(c.Request.Context(), c.Param("runID"), limitParam(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"trades": trades})
}

func (s *Server) handleAllTrades(c *gin.Context) {
	trades, err := s.journal.ListTrades(c.Request.Context(), "", limitParam(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"trades": trades})
}

func (s *Server) handleRunSummary(c *gin.Context) {
	summary, err := s.journal.Summarize(c.Request.Context(), c.Param("runID"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (s *Server) handleRunExport(c *gin.Context) {
	c.Header("Content-Type", "text/csv")
	c.Header("Content-Disposition", `attachment; filename="trades.csv"`)
	if err := s.journal.ExportCSV(c.Request.Context(), c.Writer, c.Param("runID")); err != nil {
		log.Warnf("csv export failed: %v", err)
	}
}

func (s *Server) handleRuleEvents(c *gin.Context) {
	events, err := s.journal.ListRuleEvents(c.Request.Context(), limitParam(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}

type ruleView struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Parent      string   `json:"parent,omitempty"`
	Children    []string `json:"children,omitempty"`
	Path        string   `json:"path,omitempty"`
	Triggers    []string `json:"triggers,omitempty"`
	Actions     []string `json:"actions,omitempty"`
	Enforced    bool     `json:"enforced"`
}

func viewOf(r *rules.Rule) ruleView {
	return ruleView{
		Name:        r.Name,
		Description: r.Description,
		Parent:      r.Parent,
		Children:    r.Children,
		Path:        r.Path,
		Triggers:    r.Triggers,
		Actions:     r.Actions,
		Enforced:    r.Enforced,
	}
}

func (s *Server) handleRulesList(c *gin.Context) {
	if s.registry == nil {
		c.JSON(http.StatusOK, gin.H{"state": rules.StateUnloaded.String(), "rules": []ruleView{}})
		return
	}
	views := make([]ruleView, 0, s.registry.Len())
	for _, r := range s.registry.Rules() {
		views = append(views, viewOf(r))
	}
	c.JSON(http.StatusOK, gin.H{"state": s.registry.State().String(), "rules": views})
}

func (s *Server) handleRuleGet(c *gin.Context) {
	name := c.Param("name")
	if s.registry == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no rules loaded"})
		return
	}
	rule, ok := s.registry.Get(name)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown rule " + name})
		return
	}
	ancestors, err := s.registry.Ancestors(name)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	descendants, err := s.registry.Descendants(name)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"rule":        viewOf(rule),
		"ancestors":   ancestors,
		"descendants": descendants,
	})
}

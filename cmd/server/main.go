package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/algobot/gotrade/internal/journal"
	"github.com/algobot/gotrade/internal/rules"
	"github.com/algobot/gotrade/internal/server"
	"github.com/algobot/gotrade/pkg/config"
	"github.com/algobot/gotrade/pkg/logger"
)

func main() {
	var (
		configPath = flag.String("config", "config.yaml", "config file path")
		listen     = flag.String("listen", "", "override listen address")
	)
	flag.Parse()

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fatal(fmt.Errorf("load .env: %w", err))
	}

	cfg, err := config.LoadFromFile(*configPath, func(c *config.Config) {
		if *listen != "" {
			c.Server.Listen = *listen
		}
	})
	if err != nil {
		fatal(err)
	}
	if err := logger.Init(cfg.Logging); err != nil {
		fatal(err)
	}

	j, err := journal.Open(cfg.Journal.Path)
	if err != nil {
		fatal(err)
	}
	defer j.Close()

	var reg *rules.Registry
	if len(cfg.Rules.Files) > 0 {
		reg = rules.NewRegistry()
		if err := reg.LoadFiles(cfg.Rules.Policy(), cfg.Rules.Files...); err != nil {
			// the API still serves the journal; /api/rules reports the state
			logrus.Errorf("rule load failed: %v", err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := server.New(j, reg)
	if err := srv.Run(ctx, cfg.Server.Listen); err != nil && !errors.Is(err, http.ErrServerClosed) {
		fatal(err)
	}
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, "error:", err)
	os.Exit(1)
}

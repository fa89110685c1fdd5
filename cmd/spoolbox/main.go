// spoolbox
// Copyright 2025 The spoolbox authors
// This program is free software licensed under the GNU General Public License,
// version 3.0. The full text of the license can be found in LICENSE.txt.
// SPDX-License-Identifier: GPL-3.0-only

package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/spoolbox/spoolbox/pkg/config"
	"github.com/spoolbox/spoolbox/pkg/metrics"
	"github.com/spoolbox/spoolbox/pkg/queue"
	"github.com/spoolbox/spoolbox/pkg/version"
)

func main() {
	configPath := flag.String("config", "spoolbox.toml", "path to the configuration file")
	showVersion := flag.Bool("version", false, "print the version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Print(version.VersionString)
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config file: %s\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "config file: %s\n", err)
		os.Exit(1)
	}

	log := newLogger(cfg.LogLevel)
	defer log.Sync()

	accounts, err := loadAccounts(cfg.AccountsFile)
	if err != nil {
		log.Fatal("failed to load accounts", zap.Error(err))
	}

	var mc metrics.Collector = metrics.NopCollector{}
	if cfg.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		mc = metrics.NewPrometheusCollector(reg)
		go serveMetrics(cfg.Metrics, reg, log)
	}

	// Policy was checked by Validate above.
	policy, _ := cfg.QueuePolicy()
	q := queue.New(cfg.Queue.Capacity, policy, mc)

	registry := newMailboxRegistry(cfg.SpoolDir)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	for i := 0; i < cfg.Queue.Workers; i++ {
		w := queue.NewWorker(q, registry, cfg.Domain,
			log.With(zap.Int("worker", i)), mc)
		go w.Run(ctx)
	}

	pop3 := runPOP3Server(cfg, accounts, log, mc)
	smtp := runSMTPServer(cfg, accounts, q, log, mc)

	for {
		select {
		case cm := <-pop3:
			if cm == ServerControlRestart {
				pop3 = runPOP3Server(cfg, accounts, log, mc)
			} else {
				return
			}
		case <-smtp:
			// smtp never restarts.
			return
		}
	}
}

func newLogger(level string) *zap.Logger {
	lvl := zapcore.InfoLevel
	if level != "" {
		if err := lvl.Set(level); err != nil {
			lvl = zapcore.InfoLevel
		}
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	log, err := cfg.Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %s\n", err)
		os.Exit(1)
	}
	return log
}

func serveMetrics(cfg config.MetricsConfig, reg *prometheus.Registry, log *zap.Logger) {
	mux := http.NewServeMux()
	mux.Handle(cfg.Path, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	log.Info("starting metrics listener",
		zap.String("address", cfg.Address),
		zap.String("path", cfg.Path))
	if err := http.ListenAndServe(cfg.Address, mux); err != nil {
		log.Error("metrics listener failed", zap.Error(err))
	}
}

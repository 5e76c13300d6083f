package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/aktrade/tradecore/internal/config"
	"github.com/aktrade/tradecore/internal/metrics"
	"github.com/aktrade/tradecore/internal/reconcile"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

const (
	flushCadence  = 5 * time.Second
	metricsCadence = 10 * time.Second
	mtmPersistCadence = 60 * time.Second
	dailyResetCadence = time.Minute
	metricsAddr   = ":9090"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "run the execution core against the mode configured in config.yaml",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runLoop(false)
	},
}

var paperCmd = &cobra.Command{
	Use:   "paper",
	Short: "run the execution core in PAPER mode, ignoring config.yaml's trading_mode",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runLoop(true)
	},
}

func runLoop(forcePaper bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	core, err := buildCore(cfg, forcePaper)
	if err != nil {
		return fmt.Errorf("run: %w", err)
	}
	defer core.storage.Close()

	slog.Info("engine starting", "trading_mode", cfg.TradingMode, "user", core.userID)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	ticks, err := core.marketdata.Subscribe(ctx, symbolsFor(cfg))
	if err != nil {
		return fmt.Errorf("run: subscribe market data: %w", err)
	}
	defer core.marketdata.Close()

	go serveMetrics()

	flushTicker := time.NewTicker(flushCadence)
	defer flushTicker.Stop()
	scanTicker := time.NewTicker(reconcile.ScanCadence)
	defer scanTicker.Stop()
	retryTicker := time.NewTicker(reconcile.RetryCadence)
	defer retryTicker.Stop()
	mtmTicker := time.NewTicker(mtmPersistCadence)
	defer mtmTicker.Stop()
	metricsTicker := time.NewTicker(metricsCadence)
	defer metricsTicker.Stop()
	dailyTicker := time.NewTicker(dailyResetCadence)
	defer dailyTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("engine stopped cleanly")
			return nil

		case tick, ok := <-ticks:
			if !ok {
				slog.Warn("run: market data channel closed")
				return nil
			}
			core.aggregator.ProcessTick(tick)
			core.mtm.OnTick(tick.Symbol, tick.LastPrice)

		case now := <-flushTicker.C:
			core.aggregator.FlushCompleted(ctx, now)

		case <-scanTicker.C:
			if err := core.reconciler.ScanNonTerminal(ctx); err != nil {
				slog.Error("run: reconcile scan failed", "err", err)
			}

		case <-retryTicker.C:
			if err := core.reconciler.ProcessRetryQueue(ctx); err != nil {
				slog.Error("run: reconcile retry failed", "err", err)
			}

		case <-mtmTicker.C:
			core.mtm.PersistAll(ctx)

		case <-metricsTicker.C:
			recordMetrics(core)

		case <-dailyTicker.C:
			// risk.Gate.DailyReset is idempotent and reports whether the
			// trading date actually rolled over; only then does MTM's
			// realised-today/peak-equity get cleared (spec §4.11 "Daily
			// reset clears realised_today, sets peak_equity = capital").
			if core.gate.DailyReset() {
				core.mtm.DailyReset()
				slog.Info("daily reset applied", "user", core.userID)
			}
		}
	}
}

func symbolsFor(cfg *config.Config) []string {
	if len(cfg.MarketData.Symbols) > 0 {
		return cfg.MarketData.Symbols
	}
	var symbols []string
	for _, u := range cfg.Users {
		for _, sc := range u.Strategies {
			symbols = append(symbols, sc.Symbol)
		}
	}
	if len(symbols) == 0 {
		symbols = []string{"RELIANCE", "TCS", "INFY"}
	}
	return symbols
}

func serveMetrics() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	slog.Info("metrics server listening", "addr", metricsAddr)
	if err := http.ListenAndServe(metricsAddr, mux); err != nil {
		slog.Warn("metrics server stopped", "err", err)
	}
}

func recordMetrics(c *core) {
	qm := c.queue.Metrics(c.userID)
	c.metrics.QueueDepth.WithLabelValues(c.userID).Set(float64(qm.Depth))
	c.metrics.QueueEnqueued.WithLabelValues(c.userID).Set(float64(qm.Enqueued))
	c.metrics.QueueProcessed.WithLabelValues(c.userID).Set(float64(qm.Processed))
	c.metrics.QueueErrors.WithLabelValues(c.userID).Set(float64(qm.Errors))

	c.metrics.ReconcileRetries.Set(float64(c.reconciler.RetryQueueDepth()))

	if c.circuitBreaker != nil {
		c.metrics.BreakerState.WithLabelValues("live_broker").Set(metrics.BreakerStateValue(string(c.circuitBreaker.State())))
	}

	snap := c.mtm.PortfolioSnapshotFor(c.userID)
	c.metrics.PortfolioPnL.WithLabelValues(c.userID).Set(snap.UnrealisedPnL)
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if verbose {
		cfg.Log.Level = "debug"
	}
	if logFormat != "" {
		cfg.Log.Format = logFormat
	}
	setupLogger(cfg.Log.Level, cfg.Log.Format)
	return cfg, nil
}

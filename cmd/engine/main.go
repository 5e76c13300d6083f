// Command engine is the CLI entrypoint for the trading core: it wires
// config, storage, broker, market data, and every pipeline stage together
// and exposes the operations spec.md §6's HTTP front-end would otherwise
// expose, as cobra subcommands (teacher pattern: NimbleMarkets' dbn-go-hist
// rootCmd + subcommand tree, adapted from flags to one cobra tree).
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var (
	configPath string
	verbose    bool
	logFormat  string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "engine",
	Short: "tradecore engine: intraday algorithmic execution core",
	Long:  "tradecore engine runs the tick-to-bar pipeline, strategy evaluation, risk-gated order execution, and MTM tracking for NSE/BSE equities.",
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "path to config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "set log level to debug")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format: text|json (overrides config)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(paperCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(unlockCmd)
	rootCmd.AddCommand(emergencyStopCmd)
	rootCmd.AddCommand(resumeCmd)
	rootCmd.AddCommand(brokerCmd)
}

func setupLogger(level, format string) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: lvl}
	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}

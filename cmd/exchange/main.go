// exchange runs the classroom synthetic stock market: it generates market
// data, executes team orders once per tick, and serves the dashboards.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/atmx/classroom-exchange/internal/config"
)

var (
	version    = "0.1.0"
	configPath string
	logLevel   string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "exchange",
		Short: "Classroom synthetic stock market",
		Long: `exchange simulates a regime-switching stock market, executes team
orders against each new bar, and publishes reports, leaderboards and
dashboard snapshots.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (.toml, .yaml); defaults plus EXCHANGE_* env when empty")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override the configured log level (debug, info, warn, error)")

	rootCmd.AddCommand(versionCmd())
	rootCmd.AddCommand(generateCmd())
	rootCmd.AddCommand(tickCmd())
	rootCmd.AddCommand(stepCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(parseOrderCmd())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("exchange version %s\n", version)
		},
	}
}

// loadConfig reads and validates the configuration and installs the JSON
// logger at the configured level.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var level slog.Level
	switch strings.ToLower(cfg.LogLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})))
	return cfg, nil
}

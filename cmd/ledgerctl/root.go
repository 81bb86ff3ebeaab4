package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"rightsledger/internal/ownership/store"
	"rightsledger/internal/platform/config"
	"rightsledger/internal/platform/logger"
)

var (
	storageDriver string
	logLevel      string
)

var rootCmd = &cobra.Command{
	Use:           "ledgerctl",
	Short:         "Maintenance commands for the rights ledger",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&storageDriver, "driver", "", "Storage driver override (memory, sqlite, postgres)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level override")
}

// loadConfig reads the environment and applies flag overrides.
func loadConfig() (config.Config, error) {
	cfg, err := config.FromEnv()
	if err != nil {
		return config.Config{}, err
	}
	if storageDriver != "" {
		cfg.Storage.Driver = storageDriver
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	// Command output goes to stdout; logs stay on stderr.
	cfg.Log.Format = "text"
	return cfg, cfg.Validate()
}

func newLogger(cfg config.Config) *slog.Logger {
	return logger.NewWithWriter(os.Stderr, cfg.Log)
}

func openLedger(ctx context.Context, cfg config.Config, log *slog.Logger) (store.Ledger, error) {
	if cfg.Storage.Driver == config.DriverMemory {
		log.Warn("memory storage does not outlive this command")
	}
	ledger, err := store.Open(ctx, cfg.Storage, log)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	return ledger, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

package main

import (
	"github.com/spf13/cobra"

	"rightsledger/internal/ownership/expiry"
)

var sweepBatch int

var sweepCmd = &cobra.Command{
	Use:   "sweep-expired",
	Short: "Expire ACTIVE records whose expiration date has passed",
	Args:  cobra.NoArgs,
	RunE:  runSweep,
}

func init() {
	sweepCmd.Flags().IntVar(&sweepBatch, "batch", 0, "Records per batch (defaults to LEDGER_EXPIRY_BATCH_SIZE)")
	rootCmd.AddCommand(sweepCmd)
}

func runSweep(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := newLogger(cfg)
	ctx := cmd.Context()
	ledger, err := openLedger(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer ledger.Close()

	batch := cfg.Expiry.BatchSize
	if sweepBatch > 0 {
		batch = sweepBatch
	}
	detector := newDetector(ledger, cfg, log)
	sweeper := expiry.New(ledger,
		expiry.WithLogger(log),
		expiry.WithBatchSize(batch),
		expiry.WithDetection(detector),
	)
	result, err := sweeper.Sweep(ctx)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), result)
}

package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"rightsledger/internal/ownership/conflict"
	"rightsledger/internal/ownership/models"
	"rightsledger/internal/ownership/ports"
	"rightsledger/internal/platform/config"
)

var (
	detectCategory string
	detectAll      bool
)

var detectCmd = &cobra.Command{
	Use:   "detect [track|album] [id]",
	Short: "Run conflict detection for one subject or every subject",
	Example: `  ledgerctl detect track trk-123 --category master
  ledgerctl detect --all`,
	Args: func(cmd *cobra.Command, args []string) error {
		if detectAll {
			return cobra.NoArgs(cmd, args)
		}
		return cobra.ExactArgs(2)(cmd, args)
	},
	RunE: runDetect,
}

func init() {
	detectCmd.Flags().StringVar(&detectCategory, "category", "", "Rights category (all categories when empty)")
	detectCmd.Flags().BoolVar(&detectAll, "all", false, "Sweep every subject holding ACTIVE records")
	rootCmd.AddCommand(detectCmd)
}

func newDetector(tx ports.StoreTx, cfg config.Config, log *slog.Logger) *conflict.Detector {
	return conflict.New(tx,
		conflict.WithLogger(log),
		conflict.WithMarkDisputed(cfg.Detection.MarkDisputed),
	)
}

func runDetect(cmd *cobra.Command, args []string) error {
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
	detector := newDetector(ledger, cfg, log)

	if detectAll {
		report, err := detector.SweepAll(ctx)
		if perr := printJSON(cmd.OutOrStdout(), report); perr != nil {
			return perr
		}
		return err
	}

	subject := models.Subject{Type: models.SubjectType(args[0]), ID: args[1]}
	if !subject.IsValid() {
		return fmt.Errorf("subject must be track or album with an id, got %q %q", args[0], args[1])
	}
	var category models.RightsCategory
	if detectCategory != "" {
		c, ok := models.ParseRightsCategory(detectCategory)
		if !ok {
			return fmt.Errorf("unknown rights category %q", detectCategory)
		}
		category = c
	}
	report, err := detector.DetectSubject(ctx, subject, category)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), report)
}

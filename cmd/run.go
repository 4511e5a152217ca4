package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/brensch/figcoco/internal/db"
	"github.com/brensch/figcoco/internal/orchestrator"
)

var reprocessRun bool
var tuiRun bool

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Merge new worker archives into the dataset",
	Long: `Performs one aggregation run:
1. Loads the dataset (or the template when none exists) and quarantines
   images in the image store that no record references.
2. Discovers worker archives under the input directory and skips the ones
   the event log reports as already merged.
3. For each batch: extracts archives concurrently, pairs images with their
   detection files, assigns ids, moves images into the image store and
   persists the dataset.
Use --reprocess to merge every discovered archive again.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := getLogger()
		cfg := getConfig()
		cfg.Reprocess = reprocessRun
		ledger := db.NewEventLog(getDB())

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if tuiRun {
			return runTUI(ctx, cfg, ledger, 0)
		}

		logger.Info("Starting aggregation run.", "run_id", ledger.RunID(), "reprocess", cfg.Reprocess)
		sum, err := orchestrator.RunAggregation(ctx, cfg, ledger, logger, nil)
		if err != nil {
			return fmt.Errorf("run failed: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), summaryText(sum))
		return nil
	},
}

func summaryText(sum orchestrator.Summary) string {
	return fmt.Sprintf("merged %d archives in %d batches: %d images, %d annotations (%d items dropped, %d archives already merged); next ids image=%d annotation=%d",
		sum.Archives, sum.Batches, sum.Images, sum.Annotations, sum.Dropped, sum.SkippedPrior, sum.NextImageID, sum.NextAnnotID)
}

func init() {
	runCmd.Flags().BoolVar(&reprocessRun, "reprocess", false, "Merge every discovered archive, ignoring the event log.")
	runCmd.Flags().BoolVar(&tuiRun, "tui", false, "Show live progress in a terminal UI.")
}

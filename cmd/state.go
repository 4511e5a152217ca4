package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/brensch/figcoco/internal/db"
)

var stateLimit int
var stateFilterEvent string

var stateCmd = &cobra.Command{
	Use:   "state [run|archive|batch|image]",
	Short: "View the event log",
	Long: `Queries the DuckDB event log and prints the most recent events.
Pass a subject type to filter by it; use --event to filter by event name.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := getLogger()
		subjectFilter := ""
		if len(args) > 0 {
			switch s := strings.ToLower(args[0]); s {
			case db.SubjectRun, db.SubjectArchive, db.SubjectBatch, db.SubjectImage:
				subjectFilter = s
			default:
				return fmt.Errorf("invalid subject type filter: %s (use run, archive, batch or image)", args[0])
			}
		}

		logger.Debug("Querying event log", "subject_filter", subjectFilter, "event_filter", stateFilterEvent, "limit", stateLimit)
		if err := db.DisplayEventLog(context.Background(), getDB(), cmd.OutOrStdout(), subjectFilter, stateFilterEvent, stateLimit); err != nil {
			return fmt.Errorf("display event log: %w", err)
		}
		return nil
	},
}

func init() {
	stateCmd.Flags().IntVarP(&stateLimit, "limit", "n", 50, "Limit the number of log records displayed")
	stateCmd.Flags().StringVarP(&stateFilterEvent, "event", "e", "", "Filter records by event (e.g. persisted, error, orphan)")
}

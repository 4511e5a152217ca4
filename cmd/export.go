package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/brensch/figcoco/internal/config"
	"github.com/brensch/figcoco/internal/saver"
	"github.com/brensch/figcoco/internal/store"
)

var exportDir string
var exportEvents bool

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write the dataset (and optionally the event log) as Parquet files",
	Long: `Reads the dataset and writes images.parquet and annotations.parquet to the
export directory. With --events the DuckDB event log is copied to
events.parquet as well.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := getLogger()
		cfg := getConfig()
		dir := exportDir
		if dir == "" {
			dir = defaultExportDir(cfg)
		}
		ctx := context.Background()

		ds, err := store.ReadDataset(cfg.DatasetPath)
		if err != nil {
			return fmt.Errorf("read dataset: %w", err)
		}
		logger.Info("Starting Parquet export...", slog.String("dataset", cfg.DatasetPath), slog.String("export_dir", dir))
		out, err := saver.ExportDataset(ctx, ds, dir, logger)
		if err != nil {
			return fmt.Errorf("export failed: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s\t%d rows\n%s\t%d rows\n", out.ImagesPath, out.ImageRows, out.AnnotationsPath, out.AnnotationRows)

		if exportEvents {
			path, err := saver.ExportEventLog(ctx, getDB(), dir, logger)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
		}
		return nil
	},
}

func defaultExportDir(cfg config.Config) string {
	return filepath.Join(cfg.OutputDir, "parquet")
}

func init() {
	exportCmd.Flags().StringVar(&exportDir, "export-dir", "", "Directory for Parquet files (default <output-dir>/parquet)")
	exportCmd.Flags().BoolVar(&exportEvents, "events", false, "Also export the event log")
}

package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/brensch/figcoco/internal/analyser"
)

var analyseDir string

var analyseCmd = &cobra.Command{
	Use:   "analyse",
	Short: "Summarize an exported dataset with DuckDB",
	Long: `Creates DuckDB views over images.parquet and annotations.parquet (see
'figcoco export') and prints annotation counts, box area statistics and the
most common image sizes.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := analyseDir
		if dir == "" {
			dir = defaultExportDir(getConfig())
		}
		r, err := analyser.Analyse(context.Background(), getDB(), dir, getLogger())
		if err != nil {
			return fmt.Errorf("analysis failed: %w", err)
		}
		return r.Write(cmd.OutOrStdout())
	},
}

func init() {
	analyseCmd.Flags().StringVar(&analyseDir, "export-dir", "", "Directory holding the exported Parquet files (default <output-dir>/parquet)")
}

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/brensch/figcoco/internal/inspector"
)

var verifyNoFiles bool

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Check the dataset's id ordering, references and image files",
	Long: `Loads the dataset and reports invariant violations (duplicate or
out-of-order ids, annotations pointing at missing images, inconsistent boxes),
image records whose file is missing from the image store, and files in the
image store that no record references. Exits non-zero when anything is found.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := getConfig()
		imageDir := cfg.ImageDir
		if verifyNoFiles {
			imageDir = ""
		}
		r, err := inspector.Inspect(cfg.DatasetPath, imageDir, getLogger())
		if err != nil {
			return err
		}
		if err := r.Write(cmd.OutOrStdout()); err != nil {
			return err
		}
		if !r.OK() {
			return fmt.Errorf("dataset %s failed verification: %d violations, %d missing files, %d unreferenced files",
				cfg.DatasetPath, len(r.Violations), len(r.MissingFiles), len(r.UnreferencedFiles))
		}
		return nil
	},
}

func init() {
	verifyCmd.Flags().BoolVar(&verifyNoFiles, "no-files", false, "Skip the image store checks.")
}

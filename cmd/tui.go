package cmd

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/brensch/figcoco/internal/analyser"
	"github.com/brensch/figcoco/internal/app"
	"github.com/brensch/figcoco/internal/config"
	"github.com/brensch/figcoco/internal/db"
	"github.com/brensch/figcoco/internal/inspector"
	"github.com/brensch/figcoco/internal/orchestrator"
	"github.com/brensch/figcoco/internal/saver"
	"github.com/brensch/figcoco/internal/store"
)

var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Interactive menu for run, verify, export and analyse",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return runTUI(ctx, getConfig(), db.NewEventLog(getDB()), -1)
	},
}

// runTUI shows the menu, optionally starting the item at startWith. Terminal
// logging would corrupt the screen, so it is redirected to a rotating file in
// the output directory.
func runTUI(ctx context.Context, cfg config.Config, ledger *db.EventLog, startWith int) error {
	if strings.EqualFold(logOutput, "stderr") || strings.EqualFold(logOutput, "stdout") {
		logger, closer, err := newLogger(filepath.Join(cfg.OutputDir, "figcoco.log"), logFormat, logLevel)
		if err != nil {
			return err
		}
		rootLogger, logCloser = logger, closer
	}
	logger := getLogger()

	m := app.NewAppModel(ctx, menuItems(cfg, ledger), logger)
	if startWith >= 0 {
		m.StartWith(startWith)
	}
	if err := app.Run(m, tea.WithAltScreen()); err != nil {
		return fmt.Errorf("terminal UI: %w", err)
	}
	return m.Err()
}

func menuItems(cfg config.Config, ledger *db.EventLog) []app.MenuItem {
	exportDir := defaultExportDir(cfg)
	return []app.MenuItem{
		{Title: "Run aggregation", Task: func(ctx context.Context, observe orchestrator.Observer) (string, error) {
			sum, err := orchestrator.RunAggregation(ctx, cfg, ledger, getLogger(), observe)
			if err != nil {
				return "", err
			}
			return summaryText(sum), nil
		}},
		{Title: "Verify dataset", Task: func(ctx context.Context, _ orchestrator.Observer) (string, error) {
			r, err := inspector.Inspect(cfg.DatasetPath, cfg.ImageDir, getLogger())
			if err != nil {
				return "", err
			}
			var buf bytes.Buffer
			if err := r.Write(&buf); err != nil {
				return "", err
			}
			return buf.String(), nil
		}},
		{Title: "Export Parquet", Task: func(ctx context.Context, _ orchestrator.Observer) (string, error) {
			ds, err := store.ReadDataset(cfg.DatasetPath)
			if err != nil {
				return "", err
			}
			out, err := saver.ExportDataset(ctx, ds, exportDir, getLogger())
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("wrote %s (%d rows) and %s (%d rows)", out.ImagesPath, out.ImageRows, out.AnnotationsPath, out.AnnotationRows), nil
		}},
		{Title: "Analyse export", Task: func(ctx context.Context, _ orchestrator.Observer) (string, error) {
			r, err := analyser.Analyse(ctx, getDB(), exportDir, getLogger())
			if err != nil {
				return "", err
			}
			var buf bytes.Buffer
			if err := r.Write(&buf); err != nil {
				return "", err
			}
			return buf.String(), nil
		}},
	}
}

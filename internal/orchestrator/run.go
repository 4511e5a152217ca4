package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/brensch/figcoco/internal/coco"
	"github.com/brensch/figcoco/internal/config"
	"github.com/brensch/figcoco/internal/db"
	"github.com/brensch/figcoco/internal/store"
)

// RunAggregation performs one full aggregation run: it prepares the output
// layout, loads the dataset, reconciles orphaned images, discovers archives,
// drops the ones the event log reports as already merged (unless
// cfg.Reprocess or the dataset file was missing), and hands the rest to a
// Scheduler.
func RunAggregation(ctx context.Context, cfg config.Config, ledger Ledger, logger *slog.Logger, observer Observer) (Summary, error) {
	if ledger == nil {
		ledger = nopLedger{}
	}
	started := time.Now()

	for _, dir := range []string{cfg.OutputDir, cfg.ImageDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return Summary{}, fmt.Errorf("create dir %s: %w", dir, err)
		}
	}
	if _, err := os.Stat(cfg.TempDir); err == nil {
		logger.Warn("Removing scratch dir left by an earlier run.", slog.String("dir", cfg.TempDir))
	}
	if err := os.RemoveAll(cfg.TempDir); err != nil {
		return Summary{}, fmt.Errorf("clear scratch dir %s: %w", cfg.TempDir, err)
	}
	if err := os.MkdirAll(cfg.TempDir, 0o755); err != nil {
		return Summary{}, fmt.Errorf("create scratch dir %s: %w", cfg.TempDir, err)
	}

	st, err := store.Open(cfg.DatasetPath, cfg.TemplatePath, logger)
	if err != nil {
		return Summary{}, err
	}
	ds := st.Dataset()
	if !ds.HasCategory(cfg.CategoryID) {
		logger.Warn("Configured category id is not declared in the dataset categories.", slog.Int("category_id", cfg.CategoryID))
	}
	if err := coco.Verify(ds); err != nil {
		logger.Warn("Loaded dataset has integrity problems.", "error", err)
	}

	if err := reconcileOrphans(ctx, cfg, ds, ledger, logger); err != nil {
		return Summary{}, err
	}

	archives, err := DiscoverArchives(cfg, logger)
	if err != nil {
		return Summary{}, err
	}

	// Event log entries only count when the dataset they describe is on disk.
	trustLedger := !cfg.Reprocess
	if trustLedger && !st.Loaded() {
		logger.Warn("Dataset not loaded from disk; ignoring event log and merging every archive.",
			slog.String("dataset", cfg.DatasetPath))
		trustLedger = false
	}

	skipped := 0
	if trustLedger && len(archives) > 0 {
		done, err := ledger.CompletedArchives(ctx, archives, logger)
		if err != nil {
			return Summary{}, fmt.Errorf("query completed archives: %w", err)
		}
		pending := archives[:0:0]
		for _, a := range archives {
			if done[a] {
				logger.Debug("Skipping archive already merged.", slog.String("archive", a))
				if err := ledger.Record(ctx, db.Event{
					Subject: a, SubjectType: db.SubjectArchive, Event: db.EventSkip, Batch: -1, Message: "already merged",
				}); err != nil {
					logger.Warn("Failed to record archive skip.", slog.String("archive", a), "error", err)
				}
				skipped++
				continue
			}
			pending = append(pending, a)
		}
		if skipped > 0 {
			logger.Info("Skipping archives merged by earlier runs.", slog.Int("skipped", skipped), slog.Int("pending", len(pending)))
		}
		archives = pending
	}

	if err := ledger.Record(ctx, db.Event{Subject: cfg.InputDir, SubjectType: db.SubjectRun, Event: db.EventRunStart, Batch: -1}); err != nil {
		logger.Warn("Failed to record run start.", "error", err)
	}

	sum, runErr := NewScheduler(cfg, st, ledger, logger, observer).Run(ctx, archives)
	sum.SkippedPrior = skipped

	duration := time.Since(started)
	end := db.Event{
		Subject: cfg.InputDir, SubjectType: db.SubjectRun, Event: db.EventRunEnd, Batch: -1,
		Images: &sum.Images, Annotations: &sum.Annotations, Duration: &duration,
	}
	if runErr != nil {
		end.Event = db.EventError
		end.Message = runErr.Error()
	}
	// The run may have been cancelled; the end event is still wanted.
	if err := ledger.Record(context.WithoutCancel(ctx), end); err != nil {
		logger.Warn("Failed to record run end.", "error", err)
	}

	if runErr != nil {
		return sum, runErr
	}
	logger.Info("Aggregation complete.",
		slog.Int("batches", sum.Batches),
		slog.Int("archives", sum.Archives),
		slog.Int("images", sum.Images),
		slog.Int("annotations", sum.Annotations),
		slog.Int("dropped_items", sum.Dropped),
		slog.Duration("duration", duration.Round(time.Millisecond)))
	return sum, nil
}

func reconcileOrphans(ctx context.Context, cfg config.Config, ds *coco.Dataset, ledger Ledger, logger *slog.Logger) error {
	quarantine := ""
	if cfg.QuarantineOrphans {
		quarantine = cfg.OrphanDir
	}
	orphans, err := store.ReconcileOrphans(ds, cfg.ImageDir, quarantine, logger)
	if err != nil {
		return fmt.Errorf("reconcile orphaned images: %w", err)
	}
	var recErr error
	for _, o := range orphans {
		recErr = errors.Join(recErr, ledger.Record(ctx, db.Event{
			Subject: o, SubjectType: db.SubjectImage, Event: db.EventOrphan, Batch: -1,
		}))
	}
	if recErr != nil {
		logger.Warn("Failed to record orphan events.", "error", recErr)
	}
	return nil
}

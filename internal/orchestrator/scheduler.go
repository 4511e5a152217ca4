package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/brensch/figcoco/internal/coco"
	"github.com/brensch/figcoco/internal/config"
	"github.com/brensch/figcoco/internal/db"
	"github.com/brensch/figcoco/internal/extractor"
	"github.com/brensch/figcoco/internal/ids"
	"github.com/brensch/figcoco/internal/pairing"
	"github.com/brensch/figcoco/internal/processor"
	"github.com/brensch/figcoco/internal/store"
)

// Ledger records pipeline events and answers which archives are already merged.
type Ledger interface {
	Record(ctx context.Context, ev db.Event) error
	CompletedArchives(ctx context.Context, archives []string, logger *slog.Logger) (map[string]bool, error)
}

// Summary totals one Run.
type Summary struct {
	Batches      int
	Archives     int
	Pairs        int
	Dropped      int
	Images       int
	Annotations  int
	NextImageID  int64
	NextAnnotID  int64
	SkippedPrior int
}

// Scheduler drives batches through extraction, pairing, building and
// persistence. Batches never overlap: each one is persisted and its scratch
// directory removed before the next starts extracting.
type Scheduler struct {
	cfg      config.Config
	store    *store.Store
	ledger   Ledger
	logger   *slog.Logger
	observer Observer
	builder  *processor.Builder
}

// NewScheduler wires a scheduler. ledger and observer may be nil.
func NewScheduler(cfg config.Config, st *store.Store, ledger Ledger, logger *slog.Logger, observer Observer) *Scheduler {
	if ledger == nil {
		ledger = nopLedger{}
	}
	if observer == nil {
		observer = func(Progress) {}
	}
	return &Scheduler{
		cfg:      cfg,
		store:    st,
		ledger:   ledger,
		logger:   logger,
		observer: observer,
		builder: &processor.Builder{
			ImageDir:   cfg.ImageDir,
			CategoryID: cfg.CategoryID,
			Meta: coco.ImageMeta{
				License:      cfg.License,
				DateCaptured: cfg.DateCaptured,
			},
			Logger: logger,
		},
	}
}

// Run merges archives into the store batch by batch. The id allocator is
// created here from the loaded dataset and only ever touched by this goroutine.
func (s *Scheduler) Run(ctx context.Context, archives []string) (Summary, error) {
	alloc := ids.NewAllocator(s.store.Dataset())
	nextImage, nextAnn := alloc.Next()
	batches := Chunk(archives, s.cfg.BatchSize)
	s.logger.Info("Starting aggregation.",
		slog.Int("archives", len(archives)),
		slog.Int("batches", len(batches)),
		slog.Int("batch_size", s.cfg.BatchSize),
		slog.Int("workers", s.cfg.NumWorkers),
		slog.Int64("next_image_id", nextImage),
		slog.Int64("next_annotation_id", nextAnn))

	var sum Summary
	for i, batch := range batches {
		if err := ctx.Err(); err != nil {
			return s.finish(sum, alloc), err
		}
		rep, err := s.runBatch(ctx, i, len(batches), batch, alloc)
		sum.Archives += len(batch)
		sum.Pairs += rep.Pairs
		sum.Dropped += rep.Dropped
		sum.Images += rep.Images
		sum.Annotations += rep.Annotations
		if err != nil {
			return s.finish(sum, alloc), fmt.Errorf("batch %d: %w", i, err)
		}
		sum.Batches++
	}
	return s.finish(sum, alloc), nil
}

func (s *Scheduler) finish(sum Summary, alloc *ids.Allocator) Summary {
	sum.NextImageID, sum.NextAnnotID = alloc.Next()
	return sum
}

type batchReport struct {
	Pairs       int
	Dropped     int
	Images      int
	Annotations int
}

func (s *Scheduler) runBatch(ctx context.Context, index, total int, batch []string, alloc *ids.Allocator) (batchReport, error) {
	var rep batchReport
	l := s.logger.With(slog.Int("batch", index), slog.Int("total_batches", total))
	start := time.Now()
	batchDir := filepath.Join(s.cfg.TempDir, fmt.Sprintf("batch-%06d", index))
	l.Info("Processing batch.", slog.Int("archives", len(batch)))
	s.observer(Progress{Kind: BatchStarted, Batch: index, TotalBatches: total, Archives: len(batch)})

	// 1. Parallel extraction; the pool fully drains before anything else runs.
	results, err := s.extractBatch(ctx, index, total, batchDir, batch)
	if err != nil {
		s.removeScratch(batchDir, l)
		return rep, err
	}

	// 2. Pairing over the concatenated extraction output.
	var images, dets []string
	for _, r := range results {
		images = append(images, r.Images...)
		dets = append(dets, r.Detections...)
	}
	pairs := pairing.Validate(images, dets, l)
	rep.Pairs = len(pairs)
	rep.Dropped = len(images) + len(dets) - 2*len(pairs)

	// 3. Serial build: ids, records, image moves.
	recs, err := s.builder.Build(ctx, pairs, alloc)
	if err != nil {
		if len(recs.Moved) > 0 {
			l.Error("Build failed after moving images; they will be quarantined on the next run.",
				slog.Int("moved", len(recs.Moved)), "error", err)
		}
		s.removeScratch(batchDir, l)
		return rep, fmt.Errorf("build records: %w", err)
	}

	// 4. Merge and checkpoint.
	if err := s.store.Append(recs.Images, recs.Annotations); err != nil {
		s.removeScratch(batchDir, l)
		return rep, fmt.Errorf("append records: %w", err)
	}
	if err := s.store.Persist(); err != nil {
		s.removeScratch(batchDir, l)
		return rep, err
	}
	rep.Images = len(recs.Images)
	rep.Annotations = len(recs.Annotations)
	duration := time.Since(start)

	var ledgerErr error
	for _, archive := range batch {
		ledgerErr = errors.Join(ledgerErr, s.ledger.Record(ctx, db.Event{
			Subject: archive, SubjectType: db.SubjectArchive, Event: db.EventPersisted, Batch: index,
		}))
	}
	ledgerErr = errors.Join(ledgerErr, s.ledger.Record(ctx, db.Event{
		Subject: fmt.Sprintf("%d", index), SubjectType: db.SubjectBatch, Event: db.EventPersisted, Batch: index,
		Images: &rep.Images, Annotations: &rep.Annotations, Duration: &duration,
	}))
	if ledgerErr != nil {
		// The records are durable; without these events a later run merges the archives again.
		l.Warn("Failed to record batch in event log.", "error", ledgerErr)
	}

	nextImage, nextAnn := alloc.Next()
	l.Info("Batch persisted.",
		slog.Int("pairs", rep.Pairs),
		slog.Int("dropped_items", rep.Dropped),
		slog.Int("images", rep.Images),
		slog.Int("annotations", rep.Annotations),
		slog.Int64("next_image_id", nextImage),
		slog.Int64("next_annotation_id", nextAnn),
		slog.Duration("duration", duration.Round(time.Millisecond)))
	s.observer(Progress{
		Kind: BatchPersisted, Batch: index, TotalBatches: total, Archives: len(batch),
		Pairs: rep.Pairs, Images: rep.Images, Annotations: rep.Annotations,
	})

	// 5. Cleanup only after the checkpoint is durable.
	if err := os.RemoveAll(batchDir); err != nil {
		return rep, fmt.Errorf("remove scratch dir %s: %w", batchDir, err)
	}
	return rep, nil
}

// extractBatch extracts every archive of the batch on a pool of
// cfg.NumWorkers goroutines. Each worker owns a numbered slot and extracts
// into <batchDir>/<pid>-<slot>/. The first failure cancels the rest; the pool
// always drains before this returns.
func (s *Scheduler) extractBatch(ctx context.Context, index, total int, batchDir string, batch []string) ([]extractor.Result, error) {
	ex := &extractor.Extractor{
		BaseDir:       batchDir,
		ImageExts:     s.cfg.ImageExts,
		DetectionExts: s.cfg.DetectionExts,
		Logger:        s.logger,
	}

	results := make([]extractor.Result, len(batch))
	errs := make([]error, len(batch))
	durations := make([]time.Duration, len(batch))

	slots := make(chan int, s.cfg.NumWorkers)
	for i := 0; i < s.cfg.NumWorkers; i++ {
		slots <- i
	}
	pid := os.Getpid()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.NumWorkers)
	for i, archive := range batch {
		i, archive := i, archive
		g.Go(func() error {
			slot := <-slots
			defer func() { slots <- slot }()

			started := time.Now()
			res, err := ex.Extract(gctx, archive, fmt.Sprintf("%d-%d", pid, slot), i)
			durations[i] = time.Since(started)
			results[i] = res
			errs[i] = err
			s.observer(Progress{
				Kind: ArchiveExtracted, Batch: index, TotalBatches: total,
				Archive: archive, Images: len(res.Images), Err: err,
			})
			if err != nil {
				return fmt.Errorf("extract %s: %w", archive, err)
			}
			return nil
		})
	}
	waitErr := g.Wait()

	for i, archive := range batch {
		ev := db.Event{Subject: archive, SubjectType: db.SubjectArchive, Event: db.EventExtractEnd, Batch: index, Duration: &durations[i]}
		n := len(results[i].Images)
		ev.Images = &n
		if errs[i] != nil {
			ev.Event = db.EventError
			ev.Message = errs[i].Error()
		}
		if err := s.ledger.Record(ctx, ev); err != nil {
			s.logger.Warn("Failed to record extraction event.", slog.String("archive", archive), "error", err)
		}
	}
	if waitErr != nil {
		s.logger.Error("Extraction failed, aborting run.", slog.Int("batch", index), "error", waitErr)
		return nil, waitErr
	}
	return results, nil
}

func (s *Scheduler) removeScratch(dir string, l *slog.Logger) {
	if err := os.RemoveAll(dir); err != nil {
		l.Warn("Failed to remove scratch dir.", slog.String("dir", dir), "error", err)
	}
}

type nopLedger struct{}

func (nopLedger) Record(context.Context, db.Event) error { return nil }

func (nopLedger) CompletedArchives(context.Context, []string, *slog.Logger) (map[string]bool, error) {
	return map[string]bool{}, nil
}

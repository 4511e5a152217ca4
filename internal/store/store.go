// Package store owns the accumulating COCO dataset and its durable file.
package store

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/goccy/go-json"

	"github.com/brensch/figcoco/internal/coco"
)

//go:embed template.json
var defaultTemplate []byte

// ErrOutOfOrder is returned by Append when new records would break id ordering
// or reference an image that does not exist.
var ErrOutOfOrder = errors.New("records out of order")

// Store holds the one in-memory Dataset and persists it to Path.
type Store struct {
	path    string
	dataset *coco.Dataset
	logger  *slog.Logger
	loaded  bool
}

// Open loads the dataset at path. When the file is absent, or present but
// unreadable, the dataset starts from the template at templatePath (or the
// built-in template when templatePath is empty). An unreadable dataset file is
// renamed aside first so the next Persist cannot destroy it.
func Open(path, templatePath string, logger *slog.Logger) (*Store, error) {
	l := logger.With(slog.String("dataset", path))
	s := &Store{path: path, logger: logger}

	ds, err := ReadDataset(path)
	switch {
	case err == nil:
		l.Info("Loaded existing dataset.",
			slog.Int("images", len(ds.Images)),
			slog.Int("annotations", len(ds.Annotations)),
			slog.Int64("max_image_id", ds.MaxImageID()),
			slog.Int64("max_annotation_id", ds.MaxAnnotationID()))
		s.dataset = ds
		s.loaded = true
		return s, nil
	case errors.Is(err, fs.ErrNotExist):
		l.Info("No dataset file yet, starting from template.")
	default:
		aside := fmt.Sprintf("%s.unreadable-%s", path, time.Now().UTC().Format("20060102T150405"))
		l.Warn("Dataset file unreadable, starting from template.", slog.String("moved_to", aside), "error", err)
		if rerr := os.Rename(path, aside); rerr != nil && !errors.Is(rerr, fs.ErrNotExist) {
			return nil, fmt.Errorf("move unreadable dataset %s aside: %w", path, rerr)
		}
	}

	tmpl, err := LoadTemplate(templatePath)
	if err != nil {
		return nil, err
	}
	s.dataset = tmpl
	return s, nil
}

// LoadTemplate reads the seed dataset. Any images or annotations in the
// template are discarded; only its categories and metadata are kept.
func LoadTemplate(templatePath string) (*coco.Dataset, error) {
	data := defaultTemplate
	if templatePath != "" {
		var err error
		data, err = os.ReadFile(templatePath)
		if err != nil {
			return nil, fmt.Errorf("read template %s: %w", templatePath, err)
		}
	}
	var ds coco.Dataset
	if err := json.Unmarshal(data, &ds); err != nil {
		return nil, fmt.Errorf("decode template %s: %w", templatePath, err)
	}
	ds.Images = []coco.Image{}
	ds.Annotations = []coco.Annotation{}
	if ds.Categories == nil {
		ds.Categories = []coco.Category{}
	}
	return &ds, nil
}

// ReadDataset decodes the COCO file at path.
func ReadDataset(path string) (*coco.Dataset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var ds coco.Dataset
	if err := json.Unmarshal(data, &ds); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	if ds.Images == nil {
		ds.Images = []coco.Image{}
	}
	if ds.Annotations == nil {
		ds.Annotations = []coco.Annotation{}
	}
	return &ds, nil
}

// Loaded reports whether the dataset came from an existing file rather than
// the template.
func (s *Store) Loaded() bool { return s.loaded }

// Path returns the dataset file location.
func (s *Store) Path() string { return s.path }

// Dataset returns the live dataset. Callers must not modify it.
func (s *Store) Dataset() *coco.Dataset { return s.dataset }

// Append adds records in build order. Every new id must exceed the current
// maximum of its kind and increase strictly, and every annotation must point
// at an image already in the dataset or in images. Nothing is appended when
// any check fails.
func (s *Store) Append(images []coco.Image, annotations []coco.Annotation) error {
	last := s.dataset.MaxImageID()
	known := make(map[int64]struct{}, len(images))
	for _, img := range images {
		if img.ID <= last {
			return fmt.Errorf("%w: image id %d not greater than %d", ErrOutOfOrder, img.ID, last)
		}
		last = img.ID
		known[img.ID] = struct{}{}
	}

	existing := make(map[int64]struct{}, len(s.dataset.Images))
	for _, img := range s.dataset.Images {
		existing[img.ID] = struct{}{}
	}
	lastAnn := s.dataset.MaxAnnotationID()
	for _, ann := range annotations {
		if ann.ID <= lastAnn {
			return fmt.Errorf("%w: annotation id %d not greater than %d", ErrOutOfOrder, ann.ID, lastAnn)
		}
		lastAnn = ann.ID
		_, isNew := known[ann.ImageID]
		_, isOld := existing[ann.ImageID]
		if !isNew && !isOld {
			return fmt.Errorf("%w: annotation %d references unknown image %d", ErrOutOfOrder, ann.ID, ann.ImageID)
		}
	}

	s.dataset.Images = append(s.dataset.Images, images...)
	s.dataset.Annotations = append(s.dataset.Annotations, annotations...)
	return nil
}

// Persist writes the whole dataset to a temporary file next to Path, syncs it,
// and renames it over Path, so readers see either the old or the new file.
func (s *Store) Persist() error {
	start := time.Now()
	data, err := json.MarshalIndent(s.dataset, "", "  ")
	if err != nil {
		return fmt.Errorf("encode dataset: %w", err)
	}
	if err := atomicWriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("persist dataset %s: %w", s.path, err)
	}
	s.logger.Debug("Dataset persisted.",
		slog.String("dataset", s.path),
		slog.Int("bytes", len(data)),
		slog.Duration("duration", time.Since(start).Round(time.Millisecond)))
	return nil
}

func atomicWriteFile(target string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(target)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(target)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	success := false
	defer func() {
		if !success {
			tmp.Close()
			os.Remove(tmpPath)
		}
	}()

	if err := tmp.Chmod(perm); err != nil {
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, target); err != nil {
		return fmt.Errorf("rename temp file: %w", err)
	}
	success = true

	// Best effort: make the rename itself durable.
	if d, err := os.Open(dir); err == nil {
		d.Sync()
		d.Close()
	}
	return nil
}

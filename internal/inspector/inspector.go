// Package inspector checks a persisted dataset against the image store.
package inspector

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/brensch/figcoco/internal/coco"
	"github.com/brensch/figcoco/internal/store"
)

// Report summarizes a dataset and lists every problem found.
type Report struct {
	Path            string
	Images          int
	Annotations     int
	Categories      int
	MinImageID      int64
	MaxImageID      int64
	MinAnnotationID int64
	MaxAnnotationID int64
	// Violations are dataset invariant failures.
	Violations []string
	// MissingFiles are image records whose file is absent from the image dir.
	MissingFiles []string
	// UnreferencedFiles are files in the image dir that no record names.
	UnreferencedFiles []string
}

// OK reports whether no problem was found.
func (r Report) OK() bool {
	return len(r.Violations) == 0 && len(r.MissingFiles) == 0 && len(r.UnreferencedFiles) == 0
}

// Inspect loads the dataset at path and cross-checks it with imageDir. An
// empty imageDir skips the file checks. The error is non-nil only when the
// dataset cannot be read.
func Inspect(path, imageDir string, logger *slog.Logger) (Report, error) {
	r := Report{Path: path}
	ds, err := store.ReadDataset(path)
	if err != nil {
		return r, fmt.Errorf("read dataset %s: %w", path, err)
	}
	r.Images = len(ds.Images)
	r.Annotations = len(ds.Annotations)
	r.Categories = len(ds.Categories)
	if r.Images > 0 {
		r.MinImageID, r.MaxImageID = ds.Images[0].ID, ds.MaxImageID()
	}
	if r.Annotations > 0 {
		r.MinAnnotationID, r.MaxAnnotationID = ds.Annotations[0].ID, ds.MaxAnnotationID()
	}

	if verr := coco.Verify(ds); verr != nil {
		r.Violations = unjoin(verr)
	}

	if imageDir != "" {
		if err := checkFiles(&r, ds, imageDir); err != nil {
			return r, err
		}
	}

	logger.Info("Dataset inspected.",
		slog.String("dataset", path),
		slog.Int("images", r.Images),
		slog.Int("annotations", r.Annotations),
		slog.Int("violations", len(r.Violations)),
		slog.Int("missing_files", len(r.MissingFiles)),
		slog.Int("unreferenced_files", len(r.UnreferencedFiles)))
	return r, nil
}

func checkFiles(r *Report, ds *coco.Dataset, imageDir string) error {
	onDisk := make(map[string]bool)
	entries, err := os.ReadDir(imageDir)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("list image dir %s: %w", imageDir, err)
	}
	for _, e := range entries {
		if e.Type().IsRegular() {
			onDisk[e.Name()] = false
		}
	}
	for _, img := range ds.Images {
		if _, ok := onDisk[img.FileName]; !ok {
			r.MissingFiles = append(r.MissingFiles, filepath.Join(imageDir, img.FileName))
			continue
		}
		onDisk[img.FileName] = true
	}
	for _, e := range entries {
		if seen, ok := onDisk[e.Name()]; ok && !seen {
			r.UnreferencedFiles = append(r.UnreferencedFiles, filepath.Join(imageDir, e.Name()))
		}
	}
	return nil
}

func unjoin(err error) []string {
	var out []string
	if j, ok := err.(interface{ Unwrap() []error }); ok {
		for _, e := range j.Unwrap() {
			out = append(out, e.Error())
		}
		return out
	}
	return []string{err.Error()}
}

// Write prints the report.
func (r Report) Write(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "dataset\t%s\n", r.Path)
	fmt.Fprintf(tw, "images\t%d\t(ids %d..%d)\n", r.Images, r.MinImageID, r.MaxImageID)
	fmt.Fprintf(tw, "annotations\t%d\t(ids %d..%d)\n", r.Annotations, r.MinAnnotationID, r.MaxAnnotationID)
	fmt.Fprintf(tw, "categories\t%d\n", r.Categories)
	if err := tw.Flush(); err != nil {
		return err
	}
	section := func(title string, items []string) {
		if len(items) == 0 {
			return
		}
		fmt.Fprintf(w, "\n%s (%d):\n", title, len(items))
		for _, it := range items {
			fmt.Fprintf(w, "  %s\n", it)
		}
	}
	section("Invariant violations", r.Violations)
	section("Missing image files", r.MissingFiles)
	section("Unreferenced image files", r.UnreferencedFiles)
	if r.OK() {
		fmt.Fprintln(w, "\nOK")
	}
	return nil
}

// Package extractor unpacks worker archives into per-worker scratch directories.
package extractor

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/brensch/figcoco/internal/util"
)

// ErrArchiveCorrupt marks an archive whose payload cannot be trusted: unequal
// image and detection counts, unsafe entry names, or colliding file names.
var ErrArchiveCorrupt = errors.New("archive corrupt")

// Extractor unpacks archives below BaseDir. It holds no mutable state, so a
// single value may be shared by every worker in the pool.
type Extractor struct {
	BaseDir       string
	ImageExts     []string
	DetectionExts []string
	Logger        *slog.Logger
}

// Result lists the files one archive produced. Images and Detections are each
// sorted but not yet paired.
type Result struct {
	Archive    string
	Dir        string
	Images     []string
	Detections []string
}

// Extract unpacks archive into <BaseDir>/<workerID>/<seq>/, flattening any
// payload subdirectories. Files that are neither images nor detection files
// are left in the archive. A count mismatch between the two kinds returns
// ErrArchiveCorrupt.
func (e *Extractor) Extract(ctx context.Context, archive, workerID string, seq int) (Result, error) {
	l := e.Logger.With(slog.String("archive", archive), slog.String("worker", workerID))
	start := time.Now()
	res := Result{
		Archive: archive,
		Dir:     filepath.Join(e.BaseDir, workerID, strconv.Itoa(seq)),
	}

	zr, err := zip.OpenReader(archive)
	if errors.Is(err, zip.ErrInsecurePath) {
		zr.Close()
		return res, fmt.Errorf("%w: %s: %v", ErrArchiveCorrupt, archive, err)
	}
	if err != nil {
		return res, fmt.Errorf("open archive %s: %w", archive, err)
	}
	defer zr.Close()

	if err := os.MkdirAll(res.Dir, 0o755); err != nil {
		return res, fmt.Errorf("create extraction dir %s: %w", res.Dir, err)
	}

	seen := make(map[string]string)
	for _, f := range zr.File {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if f.FileInfo().IsDir() {
			continue
		}
		name, err := entryName(f.Name)
		if err != nil {
			return res, fmt.Errorf("%w: %s: %v", ErrArchiveCorrupt, archive, err)
		}

		var isImage bool
		switch {
		case util.HasExt(name, e.ImageExts):
			isImage = true
		case util.HasExt(name, e.DetectionExts):
		default:
			l.Debug("Ignoring archive entry.", slog.String("entry", f.Name))
			continue
		}

		if prev, dup := seen[name]; dup {
			return res, fmt.Errorf("%w: %s: entries %q and %q both flatten to %q", ErrArchiveCorrupt, archive, prev, f.Name, name)
		}
		seen[name] = f.Name

		dest := filepath.Join(res.Dir, name)
		if err := writeEntry(f, dest); err != nil {
			return res, fmt.Errorf("extract %s from %s: %w", f.Name, archive, err)
		}
		if isImage {
			res.Images = append(res.Images, dest)
		} else {
			res.Detections = append(res.Detections, dest)
		}
	}

	sort.Strings(res.Images)
	sort.Strings(res.Detections)

	if len(res.Images) != len(res.Detections) {
		return res, fmt.Errorf("%w: %s holds %d images but %d detection files",
			ErrArchiveCorrupt, archive, len(res.Images), len(res.Detections))
	}

	l.Debug("Archive extracted.",
		slog.String("dir", res.Dir),
		slog.Int("images", len(res.Images)),
		slog.Int("detections", len(res.Detections)),
		slog.Duration("duration", time.Since(start).Round(time.Millisecond)))
	return res, nil
}

// entryName validates a zip entry name and returns its base name.
func entryName(name string) (string, error) {
	clean := path.Clean(strings.ReplaceAll(name, `\`, "/"))
	if path.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, "../") {
		return "", fmt.Errorf("entry %q escapes the extraction dir", name)
	}
	base := path.Base(clean)
	if base == "." || base == "/" || base == "" {
		return "", fmt.Errorf("entry %q has no file name", name)
	}
	return base, nil
}

func writeEntry(f *zip.File, dest string) error {
	rc, err := f.Open()
	if err != nil {
		return err
	}
	out, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		rc.Close()
		return err
	}
	_, copyErr := io.Copy(out, rc)
	return errors.Join(copyErr, out.Close(), rc.Close())
}

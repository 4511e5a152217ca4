// Package processor is the serial build phase of a batch: it turns validated
// pairs into image and annotation records and moves images into the
// permanent image store.
package processor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/brensch/figcoco/internal/coco"
	"github.com/brensch/figcoco/internal/detections"
	"github.com/brensch/figcoco/internal/extractor"
	"github.com/brensch/figcoco/internal/ids"
	"github.com/brensch/figcoco/internal/pairing"
)

// ErrDestinationExists is returned when an image would overwrite a file already in the image store.
var ErrDestinationExists = errors.New("destination image already exists")

// Builder converts pairs to records. It must only be driven from one goroutine.
type Builder struct {
	ImageDir   string
	CategoryID int
	Meta       coco.ImageMeta
	Logger     *slog.Logger
}

// Records is the output of one batch's build phase, in build order.
type Records struct {
	Images      []coco.Image
	Annotations []coco.Annotation
	// Moved lists the image store paths written by this build.
	Moved []string
}

// Build processes pairs in order. For each pair it reads the detections and
// the image size first, then allocates the image id and one annotation id
// per detection, builds the records, and finally moves the image to
// <ImageDir>/<id><ext>. Any error stops the build; images already moved stay
// in the image store and are listed in the returned Records.
func (b *Builder) Build(ctx context.Context, pairs []pairing.Pair, alloc *ids.Allocator) (Records, error) {
	var out Records
	if err := os.MkdirAll(b.ImageDir, 0o755); err != nil {
		return out, fmt.Errorf("create image dir %s: %w", b.ImageDir, err)
	}

	for _, p := range pairs {
		if err := ctx.Err(); err != nil {
			return out, err
		}

		dets, err := detections.Read(p.Detections)
		if err != nil {
			return out, err
		}
		width, height, err := extractor.ImageSize(p.Image)
		if err != nil {
			return out, err
		}

		imageID := alloc.AllocateImageID()
		fileName := strconv.FormatInt(imageID, 10) + strings.ToLower(filepath.Ext(p.Image))
		image := coco.BuildImage(fileName, imageID, width, height, b.Meta)

		anns := make([]coco.Annotation, 0, len(dets))
		for i, det := range dets {
			ann, err := coco.BuildAnnotation(det, alloc.AllocateAnnotationID(), imageID, b.CategoryID)
			if err != nil {
				return out, fmt.Errorf("%s detection %d: %w", filepath.Base(p.Detections), i, err)
			}
			anns = append(anns, ann)
		}

		dest := filepath.Join(b.ImageDir, fileName)
		if err := moveFile(p.Image, dest); err != nil {
			return out, fmt.Errorf("move %s to image store: %w", p.Image, err)
		}
		out.Moved = append(out.Moved, dest)
		out.Images = append(out.Images, image)
		out.Annotations = append(out.Annotations, anns...)

		b.Logger.Debug("Built image record.",
			slog.String("source", p.Image),
			slog.Int64("image_id", imageID),
			slog.Int("annotations", len(anns)))
	}
	return out, nil
}

// moveFile renames src to dst, falling back to copy and delete when the two
// live on different filesystems. An existing dst is never overwritten.
func moveFile(src, dst string) error {
	if _, err := os.Lstat(dst); err == nil {
		return fmt.Errorf("%w: %s", ErrDestinationExists, dst)
	} else if !errors.Is(err, fs.ErrNotExist) {
		return err
	}

	if err := os.Rename(src, dst); err == nil {
		return nil
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return err
	}
	if err := out.Close(); err != nil {
		os.Remove(dst)
		return err
	}
	return os.Remove(src)
}

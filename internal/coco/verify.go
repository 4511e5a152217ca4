package coco

import (
	"errors"
	"fmt"
)

// ErrInvariantViolation wraps every problem reported by Verify.
var ErrInvariantViolation = errors.New("dataset invariant violated")

// Verify checks the dataset invariants: image and annotation ids are positive,
// unique and strictly increasing in file order; every annotation points at an
// existing image; boxes have non-negative size and area equal to width*height.
// All violations are joined into the returned error.
func Verify(d *Dataset) error {
	var errs []error
	violation := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: %s", ErrInvariantViolation, fmt.Sprintf(format, args...)))
	}

	imageIDs := make(map[int64]struct{}, len(d.Images))
	var prevImage int64
	for i, img := range d.Images {
		if img.ID <= 0 {
			violation("image[%d] has non-positive id %d", i, img.ID)
		}
		if _, dup := imageIDs[img.ID]; dup {
			violation("image[%d] duplicates id %d", i, img.ID)
		}
		if i > 0 && img.ID <= prevImage {
			violation("image[%d] id %d not greater than previous %d", i, img.ID, prevImage)
		}
		imageIDs[img.ID] = struct{}{}
		prevImage = img.ID
	}

	annIDs := make(map[int64]struct{}, len(d.Annotations))
	var prevAnn int64
	for i, ann := range d.Annotations {
		if ann.ID <= 0 {
			violation("annotation[%d] has non-positive id %d", i, ann.ID)
		}
		if _, dup := annIDs[ann.ID]; dup {
			violation("annotation[%d] duplicates id %d", i, ann.ID)
		}
		if i > 0 && ann.ID <= prevAnn {
			violation("annotation[%d] id %d not greater than previous %d", i, ann.ID, prevAnn)
		}
		annIDs[ann.ID] = struct{}{}
		prevAnn = ann.ID

		if _, ok := imageIDs[ann.ImageID]; !ok {
			violation("annotation %d references missing image %d", ann.ID, ann.ImageID)
		}
		if len(ann.BBox) != 4 {
			violation("annotation %d bbox has %d values", ann.ID, len(ann.BBox))
			continue
		}
		w, h := ann.BBox[2], ann.BBox[3]
		if w < 0 || h < 0 {
			violation("annotation %d has negative bbox size %vx%v", ann.ID, w, h)
		}
		if ann.Area != w*h {
			violation("annotation %d area %v != %v*%v", ann.ID, ann.Area, w, h)
		}
	}

	return errors.Join(errs...)
}

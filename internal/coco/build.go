package coco

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidCoordinate is returned when a detection carries a NaN or infinite coordinate.
var ErrInvalidCoordinate = errors.New("invalid detection coordinate")

// BuildImage creates the image record for an accepted pair.
func BuildImage(fileName string, id int64, width, height int, meta ImageMeta) Image {
	return Image{
		ID:           id,
		FileName:     fileName,
		Height:       height,
		Width:        width,
		License:      meta.License,
		CocoURL:      meta.CocoURL,
		FlickrURL:    meta.FlickrURL,
		DateCaptured: meta.DateCaptured,
	}
}

// BuildAnnotation converts a detection into an annotation record. Corners are
// normalized with min/max so reversed boxes still yield non-negative sizes.
func BuildAnnotation(det Detection, annotationID, imageID int64, categoryID int) (Annotation, error) {
	for _, v := range []float64{det.X1, det.Y1, det.X2, det.Y2} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return Annotation{}, fmt.Errorf("%w: box (%v, %v, %v, %v)", ErrInvalidCoordinate, det.X1, det.Y1, det.X2, det.Y2)
		}
	}

	x1, x2 := math.Min(det.X1, det.X2), math.Max(det.X1, det.X2)
	y1, y2 := math.Min(det.Y1, det.Y2), math.Max(det.Y1, det.Y2)
	width := x2 - x1
	height := y2 - y1

	return Annotation{
		ID:           annotationID,
		ImageID:      imageID,
		CategoryID:   categoryID,
		Segmentation: [][]float64{{x1, y1, x2, y1, x2, y2, x1, y2}},
		Area:         width * height,
		BBox:         []float64{x1, y1, width, height},
		IsCrowd:      0,
	}, nil
}

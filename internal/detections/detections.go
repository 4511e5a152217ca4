// Package detections reads the per-image detection lists written by workers.
package detections

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/brensch/figcoco/internal/coco"
)

// ErrUnsupportedFormat is returned for detection files with an unknown extension.
var ErrUnsupportedFormat = errors.New("unsupported detection file format")

// ErrMalformedRow is returned when a row does not hold 4 or 5 numbers.
var ErrMalformedRow = errors.New("malformed detection row")

// Read loads every detection in the file at path. The format is chosen by extension.
func Read(path string) ([]coco.Detection, error) {
	var (
		dets []coco.Detection
		err  error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		dets, err = readCSV(path)
	case ".json":
		dets, err = readJSON(path)
	case ".parquet":
		dets, err = readParquet(path)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Base(path))
	}
	if err != nil {
		return nil, fmt.Errorf("read detections %s: %w", filepath.Base(path), err)
	}
	return dets, nil
}

// fromValues maps a numeric row to a detection. Five values are
// (category, x1, y1, x2, y2); four values are the corners alone.
func fromValues(vals []float64) (coco.Detection, error) {
	switch len(vals) {
	case 5:
		return coco.Detection{Category: vals[0], X1: vals[1], Y1: vals[2], X2: vals[3], Y2: vals[4]}, nil
	case 4:
		return coco.Detection{X1: vals[0], Y1: vals[1], X2: vals[2], Y2: vals[3]}, nil
	default:
		return coco.Detection{}, fmt.Errorf("%w: got %d values", ErrMalformedRow, len(vals))
	}
}

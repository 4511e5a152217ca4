package detections

import (
	"bytes"
	"fmt"
	"os"

	"github.com/goccy/go-json"

	"github.com/brensch/figcoco/internal/coco"
)

type jsonDetection struct {
	Category *float64 `json:"category"`
	X1       *float64 `json:"x1"`
	Y1       *float64 `json:"y1"`
	X2       *float64 `json:"x2"`
	Y2       *float64 `json:"y2"`
}

// readJSON accepts a top-level array whose elements are either numeric arrays
// (same layout as a CSV row) or objects with x1, y1, x2, y2 and an optional category.
func readJSON(path string) ([]coco.Detection, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}

	dets := make([]coco.Detection, 0, len(raw))
	for i, item := range raw {
		item = bytes.TrimSpace(item)
		if len(item) > 0 && item[0] == '[' {
			var vals []float64
			if err := json.Unmarshal(item, &vals); err != nil {
				return nil, fmt.Errorf("element %d: %w: %v", i, ErrMalformedRow, err)
			}
			det, err := fromValues(vals)
			if err != nil {
				return nil, fmt.Errorf("element %d: %w", i, err)
			}
			dets = append(dets, det)
			continue
		}

		var obj jsonDetection
		if err := json.Unmarshal(item, &obj); err != nil {
			return nil, fmt.Errorf("element %d: %w: %v", i, ErrMalformedRow, err)
		}
		if obj.X1 == nil || obj.Y1 == nil || obj.X2 == nil || obj.Y2 == nil {
			return nil, fmt.Errorf("element %d: %w: missing corner", i, ErrMalformedRow)
		}
		det := coco.Detection{X1: *obj.X1, Y1: *obj.Y1, X2: *obj.X2, Y2: *obj.Y2}
		if obj.Category != nil {
			det.Category = *obj.Category
		}
		dets = append(dets, det)
	}
	return dets, nil
}

package detections

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/brensch/figcoco/internal/coco"
)

// readCSV parses rows of "category,x1,y1,x2,y2" or "x1,y1,x2,y2". A first row
// with no numeric field is treated as a header; a partly numeric first row is
// malformed. Lines starting with '#' are comments.
func readCSV(path string) ([]coco.Detection, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.Comment = '#'
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	var dets []coco.Detection
	first := true
	for {
		fields, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		if len(fields) == 0 || (len(fields) == 1 && strings.TrimSpace(fields[0]) == "") {
			continue
		}
		line, _ := r.FieldPos(0)
		if first {
			first = false
			if isHeader(fields) {
				continue
			}
		}

		vals := make([]float64, len(fields))
		for i, field := range fields {
			v, perr := strconv.ParseFloat(strings.TrimSpace(field), 64)
			if perr != nil {
				return nil, fmt.Errorf("line %d column %d: %w: %v", line, i+1, ErrMalformedRow, perr)
			}
			vals[i] = v
		}
		det, derr := fromValues(vals)
		if derr != nil {
			return nil, fmt.Errorf("line %d: %w", line, derr)
		}
		dets = append(dets, det)
	}
	return dets, nil
}

func isHeader(fields []string) bool {
	for _, field := range fields {
		if _, err := strconv.ParseFloat(strings.TrimSpace(field), 64); err == nil {
			return false
		}
	}
	return true
}

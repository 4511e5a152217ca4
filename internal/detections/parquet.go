package detections

import (
	"fmt"

	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/reader"

	"github.com/brensch/figcoco/internal/coco"
)

// ParquetRow is the column layout of a Parquet detection file.
type ParquetRow struct {
	Category float64 `parquet:"name=category, type=DOUBLE"`
	X1       float64 `parquet:"name=x1, type=DOUBLE"`
	Y1       float64 `parquet:"name=y1, type=DOUBLE"`
	X2       float64 `parquet:"name=x2, type=DOUBLE"`
	Y2       float64 `parquet:"name=y2, type=DOUBLE"`
}

func readParquet(path string) ([]coco.Detection, error) {
	fr, err := local.NewLocalFileReader(path)
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}
	defer fr.Close()

	pr, err := reader.NewParquetReader(fr, new(ParquetRow), 1)
	if err != nil {
		return nil, fmt.Errorf("init reader: %w", err)
	}
	defer pr.ReadStop()

	n := int(pr.GetNumRows())
	rows := make([]ParquetRow, n)
	if n > 0 {
		if err := pr.Read(&rows); err != nil {
			return nil, fmt.Errorf("read rows: %w", err)
		}
	}

	dets := make([]coco.Detection, len(rows))
	for i, row := range rows {
		dets[i] = coco.Detection{Category: row.Category, X1: row.X1, Y1: row.Y1, X2: row.X2, Y2: row.Y2}
	}
	return dets, nil
}

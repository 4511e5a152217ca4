// Package saver exports the COCO dataset and the event log as Parquet files
// for analysis outside the JSON document.
package saver

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"
	"golang.org/x/sync/errgroup"

	"github.com/brensch/figcoco/internal/coco"
)

// Output file names inside the export directory.
const (
	ImagesFile      = "images.parquet"
	AnnotationsFile = "annotations.parquet"
	EventsFile      = "events.parquet"
)

// ImageRow is one exported image record.
type ImageRow struct {
	ID           int64  `parquet:"name=id, type=INT64"`
	FileName     string `parquet:"name=file_name, type=BYTE_ARRAY, convertedtype=UTF8"`
	Width        int32  `parquet:"name=width, type=INT32"`
	Height       int32  `parquet:"name=height, type=INT32"`
	License      int32  `parquet:"name=license, type=INT32"`
	DateCaptured string `parquet:"name=date_captured, type=BYTE_ARRAY, convertedtype=UTF8"`
}

// AnnotationRow is one exported annotation with its bbox split into columns.
type AnnotationRow struct {
	ID         int64   `parquet:"name=id, type=INT64"`
	ImageID    int64   `parquet:"name=image_id, type=INT64"`
	CategoryID int32   `parquet:"name=category_id, type=INT32"`
	X          float64 `parquet:"name=bbox_x, type=DOUBLE"`
	Y          float64 `parquet:"name=bbox_y, type=DOUBLE"`
	W          float64 `parquet:"name=bbox_w, type=DOUBLE"`
	H          float64 `parquet:"name=bbox_h, type=DOUBLE"`
	Area       float64 `parquet:"name=area, type=DOUBLE"`
	IsCrowd    int32   `parquet:"name=iscrowd, type=INT32"`
}

// Export describes the files written by ExportDataset.
type Export struct {
	ImagesPath      string
	AnnotationsPath string
	ImageRows       int
	AnnotationRows  int
}

// ExportDataset writes ds to <outDir>/images.parquet and
// <outDir>/annotations.parquet. Both files are written next to their target
// and renamed into place, so a failed export leaves earlier files intact.
func ExportDataset(ctx context.Context, ds *coco.Dataset, outDir string, logger *slog.Logger) (Export, error) {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return Export{}, fmt.Errorf("create export dir %s: %w", outDir, err)
	}
	start := time.Now()
	out := Export{
		ImagesPath:      filepath.Join(outDir, ImagesFile),
		AnnotationsPath: filepath.Join(outDir, AnnotationsFile),
		ImageRows:       len(ds.Images),
		AnnotationRows:  len(ds.Annotations),
	}

	imageRows := make([]any, 0, len(ds.Images))
	for _, img := range ds.Images {
		imageRows = append(imageRows, ImageRow{
			ID:           img.ID,
			FileName:     img.FileName,
			Width:        int32(img.Width),
			Height:       int32(img.Height),
			License:      int32(img.License),
			DateCaptured: img.DateCaptured,
		})
	}
	annRows := make([]any, 0, len(ds.Annotations))
	for _, a := range ds.Annotations {
		row := AnnotationRow{
			ID:         a.ID,
			ImageID:    a.ImageID,
			CategoryID: int32(a.CategoryID),
			Area:       a.Area,
			IsCrowd:    int32(a.IsCrowd),
		}
		if len(a.BBox) == 4 {
			row.X, row.Y, row.W, row.H = a.BBox[0], a.BBox[1], a.BBox[2], a.BBox[3]
		}
		annRows = append(annRows, row)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return writeRows(gctx, out.ImagesPath, new(ImageRow), imageRows, logger) })
	g.Go(func() error { return writeRows(gctx, out.AnnotationsPath, new(AnnotationRow), annRows, logger) })
	if err := g.Wait(); err != nil {
		return Export{}, err
	}

	logger.Info("Dataset exported to Parquet.",
		slog.String("dir", outDir),
		slog.Int("images", out.ImageRows),
		slog.Int("annotations", out.AnnotationRows),
		slog.Duration("duration", time.Since(start).Round(time.Millisecond)))
	return out, nil
}

func writeRows(ctx context.Context, path string, schema any, rows []any, logger *slog.Logger) (err error) {
	l := logger.With(slog.String("file", path))
	tmp := path + ".tmp"

	fw, err := local.NewLocalFileWriter(tmp)
	if err != nil {
		return fmt.Errorf("create parquet file %s: %w", tmp, err)
	}
	defer func() {
		if err != nil {
			os.Remove(tmp)
		}
	}()

	pw, err := writer.NewParquetWriter(fw, schema, 2)
	if err != nil {
		fw.Close()
		return fmt.Errorf("create parquet writer for %s: %w", path, err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	for i, row := range rows {
		if i%1024 == 0 {
			if cerr := ctx.Err(); cerr != nil {
				pw.WriteStop()
				fw.Close()
				return cerr
			}
		}
		if err := pw.Write(row); err != nil {
			pw.WriteStop()
			fw.Close()
			return fmt.Errorf("write row %d to %s: %w", i, path, err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		fw.Close()
		return fmt.Errorf("finalize parquet %s: %w", path, err)
	}
	if err := fw.Close(); err != nil {
		return fmt.Errorf("close parquet %s: %w", path, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename %s: %w", tmp, err)
	}
	l.Debug("Parquet file written.", slog.Int("rows", len(rows)))
	return nil
}

// ExportEventLog copies the event log table to <outDir>/events.parquet with
// DuckDB's COPY ... TO.
func ExportEventLog(ctx context.Context, db *sql.DB, outDir string, logger *slog.Logger) (string, error) {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return "", fmt.Errorf("create export dir %s: %w", outDir, err)
	}
	outputFilePath := filepath.Join(outDir, EventsFile)
	duckdbFilePath := strings.ReplaceAll(outputFilePath, `\`, `/`) // DuckDB needs forward slashes
	copySQL := fmt.Sprintf(`COPY (SELECT * FROM figcoco_event_log ORDER BY log_id) TO '%s' (FORMAT PARQUET);`,
		strings.ReplaceAll(duckdbFilePath, "'", "''"))

	if _, err := db.ExecContext(ctx, copySQL); err != nil {
		return "", fmt.Errorf("export event log: %w", err)
	}
	logger.Info("Event log exported to Parquet.", slog.String("output_path", outputFilePath))
	return outputFilePath, nil
}

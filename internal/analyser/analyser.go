// Package analyser runs summary queries over an exported dataset with DuckDB.
package analyser

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"text/tabwriter"

	_ "github.com/marcboeker/go-duckdb"

	"github.com/brensch/figcoco/internal/saver"
)

// SizeCount is the number of images with one width x height.
type SizeCount struct {
	Width  int
	Height int
	Images int64
}

// Report holds the results of Analyse.
type Report struct {
	Images                   int64
	Annotations              int64
	ImagesWithoutAnnotations int64
	MaxAnnotationsPerImage   int64
	MeanAnnotationsPerImage  float64
	MinArea                  float64
	MeanArea                 float64
	MaxArea                  float64
	TopSizes                 []SizeCount
}

// Analyse creates views over the Parquet files in exportDir (as written by
// saver.ExportDataset) and queries summary statistics.
func Analyse(ctx context.Context, db *sql.DB, exportDir string, logger *slog.Logger) (Report, error) {
	var r Report
	conn, err := db.Conn(ctx)
	if err != nil {
		return r, fmt.Errorf("failed to get connection from pool: %w", err)
	}
	defer conn.Close()

	logger.Debug("Installing and loading Parquet extension.")
	if _, err := conn.ExecContext(ctx, `INSTALL parquet; LOAD parquet;`); err != nil {
		logger.Warn("Failed install/load parquet extension.", "error", err)
	}

	dir := strings.ReplaceAll(filepath.ToSlash(exportDir), "'", "''")
	views := []string{
		fmt.Sprintf(`CREATE OR REPLACE TEMP VIEW coco_images AS SELECT * FROM read_parquet('%s/%s');`, dir, saver.ImagesFile),
		fmt.Sprintf(`CREATE OR REPLACE TEMP VIEW coco_annotations AS SELECT * FROM read_parquet('%s/%s');`, dir, saver.AnnotationsFile),
	}
	for _, v := range views {
		if _, err := conn.ExecContext(ctx, v); err != nil {
			return r, fmt.Errorf("create view: %w\nSQL:\n%s", err, v)
		}
	}

	countsSQL := `
    WITH per_image AS (
        SELECT i.id, COUNT(a.id) AS n
        FROM coco_images i LEFT JOIN coco_annotations a ON a.image_id = i.id
        GROUP BY i.id
    )
    SELECT
        (SELECT COUNT(*) FROM coco_images),
        (SELECT COUNT(*) FROM coco_annotations),
        COUNT(*) FILTER (WHERE n = 0),
        COALESCE(MAX(n), 0),
        COALESCE(AVG(n), 0)
    FROM per_image;`
	if err := conn.QueryRowContext(ctx, countsSQL).Scan(
		&r.Images, &r.Annotations, &r.ImagesWithoutAnnotations, &r.MaxAnnotationsPerImage, &r.MeanAnnotationsPerImage,
	); err != nil {
		return r, fmt.Errorf("query counts: %w", err)
	}

	areaSQL := `SELECT COALESCE(MIN(area), 0), COALESCE(AVG(area), 0), COALESCE(MAX(area), 0) FROM coco_annotations;`
	if err := conn.QueryRowContext(ctx, areaSQL).Scan(&r.MinArea, &r.MeanArea, &r.MaxArea); err != nil {
		return r, fmt.Errorf("query areas: %w", err)
	}

	sizesSQL := `
    SELECT width, height, COUNT(*) AS n FROM coco_images
    GROUP BY width, height ORDER BY n DESC, width, height LIMIT 5;`
	rows, err := conn.QueryContext(ctx, sizesSQL)
	if err != nil {
		return r, fmt.Errorf("query image sizes: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var s SizeCount
		if err := rows.Scan(&s.Width, &s.Height, &s.Images); err != nil {
			return r, fmt.Errorf("scan image size: %w", err)
		}
		r.TopSizes = append(r.TopSizes, s)
	}
	if err := rows.Err(); err != nil {
		return r, fmt.Errorf("iterate image sizes: %w", err)
	}

	logger.Info("Analysis complete.", slog.Int64("images", r.Images), slog.Int64("annotations", r.Annotations))
	return r, nil
}

// Write renders r as an aligned table.
func (r Report) Write(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "images\t%d\n", r.Images)
	fmt.Fprintf(tw, "annotations\t%d\n", r.Annotations)
	fmt.Fprintf(tw, "images without annotations\t%d\n", r.ImagesWithoutAnnotations)
	fmt.Fprintf(tw, "annotations per image (mean/max)\t%.2f / %d\n", r.MeanAnnotationsPerImage, r.MaxAnnotationsPerImage)
	fmt.Fprintf(tw, "bbox area (min/mean/max)\t%.1f / %.1f / %.1f\n", r.MinArea, r.MeanArea, r.MaxArea)
	for _, s := range r.TopSizes {
		fmt.Fprintf(tw, "size %dx%d\t%d images\n", s.Width, s.Height, s.Images)
	}
	return tw.Flush()
}

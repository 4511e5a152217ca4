package saver

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/reader"

	"github.com/brensch/figcoco/internal/coco"
	"github.com/brensch/figcoco/internal/db"
	"github.com/brensch/figcoco/internal/testutil"
)

func sampleDataset() *coco.Dataset {
	return &coco.Dataset{
		Images: []coco.Image{
			{ID: 1, FileName: "1.png", Width: 40, Height: 30, License: 2, DateCaptured: "2020-05-20 01:00:00"},
			{ID: 2, FileName: "2.jpg", Width: 8, Height: 9, License: 2, DateCaptured: "2020-05-20 01:00:00"},
		},
		Annotations: []coco.Annotation{
			{ID: 1, ImageID: 1, CategoryID: 1, BBox: []float64{1, 2, 10, 10}, Area: 100},
			{ID: 2, ImageID: 1, CategoryID: 1, BBox: []float64{5, 5, 15, 15}, Area: 225},
			{ID: 3, ImageID: 2, CategoryID: 1, BBox: []float64{0, 0, 2, 3}, Area: 6},
		},
	}
}

func readAll[T any](t *testing.T, path string) []T {
	t.Helper()
	fr, err := local.NewLocalFileReader(path)
	require.NoError(t, err)
	defer fr.Close()
	pr, err := reader.NewParquetReader(fr, new(T), 1)
	require.NoError(t, err)
	defer pr.ReadStop()
	rows := make([]T, int(pr.GetNumRows()))
	require.NoError(t, pr.Read(&rows))
	return rows
}

func TestExportDataset(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "export")
	out, err := ExportDataset(context.Background(), sampleDataset(), dir, testutil.DiscardLogger())
	require.NoError(t, err)
	assert.Equal(t, 2, out.ImageRows)
	assert.Equal(t, 3, out.AnnotationRows)
	assert.NoFileExists(t, out.ImagesPath+".tmp")

	images := readAll[ImageRow](t, out.ImagesPath)
	require.Len(t, images, 2)
	assert.Equal(t, ImageRow{ID: 1, FileName: "1.png", Width: 40, Height: 30, License: 2, DateCaptured: "2020-05-20 01:00:00"}, images[0])
	assert.Equal(t, "2.jpg", images[1].FileName)

	anns := readAll[AnnotationRow](t, out.AnnotationsPath)
	require.Len(t, anns, 3)
	assert.Equal(t, AnnotationRow{ID: 2, ImageID: 1, CategoryID: 1, X: 5, Y: 5, W: 15, H: 15, Area: 225}, anns[1])
}

func TestExportDatasetEmpty(t *testing.T) {
	dir := t.TempDir()
	out, err := ExportDataset(context.Background(), &coco.Dataset{}, dir, testutil.DiscardLogger())
	require.NoError(t, err)
	assert.FileExists(t, out.ImagesPath)
	assert.FileExists(t, out.AnnotationsPath)
}

func TestExportEventLog(t *testing.T) {
	ctx := context.Background()
	conn, err := sql.Open("duckdb", "")
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, db.InitializeSchema(conn))
	log := db.NewEventLog(conn)
	require.NoError(t, log.Record(ctx, db.Event{Subject: "a.zip", SubjectType: db.SubjectArchive, Event: db.EventPersisted, Batch: 0}))

	dir := t.TempDir()
	path, err := ExportEventLog(ctx, conn, dir, testutil.DiscardLogger())
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, EventsFile), path)

	var n int
	require.NoError(t, conn.QueryRowContext(ctx, fmt.Sprintf("SELECT COUNT(*) FROM read_parquet('%s')", filepath.ToSlash(path))).Scan(&n))
	assert.Equal(t, 1, n)
}

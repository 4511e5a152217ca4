package analyser

import (
	"bytes"
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brensch/figcoco/internal/coco"
	"github.com/brensch/figcoco/internal/saver"
	"github.com/brensch/figcoco/internal/testutil"
)

func TestAnalyse(t *testing.T) {
	ctx := context.Background()
	ds := &coco.Dataset{
		Images: []coco.Image{
			{ID: 1, FileName: "1.png", Width: 40, Height: 30},
			{ID: 2, FileName: "2.png", Width: 40, Height: 30},
			{ID: 3, FileName: "3.png", Width: 10, Height: 10},
		},
		Annotations: []coco.Annotation{
			{ID: 1, ImageID: 1, CategoryID: 1, BBox: []float64{0, 0, 2, 2}, Area: 4},
			{ID: 2, ImageID: 1, CategoryID: 1, BBox: []float64{0, 0, 4, 4}, Area: 16},
			{ID: 3, ImageID: 2, CategoryID: 1, BBox: []float64{0, 0, 1, 10}, Area: 10},
		},
	}
	dir := t.TempDir()
	_, err := saver.ExportDataset(ctx, ds, dir, testutil.DiscardLogger())
	require.NoError(t, err)

	conn, err := sql.Open("duckdb", "")
	require.NoError(t, err)
	defer conn.Close()

	r, err := Analyse(ctx, conn, dir, testutil.DiscardLogger())
	require.NoError(t, err)
	assert.Equal(t, int64(3), r.Images)
	assert.Equal(t, int64(3), r.Annotations)
	assert.Equal(t, int64(1), r.ImagesWithoutAnnotations)
	assert.Equal(t, int64(2), r.MaxAnnotationsPerImage)
	assert.InDelta(t, 1.0, r.MeanAnnotationsPerImage, 1e-9)
	assert.Equal(t, 4.0, r.MinArea)
	assert.InDelta(t, 10.0, r.MeanArea, 1e-9)
	assert.Equal(t, 16.0, r.MaxArea)
	require.Len(t, r.TopSizes, 2)
	assert.Equal(t, SizeCount{Width: 40, Height: 30, Images: 2}, r.TopSizes[0])

	var buf bytes.Buffer
	require.NoError(t, r.Write(&buf))
	assert.Contains(t, buf.String(), "size 40x30")
}

func TestAnalyseMissingExport(t *testing.T) {
	conn, err := sql.Open("duckdb", "")
	require.NoError(t, err)
	defer conn.Close()

	_, err = Analyse(context.Background(), conn, t.TempDir(), testutil.DiscardLogger())
	assert.Error(t, err)
}

package processor

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brensch/figcoco/internal/coco"
	"github.com/brensch/figcoco/internal/ids"
	"github.com/brensch/figcoco/internal/pairing"
	"github.com/brensch/figcoco/internal/testutil"
)

func writePair(t *testing.T, dir, name string, w, h int, boxes []testutil.Box) pairing.Pair {
	t.Helper()
	img := filepath.Join(dir, name+".png")
	det := filepath.Join(dir, name+".csv")
	require.NoError(t, os.WriteFile(img, testutil.PNG(t, w, h), 0o644))
	require.NoError(t, os.WriteFile(det, testutil.DetectionCSV(boxes), 0o644))
	return pairing.Pair{Image: img, Detections: det}
}

func newBuilder(t *testing.T) *Builder {
	return &Builder{
		ImageDir:   filepath.Join(t.TempDir(), "images"),
		CategoryID: 1,
		Meta:       coco.ImageMeta{License: 2, DateCaptured: "2020-05-20 01:00:00"},
		Logger:     testutil.DiscardLogger(),
	}
}

func TestBuild(t *testing.T) {
	src := t.TempDir()
	pairs := []pairing.Pair{
		writePair(t, src, "a", 30, 20, []testutil.Box{{X1: 50, Y1: 50, X2: 10, Y2: 10}, {X1: 0, Y1: 0, X2: 5, Y2: 5}}),
		writePair(t, src, "b", 8, 9, nil),
	}
	b := newBuilder(t)
	alloc := ids.NewAllocator(&coco.Dataset{
		Images:      []coco.Image{{ID: 10}},
		Annotations: []coco.Annotation{{ID: 100}},
	})

	recs, err := b.Build(context.Background(), pairs, alloc)
	require.NoError(t, err)

	require.Len(t, recs.Images, 2)
	assert.Equal(t, int64(11), recs.Images[0].ID)
	assert.Equal(t, "11.png", recs.Images[0].FileName)
	assert.Equal(t, 30, recs.Images[0].Width)
	assert.Equal(t, 20, recs.Images[0].Height)
	assert.Equal(t, 2, recs.Images[0].License)
	assert.Equal(t, int64(12), recs.Images[1].ID)

	require.Len(t, recs.Annotations, 2)
	assert.Equal(t, int64(101), recs.Annotations[0].ID)
	assert.Equal(t, int64(102), recs.Annotations[1].ID)
	assert.Equal(t, int64(11), recs.Annotations[0].ImageID)
	assert.Equal(t, []float64{10, 10, 40, 40}, recs.Annotations[0].BBox)
	assert.Equal(t, 1600.0, recs.Annotations[0].Area)

	assert.Equal(t, []string{filepath.Join(b.ImageDir, "11.png"), filepath.Join(b.ImageDir, "12.png")}, recs.Moved)
	for _, p := range recs.Moved {
		assert.FileExists(t, p)
	}
	assert.NoFileExists(t, pairs[0].Image)
}

func TestBuildStopsOnBadDetections(t *testing.T) {
	src := t.TempDir()
	good := writePair(t, src, "a", 4, 4, nil)
	bad := writePair(t, src, "b", 4, 4, nil)
	require.NoError(t, os.WriteFile(bad.Detections, []byte("1,2,oops,4\n"), 0o644))

	b := newBuilder(t)
	recs, err := b.Build(context.Background(), []pairing.Pair{good, bad}, ids.NewAllocator(&coco.Dataset{}))
	require.Error(t, err)
	assert.Len(t, recs.Moved, 1)
	assert.FileExists(t, bad.Image)
}

func TestBuildRefusesToOverwrite(t *testing.T) {
	src := t.TempDir()
	pair := writePair(t, src, "a", 4, 4, nil)
	b := newBuilder(t)
	require.NoError(t, os.MkdirAll(b.ImageDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(b.ImageDir, "1.png"), []byte("orphan"), 0o644))

	_, err := b.Build(context.Background(), []pairing.Pair{pair}, ids.NewAllocator(&coco.Dataset{}))
	assert.ErrorIs(t, err, ErrDestinationExists)
	assert.FileExists(t, pair.Image)
}

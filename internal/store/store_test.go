package store

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brensch/figcoco/internal/coco"
	"github.com/brensch/figcoco/internal/testutil"
)

func TestOpenFallsBackToBuiltinTemplate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "annotations.json")
	s, err := Open(path, "", testutil.DiscardLogger())
	require.NoError(t, err)

	ds := s.Dataset()
	assert.Empty(t, ds.Images)
	assert.Empty(t, ds.Annotations)
	assert.True(t, ds.HasCategory(1))
	assert.NotEmpty(t, ds.Info)
	assert.False(t, s.Loaded())
}

func TestOpenUsesTemplateFile(t *testing.T) {
	dir := t.TempDir()
	tmpl := filepath.Join(dir, "template.json")
	require.NoError(t, os.WriteFile(tmpl, []byte(`{
		"images": [{"id": 99, "file_name": "stale.png"}],
		"annotations": [],
		"categories": [{"id": 3, "name": "table"}]
	}`), 0o644))

	s, err := Open(filepath.Join(dir, "annotations.json"), tmpl, testutil.DiscardLogger())
	require.NoError(t, err)
	assert.Empty(t, s.Dataset().Images)
	assert.Equal(t, []coco.Category{{ID: 3, Name: "table"}}, s.Dataset().Categories)
}

func TestOpenMissingTemplate(t *testing.T) {
	dir := t.TempDir()
	_, err := Open(filepath.Join(dir, "annotations.json"), filepath.Join(dir, "nope.json"), testutil.DiscardLogger())
	assert.Error(t, err)
}

func TestOpenUnreadableDatasetIsMovedAside(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "annotations.json")
	require.NoError(t, os.WriteFile(path, []byte("{truncated"), 0o644))

	s, err := Open(path, "", testutil.DiscardLogger())
	require.NoError(t, err)
	assert.Empty(t, s.Dataset().Images)
	assert.False(t, s.Loaded())
	assert.NoFileExists(t, path)

	matches, err := filepath.Glob(path + ".unreadable-*")
	require.NoError(t, err)
	assert.Len(t, matches, 1)
}

func TestAppendPersistReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "annotations.json")
	s, err := Open(path, "", testutil.DiscardLogger())
	require.NoError(t, err)

	ann, err := coco.BuildAnnotation(coco.Detection{X1: 50, Y1: 50, X2: 10, Y2: 10}, 1, 1, 1)
	require.NoError(t, err)
	require.NoError(t, s.Append(
		[]coco.Image{coco.BuildImage("1.png", 1, 10, 20, coco.ImageMeta{License: 2})},
		[]coco.Annotation{ann},
	))
	require.NoError(t, s.Persist())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var doc map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(raw, &doc))
	for _, key := range []string{"images", "annotations", "categories"} {
		assert.Contains(t, doc, key)
	}

	leftovers, err := filepath.Glob(filepath.Join(filepath.Dir(path), "*.tmp-*"))
	require.NoError(t, err)
	assert.Empty(t, leftovers)

	reopened, err := Open(path, "", testutil.DiscardLogger())
	require.NoError(t, err)
	assert.True(t, reopened.Loaded())
	ds := reopened.Dataset()
	require.Len(t, ds.Images, 1)
	require.Len(t, ds.Annotations, 1)
	assert.Equal(t, []float64{10, 10, 40, 40}, ds.Annotations[0].BBox)
	assert.Equal(t, 1600.0, ds.Annotations[0].Area)
	assert.NoError(t, coco.Verify(ds))
}

func TestAppendRejectsOutOfOrder(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "a.json"), "", testutil.DiscardLogger())
	require.NoError(t, err)
	require.NoError(t, s.Append([]coco.Image{{ID: 5}}, []coco.Annotation{{ID: 3, ImageID: 5}}))

	tests := []struct {
		name   string
		images []coco.Image
		anns   []coco.Annotation
	}{
		{"image id reused", []coco.Image{{ID: 5}}, nil},
		{"image ids not increasing", []coco.Image{{ID: 7}, {ID: 6}}, nil},
		{"annotation id reused", []coco.Image{{ID: 6}}, []coco.Annotation{{ID: 3, ImageID: 6}}},
		{"dangling image", nil, []coco.Annotation{{ID: 4, ImageID: 42}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := s.Append(tt.images, tt.anns)
			assert.ErrorIs(t, err, ErrOutOfOrder)
			assert.Len(t, s.Dataset().Images, 1)
			assert.Len(t, s.Dataset().Annotations, 1)
		})
	}

	// An annotation may reference an image persisted in an earlier batch.
	require.NoError(t, s.Append(nil, []coco.Annotation{{ID: 4, ImageID: 5}}))
}

func TestReconcileOrphans(t *testing.T) {
	dir := t.TempDir()
	imageDir := filepath.Join(dir, "images")
	quarantine := filepath.Join(dir, "orphans")
	require.NoError(t, os.MkdirAll(imageDir, 0o755))
	for _, name := range []string{"1.png", "2.png", "3.png"} {
		require.NoError(t, os.WriteFile(filepath.Join(imageDir, name), []byte("x"), 0o644))
	}
	require.NoError(t, os.MkdirAll(quarantine, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(quarantine, "3.png"), []byte("older"), 0o644))

	ds := &coco.Dataset{Images: []coco.Image{{ID: 1, FileName: "1.png"}, {ID: 2, FileName: "2.png"}}}

	orphans, err := ReconcileOrphans(ds, imageDir, "", testutil.DiscardLogger())
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(imageDir, "3.png")}, orphans)
	assert.FileExists(t, filepath.Join(imageDir, "3.png"))

	orphans, err = ReconcileOrphans(ds, imageDir, quarantine, testutil.DiscardLogger())
	require.NoError(t, err)
	assert.Len(t, orphans, 1)
	assert.NoFileExists(t, filepath.Join(imageDir, "3.png"))
	assert.FileExists(t, filepath.Join(quarantine, "3.1.png"))
	assert.FileExists(t, filepath.Join(imageDir, "1.png"))

	orphans, err = ReconcileOrphans(ds, filepath.Join(dir, "missing"), quarantine, testutil.DiscardLogger())
	require.NoError(t, err)
	assert.Empty(t, orphans)
}

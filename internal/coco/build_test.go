package coco

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildAnnotation(t *testing.T) {
	tests := []struct {
		name     string
		det      Detection
		wantBBox []float64
		wantArea float64
		wantSeg  []float64
	}{
		{
			name:     "ordered corners",
			det:      Detection{X1: 10, Y1: 20, X2: 40, Y2: 60},
			wantBBox: []float64{10, 20, 30, 40},
			wantArea: 1200,
			wantSeg:  []float64{10, 20, 40, 20, 40, 60, 10, 60},
		},
		{
			name:     "reversed corners",
			det:      Detection{X1: 50, Y1: 50, X2: 10, Y2: 10},
			wantBBox: []float64{10, 10, 40, 40},
			wantArea: 1600,
			wantSeg:  []float64{10, 10, 50, 10, 50, 50, 10, 50},
		},
		{
			name:     "only x reversed",
			det:      Detection{X1: 30, Y1: 5, X2: 10, Y2: 15},
			wantBBox: []float64{10, 5, 20, 10},
			wantArea: 200,
			wantSeg:  []float64{10, 5, 30, 5, 30, 15, 10, 15},
		},
		{
			name:     "degenerate box",
			det:      Detection{X1: 7, Y1: 7, X2: 7, Y2: 9},
			wantBBox: []float64{7, 7, 0, 2},
			wantArea: 0,
			wantSeg:  []float64{7, 7, 7, 7, 7, 9, 7, 9},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ann, err := BuildAnnotation(tt.det, 12, 3, 1)
			require.NoError(t, err)
			assert.Equal(t, int64(12), ann.ID)
			assert.Equal(t, int64(3), ann.ImageID)
			assert.Equal(t, 1, ann.CategoryID)
			assert.Equal(t, 0, ann.IsCrowd)
			assert.Equal(t, tt.wantBBox, ann.BBox)
			assert.Equal(t, tt.wantArea, ann.Area)
			assert.Equal(t, ann.BBox[2]*ann.BBox[3], ann.Area)
			require.Len(t, ann.Segmentation, 1)
			assert.Equal(t, tt.wantSeg, ann.Segmentation[0])
		})
	}
}

func TestBuildAnnotationRejectsNonFinite(t *testing.T) {
	for _, v := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		_, err := BuildAnnotation(Detection{X1: 0, Y1: 0, X2: v, Y2: 4}, 1, 1, 1)
		assert.ErrorIs(t, err, ErrInvalidCoordinate)
	}
}

func TestBuildImage(t *testing.T) {
	meta := ImageMeta{License: 2, DateCaptured: "2020-05-20 01:00:00"}
	img := BuildImage("7.png", 7, 640, 480, meta)
	assert.Equal(t, Image{
		ID:           7,
		FileName:     "7.png",
		Width:        640,
		Height:       480,
		License:      2,
		DateCaptured: "2020-05-20 01:00:00",
	}, img)
}

func TestDatasetMaxIDs(t *testing.T) {
	ds := &Dataset{}
	assert.Zero(t, ds.MaxImageID())
	assert.Zero(t, ds.MaxAnnotationID())

	ds.Images = []Image{{ID: 3}, {ID: 9}, {ID: 4}}
	ds.Annotations = []Annotation{{ID: 21}, {ID: 2}}
	assert.Equal(t, int64(9), ds.MaxImageID())
	assert.Equal(t, int64(21), ds.MaxAnnotationID())
}

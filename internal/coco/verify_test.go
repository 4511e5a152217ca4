package coco

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func validDataset() *Dataset {
	return &Dataset{
		Images: []Image{{ID: 1}, {ID: 2}},
		Annotations: []Annotation{
			{ID: 1, ImageID: 1, BBox: []float64{0, 0, 2, 3}, Area: 6},
			{ID: 2, ImageID: 2, BBox: []float64{1, 1, 0, 0}, Area: 0},
		},
		Categories: []Category{{ID: 1, Name: "figure"}},
	}
}

func TestVerify(t *testing.T) {
	assert.NoError(t, Verify(validDataset()))
	assert.NoError(t, Verify(&Dataset{}))

	tests := []struct {
		name   string
		mutate func(*Dataset)
	}{
		{"duplicate image id", func(d *Dataset) { d.Images[1].ID = 1 }},
		{"decreasing image id", func(d *Dataset) { d.Images[0].ID = 5 }},
		{"zero image id", func(d *Dataset) { d.Images[0].ID = 0 }},
		{"duplicate annotation id", func(d *Dataset) { d.Annotations[1].ID = 1 }},
		{"dangling image_id", func(d *Dataset) { d.Annotations[0].ImageID = 99 }},
		{"negative width", func(d *Dataset) { d.Annotations[0].BBox[2] = -2; d.Annotations[0].Area = -6 }},
		{"wrong area", func(d *Dataset) { d.Annotations[0].Area = 7 }},
		{"short bbox", func(d *Dataset) { d.Annotations[0].BBox = []float64{1, 2} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ds := validDataset()
			tt.mutate(ds)
			assert.ErrorIs(t, Verify(ds), ErrInvariantViolation)
		})
	}
}

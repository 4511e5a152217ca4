// Package coco holds the COCO object-detection records produced by the
// aggregator and the pure builders that create them.
package coco

import (
	"github.com/goccy/go-json"
)

// Dataset is the persisted COCO document. Info and Licenses are carried
// through untouched from the template so the output stays a valid COCO file.
type Dataset struct {
	Info        json.RawMessage `json:"info,omitempty"`
	Licenses    json.RawMessage `json:"licenses,omitempty"`
	Images      []Image         `json:"images"`
	Annotations []Annotation    `json:"annotations"`
	Categories  []Category      `json:"categories"`
}

// Image is one COCO image record.
type Image struct {
	ID           int64  `json:"id"`
	FileName     string `json:"file_name"`
	Height       int    `json:"height"`
	Width        int    `json:"width"`
	License      int    `json:"license"`
	CocoURL      string `json:"coco_url"`
	FlickrURL    string `json:"flickr_url"`
	DateCaptured string `json:"date_captured"`
}

// Annotation is one COCO annotation record. BBox is [x, y, width, height].
type Annotation struct {
	ID           int64       `json:"id"`
	ImageID      int64       `json:"image_id"`
	CategoryID   int         `json:"category_id"`
	Segmentation [][]float64 `json:"segmentation"`
	Area         float64     `json:"area"`
	BBox         []float64   `json:"bbox"`
	IsCrowd      int         `json:"iscrowd"`
}

// Category is a COCO category entry, supplied by the template.
type Category struct {
	ID            int    `json:"id"`
	Name          string `json:"name"`
	Supercategory string `json:"supercategory,omitempty"`
}

// Detection is one predicted box as emitted by a worker, before normalization.
// Category is the raw class indicator from the detection row (0 when absent).
type Detection struct {
	Category float64
	X1       float64
	Y1       float64
	X2       float64
	Y2       float64
}

// ImageMeta holds the fixed metadata stamped on every image record.
type ImageMeta struct {
	License      int
	CocoURL      string
	FlickrURL    string
	DateCaptured string
}

// MaxImageID returns the largest image id in the dataset, or 0 when empty.
func (d *Dataset) MaxImageID() int64 {
	var max int64
	for _, img := range d.Images {
		if img.ID > max {
			max = img.ID
		}
	}
	return max
}

// MaxAnnotationID returns the largest annotation id in the dataset, or 0 when empty.
func (d *Dataset) MaxAnnotationID() int64 {
	var max int64
	for _, ann := range d.Annotations {
		if ann.ID > max {
			max = ann.ID
		}
	}
	return max
}

// HasCategory reports whether id is one of the dataset's categories.
func (d *Dataset) HasCategory(id int) bool {
	for _, c := range d.Categories {
		if c.ID == id {
			return true
		}
	}
	return false
}

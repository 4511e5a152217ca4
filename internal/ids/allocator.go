// Package ids hands out image and annotation identifiers.
package ids

import "github.com/brensch/figcoco/internal/coco"

// Allocator holds the next free image and annotation ids. It is not safe for
// concurrent use; the scheduler owns one instance inside its serial build phase.
type Allocator struct {
	nextImage      int64
	nextAnnotation int64
}

// NewAllocator seeds both counters at one past the largest id already in ds.
func NewAllocator(ds *coco.Dataset) *Allocator {
	return &Allocator{
		nextImage:      ds.MaxImageID() + 1,
		nextAnnotation: ds.MaxAnnotationID() + 1,
	}
}

// AllocateImageID returns the next image id and advances the counter.
func (a *Allocator) AllocateImageID() int64 {
	id := a.nextImage
	a.nextImage++
	return id
}

// AllocateAnnotationID returns the next annotation id and advances the counter.
func (a *Allocator) AllocateAnnotationID() int64 {
	id := a.nextAnnotation
	a.nextAnnotation++
	return id
}

// Next returns the ids the next allocations will hand out, without advancing.
func (a *Allocator) Next() (image, annotation int64) {
	return a.nextImage, a.nextAnnotation
}

// Package pairing matches extracted images to their detection files.
package pairing

import (
	"log/slog"

	"github.com/brensch/figcoco/internal/util"
)

// Pair is an image and the detection file that shares its stem.
type Pair struct {
	Image      string
	Detections string
}

// Validate pairs images with detection files by stem (directory plus base name
// without extension), never by list position. Images without a detection
// file, detection files without an image, and stems claimed by more than one
// detection file are dropped with a warning. Pairs follow the order of images,
// which callers keep in archive order so ids are assigned deterministically.
func Validate(images, detections []string, logger *slog.Logger) []Pair {
	byStem := make(map[string][]string, len(detections))
	for _, d := range detections {
		stem := util.Stem(d)
		byStem[stem] = append(byStem[stem], d)
	}

	pairs := make([]Pair, 0, len(images))
	used := make(map[string]bool, len(byStem))
	for _, img := range images {
		stem := util.Stem(img)
		candidates := byStem[stem]
		switch {
		case len(candidates) == 0:
			logger.Warn("Image has no matching detection file, skipping.", slog.String("image", img))
			continue
		case len(candidates) > 1:
			logger.Warn("Image matches several detection files, skipping.", slog.String("image", img), slog.Any("detections", candidates))
			used[stem] = true
			continue
		case used[stem]:
			logger.Warn("Detection file already paired with another image, skipping.", slog.String("image", img), slog.String("detections", candidates[0]))
			continue
		}
		used[stem] = true
		pairs = append(pairs, Pair{Image: img, Detections: candidates[0]})
	}

	for _, d := range detections {
		if !used[util.Stem(d)] {
			logger.Warn("Detection file has no matching image, skipping.", slog.String("detections", d))
		}
	}

	logger.Debug("Pairs validated.",
		slog.Int("images", len(images)),
		slog.Int("detection_files", len(detections)),
		slog.Int("pairs", len(pairs)))
	return pairs
}

package store

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/brensch/figcoco/internal/coco"
)

// ReconcileOrphans finds files in imageDir that no image record references.
// They are left behind when a run stops after moving images but before the
// dataset was persisted. With quarantineDir set, orphans are moved there so
// newly allocated ids cannot collide with them; otherwise they are only
// reported. The returned paths are the orphans' original locations.
func ReconcileOrphans(ds *coco.Dataset, imageDir, quarantineDir string, logger *slog.Logger) ([]string, error) {
	entries, err := os.ReadDir(imageDir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list image dir %s: %w", imageDir, err)
	}

	referenced := make(map[string]struct{}, len(ds.Images))
	for _, img := range ds.Images {
		referenced[img.FileName] = struct{}{}
	}

	var orphans []string
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		if _, ok := referenced[e.Name()]; ok {
			continue
		}
		orphans = append(orphans, filepath.Join(imageDir, e.Name()))
	}
	sort.Strings(orphans)
	if len(orphans) == 0 {
		return nil, nil
	}

	if quarantineDir == "" {
		logger.Warn("Found images without dataset records; leaving in place.",
			slog.Int("count", len(orphans)), slog.String("image_dir", imageDir))
		return orphans, nil
	}

	if err := os.MkdirAll(quarantineDir, 0o755); err != nil {
		return orphans, fmt.Errorf("create quarantine dir %s: %w", quarantineDir, err)
	}
	var moveErrs error
	for _, src := range orphans {
		dst := filepath.Join(quarantineDir, filepath.Base(src))
		if _, err := os.Stat(dst); err == nil {
			dst = uniquePath(dst)
		}
		if err := os.Rename(src, dst); err != nil {
			moveErrs = errors.Join(moveErrs, fmt.Errorf("quarantine %s: %w", src, err))
			continue
		}
		logger.Warn("Quarantined orphaned image.", slog.String("from", src), slog.String("to", dst))
	}
	return orphans, moveErrs
}

func uniquePath(p string) string {
	ext := filepath.Ext(p)
	base := p[:len(p)-len(ext)]
	for i := 1; ; i++ {
		candidate := fmt.Sprintf("%s.%d%s", base, i, ext)
		if _, err := os.Stat(candidate); errors.Is(err, fs.ErrNotExist) {
			return candidate
		}
	}
}

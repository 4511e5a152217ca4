package orchestrator

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/brensch/figcoco/internal/config"
)

// DiscoverArchives lists the worker archives matching cfg.ArchiveGlob below
// cfg.InputDir, sorted so every run walks them in the same order.
func DiscoverArchives(cfg config.Config, logger *slog.Logger) ([]string, error) {
	info, err := os.Stat(cfg.InputDir)
	if err != nil {
		return nil, fmt.Errorf("input dir %s: %w", cfg.InputDir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("input dir %s is not a directory", cfg.InputDir)
	}

	pattern := filepath.Join(cfg.InputDir, cfg.ArchiveGlob)
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return nil, fmt.Errorf("glob archives %s: %w", pattern, err)
	}

	archives := make([]string, 0, len(matches))
	for _, m := range matches {
		fi, err := os.Stat(m)
		if err != nil || !fi.Mode().IsRegular() {
			continue
		}
		archives = append(archives, m)
	}
	sort.Strings(archives)

	logger.Info("Archive discovery complete.", slog.String("pattern", pattern), slog.Int("archives", len(archives)))
	return archives, nil
}

// Chunk splits archives into consecutive batches of at most size items.
func Chunk(archives []string, size int) [][]string {
	if size < 1 {
		size = 1
	}
	batches := make([][]string, 0, (len(archives)+size-1)/size)
	for start := 0; start < len(archives); start += size {
		end := min(start+size, len(archives))
		batches = append(batches, archives[start:end])
	}
	return batches
}

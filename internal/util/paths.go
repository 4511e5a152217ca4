package util

import (
	"path/filepath"
	"strings"
)

// Stem returns path with its final extension removed. The directory part is kept,
// so two files only share a stem when they live in the same directory.
func Stem(path string) string {
	return strings.TrimSuffix(path, filepath.Ext(path))
}

// HasExt reports whether name ends in one of exts (case-insensitive, exts include the dot).
func HasExt(name string, exts []string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	if ext == "" {
		return false
	}
	for _, e := range exts {
		if strings.ToLower(e) == ext {
			return true
		}
	}
	return false
}

// NormalizeExts lower-cases exts and makes sure each starts with a dot.
func NormalizeExts(exts []string) []string {
	out := make([]string, 0, len(exts))
	for _, e := range exts {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" {
			continue
		}
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		out = append(out, e)
	}
	return out
}

// Package testutil builds worker archives and datasets for tests.
package testutil

import (
	"archive/zip"
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// Box is a detection row written into archive fixtures as category,x1,y1,x2,y2.
type Box struct {
	X1, Y1, X2, Y2 float64
}

// Page describes one image/detection pair inside an archive fixture.
type Page struct {
	Name   string // base name shared by the image and its detection file
	Width  int
	Height int
	Boxes  []Box
}

// PNG returns an encoded blank PNG of the given size.
func PNG(t *testing.T, width, height int) []byte {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, width, height))
	img.Set(0, 0, color.White)
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// DetectionCSV renders boxes as a CSV detection file with header.
func DetectionCSV(boxes []Box) []byte {
	var sb strings.Builder
	sb.WriteString("category,x1,y1,x2,y2\n")
	for _, b := range boxes {
		fmt.Fprintf(&sb, "1,%g,%g,%g,%g\n", b.X1, b.Y1, b.X2, b.Y2)
	}
	return []byte(sb.String())
}

// WriteZip writes a zip archive at path with the given entries (name -> content).
func WriteZip(t *testing.T, path string, entries map[string][]byte) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	f, err := os.Create(path)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	for name, data := range entries {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())
}

// WritePageArchive writes a worker archive holding each page as tmp/<name>.png
// plus tmp/<name>.csv, the layout workers produce.
func WritePageArchive(t *testing.T, path string, pages []Page) {
	t.Helper()
	entries := make(map[string][]byte, 2*len(pages))
	for _, p := range pages {
		entries["tmp/"+p.Name+".png"] = PNG(t, p.Width, p.Height)
		entries["tmp/"+p.Name+".csv"] = DetectionCSV(p.Boxes)
	}
	WriteZip(t, path, entries)
}

// DiscardLogger returns a logger that drops everything.
func DiscardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyDefaults(t *testing.T) {
	c := Config{InputDir: "in", OutputDir: "out", DbPath: "state.duckdb"}
	c.ApplyDefaults(time.Now())

	assert.Equal(t, filepath.Join("out", "images"), c.ImageDir)
	assert.Equal(t, filepath.Join("out", "annotations.json"), c.DatasetPath)
	assert.Equal(t, filepath.Join("out", "tmp"), c.TempDir)
	assert.Equal(t, filepath.Join("out", "orphans"), c.OrphanDir)
	assert.Equal(t, "state.duckdb", c.DbPath)
	assert.Equal(t, DefaultBatchSize, c.BatchSize)
	assert.Equal(t, DefaultBatchSize, c.NumWorkers)
	assert.Equal(t, DefaultCategoryID, c.CategoryID)
	assert.Equal(t, DefaultDateCaptured, c.DateCaptured)
	assert.Equal(t, DefaultArchiveGlob, c.ArchiveGlob)
	require.NoError(t, c.Validate())
}

func TestApplyDefaultsKeepsExplicitValues(t *testing.T) {
	c := Config{
		InputDir: "in", OutputDir: "out", DbPath: "db",
		BatchSize: 3, ImageDir: "/data/img", ImageExts: []string{"PNG"}, DateCaptured: "now",
	}
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	c.ApplyDefaults(now)

	assert.Equal(t, "/data/img", c.ImageDir)
	assert.Equal(t, 3, c.NumWorkers)
	assert.Equal(t, []string{".png"}, c.ImageExts)
	assert.Equal(t, "2024-03-01 12:00:00", c.DateCaptured)
}

func TestApplyDefaultsPutsEventLogInOutputDir(t *testing.T) {
	c := Config{InputDir: "in", OutputDir: "out"}
	c.ApplyDefaults(time.Now())
	assert.Equal(t, filepath.Join("out", DefaultDbFile), c.DbPath)
	require.NoError(t, c.Validate())
}

func TestValidateAcceptsSeparateTempDir(t *testing.T) {
	c := Config{InputDir: "in", OutputDir: "out", TempDir: "/scratch/figcoco"}
	c.ApplyDefaults(time.Now())
	require.NoError(t, c.Validate())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing input", func(c *Config) { c.InputDir = "" }},
		{"missing output", func(c *Config) { c.OutputDir = "" }},
		{"missing db", func(c *Config) { c.DbPath = "" }},
		{"zero batch", func(c *Config) { c.BatchSize = -1 }},
		{"zero workers", func(c *Config) { c.NumWorkers = -2 }},
		{"bad category", func(c *Config) { c.CategoryID = -1 }},
		{"bad date", func(c *Config) { c.DateCaptured = "yesterday" }},
		{"overlapping exts", func(c *Config) { c.DetectionExts = []string{".png"} }},
		{"temp dir is output dir", func(c *Config) { c.TempDir = "out" }},
		{"temp dir contains output dir", func(c *Config) { c.TempDir = "." }},
		{"temp dir is image dir", func(c *Config) { c.TempDir = filepath.Join("out", "images") }},
		{"temp dir holds orphans", func(c *Config) {
			c.TempDir = filepath.Join("out", "scratch")
			c.OrphanDir = filepath.Join("out", "scratch", "orphans")
		}},
		{"temp dir holds dataset", func(c *Config) {
			c.TempDir = "/data/scratch"
			c.DatasetPath = "/data/scratch/annotations.json"
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Config{InputDir: "in", OutputDir: "out", DbPath: "db"}
			c.ApplyDefaults(time.Now())
			tt.mutate(&c)
			assert.ErrorIs(t, c.Validate(), ErrInvalidConfig)
		})
	}
}

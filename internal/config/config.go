package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/brensch/figcoco/internal/util"
)

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid config")

const (
	// DefaultBatchSize is the number of archives extracted together.
	DefaultBatchSize = 7
	// DefaultCategoryID is the single detection class written to annotations.
	DefaultCategoryID = 1
	// DefaultLicense is the license id stamped on image records.
	DefaultLicense = 2
	// DefaultDateCaptured is stamped on image records. "now" uses the run start time.
	DefaultDateCaptured = "2020-05-20 01:00:00"
	// DefaultDbFile is the event log file name inside the output dir.
	DefaultDbFile = "figcoco_state.duckdb"
	// DefaultArchiveGlob matches one archive per worker output subdirectory.
	DefaultArchiveGlob = "*/*.zip"
)

var (
	DefaultImageExts     = []string{".png", ".jpg", ".jpeg"}
	DefaultDetectionExts = []string{".csv", ".json", ".parquet"}
)

// Config is the run context handed to every component.
type Config struct {
	InputDir      string
	OutputDir     string
	ImageDir      string
	DatasetPath   string
	TemplatePath  string
	TempDir       string
	OrphanDir     string
	DbPath        string
	ArchiveGlob   string
	BatchSize     int
	NumWorkers    int
	CategoryID    int
	License       int
	DateCaptured  string
	ImageExts     []string
	DetectionExts []string
	Reprocess     bool
	// QuarantineOrphans moves unreferenced images to OrphanDir at startup;
	// when false they are only reported.
	QuarantineOrphans bool
}

// ApplyDefaults fills derived paths and zero values. now resolves
// DateCaptured "now".
func (c *Config) ApplyDefaults(now time.Time) {
	if c.ImageDir == "" && c.OutputDir != "" {
		c.ImageDir = filepath.Join(c.OutputDir, "images")
	}
	if c.DatasetPath == "" && c.OutputDir != "" {
		c.DatasetPath = filepath.Join(c.OutputDir, "annotations.json")
	}
	if c.TempDir == "" && c.OutputDir != "" {
		c.TempDir = filepath.Join(c.OutputDir, "tmp")
	}
	if c.DbPath == "" && c.OutputDir != "" {
		c.DbPath = filepath.Join(c.OutputDir, DefaultDbFile)
	}
	if c.OrphanDir == "" && c.OutputDir != "" {
		c.OrphanDir = filepath.Join(c.OutputDir, "orphans")
	}
	if c.ArchiveGlob == "" {
		c.ArchiveGlob = DefaultArchiveGlob
	}
	if c.BatchSize == 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.NumWorkers == 0 {
		c.NumWorkers = c.BatchSize
	}
	if c.CategoryID == 0 {
		c.CategoryID = DefaultCategoryID
	}
	if c.DateCaptured == "" {
		c.DateCaptured = DefaultDateCaptured
	}
	if strings.EqualFold(c.DateCaptured, "now") {
		c.DateCaptured = util.FormatCaptureTime(now)
	}
	if len(c.ImageExts) == 0 {
		c.ImageExts = DefaultImageExts
	}
	if len(c.DetectionExts) == 0 {
		c.DetectionExts = DefaultDetectionExts
	}
	c.ImageExts = util.NormalizeExts(c.ImageExts)
	c.DetectionExts = util.NormalizeExts(c.DetectionExts)
}

// Validate reports every problem with the config at once.
func (c Config) Validate() error {
	var errs []error
	bad := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...)))
	}

	if c.InputDir == "" {
		bad("input dir is required")
	}
	if c.OutputDir == "" {
		bad("output dir is required")
	}
	if c.DbPath == "" {
		bad("db path is required")
	}
	if c.BatchSize < 1 {
		bad("batch size must be at least 1, got %d", c.BatchSize)
	}
	if c.NumWorkers < 1 {
		bad("workers must be at least 1, got %d", c.NumWorkers)
	}
	if c.CategoryID < 1 {
		bad("category id must be positive, got %d", c.CategoryID)
	}
	if _, err := util.ParseCaptureTime(c.DateCaptured); err != nil {
		bad("%v", err)
	}
	if len(c.ImageExts) == 0 || len(c.DetectionExts) == 0 {
		bad("image and detection extensions must not be empty")
	}
	for _, e := range c.ImageExts {
		if util.HasExt("x"+e, c.DetectionExts) {
			bad("extension %s is listed as both image and detection", e)
		}
	}
	// TempDir is wiped at the start of every run.
	if c.TempDir != "" {
		kept := map[string]string{
			"output dir":  c.OutputDir,
			"image dir":   c.ImageDir,
			"orphan dir":  c.OrphanDir,
			"dataset dir": filepath.Dir(c.DatasetPath),
		}
		for _, name := range []string{"output dir", "image dir", "orphan dir", "dataset dir"} {
			dir := kept[name]
			if dir != "" && dir != "." && within(c.TempDir, dir) {
				bad("temp dir %s must not be or contain the %s %s", c.TempDir, name, dir)
			}
		}
	}
	return errors.Join(errs...)
}

// within reports whether path is dir or lies below it.
func within(dir, path string) bool {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return false
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	rel, err := filepath.Rel(absDir, absPath)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Viper keys. Flags, FIGCOCO_* environment variables and the optional YAML
// config file all resolve through these.
const (
	KeyInputDir          = "input-dir"
	KeyOutputDir         = "output-dir"
	KeyImageDir          = "image-dir"
	KeyDatasetPath       = "dataset"
	KeyTemplatePath      = "template"
	KeyTempDir           = "temp-dir"
	KeyOrphanDir         = "orphan-dir"
	KeyDbPath            = "db-path"
	KeyArchiveGlob       = "archive-glob"
	KeyBatchSize         = "batch-size"
	KeyWorkers           = "workers"
	KeyCategoryID        = "category-id"
	KeyLicense           = "license"
	KeyDateCaptured      = "date-captured"
	KeyImageExts         = "image-ext"
	KeyDetectionExts     = "detection-ext"
	KeyQuarantineOrphans = "quarantine-orphans"
)

// EnvPrefix is the prefix for environment overrides, e.g. FIGCOCO_BATCH_SIZE.
const EnvPrefix = "FIGCOCO"

// NewViper returns a viper instance wired for environment overrides and,
// when cfgFile is set, the YAML file at that path.
func NewViper(cfgFile string) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault(KeyLicense, DefaultLicense)
	v.SetDefault(KeyBatchSize, DefaultBatchSize)
	v.SetDefault(KeyCategoryID, DefaultCategoryID)
	v.SetDefault(KeyDateCaptured, DefaultDateCaptured)
	v.SetDefault(KeyArchiveGlob, DefaultArchiveGlob)
	v.SetDefault(KeyQuarantineOrphans, true)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if errors.As(err, &notFound) {
				return nil, fmt.Errorf("config file %s not found: %w", cfgFile, err)
			}
			return nil, fmt.Errorf("read config file %s: %w", cfgFile, err)
		}
	}
	return v, nil
}

// FromViper builds a Config from v, applies defaults and validates it.
func FromViper(v *viper.Viper, now time.Time) (Config, error) {
	c := Config{
		InputDir:          v.GetString(KeyInputDir),
		OutputDir:         v.GetString(KeyOutputDir),
		ImageDir:          v.GetString(KeyImageDir),
		DatasetPath:       v.GetString(KeyDatasetPath),
		TemplatePath:      v.GetString(KeyTemplatePath),
		TempDir:           v.GetString(KeyTempDir),
		OrphanDir:         v.GetString(KeyOrphanDir),
		DbPath:            v.GetString(KeyDbPath),
		ArchiveGlob:       v.GetString(KeyArchiveGlob),
		BatchSize:         v.GetInt(KeyBatchSize),
		NumWorkers:        v.GetInt(KeyWorkers),
		CategoryID:        v.GetInt(KeyCategoryID),
		License:           v.GetInt(KeyLicense),
		DateCaptured:      v.GetString(KeyDateCaptured),
		ImageExts:         v.GetStringSlice(KeyImageExts),
		DetectionExts:     v.GetStringSlice(KeyDetectionExts),
		QuarantineOrphans: v.GetBool(KeyQuarantineOrphans),
	}
	c.ApplyDefaults(now)
	if err := c.Validate(); err != nil {
		return c, err
	}
	return c, nil
}

package cmd

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/marcboeker/go-duckdb" // DuckDB driver
	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/brensch/figcoco/internal/config"
	"github.com/brensch/figcoco/internal/db"
)

var (
	cfgFile   string
	logFormat string
	logLevel  string
	logOutput string

	// Global instances populated in PersistentPreRunE
	rootLogger *slog.Logger
	logCloser  io.Closer
	dbConn     *sql.DB
	appConfig  config.Config
)

var rootCmd = &cobra.Command{
	Use:   "figcoco",
	Short: "Merge worker detection archives into one COCO dataset.",
	Long: `figcoco collects the zip archives written by detection workers, pairs each
page image with its detection file, and appends them to a single COCO-format
dataset with globally unique image and annotation ids. Images are moved into
an image store named after their id.

Archives are processed in batches. The dataset file is rewritten atomically
after each batch, and a DuckDB event log records which archives are merged so
later runs only pick up new ones.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// --- 1. Initialize Logger ---
		var err error
		rootLogger, logCloser, err = newLogger(logOutput, logFormat, logLevel)
		if err != nil {
			return err
		}
		slog.SetDefault(rootLogger)

		// --- 2. Load config: flags > FIGCOCO_* env > config file > defaults ---
		v, err := config.NewViper(cfgFile)
		if err != nil {
			return err
		}
		if err := v.BindPFlags(cmd.Flags()); err != nil {
			return fmt.Errorf("bind flags: %w", err)
		}
		appConfig, err = config.FromViper(v, time.Now())
		if err != nil {
			return err
		}
		rootLogger.Debug("Configuration loaded", slog.Any("config", appConfig))

		if appConfig.DbPath != ":memory:" {
			dbDir := filepath.Dir(appConfig.DbPath)
			if err := os.MkdirAll(dbDir, 0o755); err != nil {
				return fmt.Errorf("failed to create database directory %s: %w", dbDir, err)
			}
		}

		// --- 3. Initialize DuckDB Connection & Schema ---
		dsn := appConfig.DbPath
		if dsn == ":memory:" {
			dsn = ""
		}
		rootLogger.Debug("Initializing DuckDB connection", "path", appConfig.DbPath)
		dbConn, err = sql.Open("duckdb", dsn)
		if err != nil {
			return fmt.Errorf("failed to open duckdb database (%s): %w", appConfig.DbPath, err)
		}
		pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err = dbConn.PingContext(pingCtx); err != nil {
			dbConn.Close()
			return fmt.Errorf("failed to ping duckdb database (%s): %w", appConfig.DbPath, err)
		}
		if err := db.InitializeSchema(dbConn); err != nil {
			dbConn.Close()
			return fmt.Errorf("failed to initialize database schema: %w", err)
		}
		rootLogger.Debug("Database schema initialized.")
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if dbConn != nil {
			if err := dbConn.Close(); err != nil {
				rootLogger.Error("Failed to close DuckDB connection cleanly", "error", err)
			}
		}
		if logCloser != nil {
			logCloser.Close()
		}
		return nil
	},
}

// Execute adds all child commands to the root command and runs it.
func Execute() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(tuiCmd)
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(stateCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(analyseCmd)

	if err := rootCmd.Execute(); err != nil {
		if rootLogger != nil {
			rootLogger.Error("Command execution failed", "error", err)
		} else {
			fmt.Fprintf(os.Stderr, "Command execution failed: %v\n", err)
		}
		os.Exit(1)
	}
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "YAML config file; keys match the long flag names")
	pf.StringP(config.KeyInputDir, "i", "./input", "Directory holding one subdirectory per worker with its output archive")
	pf.StringP(config.KeyOutputDir, "o", "./output", "Directory for the dataset, image store and scratch space")
	pf.String(config.KeyImageDir, "", "Image store directory (default <output-dir>/images)")
	pf.String(config.KeyDatasetPath, "", "COCO dataset file (default <output-dir>/annotations.json)")
	pf.String(config.KeyTemplatePath, "", "Template dataset used when no dataset exists yet (default built-in)")
	pf.String(config.KeyTempDir, "", "Scratch directory for extraction (default <output-dir>/tmp)")
	pf.String(config.KeyOrphanDir, "", "Where unreferenced images are quarantined (default <output-dir>/orphans)")
	pf.StringP(config.KeyDbPath, "d", "", "Path to DuckDB event log (default <output-dir>/figcoco_state.duckdb, :memory: for in-memory)")
	pf.String(config.KeyArchiveGlob, config.DefaultArchiveGlob, "Glob below input-dir selecting worker archives")
	pf.IntP(config.KeyBatchSize, "b", config.DefaultBatchSize, "Archives extracted and merged per batch")
	pf.IntP(config.KeyWorkers, "w", 0, "Concurrent extraction workers (default batch-size)")
	pf.Int(config.KeyCategoryID, config.DefaultCategoryID, "Category id written to every annotation")
	pf.Int(config.KeyLicense, config.DefaultLicense, "License id stamped on image records")
	pf.String(config.KeyDateCaptured, config.DefaultDateCaptured, `date_captured for image records ("now" for run start)`)
	pf.StringSlice(config.KeyImageExts, config.DefaultImageExts, "Image file extensions")
	pf.StringSlice(config.KeyDetectionExts, config.DefaultDetectionExts, "Detection file extensions")
	pf.Bool(config.KeyQuarantineOrphans, true, "Move images without dataset records to orphan-dir at startup")
	pf.StringVar(&logFormat, "log-format", "text", "Log output format (text or json)")
	pf.StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	pf.StringVar(&logOutput, "log-output", "stderr", "Log output destination (stderr, stdout, or file path)")

	rootCmd.Version = "0.1.0"
}

// newLogger builds the root logger. File output goes through lumberjack so
// long runs rotate instead of growing one file.
func newLogger(output, format, levelName string) (*slog.Logger, io.Closer, error) {
	var level slog.Level
	switch strings.ToLower(levelName) {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return nil, nil, fmt.Errorf("unknown log level %q", levelName)
	}

	var w io.Writer = os.Stderr
	var closer io.Closer
	switch strings.ToLower(output) {
	case "", "stderr":
	case "stdout":
		w = os.Stdout
	default:
		if err := os.MkdirAll(filepath.Dir(output), 0o755); err != nil {
			return nil, nil, fmt.Errorf("failed to create log directory for %s: %w", output, err)
		}
		lj := &lumberjack.Logger{
			Filename:   output,
			MaxSize:    50, // megabytes
			MaxBackups: 5,
			MaxAge:     28, // days
			Compress:   true,
		}
		w, closer = lj, lj
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler), closer, nil
}

func getLogger() *slog.Logger {
	if rootLogger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return rootLogger
}

func getDB() *sql.DB { return dbConn }

func getConfig() config.Config { return appConfig }

package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/DeRuina/timberjack"
	"github.com/mattn/go-isatty"
	"github.com/sirupsen/logrus"
)

var (
	// Logger is the global logger instance
	Logger *logrus.Logger

	mu          sync.Mutex
	initialized bool
)

// LogConfig holds configuration for logging
type LogConfig struct {
	Level        string // "debug", "info", "warn", "error"
	FilePath     string // empty disables the file writer
	RotationTime string // e.g. "1h", "24h"
	MaxSize      int    // megabytes
	MaxBackups   int
	MaxAge       int // days
	Compress     bool
	Quiet        bool // suppress stdout, used by CLI commands that print their own output
}

// Init configures the global logger. Repeated calls are no-ops.
func Init(config LogConfig) error {
	mu.Lock()
	defer mu.Unlock()

	if initialized && Logger != nil {
		return nil
	}
	if Logger == nil {
		Logger = newBaseLogger()
	}

	level, err := logrus.ParseLevel(config.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	Logger.SetLevel(level)

	var writers []io.Writer
	if !config.Quiet && !isStdoutRedirectedToFile() {
		writers = append(writers, os.Stdout)
	}

	if config.FilePath != "" {
		fileWriter, err := newRotatingWriter(config)
		if err != nil {
			return err
		}
		writers = append(writers, fileWriter)
	}

	if len(writers) == 0 {
		Logger.SetOutput(io.Discard)
	} else {
		Logger.SetOutput(io.MultiWriter(writers...))
	}

	initialized = true
	return nil
}

func newRotatingWriter(config LogConfig) (io.Writer, error) {
	dir := filepath.Dir(config.FilePath)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, err
		}
	}

	maxSize := config.MaxSize
	if maxSize == 0 {
		maxSize = 50
	}
	maxBackups := config.MaxBackups
	if maxBackups == 0 {
		maxBackups = 3
	}
	maxAge := config.MaxAge
	if maxAge == 0 {
		maxAge = 14
	}

	rotation := 24 * time.Hour
	if config.RotationTime != "" {
		d, err := time.ParseDuration(config.RotationTime)
		if err != nil {
			return nil, fmt.Errorf("invalid rotation_time: %w", err)
		}
		rotation = d
	}

	compression := ""
	if config.Compress {
		compression = "gzip"
	}

	return &timberjack.Logger{
		Filename:         config.FilePath,
		MaxSize:          maxSize,
		MaxBackups:       maxBackups,
		MaxAge:           maxAge,
		RotationInterval: rotation,
		Compression:      compression,
		LocalTime:        true,
	}, nil
}

func newBaseLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	l.SetLevel(logrus.InfoLevel)
	l.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
		DisableColors:   true,
	})
	return l
}

// isStdoutRedirectedToFile reports whether stdout is a regular file (daemon
// mode), where the rotating file writer already receives every line.
func isStdoutRedirectedToFile() bool {
	fd := os.Stdout.Fd()
	if isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd) {
		return false
	}
	stat, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	return stat.Mode().IsRegular()
}

// GetLogger returns the global logger, creating a silent default when Init
// has not run yet. Init can still reconfigure it afterwards.
func GetLogger() *logrus.Logger {
	mu.Lock()
	defer mu.Unlock()
	if Logger == nil {
		Logger = newBaseLogger()
	}
	return Logger
}

// ForReport returns an entry tagged with the report id.
func ForReport(reportID string) *logrus.Entry {
	return GetLogger().WithField("report_id", reportID)
}

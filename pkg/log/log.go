// Package log configures the process-wide logrus logger shared by
// every component's package-level `prefix`-tagged entry. It is the
// one place that wires the formatter and file rotation; everywhere
// else just calls logrus.WithFields.
package log

import (
	"io"
	"os"

	logger "github.com/sirupsen/logrus"
	prefixed "github.com/x-cray/logrus-prefixed-formatter"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config controls where log output goes and at what level.
type Config struct {
	Level      string // one of logrus's level names; defaults to "info"
	FilePath   string // optional; when set, output also rotates to this file
	MaxSizeMB  int    // lumberjack MaxSize, default 100
	MaxBackups int    // lumberjack MaxBackups, default 5
	MaxAgeDays int    // lumberjack MaxAge, default 28
}

// Configure installs the prefixed text formatter and, if cfg.FilePath
// is set, a lumberjack-backed rotating file writer alongside stderr.
func Configure(cfg Config) error {
	level := logger.InfoLevel
	if cfg.Level != "" {
		parsed, err := logger.ParseLevel(cfg.Level)
		if err != nil {
			return err
		}
		level = parsed
	}
	logger.SetLevel(level)

	logger.SetFormatter(&prefixed.TextFormatter{
		DisableColors:   false,
		TimestampFormat: "2006-01-02 15:04:05",
		ForceFormatting: true,
	})

	var out io.Writer = os.Stderr
	if cfg.FilePath != "" {
		rotator := &lumberjack.Logger{
			Filename:   cfg.FilePath,
			MaxSize:    orDefault(cfg.MaxSizeMB, 100),
			MaxBackups: orDefault(cfg.MaxBackups, 5),
			MaxAge:     orDefault(cfg.MaxAgeDays, 28),
			Compress:   true,
		}
		out = io.MultiWriter(os.Stderr, rotator)
	}
	logger.SetOutput(out)

	return nil
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

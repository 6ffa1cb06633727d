package logging

import (
	"io"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"
)

// FileConfig configures rotating file output.
type FileConfig struct {
	Path       string `yaml:"path"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
	// Stdout also mirrors every entry to standard output.
	Stdout bool `yaml:"stdout"`
}

// NewRotatingWriter returns a size-rotated file writer for cfg.Path.
func NewRotatingWriter(cfg FileConfig) io.WriteCloser {
	maxSize := cfg.MaxSizeMB
	if maxSize <= 0 {
		maxSize = 100
	}
	return &lumberjack.Logger{
		Filename:   cfg.Path,
		MaxSize:    maxSize,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   cfg.Compress,
	}
}

// NewLogger builds a JSON logger writing to stdout, or to a rotating file
// when cfg.Path is set. The returned closer releases the file, if any.
func NewLogger(level Level, cfg FileConfig) (*JSONLogger, io.Closer) {
	if cfg.Path == "" {
		return NewJSONLogger(os.Stdout, level), nopCloser{}
	}

	file := NewRotatingWriter(cfg)
	var w io.Writer = file
	if cfg.Stdout {
		w = io.MultiWriter(file, os.Stdout)
	}
	return NewJSONLogger(w, level), file
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

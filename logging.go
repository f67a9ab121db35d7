package dashboard

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// NewLogger builds a zerolog logger from cfg. The returned closer releases
// the log file, if one was opened.
func NewLogger(cfg LogConfig) (zerolog.Logger, io.Closer, error) {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil {
		return zerolog.Nop(), nopCloser{}, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}
	if level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	var (
		out    io.Writer
		closer io.Closer = nopCloser{}
	)
	switch strings.ToLower(cfg.Output) {
	case "", "stderr":
		out = os.Stderr
	case "stdout":
		out = os.Stdout
	case "discard":
		return zerolog.Nop(), closer, nil
	case "file":
		if cfg.FilePath == "" {
			return zerolog.Nop(), closer, fmt.Errorf("log output is file but no file_path is set")
		}
		if dir := filepath.Dir(cfg.FilePath); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return zerolog.Nop(), closer, fmt.Errorf("create log directory: %w", err)
			}
		}
		f, err := os.OpenFile(cfg.FilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return zerolog.Nop(), closer, fmt.Errorf("open log file %q: %w", cfg.FilePath, err)
		}
		out, closer = f, f
	default:
		return zerolog.Nop(), closer, fmt.Errorf("unknown log output %q", cfg.Output)
	}

	if strings.ToLower(cfg.Format) == "console" {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339, NoColor: cfg.Output == "file"}
	}
	return zerolog.New(out).Level(level).With().Timestamp().Logger(), closer, nil
}

// ForTerminalUI returns a copy of cfg that never writes to the terminal the
// UI draws on: stdout/stderr output moves to the log file when one is
// configured and is discarded otherwise.
func (cfg LogConfig) ForTerminalUI() LogConfig {
	switch strings.ToLower(cfg.Output) {
	case "", "stderr", "stdout":
		if cfg.FilePath != "" {
			cfg.Output = "file"
		} else {
			cfg.Output = "discard"
		}
	}
	return cfg
}

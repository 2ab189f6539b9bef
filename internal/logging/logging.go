package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	slogmulti "github.com/samber/slog-multi"
)

type Config struct {
	Debug bool
	// File, when set, receives JSON logs in addition to stderr.
	File string
}

// New builds the run logger. The returned closer releases the log file.
func New(cfg Config) (*slog.Logger, io.Closer, error) {
	return newLogger(cfg, os.Stderr)
}

func newLogger(cfg Config, console io.Writer) (*slog.Logger, io.Closer, error) {
	level := slog.LevelInfo
	if cfg.Debug {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level, AddSource: cfg.Debug}

	handlers := []slog.Handler{slog.NewTextHandler(console, opts)}
	var closer io.Closer = nopCloser{}

	if cfg.File != "" {
		f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		handlers = append(handlers, slog.NewJSONHandler(f, opts))
		closer = f
	}

	return slog.New(slogmulti.Fanout(handlers...)), closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

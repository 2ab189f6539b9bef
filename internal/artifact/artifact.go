// Package artifact decodes license blobs returned by the API and writes them
// where an operator can copy them to the device.
package artifact

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// Mirror keeps a remote copy of each written artifact.
type Mirror interface {
	Save(ctx context.Context, name string, data []byte) error
}

// Decode returns the text of a base64 encoded license blob.
func Decode(encoded string) ([]byte, error) {
	cleaned := strings.Join(strings.Fields(encoded), "")
	if cleaned == "" {
		return nil, fmt.Errorf("empty license blob")
	}
	data, err := base64.StdEncoding.DecodeString(cleaned)
	if err != nil {
		return nil, fmt.Errorf("decode license blob: %w", err)
	}
	return data, nil
}

// Writer persists artifacts locally and, when configured, mirrors them.
type Writer struct {
	Mirror Mirror
	Logger *slog.Logger
}

// Write stores data at path verbatim. A mirror failure is logged but does not
// fail the write; the local file is what the operator needs.
func (w Writer) Write(ctx context.Context, path string, data []byte) error {
	if path == "" {
		return fmt.Errorf("artifact path is required")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("mkdir artifact dir: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		writeFailures.Inc()
		return fmt.Errorf("write artifact: %w", err)
	}
	written.WithLabelValues(filepath.Base(path)).Inc()

	if w.Mirror == nil {
		return nil
	}
	if err := w.Mirror.Save(ctx, filepath.Base(path), data); err != nil {
		mirrorOK.Set(0)
		w.logger().Warn("artifact mirror failed", "path", path, "err", err)
		return nil
	}
	mirrorOK.Set(1)
	return nil
}

func (w Writer) logger() *slog.Logger {
	if w.Logger != nil {
		return w.Logger
	}
	return slog.Default()
}

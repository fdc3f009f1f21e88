// Package logging builds the zap loggers used by the CLI and the GUI.
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger returns a production zap logger at the given level writing to stderr
// and to every extra path.
func Logger(level string, paths ...string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()

	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("log level %q: %w", level, err)
	}
	cfg.Level.SetLevel(lvl)
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.OutputPaths = append([]string{"stderr"}, paths...)

	for _, p := range paths {
		if dir := filepath.Dir(p); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("log dir: %w", err)
			}
		}
	}
	return cfg.Build()
}

// RunLogPath names a per-run log file under dir, e.g. logs/send_20250101_120000.log.
func RunLogPath(dir, action string, now time.Time) string {
	return filepath.Join(dir, fmt.Sprintf("%s_%s.log", action, now.Format("20060102_150405")))
}

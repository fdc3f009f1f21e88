package logging

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestLogger_Level(t *testing.T) {
	lg, err := Logger("warn")
	require.NoError(t, err)
	assert.False(t, lg.Core().Enabled(zapcore.InfoLevel))
	assert.True(t, lg.Core().Enabled(zapcore.WarnLevel))
}

func TestLogger_BadLevel(t *testing.T) {
	_, err := Logger("chatty")
	assert.Error(t, err)
}

func TestLogger_WritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "run.log")
	lg, err := Logger("info", path)
	require.NoError(t, err)

	lg.Info("chunk confirmed")
	_ = lg.Sync()

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(b), "chunk confirmed")
}

func TestRunLogPath(t *testing.T) {
	ts := time.Date(2025, 3, 4, 5, 6, 7, 0, time.UTC)
	assert.Equal(t, filepath.Join("logs", "send_20250304_050607.log"), RunLogPath("logs", "send", ts))
}

// internal/logging/logger_test.go
package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/tamzrod/bmbus/internal/config"
)

func TestInitLogger_Level(t *testing.T) {
	l, err := InitLogger(config.LoggingConfig{Level: "warn", Format: "console"})
	require.NoError(t, err)

	assert.False(t, l.Core().Enabled(zapcore.InfoLevel))
	assert.True(t, l.Core().Enabled(zapcore.WarnLevel))
}

func TestInitLogger_RollingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bmbus.log")

	l, err := InitLogger(config.LoggingConfig{
		Level: "debug",
		File:  config.LoggingFileConfig{Filename: path, MaxSizeMB: 1},
	})
	require.NoError(t, err)

	l.Info("hello")
	_ = l.Sync()

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"msg":"hello"`)
}

func TestOrNop(t *testing.T) {
	assert.NotNil(t, OrNop(nil))
}

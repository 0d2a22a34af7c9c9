//go:build unit

package utils

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupLogger_Levels(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"info":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"error":   slog.LevelError,
		"unknown": slog.LevelInfo,
	}
	for name, level := range cases {
		t.Run(name, func(t *testing.T) {
			logger := SetupLogger(name, "text", "")
			assert.True(t, logger.Enabled(context.Background(), level))
			if level > slog.LevelDebug {
				assert.False(t, logger.Enabled(context.Background(), level-1))
			}
		})
	}
}

func TestSetupLogger_WritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runtime.log")

	for _, format := range []string{"text", "json", "dev"} {
		logger := SetupLogger("info", format, path)
		logger.Info("waiting for input", "key", "fn-input")
	}

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(b), "waiting for input")
	assert.Contains(t, string(b), `"key":"fn-input"`)
}

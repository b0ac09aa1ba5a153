package logger

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("debug"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("info"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("WARN"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("unknown"))
}

func TestInitWithConfig(t *testing.T) {
	prev := Log
	t.Cleanup(func() { Log = prev })

	tests := []Config{
		{Level: "info", Format: "json", Output: "stdout"},
		{Level: "debug", Format: "text", Output: "stderr"},
	}
	for _, cfg := range tests {
		InitWithConfig(cfg)
		require.NotNil(t, Log)
	}
}

func TestNew_FileOutput(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "nested", "test.log")

	l := New(Config{Level: "info", Format: "json", Output: "file", FilePath: logPath})
	l.Info("rating resolved", "key", "rating:1:2:3:4:5:6:7:8")

	data, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "rating resolved")
}

func TestContextLogger(t *testing.T) {
	assert.Same(t, Log, FromContext(context.Background()))

	l := Log.With("request_id", "abc")
	ctx := NewContext(context.Background(), l)
	assert.Same(t, l, FromContext(ctx))
}

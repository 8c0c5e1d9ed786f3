package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	t.Run("console only", func(t *testing.T) {
		var buf bytes.Buffer
		logger, err := New(Options{Level: "debug", Console: &buf})
		require.NoError(t, err)
		defer logger.Close()

		logger.Debug("hello", "key", "value")

		var record map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
		assert.Equal(t, "hello", record["msg"])
		assert.Equal(t, "value", record["key"])
		assert.Equal(t, "DEBUG", record["level"])
	})

	t.Run("tees into rotated file", func(t *testing.T) {
		var buf bytes.Buffer
		dir := filepath.Join(t.TempDir(), "logs")
		logger, err := New(Options{Dir: dir, File: "customer.log", Console: &buf})
		require.NoError(t, err)

		logger.Info("started")
		require.NoError(t, logger.Close())

		content, err := os.ReadFile(filepath.Join(dir, "customer.log"))
		require.NoError(t, err)
		assert.Contains(t, string(content), `"msg":"started"`)
		assert.Contains(t, buf.String(), `"msg":"started"`)
	})

	t.Run("level filters records", func(t *testing.T) {
		var buf bytes.Buffer
		logger, err := New(Options{Level: "warn", Console: &buf})
		require.NoError(t, err)

		logger.Info("dropped")
		assert.Empty(t, buf.String())
	})

	t.Run("invalid level", func(t *testing.T) {
		_, err := New(Options{Level: "loud"})
		assert.Error(t, err)
	})
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"":      slog.LevelInfo,
		"debug": slog.LevelDebug,
		"INFO":  slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
	}
	for in, want := range cases {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
}

func TestComponent(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	Component(logger, "rabbitmq").Info("connected")
	assert.Contains(t, buf.String(), `"component":"rabbitmq"`)
}

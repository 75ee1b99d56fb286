package logger

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log := NewLoggerWithWriter(&buf, "WARNING", "scheduler")

	log.Debug("hidden %d", 1)
	log.Info("hidden %d", 2)
	log.Warning("tick %s failed", "price")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "tick price failed")
	assert.Contains(t, out, "component=scheduler")
}

func TestWithNamesChild(t *testing.T) {
	var buf bytes.Buffer
	log := NewLoggerWithWriter(&buf, "DEBUG", "server").With("ws")

	assert.Equal(t, "server.ws", log.Name())

	log.Debug("connection %s", "abc")
	assert.Contains(t, buf.String(), "sub=ws")
	assert.Contains(t, buf.String(), "connection abc")
}

func TestCriticalExits(t *testing.T) {
	var buf bytes.Buffer
	log := NewLoggerWithWriter(&buf, "INFO", "main")

	code := -1
	log.exit = func(c int) { code = c }

	log.Critical("cannot bind %s", ":8080")
	assert.Equal(t, 1, code)
	assert.Contains(t, buf.String(), "critical=true")
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":    slog.LevelDebug,
		"WARN":     slog.LevelWarn,
		"Warning":  slog.LevelWarn,
		"CRITICAL": slog.LevelError,
		"":         slog.LevelInfo,
		"verbose":  slog.LevelInfo,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLevel(in), in)
	}
}

package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"info":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"DEBUG":   slog.LevelDebug,
		"bogus":   slog.LevelInfo,
		"":        slog.LevelInfo,
	}
	for in, want := range cases {
		assert.Equal(t, want, ParseLevel(in), "level %q", in)
	}
}

func TestNewJSONOutput(t *testing.T) {
	var buf bytes.Buffer
	log := New("debug", &buf)

	log.Info("trial recorded", "session_id", "s-1", "iteration", 3)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "trial recorded", entry["msg"])
	assert.Equal(t, "s-1", entry["session_id"])
	assert.Equal(t, float64(3), entry["iteration"])
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log := New("warn", &buf)

	log.Debug("hidden")
	log.Info("hidden too")
	log.Warn("visible")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "visible")
}

func TestNewTextOutput(t *testing.T) {
	var buf bytes.Buffer
	log := NewText("info", &buf)

	log.Info("session created", "session_id", "s-2")

	assert.True(t, strings.Contains(buf.String(), "session_id=s-2"))
}

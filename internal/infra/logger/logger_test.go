package logger

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"", zerolog.InfoLevel},
		{"INFO", zerolog.InfoLevel},
		{"warning", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"bogus", zerolog.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, parseLevel(tt.input))
		})
	}
}

func TestNew_FileOutputWritesJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vibestream.log")

	l, closer, err := New(Config{Output: "file", File: path, Level: "info"})
	require.NoError(t, err)

	l.Info().Msgf("download: completed: song_id=%s", "abc")
	l.Debug().Msg("suppressed at info level")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 1)

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "download: completed: song_id=abc", entry["message"])
}

func TestNew_FileOutputRequiresPath(t *testing.T) {
	_, _, err := New(Config{Output: "file"})
	assert.Error(t, err)
}

func TestShortCaller(t *testing.T) {
	file := filepath.Join("root", "module", "internal", "app", "playback", "engine.go")
	assert.Equal(t, filepath.Join("playback", "engine.go")+":42", shortCaller(0, file, 42))
	assert.Equal(t, "main.go:7", shortCaller(0, "main.go", 7))
}

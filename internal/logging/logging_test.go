package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sdclean/internal/config"
)

func TestJSONToConsoleAndFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "logs", "sdclean.log")
	var console bytes.Buffer

	logger, closer, err := build(config.LoggingCfg{Level: "info", File: file, MaxSizeMB: 1}, &console)
	require.NoError(t, err)

	logger.Info().Str("path", "/sdcard/a.tmp").Msg("cleanup event")
	logger.Debug().Msg("hidden")
	require.NoError(t, closer.Close())

	var line map[string]any
	require.NoError(t, json.Unmarshal(console.Bytes(), &line))
	assert.Equal(t, "cleanup event", line["message"])
	assert.Equal(t, "/sdcard/a.tmp", line["path"])
	assert.Contains(t, line, "time")

	data, err := os.ReadFile(file)
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(string(data), "\n"))
	assert.NotContains(t, string(data), "hidden")
}

func TestPrettyAndLevel(t *testing.T) {
	var console bytes.Buffer
	logger, _, err := build(config.LoggingCfg{Level: "debug", Pretty: true}, &console)
	require.NoError(t, err)

	logger.Debug().Msg("walking")
	out := console.String()
	assert.Contains(t, out, "walking")
	assert.False(t, strings.HasPrefix(out, "{"), "console writer is not JSON")
}

func TestBadLevelFallsBackToInfo(t *testing.T) {
	var console bytes.Buffer
	logger, _, err := build(config.LoggingCfg{Level: "loud"}, &console)
	require.NoError(t, err)

	logger.Debug().Msg("no")
	logger.Info().Msg("yes")
	assert.NotContains(t, console.String(), `"no"`)
	assert.Contains(t, console.String(), `"yes"`)
}

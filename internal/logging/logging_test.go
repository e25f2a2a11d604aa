package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWritesToRotatingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "controller.log")
	logger := New(zerolog.InfoLevel, Config{File: path, MaxSizeMB: 1}, nil)

	logger.Info().Str("stage", "wash_filling_up").Msg("Wash stage transition")
	logger.Debug().Msg("dropped below level")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"stage":"wash_filling_up"`)
	assert.NotContains(t, string(data), "dropped below level")
}

func TestNewFallsBackToConsole(t *testing.T) {
	var buf bytes.Buffer
	logger := New(zerolog.DebugLevel, Config{}, &buf)

	logger.Debug().Msg("Thermostat check, no transition")
	assert.Contains(t, buf.String(), "Thermostat check, no transition")
}

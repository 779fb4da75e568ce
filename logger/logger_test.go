package logger

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetup_InvalidLevel(t *testing.T) {
	_, err := Setup(LogConfig{Level: "loud"})

	assert.Error(t, err)
}

func TestSetup_JSONFileWithComponent(t *testing.T) {
	prevLogger, prevLevel := log.Logger, zerolog.GlobalLevel()
	t.Cleanup(func() {
		log.Logger = prevLogger
		zerolog.SetGlobalLevel(prevLevel)
	})

	// GIVEN: json logging at warn level into a file
	path := filepath.Join(t.TempDir(), "engine.log")
	closer, err := Setup(LogConfig{Level: "WARN", Format: "json", Output: path})
	require.NoError(t, err)

	// WHEN: logging below and at the level through a component logger
	l := WithComponent("scheduler")
	l.Info().Msg("dropped")
	l.Warn().Str("client_id", "acme").Msg("statement skipped")
	require.NoError(t, closer.Close())

	// THEN: only the warn line is written, tagged with the component
	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(data, &entry))
	assert.Equal(t, "warn", entry["level"])
	assert.Equal(t, "scheduler", entry["component"])
	assert.Equal(t, "acme", entry["client_id"])
	assert.Equal(t, "statement skipped", entry["message"])
}

package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRejectsBadLevel(t *testing.T) {
	_, err := New(&Config{Level: "noisy"})
	require.Error(t, err)
}

func TestDebugFlagOverridesLevel(t *testing.T) {
	log, err := New(&Config{Level: "error", Debug: true})
	require.NoError(t, err)
	require.NotNil(t, log)
}

func TestWithComponent(t *testing.T) {
	var buf bytes.Buffer

	log := NewWithWriter(&buf, zerolog.InfoLevel)
	sub := log.WithComponent("hunt")
	sub.Info().Msg("started")

	var entry map[string]interface{}

	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "hunt", entry["component"])
	assert.Equal(t, "started", entry["message"])
}

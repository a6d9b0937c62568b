package logging

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupWriterJSON(t *testing.T) {
	t.Setenv(WorkerDebugEnv, "")
	defer zerolog.SetGlobalLevel(zerolog.TraceLevel)

	var buf bytes.Buffer
	logger := Component(SetupWriter(&buf, "warn", "json"), "dispatcher")
	logger.Info().Msg("hidden")
	logger.Warn().Str("intent", "start_stream").Msg("shown")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	require.Contains(t, out, `"component":"dispatcher"`)
	assert.Contains(t, out, `"intent":"start_stream"`)
}

func TestWorkerDebugForcesDebugLevel(t *testing.T) {
	t.Setenv(WorkerDebugEnv, "1")
	defer zerolog.SetGlobalLevel(zerolog.TraceLevel)

	var buf bytes.Buffer
	logger := SetupWriter(&buf, "error", "json")
	logger.Debug().Msg("traced")
	assert.Contains(t, buf.String(), "traced")
}

func TestUnknownLevelFallsBackToInfo(t *testing.T) {
	t.Setenv(WorkerDebugEnv, "")
	defer zerolog.SetGlobalLevel(zerolog.TraceLevel)

	var buf bytes.Buffer
	logger := SetupWriter(&buf, "loud", "json")
	logger.Debug().Msg("nope")
	logger.Info().Msg("yes")
	assert.NotContains(t, buf.String(), "nope")
	assert.Contains(t, buf.String(), "yes")
}

package logging_test

import (
	"bytes"
	"testing"

	"github.com/jrsteele09/passport-session/internal/logging"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestSetupWriterJSON(t *testing.T) {
	defer zerolog.SetGlobalLevel(zerolog.TraceLevel)

	var buf bytes.Buffer
	logger := logging.SetupWriter(&buf, "PROD", "warn")

	logger.Info().Msg("dropped")
	logger.Warn().Str("component", "test").Msg("kept")

	require.NotContains(t, buf.String(), "dropped")
	require.Contains(t, buf.String(), `"component":"test"`)
	require.Contains(t, buf.String(), `"level":"warn"`)
}

func TestSetupWriterBadLevelDefaultsToInfo(t *testing.T) {
	defer zerolog.SetGlobalLevel(zerolog.TraceLevel)

	var buf bytes.Buffer
	logger := logging.SetupWriter(&buf, "PROD", "loud")

	logger.Debug().Msg("hidden")
	logger.Info().Msg("shown")

	require.NotContains(t, buf.String(), "hidden")
	require.Contains(t, buf.String(), "shown")
}

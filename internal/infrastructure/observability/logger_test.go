package observability

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"INFO", zerolog.InfoLevel},
		{"warning", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"trace", zerolog.TraceLevel},
		{"nonsense", zerolog.InfoLevel},
		{"", zerolog.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, parseLogLevel(tt.in))
		})
	}
}

func TestInitLogger_WritesJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := ForProvider(InitLogger("info", &buf), "stripe")

	logger.Debug().Msg("hidden")
	logger.Info().Str("transaction_id", "abc").Msg("webhook applied")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "webhook applied", line["message"])
	assert.Equal(t, "stripe", line["provider"])
	assert.Equal(t, "abc", line["transaction_id"])
	assert.Contains(t, line, "time")
	assert.Contains(t, line, "caller")
}

func TestWithContext(t *testing.T) {
	var buf bytes.Buffer
	logger := WithContext(InitLogger("debug", &buf), map[string]any{"worker": "sweep"})
	logger.Info().Msg("tick")

	assert.Contains(t, buf.String(), `"worker":"sweep"`)
}

package log

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  Level
	}{
		{"debug", "debug", DebugLevel},
		{"info", "info", InfoLevel},
		{"warn", "warn", WarnLevel},
		{"warning alias", "warning", WarnLevel},
		{"error", "error", ErrorLevel},
		{"fatal", "fatal", FatalLevel},
		{"mixed case", "DEBUG", DebugLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			level, err := ParseLevel(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, level)
		})
	}
}

func TestParseLevelUnknown(t *testing.T) {
	level, err := ParseLevel("verbose")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown log level")

	// Callers that ignore the error still get a usable level.
	assert.Equal(t, InfoLevel, level)
}

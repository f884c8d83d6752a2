package errors

import (
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCLIErrorAdapter_ExitCodeFor(t *testing.T) {
	adapter := NewCLIErrorAdapter(false, slog.Default())

	tests := []struct {
		name     string
		err      error
		expected int
	}{
		{"nil error", nil, 0},
		{"validation", ValidationError("bad flag").Build(), 2},
		{"config", ConfigError("No entry.server file found in app").Build(), 7},
		{"sequencing", SequencingError("routes defined after builder returned").Build(), 8},
		{"build failed", BuildFailed("Client build failed").Build(), 11},
		{"transport", TransportError("listen").Build(), 12},
		{"unclassified", errors.New("boom"), 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, adapter.ExitCodeFor(tt.err))
		})
	}
}

func TestCLIErrorAdapter_FormatError(t *testing.T) {
	quiet := NewCLIErrorAdapter(false, nil)
	verbose := NewCLIErrorAdapter(true, nil)

	err := BuildFailed("Server build failed").Build()
	assert.Equal(t, "Error: Server build failed", quiet.FormatError(err))
	assert.Equal(t, "[build:fatal] Server build failed", verbose.FormatError(err))
	assert.Equal(t, "Error: boom", quiet.FormatError(errors.New("boom")))
	assert.Empty(t, quiet.FormatError(nil))
}

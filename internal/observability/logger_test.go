package observability

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    zapcore.Level
		wantErr bool
	}{
		{"", zapcore.InfoLevel, false},
		{"debug", zapcore.DebugLevel, false},
		{"WARN", zapcore.WarnLevel, false},
		{" error ", zapcore.ErrorLevel, false},
		{"verbose", zapcore.InfoLevel, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "invalid log level")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestInitCLILogger(t *testing.T) {
	orig := CLILogger
	defer func() { CLILogger = orig }()

	require.NoError(t, InitCLILogger("warn"))
	assert.True(t, CLILogger.Core().Enabled(zapcore.WarnLevel))
	assert.False(t, CLILogger.Core().Enabled(zapcore.InfoLevel))

	assert.Error(t, InitCLILogger("loud"))
}

func TestNewServerLogger(t *testing.T) {
	for _, profile := range []string{"", "structured", "STRUCTURED", "console"} {
		l, err := NewServerLogger("debug", profile)
		require.NoError(t, err, profile)
		assert.True(t, l.Core().Enabled(zapcore.DebugLevel), profile)
	}

	_, err := NewServerLogger("info", "xml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid logging profile")
}

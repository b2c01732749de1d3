package observability

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zapcore.Level
	}{
		{"debug", zapcore.DebugLevel},
		{"INFO", zapcore.InfoLevel},
		{" error ", zapcore.ErrorLevel},
		{"", zapcore.InfoLevel},
		{"loud", zapcore.InfoLevel},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLevel(tt.in))
		})
	}
}

func TestNewLogger_JSONFormat(t *testing.T) {
	l := NewLogger("", zapcore.ErrorLevel, "json")
	assert.NotNil(t, l)
	assert.False(t, l.Core().Enabled(zapcore.WarnLevel))
}

func TestConfigureCLILogger(t *testing.T) {
	orig := CLILogger
	defer func() { CLILogger = orig }()

	ConfigureCLILogger("gobulk", "error", "json", false)
	assert.False(t, CLILogger.Core().Enabled(zapcore.WarnLevel))

	ConfigureCLILogger("gobulk", "error", "console", true)
	assert.True(t, CLILogger.Core().Enabled(zapcore.DebugLevel))
}

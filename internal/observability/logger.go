// Package observability holds the process-wide CLI logger.
package observability

import (
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// CLILogger is the logger used by commands. It is a no-op logger until
// ConfigureCLILogger runs, so packages can log before flags are parsed.
var CLILogger = zap.NewNop()

// ConfigureCLILogger builds CLILogger from explicit settings. Output goes
// to stderr so stdout stays reserved for JSONL records. verbose overrides
// level with debug.
func ConfigureCLILogger(service, level, format string, verbose bool) {
	lvl := ParseLevel(level)
	if verbose {
		lvl = zapcore.DebugLevel
	}
	CLILogger = NewLogger(service, lvl, format)
}

// NewLogger returns a stderr logger at level using the console encoder,
// or the JSON encoder when format is "json".
func NewLogger(service string, level zapcore.Level, format string) *zap.Logger {
	var encCfg zapcore.EncoderConfig
	var enc zapcore.Encoder
	if strings.EqualFold(format, "json") {
		encCfg = zap.NewProductionEncoderConfig()
		encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
		enc = zapcore.NewJSONEncoder(encCfg)
	} else {
		encCfg = zap.NewDevelopmentEncoderConfig()
		encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		encCfg.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05.000")
		enc = zapcore.NewConsoleEncoder(encCfg)
	}

	core := zapcore.NewCore(enc, zapcore.Lock(os.Stderr), zap.NewAtomicLevelAt(level))
	l := zap.New(core)
	if service != "" {
		l = l.Named(service)
	}
	return l
}

// ParseLevel maps a level name to a zap level, defaulting to info.
func ParseLevel(s string) zapcore.Level {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(strings.ToLower(strings.TrimSpace(s)))); err != nil {
		return zapcore.InfoLevel
	}
	return lvl
}

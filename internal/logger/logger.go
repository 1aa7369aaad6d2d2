package logger

import (
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Log is the process-wide logger. It discards everything until InitLogger runs.
var Log = zap.NewNop()

// InitLogger replaces Log with a zap logger at the given level (debug, info,
// warn, error). Unknown levels fall back to info. The development
// environment logs human-readable console output; any other environment
// logs JSON.
func InitLogger(level, environment string) {
	cfg := newConfig(environment)
	cfg.Level = zap.NewAtomicLevelAt(parseLevel(level))

	l, err := cfg.Build()
	if err != nil {
		l = zap.NewExample()
		l.Warn("Falling back to example logger", zap.Error(err))
	}
	Log = l
}

func newConfig(environment string) zap.Config {
	if strings.EqualFold(environment, "development") {
		return zap.NewDevelopmentConfig()
	}
	cfg := zap.NewProductionConfig()
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return cfg
}

func parseLevel(level string) zapcore.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// Sync flushes buffered entries; errors from syncing stdout are ignored.
func Sync() {
	_ = Log.Sync()
}

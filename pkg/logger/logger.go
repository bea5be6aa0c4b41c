package logger

import (
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	DEBUG_LEVEL = int(zapcore.DebugLevel)
	INFO_LEVEL  = int(zapcore.InfoLevel)
	WARN_LEVEL  = int(zapcore.WarnLevel)
)

// New builds the process logger. Level and timestamp format come from the
// environment (LOG_LEVEL, LOG_TIME_FORMAT) with sane defaults.
func New() (*zap.Logger, error) {
	viper.AutomaticEnv()
	viper.SetDefault("LOG_LEVEL", INFO_LEVEL)
	viper.SetDefault("LOG_TIME_FORMAT", time.RFC3339Nano)

	level := zapcore.Level(viper.GetInt("LOG_LEVEL"))
	timeFormat := viper.GetString("LOG_TIME_FORMAT")

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(level)
	cfg.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout(timeFormat)

	return cfg.Build()
}

// NewVerbose returns a debug-level console logger for the CLI verbose flag.
func NewVerbose() (*zap.Logger, error) {
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	return cfg.Build()
}

// NewNop returns a logger that discards everything. Used by tests and by
// library callers that pass verbose=false.
func NewNop() *zap.Logger {
	return zap.NewNop()
}

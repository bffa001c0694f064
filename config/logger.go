package config

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"lb-rpc/rpcerr"
)

// NewLogger builds a zap logger. format is "json" or "console".
func NewLogger(level, format string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, rpcerr.Configuration("log level: %v", err)
	}

	var cfg zap.Config
	switch format {
	case "", "json":
		cfg = zap.NewProductionConfig()
	case "console":
		cfg = zap.NewDevelopmentConfig()
	default:
		return nil, rpcerr.Configuration("unknown log format %q", format)
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.DisableStacktrace = lvl > zapcore.DebugLevel

	return cfg.Build()
}

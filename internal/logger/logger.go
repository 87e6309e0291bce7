package logger

import (
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Config struct {
	Level string
	Dev   bool
}

func levelFromString(l string) zapcore.Level {
	switch strings.ToLower(l) {
	case "debug":
		return zapcore.DebugLevel
	case "info":
		return zapcore.InfoLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// Init builds the application logger: JSON on stdout in production, the zap
// development config when Dev is set.
func Init(cfg Config) (*zap.Logger, error) {
	lvl := levelFromString(cfg.Level)
	if cfg.Dev {
		c := zap.NewDevelopmentConfig()
		c.Level = zap.NewAtomicLevelAt(lvl)
		return c.Build()
	}
	return zap.New(jsonCore(zapcore.AddSync(os.Stdout), lvl), zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel)), nil
}

// Stderr returns the operational logger used when an audit entry cannot be
// stored. It always writes JSON to stderr, regardless of LOG_DEV.
func Stderr() *zap.Logger {
	return zap.New(jsonCore(zapcore.Lock(os.Stderr), zapcore.WarnLevel)).Named("audit-fallback")
}

func jsonCore(w zapcore.WriteSyncer, lvl zapcore.Level) zapcore.Core {
	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	return zapcore.NewCore(zapcore.NewJSONEncoder(encoderCfg), w, lvl)
}

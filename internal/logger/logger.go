package logger

import (
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config selects the encoder and minimum level.
type Config struct {
	Env   string // "prod" logs JSON, anything else logs to the console
	Level string // debug, info, warn, error
}

var (
	mu       sync.RWMutex
	instance *zap.Logger
)

func Init(cfg Config) {
	l, err := build(cfg)
	if err != nil {
		l = zap.NewExample()
	}

	mu.Lock()
	instance = l
	mu.Unlock()

	l.Info("logger initialized", zap.String("env", cfg.Env), zap.String("level", cfg.Level))
}

// L returns the process logger. Before Init it is a no-op logger, which
// keeps tests quiet.
func L() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	if instance == nil {
		return zap.NewNop()
	}
	return instance
}

// Sync flushes buffered entries.
func Sync() {
	_ = L().Sync()
}

func Debug(msg string, fields map[string]any) {
	L().Debug(msg, toZap(fields)...)
}

func Info(msg string, fields map[string]any) {
	L().Info(msg, toZap(fields)...)
}

func Warn(msg string, fields map[string]any) {
	L().Warn(msg, toZap(fields)...)
}

func Error(msg string, fields map[string]any) {
	L().Error(msg, toZap(fields)...)
}

func Fatal(msg string, fields map[string]any) {
	L().Error(msg, toZap(fields)...)
	Sync()
	os.Exit(1)
}

func toZap(fields map[string]any) []zap.Field {
	if len(fields) == 0 {
		return nil
	}
	out := make([]zap.Field, 0, len(fields))
	for k, v := range fields {
		out = append(out, zap.Any(k, v))
	}
	return out
}

func build(cfg Config) (*zap.Logger, error) {
	var zcfg zap.Config
	if strings.ToLower(cfg.Env) == "prod" {
		zcfg = zap.NewProductionConfig()
		zcfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	} else {
		zcfg = zap.NewDevelopmentConfig()
		zcfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		zcfg.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05.000")
		zcfg.DisableStacktrace = true
	}
	zcfg.Level = zap.NewAtomicLevelAt(parseLevel(cfg.Level))
	zcfg.OutputPaths = []string{"stdout"}
	zcfg.EncoderConfig.EncodeCaller = zapcore.ShortCallerEncoder

	return zcfg.Build(zap.AddCaller(), zap.AddCallerSkip(1))
}

func parseLevel(lvl string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(lvl)) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

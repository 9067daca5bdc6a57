// Package logger provides the process zap logger with context scoping.
//
// Initialize once in main:
//
//	logger.Init(logger.Config{Env: os.Getenv("APP_ENV"), Level: os.Getenv("LOG_LEVEL")})
//	defer logger.Sync()
//
// Components take a *zap.Logger explicitly and fall back to Named(component)
// when given nil. Request handlers use From(ctx).
package logger

import (
	"context"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config selects encoder, level and an optional rotating file sink.
type Config struct {
	// Env is "prod" for JSON output, anything else for colored console.
	Env   string
	Level string

	ServiceName string
	Version     string

	File FileConfig
}

// FileConfig enables a lumberjack-rotated copy of every entry when Path is set.
type FileConfig struct {
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

var (
	once     sync.Once
	instance *zap.Logger
)

// Init builds the singleton. Only the first call has an effect.
func Init(cfg Config) {
	once.Do(func() {
		instance = build(cfg)
	})
}

// L returns the singleton, building a dev/info logger if Init was not called.
func L() *zap.Logger {
	if instance == nil {
		Init(Config{Env: "dev", Level: "info"})
	}
	return instance
}

func Named(name string) *zap.Logger { return L().Named(name) }

// Or returns l, or Named(name) when l is nil.
func Or(l *zap.Logger, name string) *zap.Logger {
	if l != nil {
		return l
	}
	return Named(name)
}

func Sync() error {
	if instance != nil {
		return instance.Sync()
	}
	return nil
}

type ctxKey struct{}

// ToContext stores a request-scoped logger.
func ToContext(ctx context.Context, l *zap.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// From returns the request-scoped logger or the singleton.
func From(ctx context.Context) *zap.Logger {
	return FromOr(ctx, nil)
}

// FromOr returns the request-scoped logger, else fallback, else the singleton.
func FromOr(ctx context.Context, fallback *zap.Logger) *zap.Logger {
	if ctx != nil {
		if l, ok := ctx.Value(ctxKey{}).(*zap.Logger); ok && l != nil {
			return l
		}
	}
	if fallback != nil {
		return fallback
	}
	return L()
}

func build(cfg Config) *zap.Logger {
	level := parseLevel(cfg.Level)

	var enc zapcore.Encoder
	if strings.EqualFold(cfg.Env, "prod") {
		ec := zap.NewProductionEncoderConfig()
		ec.EncodeTime = zapcore.ISO8601TimeEncoder
		ec.EncodeCaller = zapcore.ShortCallerEncoder
		enc = zapcore.NewJSONEncoder(ec)
	} else {
		ec := zap.NewDevelopmentEncoderConfig()
		ec.EncodeLevel = zapcore.CapitalColorLevelEncoder
		ec.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05.000")
		ec.EncodeCaller = zapcore.ShortCallerEncoder
		enc = zapcore.NewConsoleEncoder(ec)
	}

	core := zapcore.NewCore(enc, zapcore.Lock(os.Stdout), level)
	if cfg.File.Path != "" {
		// files always get JSON regardless of Env
		fc := zap.NewProductionEncoderConfig()
		fc.EncodeTime = zapcore.ISO8601TimeEncoder
		core = zapcore.NewTee(core, zapcore.NewCore(zapcore.NewJSONEncoder(fc), fileSink(cfg.File), level))
	}

	opts := []zap.Option{zap.AddCaller()}
	if strings.EqualFold(cfg.Env, "prod") {
		opts = append(opts, zap.AddStacktrace(zapcore.ErrorLevel))
	}
	l := zap.New(core, opts...)
	if cfg.ServiceName != "" {
		l = l.With(zap.String("service", cfg.ServiceName))
	}
	if cfg.Version != "" {
		l = l.With(zap.String("version", cfg.Version))
	}
	return l
}

func fileSink(fc FileConfig) zapcore.WriteSyncer {
	size := fc.MaxSizeMB
	if size <= 0 {
		size = 100
	}
	return zapcore.AddSync(&lumberjack.Logger{
		Filename:   fc.Path,
		MaxSize:    size, // megabytes
		MaxBackups: fc.MaxBackups,
		MaxAge:     fc.MaxAgeDays,
		Compress:   fc.Compress,
	})
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

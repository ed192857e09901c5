package log

import (
	"context"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

type Logger struct {
	zl    *zap.Logger
	level zap.AtomicLevel

	mu    sync.RWMutex
	hooks []Hook
}

// New builds a zap backed logger from cfg. The trace hook is always installed.
func New(cfg Config) *Logger {
	level := zap.NewAtomicLevelAt(parseLevel(cfg.Level))

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "time"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var encoder zapcore.Encoder
	if strings.EqualFold(cfg.Encoding, "console") {
		encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encCfg)
	} else {
		encoder = zapcore.NewJSONEncoder(encCfg)
	}

	core := zapcore.NewCore(encoder, newWriteSyncer(cfg), level)

	opts := []zap.Option{zap.AddCaller(), zap.AddCallerSkip(2)}
	if cfg.Debug {
		opts = append(opts, zap.Development(), zap.AddStacktrace(zapcore.WarnLevel))
	}

	zl := zap.New(core, opts...)
	if cfg.Name != "" {
		zl = zl.Named(cfg.Name)
	}

	return &Logger{
		zl:    zl,
		level: level,
		hooks: []Hook{HookFunc(traceFields)},
	}
}

// NewNop returns a logger discarding every entry.
func NewNop() *Logger {
	return &Logger{
		zl:    zap.NewNop(),
		level: zap.NewAtomicLevelAt(zapcore.FatalLevel),
	}
}

func newWriteSyncer(cfg Config) zapcore.WriteSyncer {
	if cfg.Output != "file" || cfg.File.Path == "" {
		return zapcore.Lock(os.Stdout)
	}

	maxAgeDays := int(cfg.File.MaxAge.Hours() / 24)

	return zapcore.AddSync(&lumberjack.Logger{
		Filename:   cfg.File.Path,
		MaxSize:    cfg.File.MaxSize,
		MaxAge:     maxAgeDays,
		MaxBackups: cfg.File.MaxBackups,
		LocalTime:  cfg.File.LocalTime,
		Compress:   cfg.File.Compress,
	})
}

func parseLevel(level string) zapcore.Level {
	lvl, err := zapcore.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		return zapcore.InfoLevel
	}

	return lvl
}

// AddHook registers a hook applied to every entry of this logger.
func (l *Logger) AddHook(hook Hook) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.hooks = append(l.hooks, hook)
}

func (l *Logger) applyHooks(ctx context.Context, msg string, fields []Field) []Field {
	l.mu.RLock()
	defer l.mu.RUnlock()

	for _, hook := range l.hooks {
		fields = hook.Apply(ctx, msg, fields...)
	}

	return fields
}

func (l *Logger) Enabled(level zapcore.Level) bool {
	return l.level.Enabled(level)
}

func (l *Logger) Debug(ctx context.Context, msg string, fields ...Field) {
	l.log(ctx, zapcore.DebugLevel, msg, fields)
}

func (l *Logger) Info(ctx context.Context, msg string, fields ...Field) {
	l.log(ctx, zapcore.InfoLevel, msg, fields)
}

func (l *Logger) Warn(ctx context.Context, msg string, fields ...Field) {
	l.log(ctx, zapcore.WarnLevel, msg, fields)
}

func (l *Logger) Error(ctx context.Context, msg string, fields ...Field) {
	l.log(ctx, zapcore.ErrorLevel, msg, fields)
}

func (l *Logger) log(ctx context.Context, level zapcore.Level, msg string, fields []Field) {
	if !l.level.Enabled(level) {
		return
	}

	fields = l.applyHooks(ctx, msg, fields)

	if ce := l.zl.Check(level, msg); ce != nil {
		ce.Write(fields...)
	}
}

func (l *Logger) Sync() error {
	return l.zl.Sync()
}

var globalLogger atomic.Pointer[Logger]

//nolint:gochecknoinits // default global logger.
func init() {
	globalLogger.Store(New(DefaultConfig()))
}

// SetGlobalConfig replaces the global logger with one built from cfg.
func SetGlobalConfig(cfg Config) {
	globalLogger.Store(New(cfg))
}

func SetDefault(logger *Logger) {
	if logger != nil {
		globalLogger.Store(logger)
	}
}

func GetGlobalLogger() *Logger {
	return globalLogger.Load()
}

func DebugEnabled(_ context.Context) bool {
	return GetGlobalLogger().Enabled(zapcore.DebugLevel)
}

func Debug(ctx context.Context, msg string, fields ...Field) {
	GetGlobalLogger().Debug(ctx, msg, fields...)
}

func Info(ctx context.Context, msg string, fields ...Field) {
	GetGlobalLogger().Info(ctx, msg, fields...)
}

func Warn(ctx context.Context, msg string, fields ...Field) {
	GetGlobalLogger().Warn(ctx, msg, fields...)
}

func Error(ctx context.Context, msg string, fields ...Field) {
	GetGlobalLogger().Error(ctx, msg, fields...)
}

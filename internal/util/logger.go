package util

import (
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	globalLogger *zap.Logger
	mu           sync.RWMutex
)

// Init builds the process logger for the given environment. Production gets
// JSON-friendly ISO8601 output with sampling, everything else a colored
// console encoder.
func Init(environment, level, format string) *zap.Logger {
	var config zap.Config

	if environment == "production" {
		config = zap.NewProductionConfig()
		config.EncoderConfig.TimeKey = "timestamp"
		config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		config.DisableStacktrace = true
		config.Sampling = &zap.SamplingConfig{
			Initial:    100,
			Thereafter: 100,
		}
	} else {
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	config.Level = zap.NewAtomicLevelAt(parseLogLevel(level))

	if format == "json" {
		config.Encoding = "json"
	} else {
		config.Encoding = "console"
	}

	// Always log to stdout for containers
	config.OutputPaths = []string{"stdout"}
	config.ErrorOutputPaths = []string{"stderr"}

	logger, err := config.Build(
		zap.AddCaller(),
		zap.AddCallerSkip(1),
	)
	if err != nil {
		panic("failed to initialize logger: " + err.Error())
	}

	SetLogger(logger)
	return logger
}

// SetLogger replaces the process logger. Tests use it to install an observer.
func SetLogger(logger *zap.Logger) {
	mu.Lock()
	globalLogger = logger
	mu.Unlock()
	zap.ReplaceGlobals(logger)
}

// Get returns the process logger, falling back to a production logger.
func Get() *zap.Logger {
	mu.RLock()
	logger := globalLogger
	mu.RUnlock()
	if logger == nil {
		return Init("production", "info", "json")
	}
	return logger
}

// Sync flushes any buffered log entries
func Sync() {
	mu.RLock()
	defer mu.RUnlock()
	if globalLogger != nil {
		_ = globalLogger.Sync()
	}
}

func parseLogLevel(level string) zapcore.Level {
	switch level {
	case "debug":
		return zapcore.DebugLevel
	case "info":
		return zapcore.InfoLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	case "fatal":
		return zapcore.FatalLevel
	case "panic":
		return zapcore.PanicLevel
	default:
		return zapcore.InfoLevel
	}
}

func Debug(msg string, fields ...zap.Field) {
	Get().Debug(msg, fields...)
}

func Info(msg string, fields ...zap.Field) {
	Get().Info(msg, fields...)
}

func Warn(msg string, fields ...zap.Field) {
	Get().Warn(msg, fields...)
}

func Error(msg string, fields ...zap.Field) {
	Get().Error(msg, fields...)
}

func Fatal(msg string, fields ...zap.Field) {
	Get().Fatal(msg, fields...)
}

// Field helpers

func String(key, value string) zap.Field {
	return zap.String(key, value)
}

func Bool(key string, value bool) zap.Field {
	return zap.Bool(key, value)
}

func Int(key string, value int) zap.Field {
	return zap.Int(key, value)
}

func Float64(key string, value float64) zap.Field {
	return zap.Float64(key, value)
}

// ErrorField creates an error field (named to avoid clashing with Error)
func ErrorField(err error) zap.Field {
	return zap.Error(err)
}

func Duration(key string, value time.Duration) zap.Field {
	return zap.Duration(key, value)
}

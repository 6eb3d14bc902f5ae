// Package logging provides the process-wide structured logger, shared by the
// daemon, the orchestrator and the transport layers.
package logging

import (
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	mu     sync.Mutex
	level  = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	logger = buildLogger()
)

var defaultSink = zapcore.Lock(zapcore.AddSync(os.Stdout))

func buildLogger() *zap.Logger {
	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	consoleEncoder := zapcore.NewConsoleEncoder(encoderCfg)
	core := zapcore.NewCore(consoleEncoder, defaultSink, level)

	return zap.New(core, zap.AddCaller())
}

// NewLogger builds a logger that writes to the process default sink plus any
// additional sinks supplied by the caller, e.g. a per-subscriber streaming
// writer or a rotated log file.
func NewLogger(extra ...zapcore.WriteSyncer) *zap.Logger {
	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encoder := zapcore.NewJSONEncoder(encoderCfg)

	syncers := append([]zapcore.WriteSyncer{defaultSink}, extra...)
	core := zapcore.NewCore(encoder, zapcore.NewMultiWriteSyncer(syncers...), level)
	return zap.New(core, zap.AddCaller())
}

// NewFileSink returns a rotated log file sink suitable for passing to
// NewLogger, using the same rotation policy regardless of caller.
func NewFileSink(path string) zapcore.WriteSyncer {
	return zapcore.AddSync(&lumberjack.Logger{
		Filename:   path,
		MaxSize:    50, // megabytes
		MaxBackups: 5,
		MaxAge:     28, // days
		Compress:   true,
	})
}

// ConfigureFileSink rebuilds the process-wide logger to also write to a
// rotated file at path, alongside the default stdout sink. Call once during
// daemon startup, before the first log line that should land in the file.
func ConfigureFileSink(path string) {
	mu.Lock()
	defer mu.Unlock()
	logger = NewLogger(NewFileSink(path))
}

// S returns the process-wide sugared logger.
func S() *zap.SugaredLogger {
	mu.Lock()
	defer mu.Unlock()
	return logger.Sugar()
}

// SetLevel adjusts the process-wide minimum log level.
func SetLevel(l zapcore.Level) {
	mu.Lock()
	defer mu.Unlock()
	level.SetLevel(l)
}

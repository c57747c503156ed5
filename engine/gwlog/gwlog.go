// Package gwlog is the process wide logger, a thin layer over a zap sugared logger.
//
// The logging functions are package variables so that SetSource, SetOutput and SetLevel can
// swap the underlying logger at startup.
package gwlog

import (
	"io"
	"os"
	"runtime/debug"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Level is type of log levels
type Level zapcore.Level

// Log levels
var (
	DebugLevel = Level(zap.DebugLevel)
	InfoLevel  = Level(zap.InfoLevel)
	WarnLevel  = Level(zap.WarnLevel)
	ErrorLevel = Level(zap.ErrorLevel)
	PanicLevel = Level(zap.PanicLevel)
	FatalLevel = Level(zap.FatalLevel)
)

type logFormatFunc func(format string, args ...interface{})

// Logging functions, valid after package initialization
var (
	Debugf logFormatFunc
	Infof  logFormatFunc
	Warnf  logFormatFunc
	Errorf logFormatFunc
	Panicf logFormatFunc
	Fatalf logFormatFunc
	Panic  func(args ...interface{})
	Fatal  func(args ...interface{})
)

var (
	level        = zap.NewAtomicLevelAt(zap.DebugLevel)
	outputWriter io.Writer
	source       string
	sugar        *zap.SugaredLogger
)

func encoderConfig() zapcore.EncoderConfig {
	return zapcore.EncoderConfig{
		MessageKey:     "message",
		LevelKey:       "level",
		TimeKey:        "time",
		NameKey:        "logger",
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
	}
}

func init() {
	SetOutput(os.Stderr)
}

func rebuild() {
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encoderConfig()), zapcore.AddSync(outputWriter), level)
	logger := zap.New(core)
	if source != "" {
		logger = logger.With(zap.String("source", source))
	}
	sugar = logger.Sugar()

	Debugf = sugar.Debugf
	Infof = sugar.Infof
	Warnf = sugar.Warnf
	Errorf = sugar.Errorf
	Panicf = sugar.Panicf
	Fatalf = sugar.Fatalf
	Panic = sugar.Panic
	Fatal = sugar.Fatal
}

// SetSource tags every following log entry with the component name, e.g. server or client
func SetSource(comp string) {
	source = comp
	rebuild()
}

// SetOutput sets the output writer
func SetOutput(out io.Writer) {
	outputWriter = out
	rebuild()
}

// GetOutput returns the output writer
func GetOutput() io.Writer {
	return outputWriter
}

// SetLevel sets the log level
func SetLevel(lv Level) {
	level.SetLevel(zapcore.Level(lv))
}

// GetLevel returns the current log level
func GetLevel() Level {
	return Level(level.Level())
}

// With returns a logger that adds key and value to each entry
func With(key string, value interface{}) *zap.SugaredLogger {
	return sugar.With(key, value)
}

// Sync flushes buffered log entries
func Sync() error {
	return sugar.Sync()
}

// TraceError prints the stack and error
func TraceError(format string, args ...interface{}) {
	outputWriter.Write(debug.Stack())
	Errorf(format, args...)
}

// StringToLevel converts string to Levels
func StringToLevel(s string) Level {
	switch strings.ToLower(s) {
	case "debug":
		return DebugLevel
	case "info":
		return InfoLevel
	case "warn", "warning":
		return WarnLevel
	case "error":
		return ErrorLevel
	case "panic":
		return PanicLevel
	case "fatal":
		return FatalLevel
	}
	Errorf("StringToLevel: unknown level: %s", s)
	return DebugLevel
}

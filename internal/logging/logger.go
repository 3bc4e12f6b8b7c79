package logging

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	// Default logger instance
	defaultLogger *zap.Logger

	// level is shared with the built logger so it can be raised after init (--debug)
	level = zap.NewAtomicLevelAt(zap.WarnLevel)
)

// InitLogger initializes the default logger.
// Logs go to stderr so that command output on stdout stays machine readable.
func InitLogger() error {
	config := zap.NewProductionConfig()

	// Set log level based on environment
	if os.Getenv("LOG_LEVEL") == "debug" {
		level.SetLevel(zap.DebugLevel)
	}
	config.Level = level

	// Configure output
	config.OutputPaths = []string{"stderr"}
	config.ErrorOutputPaths = []string{"stderr"}

	// Configure encoder
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	config.EncoderConfig.LevelKey = "level"
	config.EncoderConfig.MessageKey = "message"
	config.EncoderConfig.CallerKey = "caller"
	config.EncoderConfig.StacktraceKey = "stacktrace"

	// Create logger
	var err error
	defaultLogger, err = config.Build()
	if err != nil {
		return err
	}

	// Replace global logger
	zap.ReplaceGlobals(defaultLogger)
	return nil
}

// SetDebug switches the default logger to debug level.
func SetDebug() {
	level.SetLevel(zap.DebugLevel)
}

// Logger returns the default logger instance
func Logger() *zap.Logger {
	if defaultLogger == nil {
		// Not initialized (tests, library use): stay quiet
		defaultLogger = zap.NewNop()
	}
	return defaultLogger
}

// SetLogger replaces the default logger and returns a func restoring the previous one
func SetLogger(l *zap.Logger) (restore func()) {
	prev := defaultLogger
	defaultLogger = l
	return func() { defaultLogger = prev }
}

// Sync flushes any buffered log entries
func Sync() error {
	if defaultLogger != nil {
		if err := defaultLogger.Sync(); err != nil {
			// Sync errors are often safe to ignore (e.g., /dev/stderr on Linux)
			// but we log them for debugging
			defaultLogger.Debug("failed to sync logger", zap.Error(err))
			return err
		}
	}
	return nil
}

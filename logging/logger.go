package logging

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is the logging organism for the server. It wraps zap.Logger so
// that every field passes the SensitiveFilter atom before it is written,
// and tees output through the MultiCore molecule to the console and a
// rotating file (FileWriter molecule).
//
// Example:
//
//	logger, err := NewLogger(true, "server.log")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer logger.Sync()
//
//	logger.Info("server started", zap.String("addr", ":8000"))
type Logger struct {
	zap           *zap.Logger
	sugar         *zap.SugaredLogger
	isDevelopment bool
	logFilePath   string
}

// wrap builds the Logger shell around a configured zap.Logger. All
// constructors and child-logger methods funnel through here.
func wrap(zl *zap.Logger, isDevelopment bool, logFilePath string) *Logger {
	return &Logger{
		zap:           zl,
		sugar:         zl.Sugar(),
		isDevelopment: isDevelopment,
		logFilePath:   logFilePath,
	}
}

// NewLogger creates a Logger for the given environment.
//
// Development mode renders colored, human-readable console lines;
// production mode renders JSON on the console too. Both modes also write
// JSON to logFilePath, created on first write and rotated per
// DefaultFileWriterConfig (100MB, 5 backups, 30 days, compressed).
//
// The minimum level comes from LOG_LEVEL when set (debug, info, warn,
// error, fatal); otherwise debug in development and info in production.
//
// Example:
//
//	devLogger, err := NewLogger(true, "server.log")
//	prodLogger, err := NewLogger(false, "/var/log/sdserve/server.log")
func NewLogger(isDevelopment bool, logFilePath string) (*Logger, error) {
	fallback := zapcore.InfoLevel
	if isDevelopment {
		fallback = zapcore.DebugLevel
	}
	level := ParseLogLevel("LOG_LEVEL", fallback)

	return NewLoggerWithConfig(isDevelopment, logFilePath, level, DefaultFileWriterConfig())
}

// NewLoggerWithConfig creates a Logger with an explicit level and rotation
// policy. NewLogger covers the standard setup.
func NewLoggerWithConfig(isDevelopment bool, logFilePath string, level zapcore.Level, fileConfig FileWriterConfig) (*Logger, error) {
	if logFilePath == "" {
		return nil, fmt.Errorf("logging: log file path cannot be empty")
	}

	core := NewMultiCoreWithWriters(
		level,
		zapcore.Lock(os.Stdout),
		NewFileWriterWithConfig(logFilePath, fileConfig),
		isDevelopment,
	)

	// Skip the wrapper frame so caller info points at the call site.
	zl := zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1))

	return wrap(zl, isDevelopment, logFilePath), nil
}

// NewNopLogger returns a Logger that discards everything. Components that
// treat logging as optional take this instead of nil-checking every call.
func NewNopLogger() *Logger {
	return wrap(zap.NewNop(), false, "")
}

// Sync flushes buffered entries. Safe on a nil Logger; call it before
// exiting.
func (l *Logger) Sync() error {
	if l == nil || l.zap == nil {
		return nil
	}
	return l.zap.Sync()
}

// Debug logs at DebugLevel. Fields pass the sensitive filter first.
func (l *Logger) Debug(msg string, fields ...zap.Field) {
	l.zap.Debug(msg, l.redactFields(fields)...)
}

// Info logs at InfoLevel. Fields pass the sensitive filter first.
//
// Example:
//
//	logger.Info("generation complete",
//	    zap.String("request_id", requestID),
//	    zap.Int64("seed", result.Seed))
func (l *Logger) Info(msg string, fields ...zap.Field) {
	l.zap.Info(msg, l.redactFields(fields)...)
}

// Warn logs at WarnLevel. Fields pass the sensitive filter first.
func (l *Logger) Warn(msg string, fields ...zap.Field) {
	l.zap.Warn(msg, l.redactFields(fields)...)
}

// Error logs at ErrorLevel. Fields pass the sensitive filter first.
func (l *Logger) Error(msg string, fields ...zap.Field) {
	l.zap.Error(msg, l.redactFields(fields)...)
}

// Fatal logs at FatalLevel, then the process exits with status 1.
func (l *Logger) Fatal(msg string, fields ...zap.Field) {
	l.zap.Fatal(msg, l.redactFields(fields)...)
}

// Debugf logs a printf-style message at DebugLevel.
func (l *Logger) Debugf(template string, args ...interface{}) {
	l.sugar.Debugf(template, args...)
}

// Infof logs a printf-style message at InfoLevel.
//
// Example:
//
//	logger.Infof("listening on %s:%d", host, port)
func (l *Logger) Infof(template string, args ...interface{}) {
	l.sugar.Infof(template, args...)
}

// Warnf logs a printf-style message at WarnLevel.
func (l *Logger) Warnf(template string, args ...interface{}) {
	l.sugar.Warnf(template, args...)
}

// Errorf logs a printf-style message at ErrorLevel.
func (l *Logger) Errorf(template string, args ...interface{}) {
	l.sugar.Errorf(template, args...)
}

// With returns a child logger whose entries all carry the given fields,
// redacted once here rather than on every write.
//
// Example:
//
//	requestLogger := logger.With(zap.String("request_id", requestID))
//	requestLogger.Info("starting generation")
//	requestLogger.Info("generation complete")
func (l *Logger) With(fields ...zap.Field) *Logger {
	return wrap(l.zap.With(l.redactFields(fields)...), l.isDevelopment, l.logFilePath)
}

// Named returns a child logger tagged with a sub-logger name. The name
// lands in the source field of every entry.
//
// Example:
//
//	genLogger := logger.Named("imagegen")
func (l *Logger) Named(name string) *Logger {
	return wrap(l.zap.Named(name), l.isDevelopment, l.logFilePath)
}

// Zap exposes the underlying zap.Logger for the rare caller that needs
// zap options this wrapper does not carry.
func (l *Logger) Zap() *zap.Logger {
	return l.zap
}

// IsDevelopment reports whether the logger renders for development.
func (l *Logger) IsDevelopment() bool {
	return l.isDevelopment
}

// LogFilePath returns the file destination this logger writes to.
func (l *Logger) LogFilePath() string {
	return l.logFilePath
}

// redactFields runs every field through the sensitive filter.
func (l *Logger) redactFields(fields []zap.Field) []zap.Field {
	if len(fields) == 0 {
		return fields
	}
	out := make([]zap.Field, len(fields))
	for i := range fields {
		out[i] = redactField(fields[i])
	}
	return out
}

// redactField hides a field whose name marks it sensitive, then scans
// string values for secret shapes.
func redactField(field zap.Field) zap.Field {
	if IsSensitiveField(field.Key) {
		return zap.String(field.Key, RedactedPlaceholder)
	}
	if field.Type == zapcore.StringType {
		if redacted := RedactSensitiveData(field.String); redacted != field.String {
			return zap.String(field.Key, redacted)
		}
	}
	return field
}

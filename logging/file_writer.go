package logging

import (
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Rotation defaults applied when FileWriterConfig fields are zero.
const (
	DefaultMaxSizeMB  = 100
	DefaultMaxBackups = 5
	DefaultMaxAgeDays = 30
)

// FileWriterConfig controls log file rotation. Zero numeric fields fall
// back to the package defaults; Compress and LocalTime are taken as-is
// because false is a valid choice for both.
type FileWriterConfig struct {
	MaxSizeMB  int  // rotate when the file exceeds this size
	MaxBackups int  // rotated files kept before the oldest is deleted
	MaxAgeDays int  // rotated files kept before age-based deletion
	Compress   bool // gzip rotated files
	LocalTime  bool // name backups in local time instead of UTC
}

// normalized returns the config with zero numeric fields replaced by the
// package defaults.
func (c FileWriterConfig) normalized() FileWriterConfig {
	if c.MaxSizeMB == 0 {
		c.MaxSizeMB = DefaultMaxSizeMB
	}
	if c.MaxBackups == 0 {
		c.MaxBackups = DefaultMaxBackups
	}
	if c.MaxAgeDays == 0 {
		c.MaxAgeDays = DefaultMaxAgeDays
	}
	return c
}

// DefaultFileWriterConfig is the rotation policy NewLogger uses: 100MB max
// size, 5 backups, 30 days retention, compression on.
func DefaultFileWriterConfig() FileWriterConfig {
	return FileWriterConfig{
		MaxSizeMB:  DefaultMaxSizeMB,
		MaxBackups: DefaultMaxBackups,
		MaxAgeDays: DefaultMaxAgeDays,
		Compress:   true,
	}
}

// NewFileWriter returns a zapcore.WriteSyncer that appends to path with the
// default rotation policy. This is a molecule composing lumberjack.Logger
// into a WriteSyncer; the file is created lazily on first write.
//
// Example:
//
//	fileSink := NewFileWriter("/var/log/sdserve/server.log")
//	core := zapcore.NewCore(jsonEncoder, fileSink, zapcore.InfoLevel)
func NewFileWriter(path string) zapcore.WriteSyncer {
	return NewFileWriterWithConfig(path, DefaultFileWriterConfig())
}

// NewFileWriterWithConfig returns a rotating WriteSyncer with an explicit
// policy. Zero numeric fields in config use the package defaults.
func NewFileWriterWithConfig(path string, config FileWriterConfig) zapcore.WriteSyncer {
	cfg := config.normalized()
	return zapcore.AddSync(&lumberjack.Logger{
		Filename:   path,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   cfg.Compress,
		LocalTime:  cfg.LocalTime,
	})
}

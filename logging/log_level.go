package logging

import (
	"os"
	"strings"

	"go.uber.org/zap/zapcore"
)

// levelNames maps accepted level spellings to zap levels. "warning" is an
// accepted alias for "warn".
var levelNames = map[string]zapcore.Level{
	"debug":   zapcore.DebugLevel,
	"info":    zapcore.InfoLevel,
	"warn":    zapcore.WarnLevel,
	"warning": zapcore.WarnLevel,
	"error":   zapcore.ErrorLevel,
	"fatal":   zapcore.FatalLevel,
}

// ParseLogLevel reads a level name from the named environment variable.
// An unset or empty variable means defaultLevel.
//
// Example:
//
//	level := ParseLogLevel("LOG_LEVEL", zapcore.InfoLevel)
func ParseLogLevel(envVarName string, defaultLevel zapcore.Level) zapcore.Level {
	value := os.Getenv(envVarName)
	if value == "" {
		return defaultLevel
	}
	return ParseLogLevelString(value, defaultLevel)
}

// ParseLogLevelString maps a level name to its zapcore.Level. Matching is
// case-insensitive and ignores surrounding whitespace; unknown names fall
// back to defaultLevel.
func ParseLogLevelString(levelStr string, defaultLevel zapcore.Level) zapcore.Level {
	if level, ok := levelNames[strings.ToLower(strings.TrimSpace(levelStr))]; ok {
		return level
	}
	return defaultLevel
}

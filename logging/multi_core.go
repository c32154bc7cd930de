package logging

import (
	"os"

	"go.uber.org/zap/zapcore"
)

// NewMultiCore builds the standard two-destination core: JSON to a rotating
// file plus console output on stdout. This is a molecule composing the
// encoder config atoms with the FileWriter molecule.
//
// Example:
//
//	core := NewMultiCore(zapcore.InfoLevel, "server.log", true)
//	logger := zap.New(core)
func NewMultiCore(level zapcore.Level, filePath string, isDev bool) zapcore.Core {
	return NewMultiCoreWithWriters(level, zapcore.Lock(os.Stdout), NewFileWriter(filePath), isDev)
}

// NewMultiCoreWithWriters tees log output to the two writers. The file side
// is always JSON so log processors can parse it; the console side is
// human-readable in development and JSON in production. Both sides share
// the same minimum level.
//
// Injecting the writers keeps this testable and covers special output
// destinations.
func NewMultiCoreWithWriters(level zapcore.Level, consoleWriter, fileWriter zapcore.WriteSyncer, isDev bool) zapcore.Core {
	return zapcore.NewTee(
		zapcore.NewCore(consoleEncoder(isDev), consoleWriter, level),
		zapcore.NewCore(zapcore.NewJSONEncoder(NewEncoderConfig()), fileWriter, level),
	)
}

// consoleEncoder picks the console rendering for the mode.
func consoleEncoder(isDev bool) zapcore.Encoder {
	if isDev {
		return zapcore.NewConsoleEncoder(NewConsoleEncoderConfig())
	}
	return zapcore.NewJSONEncoder(NewEncoderConfig())
}

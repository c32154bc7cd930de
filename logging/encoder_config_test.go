package logging

import (
	"testing"
	"time"

	"go.uber.org/zap/zapcore"
)

func TestNewEncoderConfig(t *testing.T) {
	config := NewEncoderConfig()

	t.Run("uses the package field keys", func(t *testing.T) {
		keys := []struct {
			name string
			got  string
			want string
		}{
			{"TimeKey", config.TimeKey, FieldTimestamp},
			{"LevelKey", config.LevelKey, FieldLevel},
			{"NameKey", config.NameKey, FieldSource},
			{"CallerKey", config.CallerKey, FieldCaller},
			{"MessageKey", config.MessageKey, FieldMessage},
			{"StacktraceKey", config.StacktraceKey, FieldStacktrace},
		}
		for _, key := range keys {
			if key.got != key.want {
				t.Errorf("%s = %q, want %q", key.name, key.got, key.want)
			}
		}
	})

	t.Run("sets every encoder", func(t *testing.T) {
		if config.EncodeLevel == nil || config.EncodeTime == nil ||
			config.EncodeDuration == nil || config.EncodeCaller == nil {
			t.Error("every Encode hook should be set")
		}
	})
}

func TestNewConsoleEncoderConfig(t *testing.T) {
	jsonConfig := NewEncoderConfig()
	consoleConfig := NewConsoleEncoderConfig()

	t.Run("shares field keys with the JSON config", func(t *testing.T) {
		if consoleConfig.TimeKey != jsonConfig.TimeKey ||
			consoleConfig.LevelKey != jsonConfig.LevelKey ||
			consoleConfig.NameKey != jsonConfig.NameKey ||
			consoleConfig.MessageKey != jsonConfig.MessageKey {
			t.Error("console and JSON output should use the same field keys")
		}
	})

	t.Run("sets every encoder", func(t *testing.T) {
		if consoleConfig.EncodeLevel == nil || consoleConfig.EncodeTime == nil ||
			consoleConfig.EncodeDuration == nil || consoleConfig.EncodeCaller == nil {
			t.Error("every Encode hook should be set")
		}
	})
}

// appendRecorder captures AppendString calls; the embedded interface
// satisfies the methods clockTimeEncoder never touches.
type appendRecorder struct {
	zapcore.PrimitiveArrayEncoder
	appended []string
}

func (a *appendRecorder) AppendString(s string) {
	a.appended = append(a.appended, s)
}

func TestClockTimeEncoder(t *testing.T) {
	var rec appendRecorder
	stamp := time.Date(2025, 11, 3, 14, 30, 5, 123_000_000, time.UTC)

	clockTimeEncoder(stamp, &rec)

	if len(rec.appended) != 1 || rec.appended[0] != "14:30:05.123" {
		t.Errorf("clockTimeEncoder appended %v, want [14:30:05.123]", rec.appended)
	}
}

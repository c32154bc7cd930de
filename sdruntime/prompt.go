package sdruntime

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// ValidatePrompt checks a prompt before it reaches the conditioner: it must
// be non-blank, free of NUL bytes, and at most MaxPromptLength bytes.
func ValidatePrompt(prompt string) error {
	if strings.TrimSpace(prompt) == "" {
		return fmt.Errorf("%w: prompt is blank", ErrInvalidPrompt)
	}
	// NUL would silently truncate the prompt at the native boundary.
	if strings.IndexByte(prompt, 0) >= 0 {
		return fmt.Errorf("%w: prompt contains a NUL byte", ErrInvalidPrompt)
	}
	if len(prompt) > MaxPromptLength {
		return fmt.Errorf("%w: prompt is %d bytes, limit is %d",
			ErrInvalidPrompt, len(prompt), MaxPromptLength)
	}
	return nil
}

// TruncatePrompt shortens a prompt for log lines, appending an ellipsis when
// it was cut. The cut lands on a rune boundary so previews stay valid UTF-8.
func TruncatePrompt(prompt string, max int) string {
	if max <= 0 || len(prompt) <= max {
		return prompt
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(prompt[cut]) {
		cut--
	}
	return prompt[:cut] + "..."
}

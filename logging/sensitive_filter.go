package logging

import (
	"regexp"
	"strings"
)

// RedactedPlaceholder replaces sensitive data in log output.
const RedactedPlaceholder = "[REDACTED]"

// assignmentPattern matches "name=value" and "name: value" pairs with at
// least 8 value characters.
func assignmentPattern(name string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)` + name + `\s*[:=]\s*[^\s,;]{8,}`)
}

// sensitivePatterns are the value shapes the filter redacts, compiled once
// at package init. Bare hex is not matched; model revisions and checksums
// are routine log content.
var sensitivePatterns = []*regexp.Regexp{
	// Hugging Face access tokens, used for gated model downloads.
	regexp.MustCompile(`hf_[a-zA-Z0-9]{30,}`),
	// Provider secret keys with the sk- prefix.
	regexp.MustCompile(`(?i)sk-[a-zA-Z0-9_-]{20,}`),
	// Bearer credentials as they appear in Authorization headers.
	regexp.MustCompile(`(?i)bearer\s+[a-zA-Z0-9._$/-]{16,}`),
	// bcrypt hashes, the API_KEY_HASH configuration value.
	regexp.MustCompile(`\$2[aby]\$\d{2}\$[./A-Za-z0-9]{53}`),

	assignmentPattern("password"),
	assignmentPattern("secret"),
	assignmentPattern("token"),
	assignmentPattern("api_key"),
	assignmentPattern("apikey"),
}

// sensitiveFieldFragments mark a field as sensitive by name alone,
// whatever the value looks like.
var sensitiveFieldFragments = []string{
	"API_KEY", "APIKEY", "HF_TOKEN", "PASSWORD", "SECRET", "TOKEN", "AUTHORIZATION",
}

// RedactSensitiveData replaces every recognized secret in value with
// RedactedPlaceholder. Pure function; unrecognized text passes through
// untouched.
//
// Example:
//
//	RedactSensitiveData("download with hf_abc...") // "download with [REDACTED]"
func RedactSensitiveData(value string) string {
	if value == "" {
		return value
	}
	for _, pattern := range sensitivePatterns {
		value = pattern.ReplaceAllString(value, RedactedPlaceholder)
	}
	return value
}

// RedactField redacts by field name first, then by value shape. Structured
// logging wrappers use this when both the key and the value are known.
func RedactField(fieldName, fieldValue string) string {
	if IsSensitiveField(fieldName) {
		return RedactedPlaceholder
	}
	return RedactSensitiveData(fieldValue)
}

// IsSensitiveField reports whether the field name alone marks the value as
// sensitive. Matching is case-insensitive on name fragments.
//
// Example:
//
//	IsSensitiveField("API_KEY") // true
//	IsSensitiveField("seed")    // false
func IsSensitiveField(fieldName string) bool {
	name := strings.ToUpper(fieldName)
	for _, fragment := range sensitiveFieldFragments {
		if strings.Contains(name, fragment) {
			return true
		}
	}
	return false
}

// ContainsSensitiveData reports whether value matches any redaction
// pattern.
func ContainsSensitiveData(value string) bool {
	if value == "" {
		return false
	}
	for _, pattern := range sensitivePatterns {
		if pattern.MatchString(value) {
			return true
		}
	}
	return false
}

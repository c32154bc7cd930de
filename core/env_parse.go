package core

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// GetEnvOrDefault returns the value of an environment variable, or the
// default when the variable is unset or empty.
func GetEnvOrDefault(key, defaultValue string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return defaultValue
}

// envValue returns the trimmed value of key and whether anything usable
// was set.
func envValue(key string) (string, bool) {
	value := strings.TrimSpace(os.Getenv(key))
	return value, value != ""
}

// ParseIntEnv parses an environment variable as an integer. Unset or
// unparseable values yield the default.
func ParseIntEnv(key string, defaultValue int) int {
	value, ok := envValue(key)
	if !ok {
		return defaultValue
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}

// ParseFloat64Env parses an environment variable as a float64. Unset or
// unparseable values yield the default.
func ParseFloat64Env(key string, defaultValue float64) float64 {
	value, ok := envValue(key)
	if !ok {
		return defaultValue
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return defaultValue
	}
	return parsed
}

// ParseBoolEnv parses an environment variable as a boolean. It accepts
// case-insensitive "true", "1", "yes", "on" as true and "false", "0",
// "no", "off" as false. Anything else yields the default.
func ParseBoolEnv(key string, defaultValue bool) bool {
	value, ok := envValue(key)
	if !ok {
		return defaultValue
	}
	switch strings.ToLower(value) {
	case "true", "1", "yes", "on":
		return true
	case "false", "0", "no", "off":
		return false
	}
	return defaultValue
}

// ParseDurationEnv parses an environment variable holding a number of
// seconds. Unset or unparseable values yield the default, also given in
// seconds.
func ParseDurationEnv(key string, defaultSeconds int) time.Duration {
	return time.Duration(ParseIntEnv(key, defaultSeconds)) * time.Second
}

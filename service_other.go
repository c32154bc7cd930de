//go:build !windows

// Service manager integration only exists on Windows; everywhere else the
// server always runs in the foreground.
package main

// RunAsService reports that service mode is unavailable on this platform.
func RunAsService(strictLoad bool) (bool, error) {
	return false, nil
}

// HandleServiceCommand reports that no service verbs exist on this platform.
func HandleServiceCommand(args []string) bool {
	return false
}

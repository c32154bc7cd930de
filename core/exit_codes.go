package core

// Process exit codes. Signal exits follow the shell convention of
// 128 plus the signal number.
const (
	ExitCodeSuccess     = 0
	ExitCodeError       = 1
	ExitCodeConfigError = 2
	ExitCodeLoadFailed  = 3

	ExitCodeSIGINT  = 130
	ExitCodeSIGTERM = 143
)

var exitCodeNames = map[int]string{
	ExitCodeSuccess:     "success",
	ExitCodeError:       "error",
	ExitCodeConfigError: "configuration error",
	ExitCodeLoadFailed:  "model load failed",
	ExitCodeSIGINT:      "interrupted (SIGINT)",
	ExitCodeSIGTERM:     "terminated (SIGTERM)",
}

// ExitCodeName names a code for log lines. Unknown codes report as
// "unknown".
func ExitCodeName(code int) string {
	if name, ok := exitCodeNames[code]; ok {
		return name
	}
	return "unknown"
}

// IsSignalExit reports whether code came from a delivered signal.
func IsSignalExit(code int) bool {
	return code == ExitCodeSIGINT || code == ExitCodeSIGTERM
}

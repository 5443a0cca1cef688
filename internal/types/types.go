// Package types defines common type-safe enums used across the codebase.
package types

// LogLevel represents a logging verbosity level as written in config files.
type LogLevel string

const (
	// LogLevelTrace is the most verbose level.
	LogLevelTrace LogLevel = "trace"
	// LogLevelDebug enables debugging output.
	LogLevelDebug LogLevel = "debug"
	// LogLevelInfo is the normal operational level.
	LogLevelInfo LogLevel = "info"
	// LogLevelWarn limits output to warnings and errors.
	LogLevelWarn LogLevel = "warn"
	// LogLevelError limits output to errors only.
	LogLevelError LogLevel = "error"
)

// Valid returns true if the LogLevel is a known valid value.
// The empty string is valid and means "use the default".
func (l LogLevel) Valid() bool {
	switch l {
	case LogLevelTrace, LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError, "":
		return true
	}
	return false
}

// String returns the level as written in config files.
func (l LogLevel) String() string {
	return string(l)
}

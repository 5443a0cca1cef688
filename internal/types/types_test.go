package types

import "testing"

func TestLogLevelValid(t *testing.T) {
	valid := []LogLevel{LogLevelTrace, LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError, ""}
	for _, l := range valid {
		if !l.Valid() {
			t.Errorf("LogLevel(%q).Valid() = false, want true", l)
		}
	}
	invalid := []LogLevel{"invalid", "verbose", "fatal", "warning"}
	for _, l := range invalid {
		if l.Valid() {
			t.Errorf("LogLevel(%q).Valid() = true, want false", l)
		}
	}
}

func TestLogLevelString(t *testing.T) {
	if LogLevelWarn.String() != "warn" {
		t.Errorf("LogLevelWarn.String() = %q, want %q", LogLevelWarn.String(), "warn")
	}
	if LogLevel("").String() != "" {
		t.Error("empty LogLevel should stringify to empty")
	}
}

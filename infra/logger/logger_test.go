package logger

import (
	"testing"
)

func TestLoggerNilReceiver(t *testing.T) {
	var l *Logger

	// All methods must be safe on a nil logger so callers never guard.
	l.Record("message", true)
	l.Error("message", nil)
	l.Payload("message", "{}", true)
}

func TestLoggerWithoutSink(t *testing.T) {
	l := New(nil, true)

	l.Record("debug message", false)
	l.Record("forced message", true)
	l.Error("error message", nil)
	l.Payload("payload message", `{"key":"value"}`, false)
}

func TestLoggerDebugGate(t *testing.T) {
	l := New(nil, false)

	// Dropped silently with debug off.
	l.Record("debug message", false)
	l.Payload("payload message", "{}", false)

	// Forced entries still pass.
	l.Record("forced message", true)
}

package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNoopLogger(t *testing.T) {
	l := Noop()
	require.NotNil(t, l)

	// Should not panic or produce output
	l.Debug("debug %s", "msg")
	l.Info("info %s", "msg")
	l.Warn("warn %s", "msg")
	l.Error("error %s", "msg")
}

func TestBufferLogger(t *testing.T) {
	l := NewBufferLogger()

	l.Debug("debug message %d", 1)
	l.Info("info message")
	l.Warn("warn message")
	l.Error("error message")

	require.Len(t, l.Messages, 4)
	assert.Equal(t, "debug", l.Messages[0].Level)
	assert.Equal(t, "debug message 1", l.Messages[0].Message)
	assert.Equal(t, "error", l.Messages[3].Level)
}

func TestBufferLoggerHasLevel(t *testing.T) {
	l := NewBufferLogger()
	l.Warn("remote processes may still be executing")

	assert.True(t, l.HasLevel("warn"))
	assert.False(t, l.HasLevel("error"))
}

func TestBufferLoggerClear(t *testing.T) {
	l := NewBufferLogger()
	l.Info("one")
	l.Info("two")
	require.Len(t, l.Messages, 2)

	l.Clear()
	assert.Empty(t, l.Messages)
}

func TestNewEnvLogger(t *testing.T) {
	l := NewEnvLogger("[test]")
	require.NotNil(t, l)

	// Debug is gated on BOLT_DEBUG; just verify no panic.
	l.Debug("hidden unless BOLT_DEBUG set")
}

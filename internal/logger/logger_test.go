package logger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewRejectsUnknownLevel(t *testing.T) {
	_, err := New(Config{Level: "verbose", Format: "json"})
	require.Error(t, err)
}

func TestSetLevelPropagatesToChildren(t *testing.T) {
	log, err := New(Config{Level: "info", Format: "console"})
	require.NoError(t, err)

	child := log.WithComponent("privacy")
	assert.False(t, child.Core().Enabled(zapcore.DebugLevel))

	require.NoError(t, log.SetLevel("debug"))
	assert.True(t, child.Core().Enabled(zapcore.DebugLevel))
	assert.Equal(t, zapcore.DebugLevel, child.Level())

	require.Error(t, log.SetLevel("nope"))
}

func TestLogRequestOmitsBody(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	log := Wrap(zap.New(core)).WithRequestID("req-1")

	log.LogRequest("POST", "/v1/mask", 200, 5*time.Millisecond, 2)

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "req-1", fields["request_id"])
	assert.Equal(t, int64(2), fields["redactions"])
	assert.NotContains(t, fields, "body")
}

package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestRedactsSecretKeys(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	l := &Logger{SugaredLogger: zap.New(core).Sugar()}

	l.Info("connecting", "nango_secret_key", "sk-123", "host", "api.nango.dev", "Password", "hunter2")

	entries := logs.All()
	assert.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "[REDACTED]", fields["nango_secret_key"])
	assert.Equal(t, "[REDACTED]", fields["Password"])
	assert.Equal(t, "api.nango.dev", fields["host"])
}

func TestWithKeepsContext(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	l := (&Logger{SugaredLogger: zap.New(core).Sugar()}).With("component", "ingest")

	l.Warn("slow batch", "ms", 1200)

	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "ingest", fields["component"])
	assert.EqualValues(t, 1200, fields["ms"])
}

func TestNopDoesNotPanic(t *testing.T) {
	assert.NotPanics(t, func() {
		Nop().Error("ignored", "err", "boom")
	})
}

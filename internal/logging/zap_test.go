package logging

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestZapLogger_ForwardsFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	logger := NewZap(zap.New(core))

	logger.Debug("prepare sent", "key", "door", "number", 4)
	logger.Info("baton elected", "key", "door")
	logger.Warn("ignoring release", "state", "Idle")
	logger.Error("publish failed", "op", "promise")

	entries := logs.All()
	require.Len(t, entries, 4)

	require.Equal(t, zapcore.DebugLevel, entries[0].Level)
	require.Equal(t, "prepare sent", entries[0].Message)
	require.Equal(t, "door", entries[0].ContextMap()["key"])
	require.EqualValues(t, 4, entries[0].ContextMap()["number"])

	require.Equal(t, zapcore.InfoLevel, entries[1].Level)
	require.Equal(t, zapcore.WarnLevel, entries[2].Level)
	require.Equal(t, zapcore.ErrorLevel, entries[3].Level)
	require.Equal(t, "promise", entries[3].ContextMap()["op"])
}

func TestNewZap_NilFallsBackToNop(t *testing.T) {
	logger := NewZap(nil)

	require.NotPanics(t, func() {
		logger.Info("discarded")
	})
	require.NoError(t, logger.Sync())
}

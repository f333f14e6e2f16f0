//go:build unit

package zaplogger_test

import (
	"testing"

	"github.com/hugolhafner/go-connect/logger"
	"github.com/hugolhafner/go-connect/plugins/zaplogger"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestZapLogger_ForwardsLevelMessageAndFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := zaplogger.New(zap.New(core)).With("component", "task")

	l.Warn("Connector has already been started", "task", "orders-0")

	entries := logs.All()
	require.Len(t, entries, 1)
	require.Equal(t, zapcore.WarnLevel, entries[0].Level)
	require.Equal(t, "Connector has already been started", entries[0].Message)

	fields := entries[0].ContextMap()
	require.Equal(t, "task", fields["component"])
	require.Equal(t, "orders-0", fields["task"])
}

func TestZapLogger_SkipsNonStringKeysAndDanglingValues(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := zaplogger.New(zap.New(core))

	l.Info("msg", 1, "ignored", "key", "value", "dangling")

	fields := logs.All()[0].ContextMap()
	require.Len(t, fields, 1)
	require.Equal(t, "value", fields["key"])
}

func TestZapLogger_Level(t *testing.T) {
	core, _ := observer.New(zapcore.WarnLevel)
	l := zaplogger.New(zap.New(core))

	require.Equal(t, logger.WarnLevel, l.Level())
}

package logger

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestLogger_AttachesCorrelationID(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	log := New(zap.New(core))

	ctx := WithCorrelationID(context.Background(), "cid-42")
	log.Info(ctx, "order_processed", "Order processed", map[string]any{"order_id": "abc"})

	entries := logs.All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "order_processed", fields["action"])
	assert.Equal(t, "cid-42", fields["correlation_id"])
	assert.Equal(t, "Order processed", entries[0].Message)
}

func TestLogger_OmitsEmptyCorrelationID(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	log := New(zap.New(core))

	log.Error(context.Background(), "publish_failed", "Publish failed", errors.New("boom"))

	entries := logs.All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	_, ok := fields["correlation_id"]
	assert.False(t, ok)
	assert.Equal(t, "boom", fields["error"])
	assert.Equal(t, zapcore.ErrorLevel, entries[0].Level)
}

func TestCorrelationIDFrom_Empty(t *testing.T) {
	assert.Equal(t, "", CorrelationIDFrom(context.Background()))
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, parseLevel("DEBUG"))
	assert.Equal(t, zapcore.WarnLevel, parseLevel("warn"))
	assert.Equal(t, zapcore.ErrorLevel, parseLevel("error"))
	assert.Equal(t, zapcore.InfoLevel, parseLevel("bogus"))
}

package logging

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"":        slog.LevelInfo,
		"info":    slog.LevelInfo,
		"DEBUG":   slog.LevelDebug,
		" warn ":  slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
	}
	for in, want := range cases {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseLevel("verbose")
	assert.Error(t, err)
}

func TestNew(t *testing.T) {
	for _, level := range []string{"debug", "info", "error"} {
		zl, sl, err := New(level)
		require.NoError(t, err, level)
		require.NotNil(t, zl)
		require.NotNil(t, sl)
	}

	_, _, err := New("loud")
	assert.Error(t, err)
}

func TestSlogWritesThroughZap(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	sl := Slog(zap.New(core), slog.LevelInfo)

	sl.Debug("hidden")
	sl.Info("refresh succeeded", "component", "refresh", "rotated", true)

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "refresh succeeded", entries[0].Message)
	fields := entries[0].ContextMap()
	assert.Equal(t, "refresh", fields["component"])
	assert.Equal(t, true, fields["rotated"])
	assert.False(t, sl.Enabled(context.Background(), slog.LevelDebug))
}

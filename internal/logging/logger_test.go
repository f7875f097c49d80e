package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNew(t *testing.T) {
	for _, level := range []string{"", "debug", "info", "WARN", "warning", "error"} {
		logger, err := New(level)
		require.NoError(t, err, level)
		require.NotNil(t, logger)
	}
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	_, err := New("verbose")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "verbose")
}

func TestParseLevel(t *testing.T) {
	lvl, dev, err := parseLevel("debug")
	require.NoError(t, err)
	assert.Equal(t, zapcore.DebugLevel, lvl)
	assert.True(t, dev)

	lvl, dev, err = parseLevel("warn")
	require.NoError(t, err)
	assert.Equal(t, zapcore.WarnLevel, lvl)
	assert.False(t, dev)
}

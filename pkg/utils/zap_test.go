package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestSetDebugTogglesLevel(t *testing.T) {
	require.NotNil(t, GetLogger())
	assert.False(t, level.Enabled(zapcore.DebugLevel), "debug off by default")

	SetDebug(true)
	assert.True(t, level.Enabled(zapcore.DebugLevel))

	SetDebug(false)
	assert.False(t, level.Enabled(zapcore.DebugLevel))
	assert.True(t, level.Enabled(zapcore.InfoLevel))
}

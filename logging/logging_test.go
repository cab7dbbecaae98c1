package logging_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/WitIOT/tao/logging"
)

func Test_InitBuildsLoggerAtConfiguredLevel(t *testing.T) {
	logger, level, err := logging.Init(&logging.Config{Level: zapcore.WarnLevel})
	require.NoError(t, err)
	require.NotNil(t, logger)
	assert.Equal(t, zapcore.WarnLevel, level.Level())
}

func Test_ForOwnerTagsChildLogger(t *testing.T) {
	logger, _, err := logging.Init(&logging.Config{Level: zapcore.InfoLevel})
	require.NoError(t, err)
	child := logging.ForOwner(logger, "cam1")
	assert.NotNil(t, child)
}

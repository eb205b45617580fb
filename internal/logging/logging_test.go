package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/device-services/dsc/internal/config"
)

func TestNewJSONLogger(t *testing.T) {
	logger, err := New(config.LogConfig{Level: "info", Encoding: "json"})
	require.NoError(t, err)
	require.NotNil(t, logger)
	logger.Info("hello")
	_ = logger.Sync()
}

func TestNewConsoleLogger(t *testing.T) {
	logger, err := New(config.LogConfig{Level: "debug", Encoding: "console"})
	require.NoError(t, err)
	require.NotNil(t, logger)
}

func TestNewRejectsBadLevel(t *testing.T) {
	_, err := New(config.LogConfig{Level: "loud"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "log level")
}

func TestNewRejectsBadEncoding(t *testing.T) {
	_, err := New(config.LogConfig{Level: "info", Encoding: "xml"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "encoding")
}

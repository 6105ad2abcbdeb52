package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger_WritesRotatingFile(t *testing.T) {
	cfg := testConfig(t)
	cfg.Environment.LogLevel = "debug"
	cfg.Logging.File = filepath.Join(t.TempDir(), "strategy.log")

	logger, closeLog, err := newLogger(cfg)
	require.NoError(t, err)
	assert.Equal(t, logrus.DebugLevel, logger.GetLevel())

	logger.WithField("net", "0.050").Info("Current net delta")
	closeLog()

	raw, err := os.ReadFile(cfg.Logging.File)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "Current net delta")
	assert.Contains(t, string(raw), "net=0.050")
}

func TestNewLogger_BadLevel(t *testing.T) {
	cfg := testConfig(t)
	cfg.Environment.LogLevel = "loud"
	_, _, err := newLogger(cfg)
	assert.Error(t, err)
}

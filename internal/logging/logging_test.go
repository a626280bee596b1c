package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewWritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "prepare.log")
	logger, err := New(Options{File: path, Debug: true})
	require.NoError(t, err)

	logger.Debug("batch applied", zap.Int("pages", 3))
	logger.Info("prepare finished", zap.String("run", "r1"))
	_ = logger.Sync()

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"msg":"batch applied"`)
	assert.Contains(t, string(b), `"pages":3`)
	assert.Contains(t, string(b), `"run":"r1"`)
}

func TestNewDefaultLevelSkipsDebug(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prepare.log")
	logger, err := New(Options{File: path})
	require.NoError(t, err)

	logger.Debug("hidden")
	logger.Warn("shown")
	_ = logger.Sync()

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(b), "hidden")
	assert.Contains(t, string(b), "shown")
}

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Empty(t, cmp.Diff(DefaultConfig(), cfg))
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".pseudoflow", "config.yaml")

	cfg := DefaultConfig()
	cfg.LLM.Provider = "gemini"
	cfg.Streaming.ChunkSize = 1234
	cfg.Assembler.AutoImportCommon = true
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Empty(t, cmp.Diff(cfg, loaded))
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("{not yaml: ["), 0o644))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse config")
}

func TestEnvOverridesApplyOnTopOfFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, DefaultConfig().Save(path))

	t.Setenv("PSEUDOFLOW_LLM_PROVIDER", "gemini")
	t.Setenv("PSEUDOFLOW_LLM_API_KEY", "test-key")
	t.Setenv("PSEUDOFLOW_POOL_MAX_WORKERS", "7")
	t.Setenv("PSEUDOFLOW_DEBUG", "true")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "gemini", cfg.LLM.Provider)
	assert.Equal(t, "test-key", cfg.LLM.APIKey)
	assert.Equal(t, 7, cfg.Execution.ProcessPoolMaxWorkers)
	assert.True(t, cfg.Logging.DebugMode)
}

func TestValidateRejectsBadPoolTarget(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Execution.ProcessPoolTarget = "everything"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "process_pool_target")
}

func TestValidateRejectsInitialSizeOutOfRange(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Streaming.MinSize = 100
	cfg.Streaming.MaxSize = 200
	cfg.Streaming.InitialSize = 500

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "initial_size")
}

func TestValidateAcceptsAllStartMethods(t *testing.T) {
	for _, method := range []string{"", "spawn", "fork", "forkserver"} {
		cfg := DefaultConfig()
		cfg.Execution.ProcessPoolStartMethod = method
		assert.NoError(t, cfg.Validate(), "method %q", method)
	}

	cfg := DefaultConfig()
	cfg.Execution.ProcessPoolStartMethod = "threads"
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsBadAlpha(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Streaming.Alpha = 1.5

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "alpha")
}

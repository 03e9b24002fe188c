package config_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/relaykit/kernel/config"
)

func TestLoadRuntimeConfigDefaults(t *testing.T) {
	cfg, err := config.LoadRuntimeConfig()
	require.NoError(t, err)
	require.Equal(t, "info", cfg.LogLevel)
	require.True(t, cfg.BackpressureWarn < cfg.BackpressureCrit)
	require.True(t, cfg.BackpressureCrit < cfg.BackpressureCap)
}

func TestLoadRuntimeConfigRejectsInvalidLogLevel(t *testing.T) {
	t.Setenv("KERNEL_LOG_LEVEL", "verbose")
	_, err := config.LoadRuntimeConfig()
	require.Error(t, err)
}

func TestDecodeToolConfig(t *testing.T) {
	raw := map[string]any{
		"working_directory": "/tmp/workspace",
		"max_file_size":     "2048",
	}
	var out config.FileToolConfig
	require.NoError(t, config.DecodeToolConfig(raw, &out))
	require.Equal(t, "/tmp/workspace", out.WorkingDirectory)
	require.EqualValues(t, 2048, out.MaxFileSize)
}

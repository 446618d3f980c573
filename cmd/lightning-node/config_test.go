package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadConfigMissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.toml"))
	require.NoError(t, err)
	require.Equal(t, DefaultConfig(), cfg)
}

func TestLoadConfigOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "node.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
network = "testnet"
max_peers = 12
`), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, "testnet", cfg.Network)
	require.Equal(t, 12, cfg.MaxPeers)
	require.Equal(t, DefaultConfig().BindAddr, cfg.BindAddr, "unset fields keep their default")
}

func TestValidateConfigRejectsBadValues(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Network = ""
	require.Error(t, ValidateConfig(cfg))

	cfg = DefaultConfig()
	cfg.MaxPeers = 0
	require.Error(t, ValidateConfig(cfg))

	cfg = DefaultConfig()
	cfg.LogLevel = "verbose"
	require.Error(t, ValidateConfig(cfg))

	require.NoError(t, ValidateConfig(DefaultConfig()))
}

func TestNormalizePeersDedupesAndSplits(t *testing.T) {
	got := NormalizePeers("a:1,b:2", "b:2,c:3")
	require.Equal(t, []string{"a:1", "b:2", "c:3"}, got)
}

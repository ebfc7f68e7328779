package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("SYMBION_KERNEL_CONFIG", filepath.Join(t.TempDir(), "missing.yaml"))
	cfg := Load()

	assert.Equal(t, "tcp://localhost:1883", cfg.BusBroker)
	assert.Equal(t, 2*time.Minute, cfg.StaleThreshold)
	assert.Equal(t, 5*time.Second, cfg.BridgeTimeout)
	assert.Equal(t, 0, cfg.BridgeMaxPending)
	assert.Empty(t, cfg.APIKey)
}

func TestLoadOverlayMergesHosts(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "kernel.yaml")
	body, err := MarshalOverlay(map[string]HostConf{
		"h1": {MAC: "a1:b2:c3:d4:e5:f6", Hint: "192.168.1.255"},
	})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, body, 0o644))

	t.Setenv("SYMBION_KERNEL_CONFIG", path)
	cfg := Load()

	require.Contains(t, cfg.Hosts, "h1")
	assert.Equal(t, "a1:b2:c3:d4:e5:f6", cfg.Hosts["h1"].MAC)
}

func TestLoadEnvOverridesDefault(t *testing.T) {
	t.Setenv("SYMBION_KERNEL_CONFIG", filepath.Join(t.TempDir(), "missing.yaml"))
	t.Setenv("SYMBION_STALE_THRESHOLD", "90s")
	cfg := Load()
	assert.Equal(t, 90*time.Second, cfg.StaleThreshold)
}

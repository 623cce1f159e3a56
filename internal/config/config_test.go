package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsAndEnvSub(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
exchange:
  api_key: "${TEST_CB_KEY}"
  secret: "plain"
runtime:
  settle_delay: 3s
paths:
  hub_dir: /tmp/hub
`), 0o644))
	t.Setenv("TEST_CB_KEY", "organizations/x/apiKeys/y")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "organizations/x/apiKeys/y", cfg.Exchange.ApiKey)
	assert.Equal(t, "plain", cfg.Exchange.Secret)
	assert.Equal(t, 3*time.Second, cfg.Runtime.SettleDelay)
	assert.Equal(t, 500*time.Millisecond, cfg.Runtime.LoopInterval)
	assert.Equal(t, 5*time.Second, cfg.Runtime.ErrorBackoff)
	assert.Equal(t, "/tmp/hub", cfg.Paths.HubDir)
	assert.Equal(t, "https://api.coinbase.com", cfg.Exchange.BaseURL)
	assert.EqualValues(t, 5, cfg.Exchange.MaxTries)
}

func TestLoadRejectsBadLoopInterval(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("runtime:\n  loop_interval: 0s\n"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
}

func TestEnvSubMissingVariable(t *testing.T) {
	assert.Equal(t, "", envSub(""))
	assert.Equal(t, "key-", envSub("key-${DCATRADER_SURELY_UNSET}"))
}

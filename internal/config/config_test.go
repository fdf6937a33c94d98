package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(nil)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:8080", cfg.ListenAddr)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 30*time.Minute, cfg.SessionTTL)
	assert.Equal(t, 30*time.Second, cfg.NWCTimeout)
	assert.Equal(t, 25, cfg.RatePerSecond)
	assert.NotEmpty(t, cfg.MintURL)
	assert.NotEmpty(t, cfg.DataDir, "data dir defaults under the home directory")
}

func TestLoadFlagsOverrideDefaults(t *testing.T) {
	cfg, err := Load([]string{
		"--listen", "0.0.0.0:9090",
		"--loglevel", "debug",
		"--session-ttl", "5m",
		"--mint", "",
		"--datadir", "/tmp/bush-test",
		"--password", "hunter2",
	})
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:9090", cfg.ListenAddr)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 5*time.Minute, cfg.SessionTTL)
	assert.Empty(t, cfg.MintURL)
	assert.Equal(t, "/tmp/bush-test", cfg.DataDir)
	assert.Equal(t, "hunter2", cfg.Password)
}

func TestLoadEnv(t *testing.T) {
	t.Setenv("BUSH_LISTEN", "127.0.0.1:7070")
	t.Setenv("BUSH_NWC_URL", "nostr+walletconnect://abc")

	cfg, err := Load(nil)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:7070", cfg.ListenAddr)
	assert.Equal(t, "nostr+walletconnect://abc", cfg.NWCConnection)
}

func TestLoadFlagBeatsEnv(t *testing.T) {
	t.Setenv("BUSH_LISTEN", "127.0.0.1:7070")

	cfg, err := Load([]string{"--listen", "127.0.0.1:6060"})
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:6060", cfg.ListenAddr)
}

func TestLoadRejectsBadValues(t *testing.T) {
	_, err := Load([]string{"--rate", "0"})
	assert.Error(t, err)

	_, err = Load([]string{"--nwc-timeout", "0s"})
	assert.Error(t, err)

	_, err = Load([]string{"--session-ttl=-1m"})
	assert.Error(t, err)
}

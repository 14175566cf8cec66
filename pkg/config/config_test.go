package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dusk-network/evm-sequencer/pkg/config"
)

func writeTOML(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sequencer.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadValidConfig(t *testing.T) {
	path := writeTOML(t, `
path = "/tmp/sequencer-db"
client_url = "http://127.0.0.1:9090"
batch_size = 3
server_port = 8545
upstream_url = "http://127.0.0.1:8545"

[log]
level = "debug"
`)

	cfg, err := config.Load(path)
	require.NoError(t, err)
	require.Equal(t, 3, cfg.BatchSize)
	require.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadMissingRequiredFieldFails(t *testing.T) {
	path := writeTOML(t, `
client_url = "http://127.0.0.1:9090"
batch_size = 3
server_port = 8545
upstream_url = "http://127.0.0.1:8545"
`)

	_, err := config.Load(path)
	require.Error(t, err)

	var cfgErr *config.ConfigError
	require.ErrorAs(t, err, &cfgErr)
	require.Equal(t, "path", cfgErr.Field)
}

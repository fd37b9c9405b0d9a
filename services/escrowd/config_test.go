package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const sampleConfig = `
listen = ":9090"
environment = "staging"
ledger_url = "http://localhost:8545"
program_address = "0x00000000000000000000000000000000000000ee"
database_path = "test.db"
timestamp_skew = "90s"
rate_limit_per_minute = 30

[[api_keys]]
key = "merchant-a"
secret = "s3cret"
`

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "escrowd.toml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}

func TestLoadConfig(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, sampleConfig))
	require.NoError(t, err)
	require.Equal(t, ":9090", cfg.ListenAddress)
	require.Equal(t, "staging", cfg.Environment)
	require.Equal(t, 90*time.Second, cfg.AllowedTimestampSkew)
	require.Equal(t, 30, cfg.RateLimitPerMinute)
	require.Len(t, cfg.APIKeys, 1)
	require.False(t, cfg.Program().IsZero())
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	t.Setenv("ESCROWD_LISTEN", ":7070")
	t.Setenv("ESCROWD_RATE_LIMIT", "5")
	cfg, err := LoadConfig(writeConfig(t, sampleConfig))
	require.NoError(t, err)
	require.Equal(t, ":7070", cfg.ListenAddress)
	require.Equal(t, 5, cfg.RateLimitPerMinute)
}

func TestLoadConfigRejectsMissingFields(t *testing.T) {
	_, err := LoadConfig(writeConfig(t, `listen = ":9090"`))
	require.Error(t, err)

	noKeys := `
ledger_url = "http://localhost:8545"
program_address = "0x00000000000000000000000000000000000000ee"
`
	_, err = LoadConfig(writeConfig(t, noKeys))
	require.ErrorContains(t, err, "api key")

	badProgram := `
ledger_url = "http://localhost:8545"
program_address = "not-an-address"

[[api_keys]]
key = "k"
secret = "s"
`
	_, err = LoadConfig(writeConfig(t, badProgram))
	require.ErrorContains(t, err, "program_address")
}

func TestLoadConfigRejectsUnknownKeys(t *testing.T) {
	_, err := LoadConfig(writeConfig(t, sampleConfig+"\nlisten_addres = \":1\"\n"))
	require.ErrorContains(t, err, "unknown key")
}

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func defaults() *Config {
	var c Config
	c.LoadDefaults()
	return &c
}

func TestLoadDefaults(t *testing.T) {
	c := defaults()

	assert.Equal(t, "http://127.0.0.1:8086/v0", c.ServerURL)
	assert.Equal(t, "local", c.NodeID)
	assert.Equal(t, 5*time.Second, c.LivenessTTL)
	assert.Equal(t, 3*time.Second, c.ProbeTimeout)
	assert.Equal(t, 60*time.Second, c.FetchTimeout)
	assert.Equal(t, 4, c.MaxConcurrentTransfers)
	assert.Equal(t, time.Second, c.StatusPollInterval)
	assert.False(t, c.AuthEnabled)
	assert.NotEmpty(t, c.DataDir)
}

func TestLoad_NoArgsGivesDefaults(t *testing.T) {
	cfg, err := Load(nil)
	require.NoError(t, err)
	assert.Empty(t, cmp.Diff(defaults(), cfg))
}

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_JSONFile(t *testing.T) {
	path := writeFile(t, "cfg.json", `{
  "server_url": "https://planet.example/v0",
  "node_id": "n1",
  "auth_enabled": true,
  "username": "alice",
  "liveness_ttl": "2s",
  "fetch_timeout": 1000000000,
  "max_concurrent_transfers": 8
}`)

	cfg, err := Load([]string{"-c", path})
	require.NoError(t, err)

	want := defaults()
	want.ServerURL = "https://planet.example/v0"
	want.NodeID = "n1"
	want.AuthEnabled = true
	want.Username = "alice"
	want.LivenessTTL = 2 * time.Second
	want.FetchTimeout = time.Second
	want.MaxConcurrentTransfers = 8
	assert.Empty(t, cmp.Diff(want, cfg))
}

func TestLoad_YAMLFile(t *testing.T) {
	path := writeFile(t, "cfg.yaml", `
server_url: http://10.0.0.2:8086/v0
public_base_url: http://10.0.0.2:8086/v0/planets/my/public
data_dir: /tmp/planetsync
status_poll_interval: 500ms
log_level: debug
`)

	cfg, err := Load([]string{"-config", path})
	require.NoError(t, err)

	want := defaults()
	want.ServerURL = "http://10.0.0.2:8086/v0"
	want.PublicBaseURL = "http://10.0.0.2:8086/v0/planets/my/public"
	want.DataDir = "/tmp/planetsync"
	want.StatusPollInterval = 500 * time.Millisecond
	want.LogLevel = "debug"
	assert.Empty(t, cmp.Diff(want, cfg))
}

func TestLoad_FlagsOverrideFile(t *testing.T) {
	path := writeFile(t, "cfg.json", `{"server_url": "http://file/v0", "node_id": "file"}`)

	cfg, err := Load([]string{"-c", path, "-a", "http://flag/v0", "-u", "bob", "-i", "7", "-unknown", "x"})
	require.NoError(t, err)

	assert.Equal(t, "http://flag/v0", cfg.ServerURL)
	assert.Equal(t, "file", cfg.NodeID)
	assert.Equal(t, "bob", cfg.Username)
	assert.True(t, cfg.AuthEnabled)
	assert.Equal(t, 7*time.Second, cfg.StatusPollInterval)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name string
		args func(t *testing.T) []string
	}{
		{name: "missing file", args: func(t *testing.T) []string {
			return []string{"-c", filepath.Join(t.TempDir(), "nope.json")}
		}},
		{name: "invalid json", args: func(t *testing.T) []string {
			return []string{"-c", writeFile(t, "bad.json", `{ this is not json`)}
		}},
		{name: "invalid duration", args: func(t *testing.T) []string {
			return []string{"-c", writeFile(t, "bad.yml", `liveness_ttl: soon`)}
		}},
		{name: "non-numeric interval", args: func(t *testing.T) []string {
			return []string{"-i", "abc"}
		}},
		{name: "zero interval", args: func(t *testing.T) []string {
			return []string{"-i", "0"}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(tt.args(t))
			require.Error(t, err)
		})
	}
}

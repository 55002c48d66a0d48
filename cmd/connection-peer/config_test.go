package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/DuckSquadDev/ducknet"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	path := filepath.Join(t.TempDir(), "peer.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadConfigDefaultsAndOverrides(t *testing.T) {
	cfg, err := loadConfig(writeConfig(t, `
listen = " 0.0.0.0:20020 "
connect = ["10.0.0.1", "", "example.com:7000"]
tick = "20ms"
metrics_addr = "127.0.0.1:9100"
`))
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:20020", cfg.Listen)
	assert.Equal(t, []string{"10.0.0.1", "example.com:7000"}, cfg.Connect)
	assert.Equal(t, 20*time.Millisecond, cfg.Tick)
	assert.Equal(t, "127.0.0.1:9100", cfg.MetricsAddr)
	assert.Equal(t, ducknet.DefaultMTU, cfg.MTU, "default kept")
	assert.Equal(t, 10*time.Second, cfg.Timeout, "default kept")

	cfg, err = loadConfig(writeConfig(t, `
mtu = 600
timeout = "3s"
`))
	require.NoError(t, err)
	assert.Equal(t, 600, cfg.MTU)
	assert.Equal(t, 3*time.Second, cfg.Timeout)
	assert.Equal(t, 16*time.Millisecond, cfg.Tick)
}

func TestLoadConfigErrors(t *testing.T) {
	_, err := loadConfig(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
	_, err = loadConfig(writeConfig(t, `timeout = "soon"`))
	assert.Error(t, err)
	_, err = loadConfig(writeConfig(t, `tick = "0s"`))
	assert.Error(t, err)
	_, err = loadConfig(writeConfig(t, `listen = [`))
	assert.Error(t, err)
}

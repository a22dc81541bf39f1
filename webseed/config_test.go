package webseed

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "webseed.yaml")
	content := []byte("" +
		"max_web_seed_connections: 5\n" +
		"urlseed_wait_retry: 2s\n" +
		"proxy:\n" +
		"  type: socks5\n" +
		"  hostname: 127.0.0.1\n" +
		"  port: 1080\n" +
		"  proxy_hostnames: true\n")
	require.NoError(t, os.WriteFile(path, content, 0600))

	c, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 5, c.MaxWebSeedConnections)
	assert.Equal(t, 2*time.Second, c.URLSeedWaitRetry)
	assert.Equal(t, "socks5", c.Proxy.Type)
	assert.Equal(t, 1080, c.Proxy.Port)
	assert.True(t, c.Proxy.ProxyHostnames)
	// Untouched keys keep their defaults.
	assert.Equal(t, DefaultConfig.WebSeedInactivityTimeout, c.WebSeedInactivityTimeout)
	assert.Equal(t, DefaultConfig.UserAgent, c.UserAgent)
}

func TestLoadConfigMissingFile(t *testing.T) {
	c, err := LoadConfig(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig, c)
}

func TestLoadConfigUnknownKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "webseed.yaml")
	require.NoError(t, os.WriteFile(path, []byte("no_such_option: 1\n"), 0600))
	_, err := LoadConfig(path)
	assert.Error(t, err)
}

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
auth:
  admin_token: s3cret
database:
  driver: postgres
  dsn: postgres://gate@localhost/gate
wireguard:
  config_dir: /etc/wireguard
  keygen: native
`), 0o600))
	t.Setenv("CONFIG_FILE", path)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "s3cret", cfg.Auth.AdminToken)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, "/etc/wireguard", cfg.WireGuard.ConfigDir)
	assert.Equal(t, "native", cfg.WireGuard.KeyGen)
	// дефолты остаются на месте
	assert.Equal(t, "8080", cfg.Server.HTTPPort)
	assert.Equal(t, "wg", cfg.WireGuard.WGBinary)
	assert.False(t, cfg.WireGuard.SyncDevice)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("auth:\n  admin_token: from-file\n"), 0o600))
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("SERVER_HTTP_PORT", "9090")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "9090", cfg.Server.HTTPPort)
}

func TestLoadRejectsDefaultToken(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("logs:\n  level: debug\n"), 0o600))
	t.Setenv("CONFIG_FILE", path)

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "auth.admin_token")
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		c := &Config{}
		c.Auth.AdminToken = "x"
		c.Server.Address = "0.0.0.0"
		c.Server.HTTPPort = "8080"
		c.Database.Driver = "sqlite"
		c.WireGuard.ConfigDir = "config/wireguard"
		c.WireGuard.KeyGen = "auto"
		return c
	}

	require.NoError(t, validate(base()))

	c := base()
	c.Database.Driver = "oracle"
	assert.Error(t, validate(c))

	c = base()
	c.WireGuard.KeyGen = "openssl"
	assert.Error(t, validate(c))

	c = base()
	c.WireGuard.ConfigDir = " "
	assert.Error(t, validate(c))
}

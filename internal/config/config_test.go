package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func TestLoad_Defaults_MissingFile(t *testing.T) {
	c, err := Load(filepath.Join(t.TempDir(), "absent.yaml"), "")
	require.NoError(t, err)

	assert.Equal(t, ":8080", c.Server.Addr)
	assert.Equal(t, "memory", c.Storage.Driver)
	assert.Equal(t, 30*time.Minute, c.DefaultTimeout())
	assert.Equal(t, 24*time.Hour, c.CleanupGrace())
	assert.Equal(t, 5*time.Second, c.ReadHeaderTimeout())
	assert.Equal(t, 2048, c.Signature.MinKeyBits)
	assert.True(t, c.MetricsEnabled())
	assert.Positive(t, c.Signature.CryptoWorkers)
}

func TestLoad_YAML(t *testing.T) {
	p := writeFile(t, "config.yaml", `
server:
  addr: ":9000"
storage:
  driver: Badger
  badger:
    in_memory: true
signature:
  default_timeout_minutes: 5
  cleanup_grace: 1h
metrics:
  enabled: false
`)
	c, err := Load(p, "")
	require.NoError(t, err)
	assert.Equal(t, ":9000", c.Server.Addr)
	assert.Equal(t, "badger", c.Storage.Driver)
	assert.True(t, c.Storage.Badger.InMemory)
	assert.Equal(t, 5*time.Minute, c.DefaultTimeout())
	assert.Equal(t, time.Hour, c.CleanupGrace())
	assert.False(t, c.MetricsEnabled())
}

func TestLoad_EnvOverrides(t *testing.T) {
	env := writeFile(t, ".env", "SIGNATURE_STORAGE_DRIVER=redis\nSIGNATURE_REDIS_ADDR=cache:6379\n")
	t.Setenv("SIGNATURE_ADDR", ":7000")
	// godotenv keeps process values; make sure ours are the ones read from the file
	t.Setenv("SIGNATURE_STORAGE_DRIVER", "")
	os.Unsetenv("SIGNATURE_STORAGE_DRIVER")
	t.Setenv("SIGNATURE_REDIS_ADDR", "")
	os.Unsetenv("SIGNATURE_REDIS_ADDR")

	c, err := Load("", env)
	require.NoError(t, err)
	assert.Equal(t, ":7000", c.Server.Addr)
	assert.Equal(t, "redis", c.Storage.Driver)
	assert.Equal(t, "cache:6379", c.Storage.Redis.Addr)
}

func TestLoad_Invalid(t *testing.T) {
	_, err := Load(writeFile(t, "bad.yaml", "storage: [\n"), "")
	require.Error(t, err)

	_, err = Load(writeFile(t, "driver.yaml", "storage:\n  driver: mongo\n"), "")
	require.ErrorContains(t, err, "unknown storage driver")

	_, err = Load(writeFile(t, "dur.yaml", "signature:\n  cleanup_grace: soon\n"), "")
	require.ErrorContains(t, err, "signature.cleanup_grace")
}

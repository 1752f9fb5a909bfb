package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tournevent/upsbridge/internal/config"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("UPS_USE_MOCK", "true")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, 80, cfg.Port)
	assert.Equal(t, "https://wwwcie.ups.com", cfg.UPSBaseURL)
	assert.Equal(t, "03", cfg.UPSServiceCode)
	assert.Equal(t, 30*time.Second, cfg.UPSTimeout)
	assert.Equal(t, config.TokenStoreMemory, cfg.TokenStore)
	assert.Equal(t, "access_token", cfg.TokenCacheKey)
	assert.Equal(t, "labels", cfg.LabelDir)
}

func TestLoad_Credentials(t *testing.T) {
	t.Setenv("UPS_USE_MOCK", "false")
	t.Setenv("UPS_CLIENT_ID", "id")
	t.Setenv("UPS_CLIENT_SECRET", "secret")
	t.Setenv("UPS_ACCOUNT", "A1B2C3")
	t.Setenv("TOKEN_STORE", "redis")
	t.Setenv("REDIS_DB", "2")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, "id", cfg.UPSClientID)
	assert.Equal(t, "A1B2C3", cfg.UPSAccount)
	assert.Equal(t, config.TokenStoreRedis, cfg.TokenStore)
	assert.Equal(t, 2, cfg.RedisDB)
}

func TestLoad_MissingCredentials(t *testing.T) {
	t.Setenv("UPS_USE_MOCK", "false")
	t.Setenv("UPS_CLIENT_ID", "")
	t.Setenv("UPS_CLIENT_SECRET", "")

	_, err := config.Load()
	assert.ErrorContains(t, err, "UPS_CLIENT_ID")
}

func TestLoad_InvalidTokenStore(t *testing.T) {
	t.Setenv("UPS_USE_MOCK", "true")
	t.Setenv("TOKEN_STORE", "memcached")

	_, err := config.Load()
	assert.ErrorContains(t, err, "TOKEN_STORE")
}

func TestLoad_EnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ups.env")
	require.NoError(t, os.WriteFile(path, []byte("UPS_USE_MOCK=true\nUPS_ACCOUNT=FROMFILE\nLABEL_DIR=/tmp/labels\n"), 0o600))

	// godotenv sets process variables; register them for cleanup.
	t.Setenv("UPS_USE_MOCK", "")
	t.Setenv("UPS_ACCOUNT", "")
	t.Setenv("LABEL_DIR", "")
	os.Unsetenv("UPS_USE_MOCK")
	os.Unsetenv("UPS_ACCOUNT")
	os.Unsetenv("LABEL_DIR")

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.True(t, cfg.UPSUseMock)
	assert.Equal(t, "FROMFILE", cfg.UPSAccount)
	assert.Equal(t, "/tmp/labels", cfg.LabelDir)
}

func TestLoad_EnvFileDoesNotOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ups.env")
	require.NoError(t, os.WriteFile(path, []byte("UPS_USE_MOCK=true\nUPS_ACCOUNT=FROMFILE\n"), 0o600))

	t.Setenv("UPS_USE_MOCK", "true")
	t.Setenv("UPS_ACCOUNT", "FROMENV")

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "FROMENV", cfg.UPSAccount)
}

func TestLoad_EnvFileMissing(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "absent.env"))
	assert.Error(t, err)
}

func TestConfig_Attributes(t *testing.T) {
	cfg := &config.Config{ServiceName: "upsbridge", Version: "1.0.0", TokenStore: "redis"}

	attrs := cfg.Attributes()
	require.NotEmpty(t, attrs)
	assert.Equal(t, "service.name", string(attrs[0].Key))
	assert.Equal(t, "upsbridge", attrs[0].Value.AsString())
}

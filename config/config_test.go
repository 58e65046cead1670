package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetBootstrap(t *testing.T) {
	t.Setenv("AUTH_USERNAME", "root")
	t.Setenv("AUTH_PASSWORD", "toor")
	t.Setenv("AUTH_ADMIN", "")
	t.Setenv("PARALEGAL_INSECURE_OPEN_MODE", "")

	b := GetBootstrap()
	assert.True(t, b.HasCredentials())
	assert.Equal(t, "root", b.AdminUsername, "admin identity defaults to the bootstrap username")
	assert.False(t, b.AllowOpenMode)

	t.Setenv("AUTH_ADMIN", "boss")
	t.Setenv("PARALEGAL_INSECURE_OPEN_MODE", "true")
	b = GetBootstrap()
	assert.Equal(t, "boss", b.AdminUsername)
	assert.True(t, b.AllowOpenMode)
}

func TestGetBootstrapEmpty(t *testing.T) {
	t.Setenv("AUTH_USERNAME", "")
	t.Setenv("AUTH_PASSWORD", "")
	t.Setenv("AUTH_ADMIN", "")
	t.Setenv("PARALEGAL_INSECURE_OPEN_MODE", "yes")

	b := GetBootstrap()
	assert.False(t, b.HasCredentials())
	assert.Empty(t, b.AdminUsername)
	assert.False(t, b.AllowOpenMode, "only the literal value true enables open mode")
}

func TestGetTokenConfig(t *testing.T) {
	t.Setenv("PARALEGAL_INVITE_TTL", "")
	t.Setenv("PARALEGAL_RESET_TTL", "")
	t.Setenv("PARALEGAL_TOKEN_SWEEP", "")

	c, err := GetTokenConfig()
	require.NoError(t, err)
	assert.Equal(t, 72*time.Hour, c.InviteTTL)
	assert.Equal(t, time.Hour, c.ResetTTL)
	assert.Equal(t, "@hourly", c.SweepSpec)

	t.Setenv("PARALEGAL_INVITE_TTL", "24h")
	t.Setenv("PARALEGAL_RESET_TTL", "30m")
	t.Setenv("PARALEGAL_TOKEN_SWEEP", "@every 10m")
	c, err = GetTokenConfig()
	require.NoError(t, err)
	assert.Equal(t, 24*time.Hour, c.InviteTTL)
	assert.Equal(t, 30*time.Minute, c.ResetTTL)
	assert.Equal(t, "@every 10m", c.SweepSpec)

	for _, bad := range []string{"soon", "-1h", "0s"} {
		t.Setenv("PARALEGAL_RESET_TTL", bad)
		_, err = GetTokenConfig()
		assert.Error(t, err, bad)
	}
}

func TestGetServerConfig(t *testing.T) {
	t.Setenv("PARALEGAL_DEBUG", "")
	t.Setenv("PARALEGAL_LISTEN", "")
	t.Setenv("PARALEGAL_PORT", "")
	t.Setenv("PARALEGAL_BASE_PATH", "panel")
	t.Setenv("PARALEGAL_SESSION_MAX_AGE", "")
	t.Setenv("PARALEGAL_SESSION_SECRET", "")
	t.Setenv("PARALEGAL_DOMAIN", "panel.example.com")
	t.Setenv("PARALEGAL_CERT_FILE", "")
	t.Setenv("PARALEGAL_KEY_FILE", "")
	t.Setenv("PARALEGAL_LOGIN_RATE", "")
	t.Setenv("PARALEGAL_BASE_URL", "")
	t.Setenv("PARALEGAL_TRUSTED_PROXIES", "")

	_, err := GetServerConfig()
	assert.Error(t, err, "a session secret is required outside debug")

	t.Setenv("PARALEGAL_SESSION_SECRET", "s3cret")
	c, err := GetServerConfig()
	require.NoError(t, err)
	assert.Equal(t, 8080, c.Port)
	assert.Equal(t, "/panel/", c.BasePath)
	assert.Equal(t, 0, c.SessionMaxAge)
	assert.Equal(t, "panel.example.com", c.Domain)
	assert.Equal(t, 10, c.LoginRate)
	assert.Empty(t, c.BaseURL)
	assert.Empty(t, c.TrustedProxies)

	t.Setenv("PARALEGAL_LOGIN_RATE", "0")
	_, err = GetServerConfig()
	assert.Error(t, err)
	t.Setenv("PARALEGAL_LOGIN_RATE", "30")
	c, err = GetServerConfig()
	require.NoError(t, err)
	assert.Equal(t, 30, c.LoginRate)
	assert.False(t, c.HasTLS())

	t.Setenv("PARALEGAL_CERT_FILE", "/etc/ssl/panel.crt")
	_, err = GetServerConfig()
	assert.Error(t, err, "cert without key")
	t.Setenv("PARALEGAL_KEY_FILE", "/etc/ssl/panel.key")
	c, err = GetServerConfig()
	require.NoError(t, err)
	assert.True(t, c.HasTLS())

	t.Setenv("PARALEGAL_PORT", "99999")
	_, err = GetServerConfig()
	assert.Error(t, err)

	t.Setenv("PARALEGAL_PORT", "9000")
	t.Setenv("PARALEGAL_SESSION_MAX_AGE", "60")
	c, err = GetServerConfig()
	require.NoError(t, err)
	assert.Equal(t, 9000, c.Port)
	assert.Equal(t, 60, c.SessionMaxAge)
}

func TestGetServerConfigLinksAndProxies(t *testing.T) {
	t.Setenv("PARALEGAL_DEBUG", "")
	t.Setenv("PARALEGAL_SESSION_SECRET", "s3cret")
	t.Setenv("PARALEGAL_LOGIN_RATE", "")
	t.Setenv("PARALEGAL_CERT_FILE", "")
	t.Setenv("PARALEGAL_KEY_FILE", "")
	t.Setenv("PARALEGAL_PORT", "")
	t.Setenv("PARALEGAL_SESSION_MAX_AGE", "")
	t.Setenv("PARALEGAL_BASE_URL", "https://panel.example.com/app/")
	t.Setenv("PARALEGAL_TRUSTED_PROXIES", " 10.0.0.1, 192.168.0.0/16 ,")

	c, err := GetServerConfig()
	require.NoError(t, err)
	assert.Equal(t, "https://panel.example.com/app/", c.BaseURL)
	assert.Equal(t, []string{"10.0.0.1", "192.168.0.0/16"}, c.TrustedProxies)

	for _, bad := range []string{"panel.example.com", "ftp://panel.example.com", "https://"} {
		t.Setenv("PARALEGAL_BASE_URL", bad)
		_, err = GetServerConfig()
		assert.Error(t, err, bad)
	}

	t.Setenv("PARALEGAL_BASE_URL", "")
	t.Setenv("PARALEGAL_TRUSTED_PROXIES", "not-an-ip")
	_, err = GetServerConfig()
	assert.Error(t, err)
}

func TestGetServerConfigDebugSecret(t *testing.T) {
	t.Setenv("PARALEGAL_DEBUG", "true")
	t.Setenv("PARALEGAL_LOGIN_RATE", "")
	t.Setenv("PARALEGAL_CERT_FILE", "")
	t.Setenv("PARALEGAL_KEY_FILE", "")
	t.Setenv("PARALEGAL_SESSION_SECRET", "")
	t.Setenv("PARALEGAL_BASE_PATH", "")
	t.Setenv("PARALEGAL_PORT", "")
	t.Setenv("PARALEGAL_SESSION_MAX_AGE", "")
	t.Setenv("PARALEGAL_BASE_URL", "")
	t.Setenv("PARALEGAL_TRUSTED_PROXIES", "")

	c, err := GetServerConfig()
	require.NoError(t, err)
	assert.NotEmpty(t, c.SessionSecret)
	assert.Equal(t, "/", c.BasePath)
}

func TestLoadEnvFile(t *testing.T) {
	assert.NoError(t, LoadEnvFile(""))
	assert.NoError(t, LoadEnvFile(filepath.Join(t.TempDir(), "missing.env")))

	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("PARALEGAL_TEST_FROM_FILE=file\nPARALEGAL_TEST_PRESET=file\n"), 0o600))
	t.Setenv("PARALEGAL_TEST_FROM_FILE", "")
	os.Unsetenv("PARALEGAL_TEST_FROM_FILE")
	t.Setenv("PARALEGAL_TEST_PRESET", "env")

	require.NoError(t, LoadEnvFile(path))
	assert.Equal(t, "file", os.Getenv("PARALEGAL_TEST_FROM_FILE"))
	assert.Equal(t, "env", os.Getenv("PARALEGAL_TEST_PRESET"), "existing variables win")
}

func TestGetDBPath(t *testing.T) {
	t.Setenv("PARALEGAL_DB_PATH", "/tmp/custom.db")
	assert.Equal(t, "/tmp/custom.db", GetDBPath())

	t.Setenv("PARALEGAL_DB_PATH", "")
	t.Setenv("PARALEGAL_DB_FOLDER", "/var/lib/paralegal")
	assert.Equal(t, filepath.Join("/var/lib/paralegal", GetName()+".db"), GetDBPath())
}

func TestDatabaseConfigDSN(t *testing.T) {
	c := &DatabaseConfig{Path: "/tmp/x.db", BusyTimeout: 2 * time.Second}
	assert.Equal(t, "/tmp/x.db?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=2000&_txlock=immediate", c.GetDSN())
	assert.NoError(t, c.ValidateConfig())

	assert.Error(t, (&DatabaseConfig{}).ValidateConfig())
	assert.Error(t, (&DatabaseConfig{Path: "x", BusyTimeout: -1}).ValidateConfig())
}

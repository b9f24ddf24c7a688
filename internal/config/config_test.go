package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"ENV", "HTTP_ADDR", "LOG_CONSOLE_LEVEL", "LOG_FILE_LEVEL", "LOG_FILE", "LOG_REDACT_KEYS",
		"RETRY_TIMES", "RETRY_INTERVAL", "RETRY_TIMEOUT", "REQUEST_TIMEOUT",
		"PROBE_SCHEDULE", "PROBE_URLS", "PROBE_CODE",
	} {
		t.Setenv(k, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	c, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "prod", c.Env)
	assert.Equal(t, ":8080", c.HTTP.Addr)
	assert.Equal(t, "info", c.Log.ConsoleLevel)
	assert.Equal(t, "debug", c.Log.FileLevel)
	assert.Empty(t, c.Log.RedactKeys)
	assert.Equal(t, 0, c.Retry.Times)
	assert.Equal(t, time.Second, c.Retry.Interval)
	assert.Equal(t, 10*time.Second, c.Retry.Timeout)
	assert.Equal(t, 10*time.Second, c.Request.Timeout)
	assert.Empty(t, c.Probe.URLs)
	assert.Empty(t, c.Probe.Schedule)
	assert.Equal(t, "0", c.Probe.Code)
}

func TestLoad_Overrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("ENV", "dev")
	t.Setenv("LOG_CONSOLE_LEVEL", "DEBUG")
	t.Setenv("LOG_REDACT_KEYS", "X-Tenant-Sig, sig")
	t.Setenv("RETRY_TIMES", "3")
	t.Setenv("RETRY_INTERVAL", "250")
	t.Setenv("RETRY_TIMEOUT", "2s")
	t.Setenv("PROBE_URLS", "http://a.example/health, http://b.example/health ,")

	c, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "dev", c.Env)
	assert.Equal(t, "debug", c.Log.ConsoleLevel)
	assert.Equal(t, []string{"X-Tenant-Sig", "sig"}, c.Log.RedactKeys)
	assert.Equal(t, 3, c.Retry.Times)
	assert.Equal(t, 250*time.Millisecond, c.Retry.Interval)
	assert.Equal(t, 2*time.Second, c.Retry.Timeout)
	assert.Equal(t, []string{"http://a.example/health", "http://b.example/health"}, c.Probe.URLs)
	assert.Equal(t, "@every 1m", c.Probe.Schedule)
}

func TestLoad_Invalid(t *testing.T) {
	tests := map[string][2]string{
		"env":       {"ENV", "staging"},
		"level":     {"LOG_FILE_LEVEL", "verbose"},
		"times":     {"RETRY_TIMES", "many"},
		"negative":  {"RETRY_TIMES", "-1"},
		"interval":  {"RETRY_INTERVAL", "soon"},
		"probe url": {"PROBE_URLS", "not a url"},
	}
	for name, kv := range tests {
		t.Run(name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(kv[0], kv[1])
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

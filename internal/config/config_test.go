package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_RequiresDBURL(t *testing.T) {
	t.Setenv("DB_URL", "")
	_, err := Load()
	require.Error(t, err)
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("DB_URL", "postgres://localhost/calls")
	t.Setenv("API_KEYS", "")
	t.Setenv("DEDUPE_WINDOW", "")
	t.Setenv("MANGO_ALLOWED_IPS", "")
	t.Setenv("MANGO_API_KEY", "")
	t.Setenv("MANGO_API_SALT", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 30*time.Minute, cfg.DedupeWindow)
	assert.Equal(t, "operator", cfg.APIKeys["operator-key-123"])
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Empty(t, cfg.Webhook.AllowedIPs)
	assert.False(t, cfg.Webhook.SigningEnabled())
}

func TestLoad_ParsesOverrides(t *testing.T) {
	t.Setenv("DB_URL", "postgres://localhost/calls")
	t.Setenv("API_KEYS", "alice:k1, bob:k2")
	t.Setenv("DEDUPE_WINDOW", "45m")
	t.Setenv("MANGO_ALLOWED_IPS", "10.0.0.1, 10.0.0.2")
	t.Setenv("MANGO_API_KEY", "key")
	t.Setenv("MANGO_API_SALT", "salt")
	t.Setenv("PHONE_REGION", "kz")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, map[string]string{"k1": "alice", "k2": "bob"}, cfg.APIKeys)
	assert.Equal(t, 45*time.Minute, cfg.DedupeWindow)
	assert.Equal(t, []string{"10.0.0.1", "10.0.0.2"}, cfg.Webhook.AllowedIPs)
	assert.True(t, cfg.Webhook.SigningEnabled())
	assert.Equal(t, "KZ", cfg.PhoneRegion)
}

func TestLoad_RejectsMalformedValues(t *testing.T) {
	t.Setenv("DB_URL", "postgres://localhost/calls")

	t.Run("api keys", func(t *testing.T) {
		t.Setenv("API_KEYS", "no-colon")
		_, err := Load()
		require.Error(t, err)
	})

	t.Run("dedupe window", func(t *testing.T) {
		t.Setenv("API_KEYS", "")
		t.Setenv("DEDUPE_WINDOW", "soon")
		_, err := Load()
		require.Error(t, err)
	})
}

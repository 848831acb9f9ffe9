package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("POSTGRES_HOST", "db")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "postgres://negotiation:negotiation_pass@db:5432/negotiation?sslmode=disable", cfg.DatabaseURL)
	assert.Equal(t, "postgres", cfg.StoreDriver)
	assert.Equal(t, 300, cfg.LockTTLSeconds())
	assert.Equal(t, 30*time.Second, cfg.SweepInterval)
	assert.Equal(t, "reject", cfg.DuplicatePolicy)
	assert.Equal(t, "any", cfg.ForceReleasePolicy)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("STORE_DRIVER", "Memory")
	t.Setenv("LOCK_TTL", "90s")
	t.Setenv("FORCE_RELEASE_POLICY", "owner")
	t.Setenv("DUPLICATE_POLICY", "allow")
	t.Setenv("RATE_LIMIT_RPS", "2.5")
	t.Setenv("SWEEP_BATCH", "not-a-number")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "memory", cfg.StoreDriver)
	assert.Equal(t, 90, cfg.LockTTLSeconds())
	assert.Equal(t, "owner", cfg.ForceReleasePolicy)
	assert.Equal(t, "allow", cfg.DuplicatePolicy)
	assert.Equal(t, 2.5, cfg.RateLimitRPS)
	assert.Equal(t, 200, cfg.SweepBatch)
}

func TestLoadKeyList(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	t.Setenv("JWT_KEYS", "k1:00ff")
	t.Setenv("JWT_DEFAULT_KEY_ID", "k1")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "k1:00ff", cfg.JWTKeys)
	assert.Equal(t, "k1", cfg.JWTDefaultKeyID)
}

func TestLoadRejectsInvalid(t *testing.T) {
	cases := map[string]map[string]string{
		"policy":  {"JWT_SECRET": "s", "FORCE_RELEASE_POLICY": "nobody"},
		"dup":     {"JWT_SECRET": "s", "DUPLICATE_POLICY": "merge"},
		"driver":  {"JWT_SECRET": "s", "STORE_DRIVER": "redis"},
		"ttl":     {"JWT_SECRET": "s", "LOCK_TTL": "10ms"},
		"sweep 0": {"JWT_SECRET": "s", "SWEEP_INTERVAL": "0s"},
		"sweep -": {"JWT_SECRET": "s", "SWEEP_INTERVAL": "-5s"},
		"batch":   {"JWT_SECRET": "s", "SWEEP_BATCH": "0"},
		"no auth": {"JWT_SECRET": "", "JWT_KEYS": "", "AUTH_TRUSTED_HEADER": "false"},
	}
	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			for k, v := range env {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

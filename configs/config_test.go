package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDefaults(t *testing.T) {
	t.Setenv("POSTGRES_URI", "postgres://localhost/postqueue?sslmode=disable")

	cfg, err := Parse()
	require.NoError(t, err)

	assert.Equal(t, ":3000", cfg.ListenAddr)
	assert.Equal(t, "UTC", cfg.Queue.DefaultTimezone)
	assert.Equal(t, time.Minute, cfg.Queue.SweepInterval)
	assert.Equal(t, 30, cfg.Queue.RetentionDays)
	assert.Equal(t, 10, cfg.Queue.MaxDeferrals)
	assert.Equal(t, 5*time.Minute, cfg.Queue.TickLockTTL)
	assert.Equal(t, 15*time.Minute, cfg.Queue.ClaimTimeout)
	assert.True(t, cfg.Publisher.Simulate)
	assert.InDelta(t, 0.9, cfg.Publisher.SimulatedSuccessRate, 1e-9)
	assert.False(t, cfg.R2.Enabled())
}

func TestParseOverrides(t *testing.T) {
	t.Setenv("POSTGRES_URI", "postgres://db/postqueue")
	t.Setenv("QUEUE_DEFAULT_TIMEZONE", "Europe/Berlin")
	t.Setenv("QUEUE_MAX_DEFERRALS", "0")
	t.Setenv("PUBLISHER_SIMULATE", "false")
	t.Setenv("R2_ACCOUNT_ID", "acc")
	t.Setenv("R2_ACCESS_KEY", "key")
	t.Setenv("R2_SECRET_KEY", "secret")
	t.Setenv("R2_BUCKET_NAME", "media")

	cfg, err := Parse()
	require.NoError(t, err)

	assert.Equal(t, "Europe/Berlin", cfg.Queue.DefaultTimezone)
	assert.Equal(t, 0, cfg.Queue.MaxDeferrals)
	assert.False(t, cfg.Publisher.Simulate)
	assert.True(t, cfg.R2.Enabled())
	assert.Equal(t, "media", cfg.R2.BucketName)
}

func TestParseRejectsInvalidValues(t *testing.T) {
	tests := map[string]map[string]string{
		"missing postgres":   {},
		"unknown timezone":   {"POSTGRES_URI": "x", "QUEUE_DEFAULT_TIMEZONE": "Mars/Base"},
		"bad success rate":   {"POSTGRES_URI": "x", "PUBLISHER_SIMULATED_SUCCESS_RATE": "1.5"},
		"short secret key":   {"POSTGRES_URI": "x", "SECRET_KEY": "short"},
		"negative retention": {"POSTGRES_URI": "x", "QUEUE_RETENTION_DAYS": "-1"},
		"claim within lock":  {"POSTGRES_URI": "x", "QUEUE_CLAIM_TIMEOUT": "2m"},
	}

	for name, vars := range tests {
		t.Run(name, func(t *testing.T) {
			t.Setenv("POSTGRES_URI", "")
			for k, v := range vars {
				t.Setenv(k, v)
			}
			_, err := Parse()
			assert.Error(t, err)
		})
	}
}

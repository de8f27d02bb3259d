package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, []int{1, 3, 7, 14, 30, 60, 90, 180}, cfg.Analysis.Horizons)
	assert.Equal(t, 180, cfg.Analysis.MaxHorizon())
	assert.Equal(t, 0.85, cfg.Analysis.CorrelationThreshold)
	assert.Equal(t, 0.10, cfg.Analysis.BaselineFactor)
	assert.Equal(t, 24*time.Hour, cfg.Analysis.CacheTTL)
	assert.True(t, cfg.IsDevelopment())
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("REVLIFT_HTTP_ADDR", ":9999")
	t.Setenv("REVLIFT_ANALYSIS_HORIZONS", "1, 7, 30")
	t.Setenv("REVLIFT_ANALYSIS_CORRELATION_THRESHOLD", "0.7")
	t.Setenv("REVLIFT_ENV", "production")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":9999", cfg.Server.Addr)
	assert.Equal(t, []int{1, 7, 30}, cfg.Analysis.Horizons)
	assert.Equal(t, 0.7, cfg.Analysis.CorrelationThreshold)
	assert.True(t, cfg.IsProduction())
}

func TestValidateHorizons(t *testing.T) {
	t.Setenv("REVLIFT_ANALYSIS_HORIZONS", "30,7")
	_, err := Load()
	assert.Error(t, err)
}

func TestValidateDuplicateHorizons(t *testing.T) {
	t.Setenv("REVLIFT_ANALYSIS_HORIZONS", "1,7,7,30")
	_, err := Load()
	assert.Error(t, err)
}

func TestValidateSingleHorizon(t *testing.T) {
	t.Setenv("REVLIFT_ANALYSIS_HORIZONS", "30")
	_, err := Load()
	assert.Error(t, err)
}

func TestValidateThresholdRange(t *testing.T) {
	t.Setenv("REVLIFT_ANALYSIS_CORRELATION_THRESHOLD", "1.2")
	_, err := Load()
	assert.Error(t, err)
}

func TestValidateAuthRequiresKey(t *testing.T) {
	t.Setenv("REVLIFT_AUTH_ENABLED", "true")
	t.Setenv("REVLIFT_API_KEY_MASTER", "")
	_, err := Load()
	assert.Error(t, err)
}

func TestDatabaseDSN(t *testing.T) {
	d := DatabaseConfig{
		Host: "db.internal", Port: 5433, User: "svc", Password: "pw",
		DBName: "revlift", SSLMode: "require",
	}
	assert.Equal(t, "postgres://svc:pw@db.internal:5433/revlift?sslmode=require", d.DSN())
}

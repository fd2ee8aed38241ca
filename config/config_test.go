package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/duels")
	t.Setenv("JWT_SECRET_KEY", "secret")
}

func TestLoad_Defaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.DatabaseDriver)
	assert.Equal(t, 8080, cfg.ServerPort)
	assert.Equal(t, 2*time.Second, cfg.JudgeRequestInterval)
	assert.Equal(t, time.Hour, cfg.ProblemCatalogTTL)
	assert.Equal(t, 5*time.Minute, cfg.SolvedCacheTTL)
	assert.Equal(t, 800, cfg.ProblemMinRating)
	assert.Equal(t, 800, cfg.ProblemMaxRating)
	assert.Equal(t, PolicyRandom, cfg.ProblemPolicy)
	assert.Equal(t, 5, cfg.BracketCacheSize)
	assert.Equal(t, 50, cfg.SessionCacheSize)
	assert.Equal(t, []string{"*"}, cfg.AllowedOrigins)
	assert.False(t, cfg.ArchiveEnabled())
	assert.True(t, cfg.ReaperEnabled())
}

func TestLoad_Overrides(t *testing.T) {
	setRequired(t)
	t.Setenv("DATABASE_DRIVER", "sqlite3")
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("PROBLEM_SELECTION_POLICY", PolicyLowestRating)
	t.Setenv("PROBLEM_MAX_RATING", "1200")
	t.Setenv("SESSION_IDLE_TTL", "30m")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite3", cfg.DatabaseDriver)
	assert.Equal(t, 9090, cfg.ServerPort)
	assert.Equal(t, PolicyLowestRating, cfg.ProblemPolicy)
	assert.Equal(t, 1200, cfg.ProblemMaxRating)
	assert.Equal(t, 30*time.Minute, cfg.SessionIdleTTL)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
}

func TestLoad_ZeroIdleTTLDisablesReaper(t *testing.T) {
	setRequired(t)
	t.Setenv("SESSION_IDLE_TTL", "0s")

	cfg, err := Load()
	require.NoError(t, err)
	assert.False(t, cfg.ReaperEnabled())
	assert.Equal(t, 5*time.Minute, cfg.SessionReaperInterval)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"missing database url", map[string]string{"DATABASE_URL": ""}},
		{"missing jwt secret", map[string]string{"JWT_SECRET_KEY": ""}},
		{"bad driver", map[string]string{"DATABASE_DRIVER": "mysql"}},
		{"bad port", map[string]string{"SERVER_PORT": "70000"}},
		{"bad policy", map[string]string{"PROBLEM_SELECTION_POLICY": "hardest"}},
		{"bad duration", map[string]string{"SESSION_IDLE_TTL": "soon"}},
		{"negative duration", map[string]string{"SESSION_IDLE_TTL": "-1m"}},
		{"zero reaper interval", map[string]string{"SESSION_REAPER_INTERVAL": "0s"}},
		{"zero judge interval", map[string]string{"JUDGE_REQUEST_INTERVAL": "0s"}},
		{"zero judge timeout", map[string]string{"JUDGE_TIMEOUT": "0s"}},
		{"zero catalog ttl", map[string]string{"PROBLEM_CATALOG_TTL": "0s"}},
		{"zero solved cache ttl", map[string]string{"SOLVED_CACHE_TTL": "0s"}},
		{"inverted rating band", map[string]string{"PROBLEM_MIN_RATING": "1500", "PROBLEM_MAX_RATING": "800"}},
		{"partial r2", map[string]string{"R2_ACCOUNT_ID": "acc"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setRequired(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

package config

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "quiz-session", cfg.Name)
	assert.Equal(t, "/ws/room", cfg.Server.WSPath)
	assert.Equal(t, 2*time.Second, cfg.Runtime.MatchPollInterval)
	assert.Equal(t, 30*time.Second, cfg.Runtime.MatchStaleAfter)
	assert.Equal(t, 100, cfg.Runtime.RedirectSeconds)
	assert.Equal(t, 256, cfg.Runtime.DedupeWindow)
	assert.Empty(t, cfg.Redis.Addr)
	assert.Empty(t, cfg.Metrics.Addr)
	assert.False(t, cfg.IsProduction())
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("SERVER_URL", "https://quiz.example.com")
	t.Setenv("PLAYER_USERNAME", "alice")
	t.Setenv("MATCH_POLL_INTERVAL", "500ms")
	t.Setenv("GAME_OVER_REDIRECT_SECONDS", "10")
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("APP_ENV", "production")

	cfg, err := Load(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "https://quiz.example.com", cfg.Server.URL)
	assert.Equal(t, "alice", cfg.Identity.Username)
	assert.Equal(t, 500*time.Millisecond, cfg.Runtime.MatchPollInterval)
	assert.Equal(t, 10, cfg.Runtime.RedirectSeconds)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.True(t, cfg.IsProduction())
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name, key, value string
	}{
		{"bad url", "SERVER_URL", "ftp://nowhere"},
		{"zero poll", "MATCH_POLL_INTERVAL", "0s"},
		{"zero redirect", "GAME_OVER_REDIRECT_SECONDS", "0"},
		{"negative auto ready", "RANKED_AUTO_READY_DELAY", "-1s"},
		{"unparsable duration", "LEAVE_TIMEOUT", "soon"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := Load(context.Background())
			assert.Error(t, err)
		})
	}
}

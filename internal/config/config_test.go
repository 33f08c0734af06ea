package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hfcRed/Agent-8s-sub001/internal/session"
)

func unsetenv(t *testing.T, key string) {
	t.Helper()
	t.Setenv(key, "")
	require.NoError(t, os.Unsetenv(key))
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("DISCORD_BOT_TOKEN", "token")
	for _, key := range []string{"TEST_MODE", "SESSION_CAPACITY", "SESSION_MIN_PARTICIPANTS", "SESSION_EXPIRY", "VOICE_ROOMS"} {
		unsetenv(t, key)
	}

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "token", cfg.DiscordToken)
	assert.Equal(t, session.DefaultCapacity, cfg.Capacity)
	assert.Equal(t, session.DefaultCapacity/2, cfg.MinParticipants)
	assert.Equal(t, 24*time.Hour, cfg.Expiry)
	assert.Equal(t, time.Minute, cfg.SweepInterval)
	assert.Equal(t, 2, cfg.VoiceRooms)
	assert.Equal(t, "./data/bot.db", cfg.DatabasePath)
}

func TestLoad_TestModeShrinksSessions(t *testing.T) {
	t.Setenv("DISCORD_BOT_TOKEN", "token")
	t.Setenv("TEST_MODE", "true")
	t.Setenv("SESSION_CAPACITY", "8")
	unsetenv(t, "SESSION_MIN_PARTICIPANTS")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, session.TestCapacity, cfg.Capacity)
	assert.Equal(t, 1, cfg.MinParticipants)
}

func TestLoad_MissingToken(t *testing.T) {
	unsetenv(t, "DISCORD_BOT_TOKEN")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_Validation(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"zero capacity", map[string]string{"SESSION_CAPACITY": "0"}},
		{"minimum above capacity", map[string]string{"SESSION_CAPACITY": "4", "SESSION_MIN_PARTICIPANTS": "5"}},
		{"negative expiry", map[string]string{"SESSION_EXPIRY": "-1h"}},
		{"zero announce interval", map[string]string{"ANNOUNCE_INTERVAL": "0s"}},
		{"negative announce interval", map[string]string{"ANNOUNCE_INTERVAL": "-2s"}},
		{"zero processing timeout", map[string]string{"PROCESSING_TIMEOUT": "0s"}},
		{"negative rooms", map[string]string{"VOICE_ROOMS": "-1"}},
		{"malformed duration", map[string]string{"SWEEP_INTERVAL": "soon"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("DISCORD_BOT_TOKEN", "token")
			unsetenv(t, "TEST_MODE")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

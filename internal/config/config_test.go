package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultsAndEnv(t *testing.T) {
	t.Setenv("LIVEQUIZ_TICKET_SECRET", "s3cret")
	t.Setenv("LIVEQUIZ_TEACHER_API_KEY", "key")
	t.Setenv("LIVEQUIZ_GAME_MAX_PLAYERS", "30")
	t.Setenv("LIVEQUIZ_TIMER_TICK_INTERVAL", "250ms")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, 2*time.Minute, cfg.TicketTTL)
	assert.Equal(t, 250*time.Millisecond, cfg.TickInterval)
	assert.Equal(t, 30, cfg.Game.MaxPlayers)
	assert.Equal(t, 20, cfg.Game.TimePerQuestionSec)
	assert.Empty(t, cfg.DatabaseURL)
}

func TestLoad_DotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	content := "LIVEQUIZ_TICKET_SECRET=from-file\nLIVEQUIZ_TEACHER_API_KEY=k\nLIVEQUIZ_PUBLIC_URL=https://quiz.example.com/\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	t.Cleanup(func() {
		os.Unsetenv("LIVEQUIZ_TICKET_SECRET")
		os.Unsetenv("LIVEQUIZ_TEACHER_API_KEY")
		os.Unsetenv("LIVEQUIZ_PUBLIC_URL")
	})

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-file", cfg.TicketSecret)
	assert.Equal(t, "https://quiz.example.com", cfg.PublicURL)
}

func TestLoad_RequiresSecrets(t *testing.T) {
	t.Setenv("LIVEQUIZ_TICKET_SECRET", "")
	t.Setenv("LIVEQUIZ_TEACHER_API_KEY", "")

	_, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	assert.Error(t, err)
}

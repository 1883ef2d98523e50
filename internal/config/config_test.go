package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("HISTORY_WINDOW", "")
	t.Setenv("PARTICIPANTS_FILE", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 10, cfg.HistoryWindow)
	assert.Equal(t, 3, cfg.MaxToolCalls)
	assert.Equal(t, time.Second, cfg.TurnDelay)
	assert.Equal(t, 30*time.Second, cfg.MemoryCacheTTL)
	assert.Equal(t, DefaultRoster, cfg.Participants)
}

func TestLoadReadsDotEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("TURN_DELAY_MS=25\nROUNDTABLE_MODE=mock\n"), 0o600))
	t.Setenv("PARTICIPANTS_FILE", "")
	t.Cleanup(func() {
		os.Unsetenv("TURN_DELAY_MS")
		os.Unsetenv("ROUNDTABLE_MODE")
	})

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 25*time.Millisecond, cfg.TurnDelay)
	assert.True(t, cfg.IsMock())
}

func TestParseRoster(t *testing.T) {
	roster, err := ParseRoster([]byte(`
participants:
  - id: a
    name: Alpha
    personality: blunt
  - id: b
    name: Beta
    personality: kind
    model: gpt-4o
`))
	require.NoError(t, err)
	require.Len(t, roster, 2)
	assert.Equal(t, "a", roster[0].Model)
	assert.Equal(t, "gpt-4o", roster[1].Model)
}

func TestParseRosterRejectsDuplicates(t *testing.T) {
	_, err := ParseRoster([]byte(`
participants:
  - {id: a, name: Alpha}
  - {id: a, name: Again}
`))
	assert.Error(t, err)

	_, err = ParseRoster([]byte(`participants: []`))
	assert.Error(t, err)
}

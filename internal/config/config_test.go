package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileReturnsDefault(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "core_settings.json"))
	require.NoError(t, err)
	require.Equal(t, ModeRoleplay, cfg.RecallMode)
	require.Equal(t, 60, cfg.TripleRecallRRFK)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "core_settings.json")
	cfg := Default()
	cfg.RecallMode = ModeGeneral
	cfg.BudgetDailyLimit = 42
	require.NoError(t, Save(path, cfg))

	loaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, ModeGeneral, loaded.RecallMode)
	require.Equal(t, int64(42), loaded.BudgetDailyLimit)
}

func TestWatcherPicksUpChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "core_settings.json")
	cfg := Default()
	require.NoError(t, Save(path, cfg))

	w, err := NewWatcher(path, 20*time.Millisecond)
	require.NoError(t, err)
	defer w.Close()

	require.Equal(t, ModeRoleplay, w.Load().RecallMode)

	cfg.RecallMode = ModeKnowledgeBase
	time.Sleep(5 * time.Millisecond)
	require.NoError(t, Save(path, cfg))

	require.Eventually(t, func() bool {
		return w.Load().RecallMode == ModeKnowledgeBase
	}, time.Second, 10*time.Millisecond)
}

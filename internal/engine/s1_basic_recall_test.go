package engine

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kittclouds/recall/internal/config"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	cfg := config.Default()
	cfg.DataRoot = filepath.Join(t.TempDir(), "data")
	e := New(cfg)
	t.Cleanup(func() { e.Close() })
	return e
}

// TestBasicRecall covers SPEC_FULL.md §8.6 scenario S1: a turn added under
// one fact survives Search against a related-but-not-identical query, and
// the entity it names is surfaced in the Add response.
func TestBasicRecall(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	added, err := e.Add(ctx, "I live in Berlin.", "alice", "default", nil)
	require.NoError(t, err)
	require.NotEmpty(t, added.ID)

	var sawBerlin bool
	for _, name := range added.Entities {
		if strings.EqualFold(name, "Berlin") {
			sawBerlin = true
		}
	}
	require.True(t, sawBerlin, "expected Berlin among extracted entities, got %v", added.Entities)

	hits, err := e.Search(ctx, "where does the user live", "alice", "default", 3, nil)
	require.NoError(t, err)
	require.NotEmpty(t, hits)

	var found bool
	for _, h := range hits {
		if h.ID == added.ID {
			found = true
			require.Greater(t, h.Score, 0.0)
		}
	}
	require.True(t, found, "expected the added turn in the top-3 results, got %+v", hits)
}

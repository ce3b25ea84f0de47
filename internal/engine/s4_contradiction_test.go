package engine

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kittclouds/recall/internal/config"
	"github.com/kittclouds/recall/internal/model"
)

// TestContradictionSupersede covers SPEC_FULL.md §8.6 scenario S4: a
// directly contradictory fact (LOVES vs. HATES, an exclusive predicate
// pair per DESIGN.md's contradiction rules) on the same subject/object is
// auto-resolved by SUPERSEDE — the earlier edge is retired, the later one
// stays active, and the conflicting add surfaces a consistency warning.
func TestContradictionSupersede(t *testing.T) {
	cfg := config.Default()
	cfg.DataRoot = filepath.Join(t.TempDir(), "data")
	cfg.ContradictionAutoResolve = true
	e := New(cfg)
	t.Cleanup(func() { e.Close() })
	ctx := context.Background()

	_, err := e.Add(ctx, "Alice loves Bob.", "dave", "default", nil)
	require.NoError(t, err)

	second, err := e.Add(ctx, "Alice hates Bob.", "dave", "default", nil)
	require.NoError(t, err)
	require.NotEmpty(t, second.ConsistencyWarnings)

	tn, err := e.getTenant("dave", "default")
	require.NoError(t, err)
	alice, err := tn.store.GetNodeByName("Alice")
	require.NoError(t, err)

	allFacts, err := tn.store.ListFactsForSubject(alice.ID)
	require.NoError(t, err)
	lovesFact := findFactByPredicate(allFacts, "LOVES")
	require.NotNil(t, lovesFact, "expected the earlier LOVES fact still on record")
	require.NotNil(t, lovesFact.SupersededAt, "expected the earlier fact to be marked superseded")
	require.NotNil(t, lovesFact.ValidUntil, "expected the earlier fact to gain a ValidUntil bound")

	hatesFact := findFactByPredicate(allFacts, "HATES")
	require.NotNil(t, hatesFact, "expected the new HATES fact on record")
	require.Nil(t, hatesFact.SupersededAt, "the new fact must stay active")

	now := time.Now()
	loveFacts, err := e.QueryAtTime("dave", "default", alice.ID, now, "LOVES")
	require.NoError(t, err)
	require.Empty(t, loveFacts, "the superseded LOVES fact must no longer be valid at the current time")

	hateFacts, err := e.QueryAtTime("dave", "default", alice.ID, now, "HATES")
	require.NoError(t, err)
	require.Len(t, hateFacts, 1)
}

func findFactByPredicate(facts []*model.TemporalFact, predicate string) *model.TemporalFact {
	for _, f := range facts {
		if f.Predicate == predicate {
			return f
		}
	}
	return nil
}

package engine

import (
	"os"
	"path/filepath"

	"github.com/kittclouds/recall/internal/errs"
	"github.com/kittclouds/recall/internal/model"
)

// Clear wipes every character's data for userID: every loaded tenant under
// that user is closed and evicted, and the user's on-disk directory is
// removed. confirm must be true — SPEC_FULL.md §6's `Clear(userID,
// confirm=true)` signature makes the safety interlock part of the call
// itself, not an optional flag a caller can forget.
func (e *Engine) Clear(userID string, confirm bool) error {
	if !confirm {
		return errs.New(errs.Conflict, "Clear requires confirm=true")
	}

	e.tmu.Lock()
	for key, t := range e.tenants {
		if key.userID != userID {
			continue
		}
		t.store.Close()
		delete(e.tenants, key)
	}
	e.tmu.Unlock()

	root := filepath.Join(e.config().DataRoot, userID)
	if err := os.RemoveAll(root); err != nil {
		return errs.Wrap(errs.Fatal, "clearing user data directory", err)
	}
	return nil
}

// Stats returns the tenant's node/fact/episode/contradiction counts, per
// SPEC_FULL.md §6's administrative `Stats()` operation. Scoped to
// (userID, characterID) for the same reason Search and BuildContext are:
// every count it reports comes from a single tenant's Storer and
// contradiction manager.
func (e *Engine) Stats(userID, characterID string) (*TenantStats, error) {
	t, err := e.getTenant(userID, characterID)
	if err != nil {
		return nil, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	nodeCount, err := t.store.CountNodes()
	if err != nil {
		return nil, err
	}
	factCount, err := t.store.CountFacts()
	if err != nil {
		return nil, err
	}
	episodes, err := t.store.ListEpisodes()
	if err != nil {
		return nil, err
	}
	contraStats, err := t.contra.Stats()
	if err != nil {
		return nil, err
	}

	return &TenantStats{
		NodeCount:              nodeCount,
		FactCount:              factCount,
		EpisodeCount:           len(episodes),
		PendingContradictions:  contraStats.PendingCount,
		ResolvedContradictions: contraStats.ResolvedCount,
	}, nil
}

// DetectCommunities recomputes connected-components over the tenant's
// currently-valid edge set and materializes the result as synthetic
// community nodes, per SPEC_FULL.md §4.B/§6.
func (e *Engine) DetectCommunities(userID, characterID string) ([]*model.Node, error) {
	t, err := e.getTenant(userID, characterID)
	if err != nil {
		return nil, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.graph.DetectCommunities()
}

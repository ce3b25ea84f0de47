package engine

import (
	"context"

	"github.com/kittclouds/recall/internal/contradiction"
	"github.com/kittclouds/recall/internal/model"
)

// Detect runs contradiction detection for candidateFactID against every
// other active fact sharing its subject, per SPEC_FULL.md §6's `Detect`
// administrative operation. Unlike Add's inline detection (run once, at
// write time, against the facts that existed before the new one), this is a
// standalone re-check an operator can invoke against a fact already on disk
// — e.g. after an absolute rule or a contradiction rule set changes.
func (e *Engine) Detect(ctx context.Context, userID, characterID, candidateFactID string) ([]*model.Contradiction, error) {
	t, err := e.getTenant(userID, characterID)
	if err != nil {
		return nil, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	candidate, err := t.store.GetFact(candidateFactID)
	if err != nil {
		return nil, err
	}
	existing, err := t.graph.ListFactsForSubject(candidate.Subject)
	if err != nil {
		return nil, err
	}
	return t.contra.Detect(ctx, candidate, existing, "")
}

// Resolve applies strategy to a pending contradiction, per SPEC_FULL.md
// §6's `Resolve(id, strategy)`. Idempotent: resolving the same id with the
// same strategy twice is a no-op success.
func (e *Engine) Resolve(userID, characterID, contradictionID string, strategy model.ResolutionStrategy) (*contradiction.ResolutionResult, error) {
	t, err := e.getTenant(userID, characterID)
	if err != nil {
		return nil, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.contra.Resolve(contradictionID, strategy)
}

// ListPending returns every unresolved contradiction for the tenant.
func (e *Engine) ListPending(userID, characterID string) ([]*model.Contradiction, error) {
	t, err := e.getTenant(userID, characterID)
	if err != nil {
		return nil, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.contra.GetPending()
}

// ContradictionStats returns the tenant's contradiction manager stats, per
// SPEC_FULL.md §6's `Stats` contradiction operation.
func (e *Engine) ContradictionStats(userID, characterID string) (contradiction.Stats, error) {
	t, err := e.getTenant(userID, characterID)
	if err != nil {
		return contradiction.Stats{}, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.contra.Stats()
}

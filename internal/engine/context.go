package engine

import (
	"context"

	"github.com/kittclouds/recall/internal/assemble"
)

// BuildContext assembles a prompt-ready context string for query within one
// tenant, per SPEC_FULL.md §6's `BuildContext(query, userID, characterID,
// maxTokens, includeRecent?) → { context }`. includeRecent toggles whether
// recent_turns are included at all; when false, TurnCount is forced to 0 so
// assemble.Assembler's renderSections simply omits that section.
func (e *Engine) BuildContext(ctx context.Context, query, userID, characterID string, maxTokens int, includeRecent bool) (string, error) {
	t, err := e.getTenant(userID, characterID)
	if err != nil {
		return "", err
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	cfg := assemble.DefaultConfig()
	if maxTokens > 0 {
		cfg.TokenBudget = maxTokens
	}
	if !includeRecent {
		cfg.TurnCount = 0
	}

	return t.assembler.Assemble(ctx, query, &cfg)
}

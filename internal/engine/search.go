package engine

import (
	"context"

	"github.com/kittclouds/recall/internal/index"
	"github.com/kittclouds/recall/internal/retrieve"
)

// SearchFilters narrows Search to a subset of document kinds (e.g. facts
// only). A nil value means no restriction.
type SearchFilters struct {
	Kinds []index.DocKind
}

// Search runs the eleven-layer retriever over query within one tenant and
// dereferences every hit back to its display text, per SPEC_FULL.md §6's
// `Search(query, userID, topK, filters?)` operation. characterID is part of
// the Go signature (unlike the spec's literal table) because every tenant-
// scoped dependency — the store, every index, the graph — is keyed on
// (userID, characterID); there is no tenant-less Storer to search against.
func (e *Engine) Search(ctx context.Context, query, userID, characterID string, topK int, filters *SearchFilters) ([]SearchHit, error) {
	t, err := e.getTenant(userID, characterID)
	if err != nil {
		return nil, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	entities := t.retriever.ScanEntities(query)
	keywords := index.Tokenize(query)

	var rf *retrieve.Filters
	if filters != nil {
		rf = &retrieve.Filters{Kinds: filters.Kinds}
	}

	cfg := retrieve.DefaultConfig()
	results, err := t.retriever.Retrieve(ctx, query, entities, keywords, topK, rf, nil, &cfg)
	if err != nil {
		return nil, err
	}

	hits := make([]SearchHit, 0, len(results))
	for _, r := range results {
		kind, _ := index.SplitDocID(r.DocID)
		text := t.retriever.DereferenceText(r.DocID)
		hits = append(hits, SearchHit{
			ID:       r.DocID,
			Score:    r.Score,
			Content:  text,
			Metadata: map[string]any{"kind": string(kind)},
			Entities: t.retriever.ScanEntities(text),
		})
	}
	return hits, nil
}

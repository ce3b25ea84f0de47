package extract

import (
	"context"
	"testing"
)

func TestDedupExactMatchNormalized(t *testing.T) {
	d := NewThreeStageDeduplicator(DefaultDedupConfig(), nil, nil)
	d.BuildIndex([]DedupItem{{ID: "1", Name: "Monkey D. Luffy"}})

	result := d.Deduplicate(context.Background(), []DedupItem{{ID: "2", Name: "monkey d luffy"}}, nil)
	if result.MatchedCount != 1 {
		t.Fatalf("expected exact normalized match, got %+v", result)
	}
	if result.Matches[0].MatchType != MatchExact {
		t.Fatalf("expected MatchExact, got %v", result.Matches[0].MatchType)
	}
}

func TestDedupFuzzyMatchViaMinHashLSH(t *testing.T) {
	d := NewThreeStageDeduplicator(DefaultDedupConfig(), nil, nil)
	const sharedContent = "Roronoa Zoro the swordsman of the Straw Hat crew"
	d.BuildIndex([]DedupItem{{ID: "1", Name: "Roronoa Zoro", Content: sharedContent}})

	result := d.Deduplicate(context.Background(), []DedupItem{
		{ID: "2", Name: "Zoro Roronoa", Content: sharedContent},
	}, nil)

	if result.MatchedCount != 1 {
		t.Fatalf("expected a fuzzy match, got %+v", result)
	}
	if result.Matches[0].MatchType != MatchFuzzy {
		t.Fatalf("expected MatchFuzzy since names differ but content is identical, got %v", result.Matches[0].MatchType)
	}
}

func TestDedupNewItemWhenNoCandidates(t *testing.T) {
	d := NewThreeStageDeduplicator(DefaultDedupConfig(), nil, nil)
	result := d.Deduplicate(context.Background(), []DedupItem{{ID: "1", Name: "Entirely Novel Entity"}}, nil)
	if result.NewCount != 1 {
		t.Fatalf("expected one new item, got %+v", result)
	}
}

func TestDedupSemanticMatchAboveThreshold(t *testing.T) {
	d := NewThreeStageDeduplicator(DefaultDedupConfig(), nil, nil)
	d.BuildIndex([]DedupItem{{ID: "1", Name: "Alpha", Embedding: []float32{1, 0, 0}}})

	result := d.Deduplicate(context.Background(), []DedupItem{
		{ID: "2", Name: "Alpha Prime", Embedding: []float32{0.99, 0.01, 0}},
	}, nil)

	if result.MatchedCount != 1 || result.Matches[0].MatchType != MatchSemantic {
		t.Fatalf("expected semantic match, got %+v", result)
	}
}

type stubConfirmer struct{ confirm bool }

func (s stubConfirmer) Confirm(_ context.Context, _, _ string) (bool, error) {
	return s.confirm, nil
}

type allowAllBudget struct{}

func (allowAllBudget) Allow(string, int) bool { return true }

type denyAllBudget struct{}

func (denyAllBudget) Allow(string, int) bool { return false }

func TestDedupLLMConfirmsBoundaryCase(t *testing.T) {
	cfg := DefaultDedupConfig()
	cfg.LLMEnabled = true
	d := NewThreeStageDeduplicator(cfg, stubConfirmer{confirm: true}, allowAllBudget{})
	d.BuildIndex([]DedupItem{{ID: "1", Name: "Beta", Embedding: []float32{1, 0, 0}}})

	result := d.Deduplicate(context.Background(), []DedupItem{
		{ID: "2", Name: "Beta-ish", Embedding: []float32{0.72, 0.69, 0}},
	}, nil)

	if result.MatchedCount != 1 || result.Matches[0].MatchType != MatchLLM {
		t.Fatalf("expected LLM-confirmed match, got %+v", result)
	}
}

func TestDedupBudgetVetoFallsBackToNew(t *testing.T) {
	cfg := DefaultDedupConfig()
	cfg.LLMEnabled = true
	d := NewThreeStageDeduplicator(cfg, stubConfirmer{confirm: true}, denyAllBudget{})
	d.BuildIndex([]DedupItem{{ID: "1", Name: "Gamma", Embedding: []float32{1, 0, 0}}})

	result := d.Deduplicate(context.Background(), []DedupItem{
		{ID: "2", Name: "Gamma-ish", Embedding: []float32{0.72, 0.69, 0}},
	}, nil)

	if result.NewCount != 1 || result.MatchedCount != 0 {
		t.Fatalf("expected budget veto to push item to new, got %+v", result)
	}
}

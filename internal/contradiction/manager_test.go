package contradiction

import (
	"testing"
	"time"

	"github.com/kittclouds/recall/internal/model"
	"github.com/kittclouds/recall/internal/store"
)

func newTestManager(t *testing.T) (*Manager, store.Storer) {
	t.Helper()
	s, err := store.Open(t.TempDir())
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	m := NewManager(s, nil, StrategyRule, false, model.ResolveManual)
	return m, s
}

func mustPutFact(t *testing.T, s store.Storer, f *model.TemporalFact) {
	t.Helper()
	if err := s.UpsertFact(f); err != nil {
		t.Fatalf("upsert fact: %v", err)
	}
}

func TestDetectDirectConflict(t *testing.T) {
	m, s := newTestManager(t)
	old := &model.TemporalFact{ID: "fact:1", Subject: "luffy", Predicate: "LOCATED_AT", Object: "alabasta", Confidence: 0.8}
	mustPutFact(t, s, old)
	newFact := &model.TemporalFact{ID: "fact:2", Subject: "luffy", Predicate: "LOCATED_AT", Object: "wano", Confidence: 0.9}

	found, err := m.DetectContradictions([]*model.TemporalFact{old}, newFact)
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	if len(found) != 1 || found[0].Type != model.ContradictionDirect {
		t.Fatalf("expected one direct contradiction, got %+v", found)
	}
}

func TestDetectExclusivePredicates(t *testing.T) {
	m, s := newTestManager(t)
	old := &model.TemporalFact{ID: "fact:1", Subject: "luffy", Predicate: "ALIVE", Object: "status", Confidence: 0.9}
	mustPutFact(t, s, old)
	newFact := &model.TemporalFact{ID: "fact:2", Subject: "luffy", Predicate: "DEAD", Object: "status", Confidence: 0.5}

	found, err := m.DetectContradictions([]*model.TemporalFact{old}, newFact)
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	if len(found) != 1 || found[0].Type != model.ContradictionLogical {
		t.Fatalf("expected one logical contradiction, got %+v", found)
	}
}

func TestDetectNoConflictDifferentSubject(t *testing.T) {
	m, s := newTestManager(t)
	old := &model.TemporalFact{ID: "fact:1", Subject: "luffy", Predicate: "LOCATED_AT", Object: "alabasta"}
	mustPutFact(t, s, old)
	newFact := &model.TemporalFact{ID: "fact:2", Subject: "zoro", Predicate: "LOCATED_AT", Object: "wano"}

	found, err := m.DetectContradictions([]*model.TemporalFact{old}, newFact)
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	if len(found) != 0 {
		t.Fatalf("expected no contradiction across different subjects, got %+v", found)
	}
}

func TestResolveSupersedeThenIdempotentReResolve(t *testing.T) {
	m, s := newTestManager(t)
	old := &model.TemporalFact{ID: "fact:1", Subject: "luffy", Predicate: "LOCATED_AT", Object: "alabasta", Confidence: 0.8}
	mustPutFact(t, s, old)
	validFrom := time.Now()
	newFact := &model.TemporalFact{ID: "fact:2", Subject: "luffy", Predicate: "LOCATED_AT", Object: "wano", Confidence: 0.9, ValidFrom: &validFrom}
	mustPutFact(t, s, newFact)

	found, err := m.DetectContradictions([]*model.TemporalFact{old}, newFact)
	if err != nil || len(found) != 1 {
		t.Fatalf("detect: %v, found=%+v", err, found)
	}
	cID := found[0].ID

	result, err := m.Resolve(cID, model.ResolveSupersede)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if !result.Success {
		t.Fatalf("expected successful supersede, got %+v", result)
	}

	oldAfter, err := s.GetFact("fact:1")
	if err != nil {
		t.Fatalf("get old fact: %v", err)
	}
	if oldAfter.SupersededAt == nil {
		t.Fatal("expected old fact to carry SupersededAt after resolve")
	}

	// Re-resolving with the same strategy is a no-op, not an error.
	result2, err := m.Resolve(cID, model.ResolveSupersede)
	if err != nil {
		t.Fatalf("idempotent re-resolve: %v", err)
	}
	if !result2.Success {
		t.Fatalf("expected idempotent re-resolve to report success, got %+v", result2)
	}

	// Resolving again with a DIFFERENT strategy is an error.
	if _, err := m.Resolve(cID, model.ResolveReject); err == nil {
		t.Fatal("expected error resolving an already-resolved contradiction with a different strategy")
	}
}

func TestStats(t *testing.T) {
	m, s := newTestManager(t)
	old := &model.TemporalFact{ID: "fact:1", Subject: "a", Predicate: "LOVES", Object: "b"}
	mustPutFact(t, s, old)
	newFact := &model.TemporalFact{ID: "fact:2", Subject: "a", Predicate: "HATES", Object: "b"}

	if _, err := m.DetectContradictions([]*model.TemporalFact{old}, newFact); err != nil {
		t.Fatalf("detect: %v", err)
	}
	stats, err := m.Stats()
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.PendingCount != 1 {
		t.Fatalf("expected 1 pending contradiction in stats, got %+v", stats)
	}
}

package store

import (
	"testing"
	"time"

	"github.com/kittclouds/recall/internal/model"
)

func TestSQLiteStoreExportImport(t *testing.T) {
	s, err := OpenSQLite(":memory:", 0)
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	defer s.Close()

	node := &model.Node{ID: "node:1", Name: "Berlin", NodeType: model.NodeEntity, CreatedAt: time.Now(), UpdatedAt: time.Now()}
	if err := s.UpsertNode(node); err != nil {
		t.Fatalf("failed to upsert node: %v", err)
	}

	fact := &model.TemporalFact{ID: "fact:1", Subject: "node:1", Predicate: "LIVES_IN", Object: "node:2", KnownAt: time.Now(), CreatedAt: time.Now()}
	if err := s.UpsertFact(fact); err != nil {
		t.Fatalf("failed to upsert fact: %v", err)
	}

	data, err := s.Export()
	if err != nil {
		t.Fatalf("export failed: %v", err)
	}
	if len(data) == 0 {
		t.Fatal("exported data is empty")
	}

	s2, err := OpenSQLite(":memory:", 0)
	if err != nil {
		t.Fatalf("failed to open second store: %v", err)
	}
	defer s2.Close()

	if err := s2.Import(data); err != nil {
		t.Fatalf("import failed: %v", err)
	}

	restored, err := s2.GetNode("node:1")
	if err != nil {
		t.Fatalf("failed to get restored node: %v", err)
	}
	if restored.Name != node.Name {
		t.Errorf("expected name %s, got %s", node.Name, restored.Name)
	}

	facts, err := s2.ListFactsForSubject("node:1")
	if err != nil {
		t.Fatalf("failed to list facts: %v", err)
	}
	if len(facts) != 1 {
		t.Fatalf("expected 1 fact, got %d", len(facts))
	}
	if facts[0].Predicate != "LIVES_IN" {
		t.Errorf("expected predicate LIVES_IN, got %s", facts[0].Predicate)
	}
}

func TestSQLiteStoreFactTemporalValidity(t *testing.T) {
	s, err := OpenSQLite(":memory:", 0)
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	defer s.Close()

	past := time.Now().Add(-48 * time.Hour)
	ended := time.Now().Add(-24 * time.Hour)
	fact := &model.TemporalFact{
		ID: "fact:2", Subject: "node:1", Predicate: "WORKED_AT", Object: "node:2",
		ValidFrom: &past, ValidUntil: &ended, KnownAt: time.Now(), CreatedAt: time.Now(),
	}
	if err := s.UpsertFact(fact); err != nil {
		t.Fatalf("failed to upsert fact: %v", err)
	}

	got, err := s.GetFact("fact:2")
	if err != nil {
		t.Fatalf("failed to get fact: %v", err)
	}
	if got.ValidAt(time.Now()) {
		t.Error("expected fact to be invalid at present time, it ended 24h ago")
	}
	if !got.ValidAt(past.Add(time.Hour)) {
		t.Error("expected fact to be valid shortly after valid_from")
	}
}

func TestSQLiteStoreNodeNameCaseInsensitiveAndAliases(t *testing.T) {
	s, err := OpenSQLite(":memory:", 0)
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	defer s.Close()

	node := &model.Node{ID: "node:3", Name: "Jon Snow", Aliases: []string{"Lord Snow", "The Bastard of Winterfell"}, NodeType: model.NodeEntity, CreatedAt: time.Now(), UpdatedAt: time.Now()}
	if err := s.UpsertNode(node); err != nil {
		t.Fatalf("failed to upsert node: %v", err)
	}

	if _, err := s.GetNodeByName("JON SNOW"); err != nil {
		t.Errorf("expected case-insensitive name match, got error: %v", err)
	}
	if _, err := s.GetNodeByName("lord snow"); err != nil {
		t.Errorf("expected alias match, got error: %v", err)
	}
}

package index

import "testing"

func TestEntityIndexScanAndMentions(t *testing.T) {
	idx := NewEntityIndex("")
	if err := idx.Rebuild(map[string][]string{
		"Monkey D. Luffy": {"Luffy"},
		"Nami":            nil,
	}); err != nil {
		t.Fatalf("rebuild: %v", err)
	}

	names := idx.Scan("Luffy and Nami set sail.")
	found := map[string]bool{}
	for _, n := range names {
		found[n] = true
	}
	if !found["Monkey D. Luffy"] || !found["Nami"] {
		t.Fatalf("expected both entities scanned, got %v", names)
	}

	idx.AddMention("Nami", "mem:1")
	idx.AddMention("Nami", "mem:2")
	rel := idx.GetRelatedTurns("Nami")
	if len(rel.DocIDs) != 2 {
		t.Fatalf("expected 2 related docs, got %d", len(rel.DocIDs))
	}

	idx.RemoveDoc("mem:1")
	rel = idx.GetRelatedTurns("Nami")
	if len(rel.DocIDs) != 1 {
		t.Fatalf("expected 1 related doc after removal, got %d", len(rel.DocIDs))
	}
}

func TestEntityIndexCanonicalizeJoiners(t *testing.T) {
	if got := CanonicalizeEntityText("Monkey D. Luffy"); got != "monkey d. luffy" {
		t.Fatalf("unexpected canonicalization: %q", got)
	}
	if got := CanonicalizeEntityText("O'Brien  the  Great!"); got != "o'brien the great" {
		t.Fatalf("unexpected canonicalization: %q", got)
	}
}

package extract

import "testing"

func TestDiscoveryEngineScanTextInfersTarget(t *testing.T) {
	matcher := NewNarrativeMatcher()
	engine := NewDiscoveryEngine(1, matcher)

	engine.Registry.AddToken("Luffy")
	stats := engine.Registry.GetStats("Luffy")
	stats.Status = StatusPromoted
	kind := KindCharacter
	stats.InferredKind = &kind

	engine.ScanText("Luffy fought Kaido")

	kaido := engine.Registry.GetStats("Kaido")
	if kaido == nil {
		t.Fatal("expected Kaido to be discovered")
	}
	if kaido.Status != StatusPromoted {
		t.Fatalf("expected Kaido promoted immediately (threshold 1), got %+v", kaido)
	}
	if kaido.InferredKind == nil || *kaido.InferredKind != KindCharacter {
		t.Fatalf("expected Kaido inferred as Character, got %+v", kaido.InferredKind)
	}
}

func TestCandidateRegistryStopWords(t *testing.T) {
	r := NewRegistry(1)
	r.AddStopWord("The")
	if r.AddToken("The") {
		t.Fatal("stopword should never promote")
	}
	if r.GetStats("The") != nil {
		t.Fatal("stopword should not accumulate stats")
	}
}

func TestCandidateRegistryPromotionThreshold(t *testing.T) {
	r := NewRegistry(3)
	r.AddToken("Wano")
	r.AddToken("Wano")
	if r.GetStatus("Wano") != StatusWatching {
		t.Fatal("expected still watching below threshold")
	}
	r.AddToken("Wano")
	if r.GetStatus("Wano") != StatusPromoted {
		t.Fatal("expected promoted at threshold")
	}
}

func TestCanonicalizeStripsPunctuation(t *testing.T) {
	key, display, valid := Canonicalize("Luffy's")
	if !valid {
		t.Fatal("expected valid canonicalization")
	}
	if key != "luffys" {
		t.Fatalf("expected punctuation stripped, got %q", key)
	}
	if display != "Luffy's" {
		t.Fatalf("expected display form preserved, got %q", display)
	}
}

package extract

import "testing"

func TestNarrativeMatcherLookupStemmed(t *testing.T) {
	m := NewNarrativeMatcher()
	match := m.Lookup("fought")
	if match == nil {
		t.Fatal("expected 'fought' to match EventBattle")
	}
	if match.EventClass != EventBattle || match.RelationType != RelFights {
		t.Fatalf("unexpected match for 'fought': %+v", match)
	}
}

func TestNarrativeMatcherUnknownVerb(t *testing.T) {
	m := NewNarrativeMatcher()
	if m.Lookup("frobnicate") != nil {
		t.Fatal("expected nil match for unrecognized verb")
	}
}

func TestNarrativeMatcherOverlayOverridesStatic(t *testing.T) {
	m := NewNarrativeMatcher()
	m.AddVerb("befriend", EventMeet, RelAllies, Transitive)
	match := m.Lookup("befriend")
	if match == nil || match.RelationType != RelAllies {
		t.Fatalf("expected overlay entry to win, got %+v", match)
	}
}

package extract

import "testing"

func TestResolverExactNameMatch(t *testing.T) {
	r := NewResolver()
	r.RegisterEntity(EntityMetadata{ID: "ent:luffy", Name: "Luffy", Gender: GenderMale})
	if id := r.Resolve("luffy"); id != "ent:luffy" {
		t.Fatalf("expected exact case-insensitive name match, got %q", id)
	}
}

func TestResolverAliasMatch(t *testing.T) {
	r := NewResolver()
	r.RegisterEntity(EntityMetadata{ID: "ent:luffy", Name: "Monkey D. Luffy", Aliases: []string{"Straw Hat"}, Gender: GenderMale})
	if id := r.Resolve("Straw Hat"); id != "ent:luffy" {
		t.Fatalf("expected alias match, got %q", id)
	}
}

func TestResolverPronounUsesRecency(t *testing.T) {
	r := NewResolver()
	r.RegisterEntity(EntityMetadata{ID: "ent:luffy", Name: "Luffy", Gender: GenderMale})
	r.RegisterEntity(EntityMetadata{ID: "ent:nami", Name: "Nami", Gender: GenderFemale})
	r.ObserveMention("ent:nami")
	r.ObserveMention("ent:luffy")

	if id := r.Resolve("he"); id != "ent:luffy" {
		t.Fatalf("expected 'he' to resolve to most recent male mention, got %q", id)
	}
	if id := r.Resolve("she"); id != "ent:nami" {
		t.Fatalf("expected 'she' to resolve to most recent female mention, got %q", id)
	}
}

func TestResolverUnknownTextReturnsEmpty(t *testing.T) {
	r := NewResolver()
	if id := r.Resolve("Someone Unregistered"); id != "" {
		t.Fatalf("expected no match, got %q", id)
	}
}

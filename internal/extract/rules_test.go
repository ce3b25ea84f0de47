package extract

import "testing"

func TestRulesExtractorFindsRelation(t *testing.T) {
	e := NewRulesExtractor(1)
	result := e.Scan("Luffy fought Kaido")

	if len(result.Relations) != 1 {
		t.Fatalf("expected one relation, got %d: %+v", len(result.Relations), result.Relations)
	}
	rel := result.Relations[0]
	if rel.Subject != "Luffy" || rel.Object != "Kaido" || rel.Predicate != "FIGHTS" {
		t.Fatalf("unexpected relation: %+v", rel)
	}
	if rel.Confidence != 0.5 {
		t.Fatalf("expected default confidence 0.5, got %v", rel.Confidence)
	}
}

func TestRulesExtractorSeedEntityEnablesResolution(t *testing.T) {
	e := NewRulesExtractor(1)
	e.SeedEntity("Nami", KindCharacter, []string{"Cat Burglar"})

	result := e.Scan("Nami sailed to Wano")
	if len(result.Relations) != 1 {
		t.Fatalf("expected one relation, got %+v", result.Relations)
	}
	if result.Relations[0].Subject != "Nami" {
		t.Fatalf("expected seeded entity resolved to itself, got %q", result.Relations[0].Subject)
	}
}

func TestRulesExtractorKeywordsExcludeClosedClass(t *testing.T) {
	e := NewRulesExtractor(1)
	result := e.Scan("The wizard fought the dragon")

	for _, kw := range result.Keywords {
		if kw.Token == "the" {
			t.Fatal("expected determiner 'the' excluded from keywords")
		}
	}
}

func TestRulesExtractorNoVerbNoRelations(t *testing.T) {
	e := NewRulesExtractor(1)
	result := e.Scan("The ancient castle")
	if len(result.Relations) != 0 {
		t.Fatalf("expected no relations without a recognized verb, got %+v", result.Relations)
	}
}

package extract

import "testing"

func TestParseLLMResponseWellFormedJSON(t *testing.T) {
	raw := `{
		"entities": [{"label": "Luffy", "kind": "character", "confidence": 0.9}],
		"relations": [{"subject": "Luffy", "object": "Kaido", "verb": "fought", "relationType": "fights", "confidence": 0.9, "sourceSentence": "Luffy fought Kaido"}]
	}`
	result, err := parseLLMResponse(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Entities) != 1 || result.Entities[0].Name != "Luffy" {
		t.Fatalf("unexpected entities: %+v", result.Entities)
	}
	if len(result.Relations) != 1 || result.Relations[0].Predicate != "FIGHTS" {
		t.Fatalf("unexpected relations: %+v", result.Relations)
	}
}

func TestParseLLMResponseStripsCodeFence(t *testing.T) {
	raw := "```json\n{\"entities\":[],\"relations\":[]}\n```"
	result, err := parseLLMResponse(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Entities) != 0 || len(result.Relations) != 0 {
		t.Fatalf("expected empty result, got %+v", result)
	}
}

func TestParseLLMResponseRepairsMalformedJSON(t *testing.T) {
	raw := `garbage prefix {"label": "Nami", "kind": "character", "confidence": 0.8} trailing junk
	{"subject": "Nami", "object": "Wano", "relationType": "travels", "confidence": 0.7}`
	result, err := parseLLMResponse(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Entities) != 1 || result.Entities[0].Name != "Nami" {
		t.Fatalf("expected repaired entity, got %+v", result.Entities)
	}
	if len(result.Relations) != 1 || result.Relations[0].Predicate != "TRAVELS" {
		t.Fatalf("expected repaired relation, got %+v", result.Relations)
	}
}

func TestParseLLMResponseRejectsInvalidKind(t *testing.T) {
	raw := `{"entities": [{"label": "Mystery", "kind": "not-a-kind", "confidence": 0.9}], "relations": []}`
	result, err := parseLLMResponse(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Entities) != 0 {
		t.Fatalf("expected invalid-kind entity dropped, got %+v", result.Entities)
	}
}

func TestBuildUserPromptTruncatesLongText(t *testing.T) {
	long := make([]byte, MaxPromptChars+500)
	for i := range long {
		long[i] = 'a'
	}
	prompt := buildUserPrompt(string(long), nil)
	if len(prompt) > MaxPromptChars+2000 {
		t.Fatalf("expected prompt bounded near MaxPromptChars, got length %d", len(prompt))
	}
}

func TestBuildUserPromptIncludesKnownEntities(t *testing.T) {
	prompt := buildUserPrompt("Luffy sailed to Wano", []string{"Luffy", "Wano"})
	if !contains(prompt, "KNOWN ENTITIES") || !contains(prompt, "Luffy") {
		t.Fatalf("expected known entities section in prompt, got: %s", prompt)
	}
}

func contains(haystack, needle string) bool {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			return true
		}
	}
	return false
}

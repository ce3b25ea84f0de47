package extract

import (
	"context"
	"testing"
)

func TestExtractorRulesMode(t *testing.T) {
	e := NewExtractor(NewRulesExtractor(1), nil, nil)
	result, err := e.Run(context.Background(), ModeRules, "Luffy fought Kaido", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Relations) != 1 {
		t.Fatalf("expected one relation, got %+v", result)
	}
}

func TestExtractorAdaptiveReturnsRulesWhenFound(t *testing.T) {
	e := NewExtractor(NewRulesExtractor(1), nil, nil)
	result, err := e.Run(context.Background(), ModeAdaptive, "Luffy fought Kaido", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.BudgetLimited {
		t.Fatal("expected adaptive to return the rules result unmodified when rules found something")
	}
	if len(result.Relations) != 1 {
		t.Fatalf("expected one relation, got %+v", result)
	}
}

func TestExtractorAdaptiveFallsBackWithoutLLM(t *testing.T) {
	e := NewExtractor(NewRulesExtractor(1), nil, nil)
	result, err := e.Run(context.Background(), ModeAdaptive, "The ancient castle stood", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.BudgetLimited {
		t.Fatal("expected budget-limited fallback when rules found nothing and no LLM is wired")
	}
}

func TestExtractorLLMModeVetoedByBudget(t *testing.T) {
	e := NewExtractor(NewRulesExtractor(1), NewLLMExtractor("test-key", "claude-3-5-haiku-20241022"), denyAllBudget{})
	result, err := e.Run(context.Background(), ModeLLM, "Luffy fought Kaido", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.BudgetLimited {
		t.Fatal("expected LLM call vetoed by budget to fall back to RULES with BudgetLimited set")
	}
	if len(result.Relations) != 1 {
		t.Fatalf("expected RULES fallback to still find the relation, got %+v", result)
	}
}

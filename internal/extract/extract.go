// Package extract implements SPEC_FULL.md §4.D's extraction stage: turning
// raw episode text into entities, relations, and keywords via three
// interchangeable strategies (RULES, LLM, ADAPTIVE), plus the three-stage
// deduplicator, a standalone component that neither Extractor nor
// internal/contradiction calls.
//
// RULES mode ports the teacher's pkg/scanner pipeline (chunker, narrative
// matcher, resolver, discovery); LLM mode ports pkg/extraction's prompt and
// parser logic over github.com/anthropics/anthropic-sdk-go, since the
// teacher's own pkg/batch is restricted to syscall/js and cannot run
// outside a browser.
package extract

import "context"

// Mode selects which extraction strategy Extractor.Run uses.
type Mode int

const (
	ModeRules Mode = iota
	ModeLLM
	ModeAdaptive
)

// Extractor dispatches an episode's text through RULES, LLM, or ADAPTIVE
// extraction, per SPEC_FULL.md §4.D:
//
//	RULES    — always runs locally, no network, no budget check.
//	LLM      — one prompt per episode; the caller's BudgetGate may veto the
//	           call, in which case Extractor falls back to RULES and sets
//	           Result.BudgetLimited.
//	ADAPTIVE — run RULES first; if it found anything, return that result
//	           unmodified. Only if RULES found nothing does Extractor call
//	           LLM (itself still subject to the same budget veto).
type Extractor struct {
	rules  *RulesExtractor
	llm    *LLMExtractor
	budget BudgetGate
}

// NewExtractor builds an Extractor. llm may be nil, in which case ModeLLM
// and the LLM fallback leg of ModeAdaptive return the RULES result with
// Result.BudgetLimited set.
// budget may be nil, in which case LLM calls are never vetoed.
func NewExtractor(rules *RulesExtractor, llm *LLMExtractor, budget BudgetGate) *Extractor {
	return &Extractor{rules: rules, llm: llm, budget: budget}
}

// Run extracts entities/relations/keywords from text under the given mode.
// knownEntities primes the LLM prompt (ignored in RULES mode).
func (e *Extractor) Run(ctx context.Context, mode Mode, text string, knownEntities []string) (Result, error) {
	switch mode {
	case ModeRules:
		return e.rules.Scan(text), nil

	case ModeLLM:
		return e.runLLM(ctx, text, knownEntities)

	case ModeAdaptive:
		rulesResult := e.rules.Scan(text)
		if len(rulesResult.Entities) > 0 || len(rulesResult.Relations) > 0 {
			return rulesResult, nil
		}
		return e.runLLM(ctx, text, knownEntities)

	default:
		return e.rules.Scan(text), nil
	}
}

// runLLM calls the LLM extractor subject to the budget veto, falling back to
// RULES (with BudgetLimited set) on veto, on an LLM error, or when no LLM
// extractor is wired.
func (e *Extractor) runLLM(ctx context.Context, text string, knownEntities []string) (Result, error) {
	if e.llm == nil {
		result := e.rules.Scan(text)
		result.BudgetLimited = true
		return result, nil
	}

	if e.budget != nil && !e.budget.Allow("llm_extract", estimateExtractionTokens(text)) {
		result := e.rules.Scan(text)
		result.BudgetLimited = true
		return result, nil
	}

	result, err := e.llm.Extract(ctx, text, knownEntities)
	if err != nil {
		fallback := e.rules.Scan(text)
		fallback.BudgetLimited = true
		return fallback, nil
	}
	return result, nil
}

// estimateExtractionTokens is a rough token estimate for budget checks,
// consistent with the ~4-chars-per-token heuristic used throughout the
// context assembler.
func estimateExtractionTokens(text string) int {
	const charsPerToken = 4
	n := len(extractionSystemPrompt) + len(text)
	return n/charsPerToken + 1
}

// Package assemble implements SPEC_FULL.md §4.F's Context Assembler: the
// final stage that turns a query plus a Retriever's ranked ids into a
// single, token-budgeted prompt string. It is the only package that knows
// the id-prefix convention for *final output* dereferencing — internal/
// retrieve's own dereferenceText is a narrower, scoring-only exception
// documented in DESIGN.md §4.E.
package assemble

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/kittclouds/recall/internal/index"
	"github.com/kittclouds/recall/internal/model"
	"github.com/kittclouds/recall/internal/retrieve"
	"github.com/kittclouds/recall/internal/store"
)

// ConsolidationConfig tunes persistent-condition lifecycle management,
// mirroring internal/config.Config's CONTEXT_* keys exactly (SPEC_FULL.md
// §6): MaxPerType/MaxTotal cap how many conditions of each type (and in
// total) survive consolidation, DecayDays/DecayRate drive the exponential
// confidence decay, and MinConfidence prunes what decays below relevance.
type ConsolidationConfig struct {
	MaxPerType    int
	MaxTotal      int
	DecayDays     float64
	DecayRate     float64
	MinConfidence float64
}

// DefaultConsolidationConfig matches internal/config.Default()'s Context* values.
func DefaultConsolidationConfig() ConsolidationConfig {
	return ConsolidationConfig{
		MaxPerType:    3,
		MaxTotal:      20,
		DecayDays:     7,
		DecayRate:     0.1,
		MinConfidence: 0.2,
	}
}

// Config tunes one Assemble call. A zero or negative TokenBudget or
// RetrieveTopK falls back to DefaultConfig's value; TurnCount falls back only
// when negative, since zero means "no recent turns".
type Config struct {
	TurnCount   int
	TokenBudget int
	RetrieveTopK int
}

func DefaultConfig() Config {
	return Config{TurnCount: 10, TokenBudget: 2000, RetrieveTopK: 20}
}

// Assembler is scoped to exactly one (user_id, character_id) pair, matching
// store.Storer's own scoping (SPEC_FULL.md §4.B) — the engine facade holds
// one Assembler per active conversation, not one globally.
type Assembler struct {
	retriever *retrieve.Retriever
	store     store.Storer
	consol    ConsolidationConfig
	now       func() time.Time
}

// New builds an Assembler over r and st, applying consol's persistent-
// condition lifecycle rules.
func New(r *retrieve.Retriever, st store.Storer, consol ConsolidationConfig) *Assembler {
	return &Assembler{retriever: r, store: st, consol: consol, now: time.Now}
}

// Assemble runs SPEC_FULL.md §4.F's four-step algorithm and returns the
// finished prompt string. cfg may be nil, in which case DefaultConfig is used.
func (a *Assembler) Assemble(ctx context.Context, query string, cfg *Config) (string, error) {
	if cfg == nil {
		c := DefaultConfig()
		cfg = &c
	}
	// Negative means "unset, use the default"; an explicit zero (the
	// engine facade's includeRecent=false) legitimately means no recent
	// turns at all and must not be coerced back up.
	turnCount := cfg.TurnCount
	if turnCount < 0 {
		turnCount = DefaultConfig().TurnCount
	}
	tokenBudget := cfg.TokenBudget
	if tokenBudget <= 0 {
		tokenBudget = DefaultConfig().TokenBudget
	}
	topK := cfg.RetrieveTopK
	if topK <= 0 {
		topK = DefaultConfig().RetrieveTopK
	}

	rules, err := a.store.ListAbsoluteRules()
	if err != nil {
		return "", err
	}

	conditions, err := a.consolidatePersistentConditions()
	if err != nil {
		return "", err
	}

	keywords := index.Tokenize(query)
	entities := a.retriever.ScanEntities(query)
	retrieved, err := a.retriever.Retrieve(ctx, query, entities, keywords, topK, nil, nil, nil)
	if err != nil {
		return "", err
	}

	turns, err := a.store.ListEpisodes()
	if err != nil {
		return "", err
	}
	recent := lastN(turns, turnCount)

	picked := a.greedyFill(tokenBudget, rules, conditions, retrieved, recent)
	return renderSections(picked), nil
}

// pickedSections holds, per output section, the lines the greedy fill
// decided fit within budget. Section order here is the FILL priority
// (rules -> persistent conditions -> retrieved -> recent turns); the
// OUTPUT layout order (persistent_conditions, absolute_rules,
// retrieved_memory, recent_turns) is applied separately by renderSections,
// per SPEC_FULL.md §4.F's distinct fill-priority vs. layout-order wording.
type pickedSections struct {
	rules      []string
	conditions []string
	retrieved  []string
	recent     []string
}

// greedyFill walks rules, then persistent conditions, then retrieved
// memory, then recent turns — in that priority order — accumulating a
// token estimate and stopping the instant the next item would exceed
// tokenBudget (SPEC_FULL.md §4.F step 3).
func (a *Assembler) greedyFill(
	tokenBudget int,
	rules []*model.AbsoluteRule,
	conditions []*model.PersistentCondition,
	retrieved []index.Result,
	recent []*model.Episode,
) pickedSections {
	var picked pickedSections
	spent := 0

	tryAdd := func(text string) bool {
		cost := estimateTokens(text)
		if spent+cost > tokenBudget {
			return false
		}
		spent += cost
		return true
	}

	for _, rule := range rules {
		if !tryAdd(rule.Text) {
			return picked
		}
		picked.rules = append(picked.rules, rule.Text)
	}
	for _, c := range conditions {
		line := formatCondition(c)
		if !tryAdd(line) {
			return picked
		}
		picked.conditions = append(picked.conditions, line)
	}
	for _, res := range retrieved {
		text := a.retriever.DereferenceText(res.DocID)
		if text == "" {
			continue
		}
		if !tryAdd(text) {
			return picked
		}
		picked.retrieved = append(picked.retrieved, text)
	}
	for _, ep := range recent {
		line := fmt.Sprintf("[%s] %s", ep.Role, ep.Content)
		if !tryAdd(line) {
			return picked
		}
		picked.recent = append(picked.recent, line)
	}
	return picked
}

func formatCondition(c *model.PersistentCondition) string {
	return fmt.Sprintf("(%s, confidence %.2f) %s", c.ContextType, c.Confidence, c.Content)
}

// renderSections lays out the picked lines in the documented output order —
// persistent_conditions, absolute_rules, retrieved_memory, recent_turns —
// omitting any section with nothing picked.
func renderSections(p pickedSections) string {
	var b strings.Builder
	section := func(name string, lines []string) {
		if len(lines) == 0 {
			return
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "## %s\n", name)
		for _, line := range lines {
			b.WriteString(line)
			b.WriteString("\n")
		}
	}
	section("persistent_conditions", p.conditions)
	section("absolute_rules", p.rules)
	section("retrieved_memory", p.retrieved)
	section("recent_turns", p.recent)
	return b.String()
}

func lastN(episodes []*model.Episode, n int) []*model.Episode {
	if len(episodes) <= n {
		return episodes
	}
	return episodes[len(episodes)-n:]
}

// estimateTokens blends chars/2 for CJK runes (Han/Hiragana/Katakana/
// Hangul) and chars/4 for everything else, per rune — equivalent to
// SPEC_FULL.md §4.F's "mixed by the fraction of each present" description
// since each rune contributes its own weight to the same running total.
func estimateTokens(text string) int {
	var total float64
	for _, r := range text {
		if isCJK(r) {
			total += 0.5
		} else {
			total += 0.25
		}
	}
	if total < 0 {
		return 0
	}
	return int(total + 0.5)
}

func isCJK(r rune) bool {
	return unicode.Is(unicode.Han, r) ||
		unicode.Is(unicode.Hiragana, r) ||
		unicode.Is(unicode.Katakana, r) ||
		unicode.Is(unicode.Hangul, r)
}

// consolidatePersistentConditions applies SPEC_FULL.md §4.F step 4: decay
// every condition's confidence by elapsed days since last_used, prune below
// MinConfidence, then cap at MaxPerType per type (dropping the lowest-
// confidence survivors first) and MaxTotal overall.
func (a *Assembler) consolidatePersistentConditions() ([]*model.PersistentCondition, error) {
	all, err := a.store.ListPersistentConditions()
	if err != nil {
		return nil, err
	}
	now := a.now()

	var survivors []*model.PersistentCondition
	for _, c := range all {
		decayed := *c
		decayed.Confidence = decayConfidence(c.Confidence, c.LastUsed, now, a.consol.DecayDays, a.consol.DecayRate)
		if decayed.Confidence < a.consol.MinConfidence {
			continue
		}
		survivors = append(survivors, &decayed)
	}

	byType := make(map[model.ContextType][]*model.PersistentCondition)
	for _, c := range survivors {
		byType[c.ContextType] = append(byType[c.ContextType], c)
	}

	maxPerType := a.consol.MaxPerType
	var capped []*model.PersistentCondition
	for _, group := range byType {
		sort.Slice(group, func(i, j int) bool { return group[i].Confidence > group[j].Confidence })
		if maxPerType > 0 && len(group) > maxPerType {
			group = group[:maxPerType]
		}
		capped = append(capped, group...)
	}

	sort.Slice(capped, func(i, j int) bool { return capped[i].Confidence > capped[j].Confidence })
	if a.consol.MaxTotal > 0 && len(capped) > a.consol.MaxTotal {
		capped = capped[:a.consol.MaxTotal]
	}
	return capped, nil
}

// decayConfidence applies c <- c*(1-r) once per full decay_days elapsed
// since last_used, per SPEC_FULL.md §9's instruction to keep the
// multiplicative form (rather than the original's per-call linear check).
func decayConfidence(confidence float64, lastUsed, now time.Time, decayDays, decayRate float64) float64 {
	if decayDays <= 0 {
		return confidence
	}
	elapsedDays := now.Sub(lastUsed).Hours() / 24
	if elapsedDays <= 0 {
		return confidence
	}
	periods := elapsedDays / decayDays
	decayed := confidence
	for p := 1.0; p <= periods; p++ {
		decayed *= 1 - decayRate
	}
	return decayed
}

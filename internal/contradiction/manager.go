// Package contradiction implements the contradiction manager (SPEC_FULL.md
// §4.C): detection, confidence scoring, resolution and durable
// pending/resolved bookkeeping for conflicting TemporalFacts. Names and
// structure grounded directly on
// original_source/recall/graph/contradiction_manager.py's
// DetectionStrategy/ContradictionManager — the distillation dropped the
// Python implementation but kept the module's contract in spec.md,
// supplemented here per SPEC_FULL.md's instruction to follow the original
// where the spec is silent on exact detail.
package contradiction

import (
	"context"
	"sync"
	"time"

	"github.com/kittclouds/recall/internal/errs"
	"github.com/kittclouds/recall/internal/idgen"
	"github.com/kittclouds/recall/internal/model"
	"github.com/kittclouds/recall/internal/store"
)

// DetectionStrategy selects which detection methods run, mirroring the
// original's DetectionStrategy enum (RULE/LLM/MIXED/AUTO).
type DetectionStrategy string

const (
	StrategyRule  DetectionStrategy = "rule"
	StrategyLLM   DetectionStrategy = "llm"
	StrategyMixed DetectionStrategy = "mixed"
	StrategyAuto  DetectionStrategy = "auto"
)

// LLMVerdict is the parsed result of an LLM-based contradiction check,
// matching the original's {"has_contradiction", "type", "confidence",
// "reason"} JSON schema.
type LLMVerdict struct {
	HasContradiction bool
	Type             model.ContradictionType
	Confidence       float64
	Reason           string
}

// LLMDetector is implemented by the module's LLM client (Task 9) for the
// LLM/MIXED/AUTO detection strategies.
type LLMDetector interface {
	DetectContradiction(ctx context.Context, old, new *model.TemporalFact, episodeContext string) (*LLMVerdict, error)
}

// Rule is a pluggable detection rule, matching the original's
// Callable[[TemporalFact, TemporalFact], Optional[ContradictionType]].
type Rule func(old, new *model.TemporalFact) (model.ContradictionType, bool)

// exclusivePredicatePairs mirrors the original's small domain lexicon of
// mutually-exclusive predicates for the LOGICAL rule.
var exclusivePredicatePairs = [][2]string{
	{"LOVES", "HATES"},
	{"IS_FRIEND_OF", "IS_ENEMY_OF"},
	{"ALIVE", "DEAD"},
	{"MARRIED_TO", "DIVORCED_FROM"},
}

// ResolutionResult reports the outcome of Resolve.
type ResolutionResult struct {
	Success bool
	Action  model.ResolutionStrategy
	OldFactID string
	NewFactID string
	Message   string
}

// Manager detects and resolves contradictions between TemporalFacts,
// persisting pending/resolved records via store.Storer.
type Manager struct {
	mu sync.Mutex

	store             store.Storer
	llm               LLMDetector
	strategy          DetectionStrategy
	autoResolve       bool
	defaultResolution model.ResolutionStrategy
	rules             []Rule
}

// NewManager constructs a Manager over s, registering the default rule set.
func NewManager(s store.Storer, llm LLMDetector, strategy DetectionStrategy, autoResolve bool, defaultResolution model.ResolutionStrategy) *Manager {
	m := &Manager{
		store:             s,
		llm:               llm,
		strategy:          strategy,
		autoResolve:       autoResolve,
		defaultResolution: defaultResolution,
	}
	m.registerDefaultRules()
	return m
}

// AddRule registers a custom detection rule, appended after the defaults.
func (m *Manager) AddRule(r Rule) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules = append(m.rules, r)
}

func (m *Manager) registerDefaultRules() {
	m.rules = []Rule{ruleDirectConflict, ruleTemporalConflict, ruleExclusivePredicates}
}

func ruleDirectConflict(old, newFact *model.TemporalFact) (model.ContradictionType, bool) {
	if old.Subject == newFact.Subject && old.Predicate == newFact.Predicate && old.Object != newFact.Object {
		if timeOverlaps(old, newFact) {
			return model.ContradictionDirect, true
		}
	}
	return "", false
}

func ruleTemporalConflict(old, newFact *model.TemporalFact) (model.ContradictionType, bool) {
	if old.Subject == newFact.Subject && old.Predicate == newFact.Predicate && old.Object == newFact.Object {
		if timeConflicts(old, newFact) {
			return model.ContradictionTemporal, true
		}
	}
	return "", false
}

func ruleExclusivePredicates(old, newFact *model.TemporalFact) (model.ContradictionType, bool) {
	if old.Subject != newFact.Subject || old.Object != newFact.Object {
		return "", false
	}
	for _, pair := range exclusivePredicatePairs {
		if (old.Predicate == pair[0] && newFact.Predicate == pair[1]) ||
			(old.Predicate == pair[1] && newFact.Predicate == pair[0]) {
			if timeOverlaps(old, newFact) {
				return model.ContradictionLogical, true
			}
		}
	}
	return "", false
}

// timeOverlaps reports whether two facts' validity windows overlap, open
// ends standing in for -inf/+inf.
func timeOverlaps(f1, f2 *model.TemporalFact) bool {
	start1, end1 := windowOf(f1)
	start2, end2 := windowOf(f2)
	return !(end1.Before(start2) || end2.Before(start1))
}

func windowOf(f *model.TemporalFact) (time.Time, time.Time) {
	start := time.Time{}
	if f.ValidFrom != nil {
		start = *f.ValidFrom
	}
	end := time.Unix(1<<62, 0)
	if f.ValidUntil != nil {
		end = *f.ValidUntil
	}
	return start, end
}

// timeConflicts mirrors the original's conservative heuristic: only flags a
// conflict when exactly one of the two facts carries an explicit
// valid_from (one open-ended, one bounded, same subject+predicate+object).
func timeConflicts(f1, f2 *model.TemporalFact) bool {
	if f1.ValidFrom == nil && f2.ValidFrom == nil {
		return false
	}
	return (f1.ValidFrom != nil) != (f2.ValidFrom != nil)
}

// DetectContradictions checks candidate against every active fact in
// existing, returning every detected contradiction with a newly-assigned id
// and persisting each as a pending record. Implements
// graph.ContradictionDetector.
func (m *Manager) DetectContradictions(existing []*model.TemporalFact, candidate *model.TemporalFact) ([]*model.Contradiction, error) {
	return m.Detect(context.Background(), candidate, existing, "")
}

// Detect is DetectContradictions with an optional episode-text context
// (used by the LLM strategies) and explicit cancellation.
func (m *Manager) Detect(ctx context.Context, candidate *model.TemporalFact, existing []*model.TemporalFact, episodeContext string) ([]*model.Contradiction, error) {
	var found []*model.Contradiction
	for _, old := range existing {
		if old.ID == candidate.ID || !old.Active() {
			continue
		}
		c, err := m.detectSingle(ctx, old, candidate, episodeContext)
		if err != nil {
			return nil, err
		}
		if c == nil {
			continue
		}
		c.ID = idgen.Prefixed("contra")
		c.DetectedAt = time.Now()
		found = append(found, c)
		if err := m.store.SavePendingContradiction(c); err != nil {
			return nil, errs.Wrap(errs.Fatal, "persisting pending contradiction", err)
		}
	}
	return found, nil
}

func (m *Manager) detectSingle(ctx context.Context, old, newFact *model.TemporalFact, episodeContext string) (*model.Contradiction, error) {
	switch m.strategy {
	case StrategyRule:
		return m.detectByRules(old, newFact), nil

	case StrategyLLM:
		if m.llm == nil {
			return nil, nil
		}
		return m.detectByLLM(ctx, old, newFact, episodeContext)

	case StrategyMixed:
		ruleResult := m.detectByRules(old, newFact)
		if ruleResult == nil {
			return nil, nil
		}
		if m.llm != nil {
			llmResult, err := m.detectByLLM(ctx, old, newFact, episodeContext)
			if err != nil {
				return nil, err
			}
			if llmResult != nil && llmResult.Confidence > ruleResult.Confidence {
				ruleResult.Confidence = llmResult.Confidence
			}
		}
		return ruleResult, nil

	case StrategyAuto:
		ruleResult := m.detectByRules(old, newFact)
		if ruleResult != nil {
			return ruleResult, nil
		}
		if m.llm != nil && isComplexCase(old, newFact) {
			return m.detectByLLM(ctx, old, newFact, episodeContext)
		}
		return nil, nil

	default:
		return nil, nil
	}
}

func (m *Manager) detectByRules(old, newFact *model.TemporalFact) *model.Contradiction {
	for _, rule := range m.rules {
		kind, hit := rule(old, newFact)
		if !hit {
			continue
		}
		return &model.Contradiction{
			OldFactID:  old.ID,
			NewFactID:  newFact.ID,
			Type:       kind,
			Confidence: computeConfidence(old, newFact, kind),
		}
	}
	return nil
}

func (m *Manager) detectByLLM(ctx context.Context, old, newFact *model.TemporalFact, episodeContext string) (*model.Contradiction, error) {
	verdict, err := m.llm.DetectContradiction(ctx, old, newFact, episodeContext)
	if err != nil {
		return nil, errs.Wrap(errs.UpstreamTimeout, "LLM contradiction detection failed", err)
	}
	if verdict == nil || !verdict.HasContradiction {
		return nil, nil
	}
	return &model.Contradiction{
		OldFactID:  old.ID,
		NewFactID:  newFact.ID,
		Type:       verdict.Type,
		Confidence: verdict.Confidence,
	}, nil
}

// isComplexCase mirrors the original's heuristic for escalating AUTO
// strategy to the LLM: long fact text, or differing predicates between
// facts that otherwise share subject+object (possible semantic relation).
func isComplexCase(old, newFact *model.TemporalFact) bool {
	if len(old.Fact) > 100 || len(newFact.Fact) > 100 {
		return true
	}
	if old.Predicate != newFact.Predicate && old.Subject == newFact.Subject && old.Object == newFact.Object {
		return true
	}
	return false
}

// computeConfidence blends a per-type base confidence with the average
// confidence of the two facts (70/30 split), per SPEC_FULL.md §4.C.
func computeConfidence(old, newFact *model.TemporalFact, kind model.ContradictionType) float64 {
	base := 0.5
	switch kind {
	case model.ContradictionDirect:
		base = 0.8
	case model.ContradictionLogical:
		base = 0.7
	case model.ContradictionTemporal:
		base = 0.6
	}
	avgFactConfidence := (old.Confidence + newFact.Confidence) / 2
	conf := base*0.7 + avgFactConfidence*0.3
	if conf > 1 {
		conf = 1
	}
	if conf < 0 {
		conf = 0
	}
	return conf
}

// Resolve applies strategy to contradiction, mutating the affected facts,
// moving the record from pending to resolved, and returning the outcome. A
// second Resolve call against an already-resolved contradiction with the
// same strategy is a no-op (idempotence invariant, SPEC_FULL.md §8.3).
func (m *Manager) Resolve(contradictionID string, strategy model.ResolutionStrategy) (*ResolutionResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, err := m.store.GetContradiction(contradictionID)
	if err != nil {
		return nil, errs.NotFoundf("contradiction %q", contradictionID)
	}
	if c.Resolved {
		if c.Resolution != nil && *c.Resolution == strategy {
			return &ResolutionResult{
				Success:   true,
				Action:    strategy,
				OldFactID: c.OldFactID,
				NewFactID: c.NewFactID,
				Message:   "already resolved with this strategy (no-op)",
			}, nil
		}
		return nil, errs.Conflictf("contradiction %q already resolved with a different strategy", contradictionID)
	}

	oldFact, err := m.store.GetFact(c.OldFactID)
	if err != nil {
		return nil, errs.Wrap(errs.Fatal, "loading old fact for resolution", err)
	}
	newFact, err := m.store.GetFact(c.NewFactID)
	if err != nil {
		return nil, errs.Wrap(errs.Fatal, "loading new fact for resolution", err)
	}

	result := &ResolutionResult{Success: true, Action: strategy, OldFactID: c.OldFactID, NewFactID: c.NewFactID}
	now := time.Now()

	switch strategy {
	case model.ResolveSupersede:
		// superseded_at must equal some later fact's known_at (SPEC_FULL.md
		// §3) — use newFact.KnownAt, not the resolution-time now, since
		// Resolve runs strictly after the new fact's AddEdge call and would
		// otherwise always land after newFact.KnownAt.
		until := newFact.KnownAt
		if newFact.ValidFrom != nil {
			until = *newFact.ValidFrom
		}
		oldFact.ValidUntil = &until
		oldFact.SupersededAt = &newFact.KnownAt
		result.Message = "old fact superseded"

	case model.ResolveCoexist:
		result.Message = "both facts coexist"

	case model.ResolveReject:
		newFact.ExpiredAt = &now
		result.Success = false
		result.Message = "new fact rejected"

	case model.ResolveManual:
		result.Message = "awaiting manual resolution"
	default:
		return nil, errs.Conflictf("unknown resolution strategy %q", strategy)
	}

	if strategy != model.ResolveManual {
		if err := m.store.UpsertFact(oldFact); err != nil {
			return nil, errs.Wrap(errs.Fatal, "persisting resolved old fact", err)
		}
		if err := m.store.UpsertFact(newFact); err != nil {
			return nil, errs.Wrap(errs.Fatal, "persisting resolved new fact", err)
		}

		c.Resolved = true
		c.ResolvedAt = &now
		c.Resolution = &strategy
		if err := m.store.SaveResolvedContradiction(c); err != nil {
			return nil, errs.Wrap(errs.Fatal, "persisting resolved contradiction", err)
		}
		if err := m.store.DeletePendingContradiction(c.ID); err != nil {
			return nil, errs.Wrap(errs.Fatal, "removing resolved contradiction from pending", err)
		}
	}

	return result, nil
}

// GetPending returns every unresolved contradiction.
func (m *Manager) GetPending() ([]*model.Contradiction, error) {
	return m.store.ListPendingContradictions()
}

// GetResolved returns up to limit of the most recently resolved
// contradictions.
func (m *Manager) GetResolved(limit int) ([]*model.Contradiction, error) {
	return m.store.ListResolvedContradictions(limit)
}

// GetContradiction looks up a contradiction by id, pending or resolved.
func (m *Manager) GetContradiction(id string) (*model.Contradiction, error) {
	return m.store.GetContradiction(id)
}

// Stats mirrors the original's get_stats()/stats() API-compatible pair.
type Stats struct {
	PendingCount      int
	ResolvedCount     int
	Strategy          DetectionStrategy
	AutoResolve       bool
	DefaultResolution model.ResolutionStrategy
	RulesCount        int
	LLMEnabled        bool
}

func (m *Manager) Stats() (Stats, error) {
	pending, err := m.store.ListPendingContradictions()
	if err != nil {
		return Stats{}, err
	}
	resolved, err := m.store.ListResolvedContradictions(0)
	if err != nil {
		return Stats{}, err
	}
	return Stats{
		PendingCount:      len(pending),
		ResolvedCount:     len(resolved),
		Strategy:          m.strategy,
		AutoResolve:       m.autoResolve,
		DefaultResolution: m.defaultResolution,
		RulesCount:        len(m.rules),
		LLMEnabled:        m.llm != nil,
	}, nil
}

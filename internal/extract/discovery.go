package extract

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/orsinium-labs/stopwords"
)

// CandidateStatus tracks a discovery candidate's promotion lifecycle, ported
// from the teacher's pkg/scanner/discovery.CandidateStatus.
type CandidateStatus int

const (
	StatusWatching CandidateStatus = iota
	StatusPromoted
	StatusIgnored
)

// CandidateStats tracks observation counts and inferred kind for one token.
type CandidateStats struct {
	Count        int
	Status       CandidateStatus
	InferredKind *EntityKind
	Display      string
}

var nonWordRe = regexp.MustCompile(`[^\p{L}\p{N}\s]+`)

// Canonicalize normalizes raw text into a comparison key plus a display
// form, and reports whether it's non-empty after normalization. Referenced
// by the teacher's discovery/registry.go (Canonicalize/CanonicalToken) but
// never defined anywhere in the pack — built here to the exact call shape.
func Canonicalize(raw string) (key CanonicalToken, display string, valid bool) {
	display = strings.TrimSpace(raw)
	if display == "" {
		return "", "", false
	}
	stripped := nonWordRe.ReplaceAllString(display, "")
	lower := strings.ToLower(strings.TrimSpace(stripped))
	if lower == "" {
		return "", "", false
	}
	return CanonicalToken(lower), display, true
}

// CanonicalToken is a normalized lookup key for a discovery candidate.
type CanonicalToken string

// CandidateRegistry tracks potential new entities by occurrence count,
// promoting a token once it crosses PromotionThreshold mentions. Ported
// from discovery.CandidateRegistry.
type CandidateRegistry struct {
	Stats              map[CanonicalToken]*CandidateStats
	PromotionThreshold int
	StopWords          map[string]bool
	stopwordChecker    *stopwords.Stopwords
}

// NewRegistry creates a registry with the given promotion threshold.
func NewRegistry(threshold int) *CandidateRegistry {
	return &CandidateRegistry{
		Stats:              make(map[CanonicalToken]*CandidateStats),
		PromotionThreshold: threshold,
		StopWords:          make(map[string]bool),
		stopwordChecker:    stopwords.MustGet("en"),
	}
}

// AddStopWord marks a word to always ignore.
func (r *CandidateRegistry) AddStopWord(word string) {
	r.StopWords[strings.ToLower(word)] = true
}

// AddToken processes one token occurrence. Returns true if this call just
// promoted it.
func (r *CandidateRegistry) AddToken(raw string) bool {
	key, display, valid := Canonicalize(raw)
	if !valid {
		return false
	}
	if r.StopWords[string(key)] {
		return false
	}
	if r.stopwordChecker != nil && r.stopwordChecker.Contains(string(key)) {
		return false
	}

	stats, exists := r.Stats[key]
	if !exists {
		stats = &CandidateStats{Status: StatusWatching, Display: display}
		r.Stats[key] = stats
	}

	if stats.Status != StatusWatching {
		stats.Count++
		return false
	}

	stats.Count++
	if stats.Count >= r.PromotionThreshold {
		stats.Status = StatusPromoted
		return true
	}
	return false
}

// GetStatus reports the current status of raw, StatusWatching if unseen.
func (r *CandidateRegistry) GetStatus(raw string) CandidateStatus {
	key, _, valid := Canonicalize(raw)
	if !valid {
		return StatusIgnored
	}
	if s, ok := r.Stats[key]; ok {
		return s.Status
	}
	return StatusWatching
}

// ProposeInference sets a token's inferred kind if it doesn't have one yet.
func (r *CandidateRegistry) ProposeInference(raw string, kind EntityKind) {
	key, _, valid := Canonicalize(raw)
	if !valid {
		return
	}
	if stats, ok := r.Stats[key]; ok && stats.InferredKind == nil {
		k := kind
		stats.InferredKind = &k
	}
}

// GetStats returns the tracked stats for raw, or nil if unseen.
func (r *CandidateRegistry) GetStats(raw string) *CandidateStats {
	key, _, _ := Canonicalize(raw)
	return r.Stats[key]
}

// RelationalScanner infers a likely entity kind for an unseen token based on
// the narrative event linking it to a known-kind source, ported from
// discovery.RelationalScanner/inference.go.
type RelationalScanner struct{}

// NewRelationalScanner creates a scanner with no mutable state.
func NewRelationalScanner() *RelationalScanner { return &RelationalScanner{} }

// InferTarget guesses the object's kind from the subject's kind and the
// narrative event class connecting them.
func (s *RelationalScanner) InferTarget(sourceKind EntityKind, event EventClass) EntityKind {
	if sourceKind == KindCharacter {
		switch event {
		case EventBattle, EventDuel, EventDeath:
			return KindCharacter
		case EventMeet, EventDialogue, EventBetrayal, EventRescue, EventMarriage, EventPromise,
			EventThreat, EventAccusation:
			return KindCharacter
		case EventTravel:
			return KindLocation
		case EventAcquire, EventTheft:
			return KindItem
		case EventCreate:
			return KindItem
		}
	}
	if sourceKind == KindFaction || sourceKind == KindOrganization {
		switch event {
		case EventBattle:
			return KindFaction
		case EventNegotiate:
			return KindFaction
		}
	}
	return KindOther
}

// DiscoveryEngine orchestrates new-entity discovery: observing tokens,
// inferring kinds across narrative relations, and the heuristic
// "known-source verb unknown-target" scan pattern. Ported from
// discovery.DiscoveryEngine.
type DiscoveryEngine struct {
	Registry *CandidateRegistry
	Scanner  *RelationalScanner
	Matcher  *NarrativeMatcher
}

// NewDiscoveryEngine creates an engine with the given promotion threshold.
func NewDiscoveryEngine(threshold int, matcher *NarrativeMatcher) *DiscoveryEngine {
	return &DiscoveryEngine{
		Registry: NewRegistry(threshold),
		Scanner:  NewRelationalScanner(),
		Matcher:  matcher,
	}
}

// ObserveToken records a token occurrence.
func (e *DiscoveryEngine) ObserveToken(token string) {
	e.Registry.AddToken(token)
}

// ObserveRelation records a verb-linked relation and proposes a kind
// inference for the target token.
func (e *DiscoveryEngine) ObserveRelation(sourceKind EntityKind, verbMatch *VerbMatch, targetToken string) {
	inferred := e.Scanner.InferTarget(sourceKind, verbMatch.EventClass)
	if inferred != KindOther {
		e.Registry.ProposeInference(targetToken, inferred)
	}
}

// ScanText is a whitespace-token heuristic scanner ("the virus"): for every
// (known-promoted-source, verb, capitalized-target) triple, it observes and
// kind-infers the target.
func (e *DiscoveryEngine) ScanText(text string) {
	tokens := strings.Fields(text)
	if len(tokens) < 3 {
		return
	}

	for i := 0; i < len(tokens)-2; i++ {
		sourceTok, verbTok, targetTok := tokens[i], tokens[i+1], tokens[i+2]

		sourceStats := e.Registry.GetStats(sourceTok)
		if sourceStats == nil || sourceStats.Status != StatusPromoted || sourceStats.InferredKind == nil {
			continue
		}
		if !isCapitalizedWord(targetTok) {
			continue
		}
		verbMatch := e.Matcher.Lookup(verbTok)
		if verbMatch == nil {
			continue
		}

		e.Registry.AddToken(targetTok)
		e.ObserveRelation(*sourceStats.InferredKind, verbMatch, targetTok)
	}
}

func isCapitalizedWord(s string) bool {
	if s == "" {
		return false
	}
	return unicode.IsUpper(rune(s[0]))
}

package extract

import "strings"

// Entity is one entity surfaced by extraction, RULES or LLM mode alike.
type Entity struct {
	Name       string
	Kind       EntityKind
	Span       TextRange
	Aliases    []string
	Confidence float64
}

// Relation is one subject-predicate-object fact surfaced by extraction.
type Relation struct {
	Subject        string
	Predicate      string
	Object         string
	Fact           string
	SourceSentence string
	Confidence     float64
}

// Keyword is one token's occurrence count within a scanned episode.
type Keyword struct {
	Token string
	Count int
}

// Result is the unified output of one extraction pass, regardless of mode.
type Result struct {
	Entities      []Entity
	Relations     []Relation
	Keywords      []Keyword
	BudgetLimited bool // set when an LLM call was vetoed, failed or had no LLM wired, and RULES ran instead
}

// RulesExtractor implements SPEC_FULL.md §4.D's RULES mode: pure-local
// regex/gazetteer/punctuation-delimited noun-phrase extraction. Ported from
// the teacher's pkg/scanner/conductor.Conductor.Scan, minus the syntax
// scanner and implicit-matcher dictionary stages (pkg/scanner/syntax and the
// Aho-Corasick gazetteer are optional pre-passes in the teacher — internal/
// index's own entity index already covers gazetteer-style lookup, so this
// extractor is the chunker/narrative/resolver/discovery core of the
// pipeline without duplicating that concern).
type RulesExtractor struct {
	chunker   *Chunker
	matcher   *NarrativeMatcher
	resolver  *Resolver
	discovery *DiscoveryEngine
}

// NewRulesExtractor builds a RulesExtractor with a fresh pipeline. threshold
// is the discovery promotion threshold (conductor.go uses 2 as a demo
// value).
func NewRulesExtractor(threshold int) *RulesExtractor {
	matcher := NewNarrativeMatcher()
	// Memory-episode verbs the ported narrative lexicon has no entry for
	// (SPEC_FULL.md §4.C's "lives in" / "worked at" worked examples).
	// Registered through the overlay, not the static table, so the ported
	// verbEntries reproduction in events.go stays untouched.
	matcher.AddVerb("live", EventResidence, RelLivesIn, Transitive)
	matcher.AddVerb("lives", EventResidence, RelLivesIn, Transitive)
	matcher.AddVerb("worked", EventEmployment, RelWorkedAt, Transitive)
	return &RulesExtractor{
		chunker:   New(),
		matcher:   matcher,
		resolver:  NewResolver(),
		discovery: NewDiscoveryEngine(threshold, matcher),
	}
}

// SeedEntity pre-registers a known entity with both the resolver (for
// coreference) and the discovery registry (as an already-promoted source),
// mirroring conductor.go's registerExplicitEntities/SeedDiscovery.
func (e *RulesExtractor) SeedEntity(name string, kind EntityKind, aliases []string) {
	e.resolver.RegisterEntity(EntityMetadata{ID: name, Name: name, Aliases: aliases, Kind: string(kind)})
	e.resolver.ObserveMention(name)
	e.discovery.Registry.AddToken(name)
	e.discovery.Registry.ProposeInference(name, kind)
	if stats := e.discovery.Registry.GetStats(name); stats != nil {
		stats.Status = StatusPromoted
	}
}

// Scan runs the full RULES pipeline over text: chunk, harvest candidate
// entities, match verb phrases against the narrative lexicon to produce
// relations, and resolve pronoun/alias references. Ported from
// conductor.Conductor.Scan.
func (e *RulesExtractor) Scan(text string) Result {
	chunkResult := e.chunker.Chunk(text)

	for _, chunk := range chunkResult.Chunks {
		if chunk.Kind != NounPhrase {
			continue
		}
		head := chunk.HeadText(text)
		if capitalized(head) {
			e.discovery.ObserveToken(head)
		}
	}

	var relations []Relation
	seenEntities := make(map[string]Entity)

	for i, chunk := range chunkResult.Chunks {
		if chunk.Kind != VerbPhrase {
			continue
		}
		headVerb := chunk.HeadText(text)
		match := e.matcher.Lookup(headVerb)
		if match == nil {
			continue
		}

		subjChunk := findPrevNP(chunkResult.Chunks, i)
		objChunk := findNextNP(chunkResult.Chunks, i)

		subjText, objText := "", ""
		if subjChunk != nil {
			subjText = subjChunk.HeadText(text)
		}
		if objChunk != nil {
			objText = objChunk.HeadText(text)
		}
		if subjText == "" || objText == "" {
			continue
		}

		if capitalized(subjText) {
			registerCandidate(seenEntities, subjText, *subjChunk, e.discovery)
		}
		if capitalized(objText) {
			registerCandidate(seenEntities, objText, *objChunk, e.discovery)

			if stats := e.discovery.Registry.GetStats(subjText); stats != nil &&
				stats.Status == StatusPromoted && stats.InferredKind != nil {
				e.discovery.ObserveRelation(*stats.InferredKind, match, objText)
			}
		}

		subjID := e.resolver.Resolve(subjText)
		if subjID == "" {
			subjID = subjText
		}
		objID := e.resolver.Resolve(objText)
		if objID == "" {
			objID = objText
		}

		relations = append(relations, Relation{
			Subject:        subjID,
			Predicate:      relationName(match.RelationType),
			Object:         objID,
			Fact:           subjText + " " + headVerb + " " + objText,
			SourceSentence: text,
			Confidence:     0.5,
		})
	}

	entities := make([]Entity, 0, len(seenEntities))
	for _, ent := range seenEntities {
		entities = append(entities, ent)
	}

	return Result{
		Entities:  entities,
		Relations: relations,
		Keywords:  keywordCounts(chunkResult),
	}
}

func registerCandidate(seen map[string]Entity, name string, chunk Chunk, disc *DiscoveryEngine) {
	if _, ok := seen[name]; ok {
		return
	}
	kind := KindOther
	if stats := disc.Registry.GetStats(name); stats != nil && stats.InferredKind != nil {
		kind = *stats.InferredKind
	}
	seen[name] = Entity{Name: name, Kind: kind, Span: chunk.Range, Confidence: 0.5}
}

// findPrevNP finds the nearest noun-phrase chunk before index i.
func findPrevNP(chunks []Chunk, i int) *Chunk {
	for j := i - 1; j >= 0; j-- {
		if chunks[j].Kind == NounPhrase {
			return &chunks[j]
		}
	}
	return nil
}

// findNextNP finds the nearest noun-phrase chunk after index i.
func findNextNP(chunks []Chunk, i int) *Chunk {
	for j := i + 1; j < len(chunks); j++ {
		if chunks[j].Kind == NounPhrase {
			return &chunks[j]
		}
	}
	return nil
}

func relationName(r RelationType) string {
	names := map[RelationType]string{
		RelAttacks: "ATTACKS", RelFights: "FIGHTS", RelDefeats: "DEFEATS", RelKills: "KILLS",
		RelArrives: "ARRIVES", RelDeparts: "DEPARTS", RelTravels: "TRAVELS", RelConceals: "CONCEALS",
		RelDiscovers: "DISCOVERS", RelFinds: "FINDS", RelDeceives: "DECEIVES", RelReveals: "REVEALS",
		RelIs: "IS", RelBecomes: "BECOMES", RelObserves: "OBSERVES", RelGives: "GIVES",
		RelOwns: "OWNS", RelSteals: "STEALS", RelTakes: "TAKES", RelCauses: "CAUSES",
		RelEnables: "ENABLES", RelPrevents: "PREVENTS", RelAccuses: "ACCUSES", RelSpeaksTo: "SPEAKS_TO",
		RelInteracts: "INTERACTS", RelMentions: "MENTIONS", RelPromises: "PROMISES", RelThreatens: "THREATENS",
		RelBetrays: "BETRAYS", RelServes: "SERVES", RelSaves: "SAVES", RelCreates: "CREATES",
		RelDestroys: "DESTROYS", RelRules: "RULES", RelAllies: "ALLIES", RelLoves: "LOVES", RelHates: "HATES",
		RelLivesIn: "LIVES_IN", RelWorkedAt: "WORKED_AT",
	}
	if n, ok := names[r]; ok {
		return n
	}
	return "RELATES_TO"
}

// keywordCounts builds a token multiset over alphabetic content tokens,
// skipping punctuation and closed-class words (determiners, prepositions,
// auxiliaries, conjunctions, pronouns).
func keywordCounts(result ChunkResult) []Keyword {
	counts := make(map[string]int)
	for _, tok := range result.Tokens {
		if tok.POS == Punctuation || tok.POS == Determiner || tok.POS == Preposition ||
			tok.POS == Auxiliary || tok.POS == Conjunction || tok.POS == Pronoun ||
			tok.POS == RelativePronoun {
			continue
		}
		lower := strings.ToLower(tok.Text)
		if lower == "" {
			continue
		}
		counts[lower]++
	}
	keywords := make([]Keyword, 0, len(counts))
	for tok, count := range counts {
		keywords = append(keywords, Keyword{Token: tok, Count: count})
	}
	return keywords
}

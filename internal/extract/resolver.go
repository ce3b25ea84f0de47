package extract

import (
	"strings"

	"github.com/kittclouds/recall/internal/bm25"
)

// Gender drives pronoun-to-entity matching, ported from the teacher's
// pkg/scanner/resolver.Gender.
type Gender int

const (
	GenderUnknown Gender = iota
	GenderMale
	GenderFemale
	GenderNeutral
	GenderPlural
)

// EntityMetadata is a known entity registered with the Resolver.
type EntityMetadata struct {
	ID      string
	Name    string
	Gender  Gender
	Aliases []string
	Kind    string
}

// NarrativeContext tracks recency of mention for pronoun resolution, ported
// from resolver.NarrativeContext.
type NarrativeContext struct {
	history    []string
	registry   map[string]EntityMetadata
	maxHistory int
}

// NewNarrativeContext creates an empty context with a 10-entry recency window.
func NewNarrativeContext() *NarrativeContext {
	return &NarrativeContext{
		history:    make([]string, 0),
		registry:   make(map[string]EntityMetadata),
		maxHistory: 10,
	}
}

// Register adds an entity to the known registry.
func (nc *NarrativeContext) Register(e EntityMetadata) {
	nc.registry[e.ID] = e
}

// PushMention moves an entity to the front of the recency history.
func (nc *NarrativeContext) PushMention(entityID string) {
	for i, id := range nc.history {
		if id == entityID {
			nc.history = append(nc.history[:i], nc.history[i+1:]...)
			break
		}
	}
	nc.history = append([]string{entityID}, nc.history...)
	if len(nc.history) > nc.maxHistory {
		nc.history = nc.history[:nc.maxHistory]
	}
}

// FindMostRecent returns the most recently mentioned entity whose gender is
// compatible with the pronoun's.
func (nc *NarrativeContext) FindMostRecent(gender Gender) string {
	for _, id := range nc.history {
		if meta, ok := nc.registry[id]; ok {
			if gendersCompatible(meta.Gender, gender) {
				return id
			}
		}
	}
	return ""
}

func gendersCompatible(entityGender, pronounGender Gender) bool {
	if entityGender == pronounGender {
		return true
	}
	if pronounGender == GenderUnknown || entityGender == GenderUnknown {
		return true
	}
	if pronounGender == GenderPlural {
		return entityGender == GenderPlural || entityGender == GenderNeutral
	}
	return false
}

// Resolver resolves pronouns and aliases to entity IDs, ported from the
// teacher's pkg/scanner/resolver.Resolver. The teacher backs fuzzy alias
// matching with pkg/resorank (confirmed absent from the pack — see
// DESIGN.md); this reuses internal/bm25, the same first-party scorer that
// pkg/resorank was already grounded on for the index family.
type Resolver struct {
	Context *NarrativeContext
	scorer  *bm25.Scorer
}

// NewResolver creates a Resolver tuned for short-text alias matching: name
// matches weigh twice as heavily as alias matches, and the BM25 length
// normalization term is softened since entity names are short.
func NewResolver() *Resolver {
	cfg := bm25.DefaultConfig()
	cfg.FieldWeights = map[string]float64{"name": 10.0, "alias": 5.0, "kind": 1.0}
	cfg.B = 0.5

	return &Resolver{
		Context: NewNarrativeContext(),
		scorer:  bm25.NewScorer(cfg),
	}
}

// RegisterEntity registers an entity with both the recency context and the
// fuzzy BM25 scorer used for alias lookup.
func (r *Resolver) RegisterEntity(e EntityMetadata) {
	r.Context.Register(e)

	meta := bm25.DocumentMetadata{
		TotalTokenCount: 1 + len(e.Aliases),
		FieldLengths: map[string]int{
			"name":  len(strings.Fields(e.Name)),
			"alias": len(e.Aliases),
			"kind":  1,
		},
	}

	tokens := make(map[string]bm25.TokenMetadata)
	for _, word := range strings.Fields(strings.ToLower(e.Name)) {
		tokens[word] = bm25.TokenMetadata{
			CorpusDocFreq: 1,
			FieldOccurrences: map[string]bm25.FieldOccurrence{
				"name": {TF: 1, FieldLength: meta.FieldLengths["name"]},
			},
		}
	}
	for _, alias := range e.Aliases {
		for _, word := range strings.Fields(strings.ToLower(alias)) {
			if tm, ok := tokens[word]; ok {
				if fo, ok := tm.FieldOccurrences["alias"]; ok {
					fo.TF++
					tm.FieldOccurrences["alias"] = fo
				} else {
					tm.FieldOccurrences["alias"] = bm25.FieldOccurrence{TF: 1, FieldLength: 10}
				}
				tokens[word] = tm
			} else {
				tokens[word] = bm25.TokenMetadata{
					CorpusDocFreq: 1,
					FieldOccurrences: map[string]bm25.FieldOccurrence{
						"alias": {TF: 1, FieldLength: 10},
					},
				}
			}
		}
	}

	r.scorer.IndexDocument(e.ID, meta, tokens)
}

// Resolve attempts to resolve text — a pronoun, an exact name/alias, or a
// fuzzy alias — to a registered entity ID. Returns "" on no match.
func (r *Resolver) Resolve(text string) string {
	if r.isPronoun(text) {
		return r.Context.FindMostRecent(r.inferPronounGender(text))
	}

	lower := strings.ToLower(text)
	for _, meta := range r.Context.registry {
		if strings.ToLower(meta.Name) == lower {
			return meta.ID
		}
		for _, alias := range meta.Aliases {
			if strings.ToLower(alias) == lower {
				return meta.ID
			}
		}
	}

	queryTokens := strings.Fields(lower)
	results := r.scorer.Search(queryTokens, nil, 1)
	if len(results) > 0 && results[0].Score > 1.0 {
		return results[0].DocID
	}

	return ""
}

// ObserveMention records an explicit mention, updating recency.
func (r *Resolver) ObserveMention(entityID string) {
	r.Context.PushMention(entityID)
}

func (r *Resolver) isPronoun(text string) bool {
	switch strings.ToLower(text) {
	case "he", "him", "his", "she", "her", "hers", "it", "its", "they", "them", "their":
		return true
	default:
		return false
	}
}

func (r *Resolver) inferPronounGender(text string) Gender {
	switch strings.ToLower(text) {
	case "he", "him", "his":
		return GenderMale
	case "she", "her", "hers":
		return GenderFemale
	case "it", "its":
		return GenderNeutral
	case "they", "them", "their":
		return GenderPlural
	default:
		return GenderUnknown
	}
}

// Package bm25 is a field-weighted BM25 scorer. The teacher's
// pkg/scanner/resolver composes against an unavailable github.com/kittclouds/
// gokitt/pkg/resorank dependency (DefaultConfig/Scorer/DocumentMetadata/
// TokenMetadata/FieldOccurrence/IndexDocument/Search); that package has no
// implementation anywhere in the accessible ecosystem, so this module
// provides its own first-party scorer built to the exact shape resolver.go
// calls against, per SPEC_FULL.md §4.A's "this is the module's own
// first-party scorer" instruction.
package bm25

import (
	"math"
	"sort"
)

// Config tunes the BM25 field-weighted formula.
type Config struct {
	K1           float64
	B            float64
	FieldWeights map[string]float64
	VectorAlpha  float64 // blend weight for an optional vector similarity term
}

// DefaultConfig returns the teacher-grounded defaults (k1=1.5, b=0.75).
func DefaultConfig() Config {
	return Config{
		K1:           1.5,
		B:            0.75,
		FieldWeights: map[string]float64{"default": 1.0},
		VectorAlpha:  0.0,
	}
}

// FieldOccurrence is one token's occurrence stats within one field of one document.
type FieldOccurrence struct {
	TF          int
	FieldLength int
}

// TokenMetadata is the corpus-wide and per-field stats for one token.
type TokenMetadata struct {
	CorpusDocFreq    int
	FieldOccurrences map[string]FieldOccurrence
}

// DocumentMetadata is the per-document length bookkeeping BM25 needs.
type DocumentMetadata struct {
	TotalTokenCount int
	FieldLengths    map[string]int
	Embedding       []float32
}

// Result is one scored document.
type Result struct {
	DocID string
	Score float64
}

// Scorer indexes documents by token and answers ranked BM25 queries.
type Scorer struct {
	cfg       Config
	docs      map[string]DocumentMetadata
	tokens    map[string]map[string]TokenMetadata // token -> docID -> metadata
	docCount  int
	avgLenSum float64
}

// NewScorer constructs an empty scorer with the given config.
func NewScorer(cfg Config) *Scorer {
	if cfg.FieldWeights == nil {
		cfg.FieldWeights = map[string]float64{"default": 1.0}
	}
	return &Scorer{
		cfg:    cfg,
		docs:   make(map[string]DocumentMetadata),
		tokens: make(map[string]map[string]TokenMetadata),
	}
}

// IndexDocument adds or replaces a document's token statistics.
func (s *Scorer) IndexDocument(docID string, meta DocumentMetadata, tokens map[string]TokenMetadata) {
	if _, exists := s.docs[docID]; !exists {
		s.docCount++
	}
	s.docs[docID] = meta
	for tok, tm := range tokens {
		postings, ok := s.tokens[tok]
		if !ok {
			postings = make(map[string]TokenMetadata)
			s.tokens[tok] = postings
		}
		postings[docID] = tm
	}
}

// RemoveDocument deletes a document from the index.
func (s *Scorer) RemoveDocument(docID string) {
	if _, ok := s.docs[docID]; !ok {
		return
	}
	delete(s.docs, docID)
	s.docCount--
	for tok, postings := range s.tokens {
		delete(postings, docID)
		if len(postings) == 0 {
			delete(s.tokens, tok)
		}
	}
}

func (s *Scorer) averageFieldLength(field string) float64 {
	if len(s.docs) == 0 {
		return 0
	}
	var sum float64
	for _, d := range s.docs {
		sum += float64(d.FieldLengths[field])
	}
	return sum / float64(len(s.docs))
}

// idf is the standard BM25 inverse document frequency with the +1 smoothing
// that keeps it non-negative for common terms.
func (s *Scorer) idf(docFreq int) float64 {
	n := float64(s.docCount)
	if n == 0 {
		return 0
	}
	df := float64(docFreq)
	return math.Log((n-df+0.5)/(df+0.5) + 1)
}

// Search scores every indexed document against queryTokens (optionally
// blended with cosine similarity against queryVector, per VectorAlpha) and
// returns the topK highest-scoring results, descending, ties broken by docID.
func (s *Scorer) Search(queryTokens []string, queryVector []float32, topK int) []Result {
	scores := make(map[string]float64)
	for _, qt := range queryTokens {
		postings, ok := s.tokens[qt]
		if !ok {
			continue
		}
		idf := s.idf(len(postings))
		for docID, tm := range postings {
			doc := s.docs[docID]
			var fieldScore float64
			for field, occ := range tm.FieldOccurrences {
				weight := s.cfg.FieldWeights[field]
				if weight == 0 {
					weight = s.cfg.FieldWeights["default"]
				}
				avgLen := s.averageFieldLength(field)
				if avgLen == 0 {
					avgLen = 1
				}
				fl := float64(occ.FieldLength)
				if fl == 0 {
					fl = float64(doc.TotalTokenCount)
				}
				norm := (1 - s.cfg.B) + s.cfg.B*(fl/avgLen)
				tf := float64(occ.TF)
				termScore := idf * (tf * (s.cfg.K1 + 1)) / (tf + s.cfg.K1*norm)
				fieldScore += weight * termScore
			}
			scores[docID] += fieldScore
			_ = tm.CorpusDocFreq
		}
	}

	if len(queryVector) > 0 && s.cfg.VectorAlpha > 0 {
		for docID, doc := range s.docs {
			if len(doc.Embedding) == 0 {
				continue
			}
			sim := cosine(queryVector, doc.Embedding)
			scores[docID] = (1-s.cfg.VectorAlpha)*scores[docID] + s.cfg.VectorAlpha*sim
		}
	}

	results := make([]Result, 0, len(scores))
	for docID, sc := range scores {
		if sc <= 0 {
			continue
		}
		results = append(results, Result{DocID: docID, Score: sc})
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].DocID < results[j].DocID
	})
	if topK > 0 && len(results) > topK {
		results = results[:topK]
	}
	return results
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

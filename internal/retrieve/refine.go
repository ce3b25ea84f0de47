package retrieve

import (
	"context"
	"math"
	"strings"
	"time"

	"github.com/kittclouds/recall/internal/index"
)

// vectorPeeker is satisfied by index.FlatVectorIndex but not
// index.SQLiteVectorIndex (sqlite-vec doesn't expose raw stored vectors
// cheaply). L8 type-asserts for it and skips the exact re-score when the
// configured VectorIndex doesn't support it, degrading gracefully to the L7
// coarse ranking.
type vectorPeeker interface {
	Vector(docID string) ([]float32, bool)
}

// l8FineVector re-scores the fused candidate set with exact cosine against
// stored vectors, blended with the prior (fused) score per SPEC_FULL.md
// §4.E: `0.7·cosine + 0.3·prior`. Only runs above FineRankThreshold, and
// only for candidates whose vector index implements vectorPeeker.
func (r *Retriever) l8FineVector(ctx context.Context, candidates []index.Result, query string) []index.Result {
	peeker, ok := r.vector.(vectorPeeker)
	if !ok || r.embedder == nil {
		return candidates
	}
	queryEmb, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return candidates
	}
	out := make([]index.Result, len(candidates))
	for i, c := range candidates {
		vec, ok := peeker.Vector(c.DocID)
		if !ok {
			out[i] = c
			continue
		}
		cosine := cosineSimilarity(queryEmb, vec)
		out[i] = index.Result{DocID: c.DocID, Score: 0.7*cosine + 0.3*c.Score}
	}
	return out
}

func cosineSimilarity(a, b []float32) float64 {
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

// l9Rerank adds small bonuses for exact keyword/entity occurrences and
// recency, per SPEC_FULL.md §4.E's "local multi-feature" description.
// Feature weights are intentionally modest: this layer nudges the RRF/L8
// ordering rather than replacing it.
func (r *Retriever) l9Rerank(candidates []index.Result, keywords, entities []string) []index.Result {
	now := nowForRerank()
	out := make([]index.Result, len(candidates))
	for i, c := range candidates {
		text := strings.ToLower(r.dereferenceText(c.DocID))
		bonus := 0.0
		for _, kw := range keywords {
			if kw != "" && strings.Contains(text, strings.ToLower(kw)) {
				bonus += 0.02
			}
		}
		for _, ent := range entities {
			if ent != "" && strings.Contains(text, strings.ToLower(ent)) {
				bonus += 0.03
			}
		}
		if ts, ok := r.timestampOf(c.DocID); ok {
			age := now.Sub(ts)
			if age < 0 {
				age = 0
			}
			bonus += recencyBonus(age)
		}
		out[i] = index.Result{DocID: c.DocID, Score: c.Score + bonus}
	}
	return out
}

// recencyBonus decays smoothly from 0.05 (just happened) toward 0 over
// roughly 30 days, so L9 never lets age alone outrank real relevance
// signals, only tie-break among near-equal candidates.
func recencyBonus(age time.Duration) float64 {
	days := age.Hours() / 24
	const halfLifeDays = 7.0
	if days <= 0 {
		return 0.05
	}
	return 0.05 * math.Pow(0.5, days/halfLifeDays)
}

// nowForRerank is a seam for deterministic tests; production code always
// uses time.Now (no Config field exposes this, it's test-only via the
// package-level override below).
var nowForRerank = time.Now

// l10CrossEncode blends the configured CrossEncoderScorer's prediction with
// the prior score: `0.3·old + 0.7·ce`, per SPEC_FULL.md §4.E. The default
// scorer (lexicalOverlapScorer) stands in for a neural cross-encoder; any
// CrossEncoderScorer can be substituted at construction time.
func (r *Retriever) l10CrossEncode(candidates []index.Result, query string) []index.Result {
	out := make([]index.Result, len(candidates))
	for i, c := range candidates {
		text := r.dereferenceText(c.DocID)
		ce := r.crossEncoder.Score(query, text)
		out[i] = index.Result{DocID: c.DocID, Score: 0.3*c.Score + 0.7*ce}
	}
	return out
}

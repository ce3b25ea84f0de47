package retrieve

import (
	"github.com/kittclouds/recall/internal/index"
)

// fuseArms merges the named recall arms by Reciprocal Rank Fusion,
// RRF(d) = Σᵢ wᵢ · 1/(k + rankᵢ(d)), ported from
// original_source/recall/retrieval/rrf_fusion.py. A document absent from an
// arm contributes nothing from it; arm weights default to 1.0 when not set
// in cfg.ArmWeights.
func (r *Retriever) fuseArms(cfg *Config, arms map[string][]index.Result) []index.Result {
	k := cfg.RRFK
	if k <= 0 {
		k = 60
	}
	fused := make(map[string]float64)
	for arm, results := range arms {
		weight := 1.0
		if cfg.ArmWeights != nil {
			if w, ok := cfg.ArmWeights[arm]; ok {
				weight = w
			}
		}
		ranked := rankOf(results)
		for docID, rank := range ranked {
			fused[docID] += weight * (1.0 / float64(k+rank))
		}
	}
	out := make([]index.Result, 0, len(fused))
	for id, score := range fused {
		out = append(out, index.Result{DocID: id, Score: score})
	}
	sortDeterministic(out)
	return out
}

// rankOf sorts results by score descending (ties by docID, for
// determinism) and returns each docID's 1-based rank.
func rankOf(results []index.Result) map[string]int {
	sorted := append([]index.Result(nil), results...)
	sortDeterministic(sorted)
	ranks := make(map[string]int, len(sorted))
	for i, res := range sorted {
		ranks[res.DocID] = i + 1
	}
	return ranks
}

// weightedScoreFusion is an alternative fusion strategy (min-max normalized
// per-arm scores, weight-summed) kept alongside RRF for callers that want a
// magnitude-sensitive blend rather than rank-only fusion, per
// rrf_fusion.py's weighted_score_fusion. Retrieve does not call it (RRF is
// rank-robust across arms with incomparable score scales), and no Config
// field selects it.
func weightedScoreFusion(arms map[string][]index.Result, weights map[string]float64) []index.Result {
	normalized := make(map[string]map[string]float64, len(arms))
	for arm, results := range arms {
		if len(results) == 0 {
			continue
		}
		min, max := results[0].Score, results[0].Score
		for _, res := range results {
			if res.Score < min {
				min = res.Score
			}
			if res.Score > max {
				max = res.Score
			}
		}
		scores := make(map[string]float64, len(results))
		span := max - min
		for _, res := range results {
			if span == 0 {
				scores[res.DocID] = 1.0
			} else {
				scores[res.DocID] = (res.Score - min) / span
			}
		}
		normalized[arm] = scores
	}

	fused := make(map[string]float64)
	for arm, scores := range normalized {
		weight := 1.0
		if weights != nil {
			if w, ok := weights[arm]; ok {
				weight = w
			}
		}
		for docID, score := range scores {
			fused[docID] += weight * score
		}
	}
	out := make([]index.Result, 0, len(fused))
	for id, score := range fused {
		out = append(out, index.Result{DocID: id, Score: score})
	}
	sortDeterministic(out)
	return out
}

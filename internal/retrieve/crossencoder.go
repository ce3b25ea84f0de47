package retrieve

import "strings"

// lexicalOverlapScorer is the default CrossEncoderScorer: a token-level
// Jaccard similarity between query and candidate text, boosted when shared
// tokens cluster close together positionally (a cheap proxy for the kind of
// local attention a real cross-encoder would pick up on). Per SPEC_FULL.md
// §4.E this stands in for L10 until a neural cross-encoder client is wired;
// the CrossEncoderScorer interface is the seam for that substitution.
type lexicalOverlapScorer struct{}

func (lexicalOverlapScorer) Score(query, text string) float64 {
	queryTokens := tokenize(query)
	textTokens := tokenize(text)
	if len(queryTokens) == 0 || len(textTokens) == 0 {
		return 0
	}

	querySet := make(map[string]bool, len(queryTokens))
	for _, t := range queryTokens {
		querySet[t] = true
	}
	textPositions := make(map[string][]int)
	for i, t := range textTokens {
		textPositions[t] = append(textPositions[t], i)
	}

	textSet := make(map[string]bool, len(textTokens))
	for _, t := range textTokens {
		textSet[t] = true
	}

	intersection, union := 0, len(textSet)
	for t := range querySet {
		if textSet[t] {
			intersection++
		} else {
			union++
		}
	}
	jaccard := 0.0
	if union > 0 {
		jaccard = float64(intersection) / float64(union)
	}

	proximity := positionProximity(queryTokens, textPositions)
	return clamp01(0.7*jaccard + 0.3*proximity)
}

// positionProximity rewards matches that land close together in text: it
// measures how tightly the first occurrence of each shared query token
// clusters (smaller spread -> higher score), normalized by text length.
func positionProximity(queryTokens []string, textPositions map[string][]int) float64 {
	var positions []int
	for _, qt := range queryTokens {
		if p, ok := textPositions[qt]; ok && len(p) > 0 {
			positions = append(positions, p[0])
		}
	}
	if len(positions) < 2 {
		if len(positions) == 1 {
			return 1.0
		}
		return 0
	}
	min, max := positions[0], positions[0]
	for _, p := range positions {
		if p < min {
			min = p
		}
		if p > max {
			max = p
		}
	}
	spread := max - min
	if spread == 0 {
		return 1.0
	}
	return 1.0 / (1.0 + float64(spread)/float64(len(positions)))
}

func tokenize(s string) []string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !((r >= 'a' && r <= 'z') || (r >= '0' && r <= '9'))
	})
	return fields
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}

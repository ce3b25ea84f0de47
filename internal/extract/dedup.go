package extract

import (
	"context"
	"crypto/md5"
	"math"
	"math/big"
	"math/rand"
	"regexp"
	"strings"
)

// MatchType classifies how a deduplication candidate was resolved, ported
// from original_source/recall/processor/three_stage_deduplicator.py's
// MatchType enum.
type MatchType string

const (
	MatchExact    MatchType = "exact"
	MatchFuzzy    MatchType = "fuzzy"
	MatchSemantic MatchType = "semantic"
	MatchLLM      MatchType = "llm"
	MatchNew      MatchType = "new"
)

// DedupItem is one entity or fact candidate being deduplicated against an
// existing index.
type DedupItem struct {
	ID        string
	Name      string
	Content   string
	ItemType  string
	Embedding []float32
}

// Text returns the string used for shingling and semantic comparison: the
// content if present, else the name.
func (d DedupItem) Text() string {
	if d.Content != "" {
		return d.Content
	}
	return d.Name
}

// DedupMatch is the outcome of resolving one DedupItem.
type DedupMatch struct {
	NewItem     DedupItem
	MatchedItem *DedupItem
	MatchType   MatchType
	Confidence  float64
	Reason      string
}

// DedupResult aggregates the outcome of one deduplicate() call.
type DedupResult struct {
	Matches      []DedupMatch
	NewItems     []DedupItem
	PendingItems []pendingItem

	TotalCount   int
	MatchedCount int
	NewCount     int
	PendingCount int
}

type pendingItem struct {
	item       DedupItem
	candidates []DedupItem
}

func (r *DedupResult) addMatch(newItem DedupItem, matched DedupItem, mt MatchType, confidence float64, reason string) {
	r.Matches = append(r.Matches, DedupMatch{NewItem: newItem, MatchedItem: &matched, MatchType: mt, Confidence: confidence, Reason: reason})
	r.MatchedCount++
}

func (r *DedupResult) addNew(item DedupItem) {
	r.NewItems = append(r.NewItems, item)
	r.NewCount++
}

func (r *DedupResult) addPending(item DedupItem, candidates []DedupItem) {
	r.PendingItems = append(r.PendingItems, pendingItem{item: item, candidates: candidates})
	r.PendingCount++
}

func (r *DedupResult) moveToMatch(item DedupItem, matched DedupItem) {
	r.removePending(item.ID)
	r.addMatch(item, matched, MatchLLM, 0.9, "LLM confirmed")
}

func (r *DedupResult) moveToNew(item DedupItem) {
	r.removePending(item.ID)
	r.addNew(item)
}

func (r *DedupResult) removePending(id string) {
	kept := r.PendingItems[:0]
	for _, p := range r.PendingItems {
		if p.item.ID != id {
			kept = append(kept, p)
		}
	}
	r.PendingItems = kept
	r.PendingCount = len(r.PendingItems)
}

// DedupConfig tunes the three-stage pipeline's thresholds, ported from
// DedupConfig in three_stage_deduplicator.py.
type DedupConfig struct {
	ExactMatchEnabled bool
	FuzzyMatchEnabled bool
	JaccardThreshold  float64
	MinHashNumPerm    int
	LSHThreshold      float64

	SemanticEnabled        bool
	SemanticThreshold      float64
	SemanticLowThreshold   float64

	LLMEnabled    bool
	LLMThreshold  float64
	LLMBatchSize  int
}

// DefaultDedupConfig mirrors DedupConfig.default().
func DefaultDedupConfig() DedupConfig {
	return DedupConfig{
		ExactMatchEnabled:    true,
		FuzzyMatchEnabled:    true,
		JaccardThreshold:     0.7,
		MinHashNumPerm:       128,
		LSHThreshold:         0.5,
		SemanticEnabled:      true,
		SemanticThreshold:    0.85,
		SemanticLowThreshold: 0.70,
		LLMEnabled:           false,
		LLMThreshold:         0.75,
		LLMBatchSize:         5,
	}
}

// StrictDedupConfig mirrors DedupConfig.strict(): higher thresholds, fewer
// false-positive merges.
func StrictDedupConfig() DedupConfig {
	c := DefaultDedupConfig()
	c.JaccardThreshold = 0.8
	c.SemanticThreshold = 0.90
	c.SemanticLowThreshold = 0.75
	return c
}

// LenientDedupConfig mirrors DedupConfig.lenient(): lower thresholds, more
// aggressive merging.
func LenientDedupConfig() DedupConfig {
	c := DefaultDedupConfig()
	c.JaccardThreshold = 0.6
	c.SemanticThreshold = 0.80
	c.SemanticLowThreshold = 0.65
	return c
}

// minHashSeed matches the Python implementation's fixed seed (42), so
// signatures are reproducible across runs.
const minHashSeed = 42
const minHashMaxHash = (1 << 32) - 1

// MinHasher estimates Jaccard similarity between two texts via k-shingle
// MinHash signatures, ported from MinHasher in three_stage_deduplicator.py.
// Grounded on the standard library (crypto/md5, math/rand) since no pack
// example imports a MinHash/LSH library — this is inherently a small
// self-contained numeric algorithm, not a concern any pack dependency
// addresses.
type MinHasher struct {
	numPerm int
	a, b    []uint64
}

// NewMinHasher builds a MinHasher with numPerm permutations, deterministically
// seeded.
func NewMinHasher(numPerm int) *MinHasher {
	r := rand.New(rand.NewSource(minHashSeed))
	a := make([]uint64, numPerm)
	b := make([]uint64, numPerm)
	for i := 0; i < numPerm; i++ {
		a[i] = uint64(r.Int63n(minHashMaxHash-1)) + 1
		b[i] = uint64(r.Int63n(minHashMaxHash))
	}
	return &MinHasher{numPerm: numPerm, a: a, b: b}
}

// Shingles returns the set of k-character shingles of text (lowercased,
// trimmed). Texts shorter than k return a single shingle of the whole text.
func (m *MinHasher) Shingles(text string, k int) map[string]struct{} {
	text = strings.ToLower(strings.TrimSpace(text))
	runes := []rune(text)
	out := make(map[string]struct{})
	if len(runes) < k {
		out[text] = struct{}{}
		return out
	}
	for i := 0; i+k <= len(runes); i++ {
		out[string(runes[i:i+k])] = struct{}{}
	}
	return out
}

// Signature computes the MinHash signature over a shingle set.
func (m *MinHasher) Signature(shingles map[string]struct{}) []uint64 {
	sig := make([]uint64, m.numPerm)
	for i := range sig {
		sig[i] = minHashMaxHash
	}

	for shingle := range shingles {
		h := md5.Sum([]byte(shingle))
		hv := new(big.Int).SetBytes(h[:])
		hv.Mod(hv, big.NewInt(minHashMaxHash))
		hInt := hv.Uint64()

		for i := 0; i < m.numPerm; i++ {
			val := (m.a[i]*hInt + m.b[i]) % minHashMaxHash
			if val < sig[i] {
				sig[i] = val
			}
		}
	}
	return sig
}

// JaccardFromSignatures estimates Jaccard similarity as the fraction of
// matching signature slots.
func (m *MinHasher) JaccardFromSignatures(sig1, sig2 []uint64) float64 {
	matches := 0
	for i := range sig1 {
		if sig1[i] == sig2[i] {
			matches++
		}
	}
	return float64(matches) / float64(len(sig1))
}

// LSHIndex buckets MinHash signatures by band for O(1) candidate retrieval,
// ported from LSHIndex in three_stage_deduplicator.py.
type LSHIndex struct {
	numBands    int
	rowsPerBand int
	buckets     []map[string]map[string]struct{} // per band: bucket key -> item IDs
}

// NewLSHIndex creates an LSH index with the given band layout.
func NewLSHIndex(numBands, rowsPerBand int) *LSHIndex {
	buckets := make([]map[string]map[string]struct{}, numBands)
	for i := range buckets {
		buckets[i] = make(map[string]map[string]struct{})
	}
	return &LSHIndex{numBands: numBands, rowsPerBand: rowsPerBand, buckets: buckets}
}

func (l *LSHIndex) bandKey(signature []uint64, bandIdx int) string {
	start := bandIdx * l.rowsPerBand
	end := start + l.rowsPerBand
	if end > len(signature) {
		end = len(signature)
	}
	var sb strings.Builder
	for _, v := range signature[start:end] {
		sb.WriteString(string(rune(v % 0x10000)))
	}
	return sb.String()
}

// Add indexes itemID under signature's band buckets.
func (l *LSHIndex) Add(itemID string, signature []uint64) {
	for bandIdx := 0; bandIdx < l.numBands; bandIdx++ {
		key := l.bandKey(signature, bandIdx)
		if l.buckets[bandIdx][key] == nil {
			l.buckets[bandIdx][key] = make(map[string]struct{})
		}
		l.buckets[bandIdx][key][itemID] = struct{}{}
	}
}

// Query returns every item ID sharing at least one band bucket with signature.
func (l *LSHIndex) Query(signature []uint64) map[string]struct{} {
	candidates := make(map[string]struct{})
	for bandIdx := 0; bandIdx < l.numBands; bandIdx++ {
		key := l.bandKey(signature, bandIdx)
		for id := range l.buckets[bandIdx][key] {
			candidates[id] = struct{}{}
		}
	}
	return candidates
}

var dedupNonWordRe = regexp.MustCompile(`[^\p{L}\p{N}\s]+`)

// LLMDedupConfirmer judges whether two boundary-case items denote the same
// entity. A local interface (mirroring BudgetGate) so internal/extract
// doesn't force a concrete LLM dependency on every caller of dedup.
type LLMDedupConfirmer interface {
	Confirm(ctx context.Context, itemA, itemB string) (bool, error)
}

// ThreeStageDeduplicator implements SPEC_FULL.md §4.D's deduplication
// strategy: stage 1 exact-normalized + MinHash/LSH fuzzy match, stage 2
// embedding cosine similarity, stage 3 LLM confirmation for boundary cases.
// Ported from ThreeStageDeduplicator in three_stage_deduplicator.py. It is a
// standalone component: no other package calls it, so neither extracted
// entities nor persistent conditions pass through it.
type ThreeStageDeduplicator struct {
	config DedupConfig

	minhasher *MinHasher
	lsh       *LSHIndex
	llm       LLMDedupConfirmer
	budget    BudgetGate

	exactIndex map[string]DedupItem
	sigIndex   map[string][]uint64
	itemIndex  map[string]DedupItem
}

// NewThreeStageDeduplicator creates a deduplicator. llm and budget may be
// nil — stage 3 (LLM confirmation) is skipped whenever llm is absent or
// config.LLMEnabled is false; a nil budget never vetoes it.
func NewThreeStageDeduplicator(config DedupConfig, llm LLMDedupConfirmer, budget BudgetGate) *ThreeStageDeduplicator {
	return &ThreeStageDeduplicator{
		config:     config,
		minhasher:  NewMinHasher(config.MinHashNumPerm),
		lsh:        NewLSHIndex(16, 8),
		llm:        llm,
		budget:     budget,
		exactIndex: make(map[string]DedupItem),
		sigIndex:   make(map[string][]uint64),
		itemIndex:  make(map[string]DedupItem),
	}
}

func (d *ThreeStageDeduplicator) normalize(text string) string {
	if text == "" {
		return ""
	}
	text = strings.ToLower(text)
	text = dedupNonWordRe.ReplaceAllString(text, "")
	return strings.Join(strings.Fields(text), " ")
}

// BuildIndex indexes an existing item set for matching against.
func (d *ThreeStageDeduplicator) BuildIndex(items []DedupItem) {
	for _, item := range items {
		d.AddToIndex(item)
	}
}

// AddToIndex incrementally indexes a single item.
func (d *ThreeStageDeduplicator) AddToIndex(item DedupItem) {
	if normalized := d.normalize(item.Name); normalized != "" {
		d.exactIndex[normalized] = item
	}
	if d.config.FuzzyMatchEnabled {
		sig := d.minhasher.Signature(d.minhasher.Shingles(item.Text(), 3))
		d.sigIndex[item.ID] = sig
		d.lsh.Add(item.ID, sig)
	}
	d.itemIndex[item.ID] = item
}

// Deduplicate resolves newItems against the built index (optionally
// extending it with existingItems first), running all three stages.
func (d *ThreeStageDeduplicator) Deduplicate(ctx context.Context, newItems []DedupItem, existingItems []DedupItem) DedupResult {
	if len(existingItems) > 0 {
		d.BuildIndex(existingItems)
	}

	result := DedupResult{TotalCount: len(newItems)}

	for _, item := range newItems {
		match := d.deduplicateSingle(item)
		switch match.MatchType {
		case MatchNew:
			if match.MatchedItem != nil {
				result.addPending(item, []DedupItem{*match.MatchedItem})
			} else {
				result.addNew(item)
			}
		default:
			result.Matches = append(result.Matches, match)
			result.MatchedCount++
		}
	}

	if len(result.PendingItems) > 0 && d.config.LLMEnabled && d.llm != nil {
		d.llmBatchConfirm(ctx, &result)
	} else {
		for _, p := range append([]pendingItem(nil), result.PendingItems...) {
			result.moveToNew(p.item)
		}
	}

	return result
}

func (d *ThreeStageDeduplicator) deduplicateSingle(item DedupItem) DedupMatch {
	if d.config.ExactMatchEnabled {
		normalized := d.normalize(item.Name)
		if matched, ok := d.exactIndex[normalized]; ok && normalized != "" {
			return DedupMatch{NewItem: item, MatchedItem: &matched, MatchType: MatchExact, Confidence: 1.0, Reason: "exact match (normalized)"}
		}
	}

	if d.config.FuzzyMatchEnabled {
		sig := d.minhasher.Signature(d.minhasher.Shingles(item.Text(), 3))
		candidates := d.lsh.Query(sig)

		var best *DedupItem
		bestJaccard := 0.0
		for candidateID := range candidates {
			candidateSig, ok := d.sigIndex[candidateID]
			if !ok {
				continue
			}
			j := d.minhasher.JaccardFromSignatures(sig, candidateSig)
			if j > bestJaccard {
				bestJaccard = j
				if existing, ok := d.itemIndex[candidateID]; ok {
					best = &existing
				}
			}
		}
		if best != nil && bestJaccard >= d.config.JaccardThreshold {
			return DedupMatch{NewItem: item, MatchedItem: best, MatchType: MatchFuzzy, Confidence: bestJaccard, Reason: "MinHash+LSH match"}
		}
	}

	if d.config.SemanticEnabled && len(item.Embedding) > 0 {
		if match := d.semanticMatch(item); match != nil {
			return *match
		}
	}

	return DedupMatch{NewItem: item, MatchType: MatchNew, Reason: "no match found"}
}

func (d *ThreeStageDeduplicator) semanticMatch(item DedupItem) *DedupMatch {
	var best *DedupItem
	bestSim := 0.0

	for _, existing := range d.itemIndex {
		if len(existing.Embedding) == 0 {
			continue
		}
		sim := cosineSimilarity(item.Embedding, existing.Embedding)
		if sim > bestSim {
			bestSim = sim
			e := existing
			best = &e
		}
	}

	if best == nil {
		return nil
	}

	if bestSim >= d.config.SemanticThreshold {
		return &DedupMatch{NewItem: item, MatchedItem: best, MatchType: MatchSemantic, Confidence: bestSim, Reason: "semantic match"}
	}
	if bestSim >= d.config.SemanticLowThreshold && d.config.LLMEnabled {
		return &DedupMatch{NewItem: item, MatchedItem: best, MatchType: MatchNew, Confidence: bestSim, Reason: "boundary case, needs LLM confirmation"}
	}
	return nil
}

func cosineSimilarity(a, b []float32) float64 {
	var dot, normA, normB float64
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	return dot / (math.Sqrt(normA)*math.Sqrt(normB) + 1e-8)
}

// llmBatchConfirm resolves every pending item via one LLM call each,
// vetoable through budget. A budget veto moves every pending item straight
// to "new", mirroring the Python implementation's budget_manager.can_afford
// short-circuit; DedupResult records no flag for the veto.
func (d *ThreeStageDeduplicator) llmBatchConfirm(ctx context.Context, result *DedupResult) {
	if d.budget != nil && !d.budget.Allow("dedup_confirm", len(result.PendingItems)*20) {
		for _, p := range append([]pendingItem(nil), result.PendingItems...) {
			result.moveToNew(p.item)
		}
		return
	}

	for _, p := range append([]pendingItem(nil), result.PendingItems...) {
		if len(p.candidates) == 0 {
			result.moveToNew(p.item)
			continue
		}
		candidate := p.candidates[0]

		confirmed, err := d.llm.Confirm(ctx, describeItem(p.item), describeItem(candidate))
		if err != nil || !confirmed {
			result.moveToNew(p.item)
			continue
		}
		result.moveToMatch(p.item, candidate)
	}
}

func describeItem(item DedupItem) string {
	if item.Content == "" {
		return item.Name
	}
	content := item.Content
	if len(content) > 100 {
		content = content[:100]
	}
	return item.Name + ": " + content
}

package index

import (
	"context"
	"encoding/json"
	"os"
	"sort"
	"strings"
	"sync"

	trie "github.com/derekparker/trie/v3"

	"github.com/kittclouds/recall/internal/errs"
)

// NgramIndex is a character 2-gram/3-gram index for CJK-friendly fuzzy and
// substring search (L6), plus the RawSearch fallback scan that backs the
// "100% never forget" guarantee (SPEC_FULL.md §4.A, §4.E). A
// derekparker/trie/v3 trie over the raw token vocabulary backs the
// prefix-lookup fast path (PrefixSearch): the teacher never imports this
// dependency directly (it rides along only as an indirect of something
// else), so this expansion gives it an actual job, per SPEC_FULL.md §10.
type NgramIndex struct {
	mu       sync.RWMutex
	postings map[string]map[string]int // ngram -> docID -> occurrence count
	rawText  map[string]string         // docID -> full raw text, for RawSearch
	prefixes *trie.Trie
	path     string

	fallbackWorkers int
}

// NewNgramIndex creates an empty index. fallbackWorkers sizes the worker
// pool used by RawSearch.
func NewNgramIndex(path string, fallbackWorkers int) *NgramIndex {
	if fallbackWorkers <= 0 {
		fallbackWorkers = 4
	}
	return &NgramIndex{
		postings:        make(map[string]map[string]int),
		rawText:         make(map[string]string),
		prefixes:        trie.New(),
		path:            path,
		fallbackWorkers: fallbackWorkers,
	}
}

// ngrams returns every 2-gram and 3-gram (by rune) of s, lowercased.
func ngrams(s string) []string {
	s = strings.ToLower(s)
	runes := []rune(s)
	var out []string
	for n := 2; n <= 3; n++ {
		if len(runes) < n {
			continue
		}
		for i := 0; i+n <= len(runes); i++ {
			out = append(out, string(runes[i:i+n]))
		}
	}
	return out
}

// Add indexes text's n-grams under docID and stores the raw text for
// fallback scanning.
func (idx *NgramIndex) Add(docID, text string) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.rawText[docID] = text
	for _, g := range ngrams(text) {
		postings, ok := idx.postings[g]
		if !ok {
			postings = make(map[string]int)
			idx.postings[g] = postings
		}
		postings[docID]++
	}
	for _, word := range strings.Fields(strings.ToLower(text)) {
		if _, found := idx.prefixes.Find(word); !found {
			idx.prefixes.Add(word, struct{}{})
		}
	}
	return nil
}

// Remove deletes docID from every posting list and the raw-text corpus.
func (idx *NgramIndex) Remove(docID string) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	delete(idx.rawText, docID)
	for g, postings := range idx.postings {
		delete(postings, docID)
		if len(postings) == 0 {
			delete(idx.postings, g)
		}
	}
	return nil
}

// Search scores documents by OR-of-ngrams overlap with q.
func (idx *NgramIndex) Search(q string, topK int) []Result {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	scores := make(map[string]float64)
	for _, g := range ngrams(q) {
		for docID, count := range idx.postings[g] {
			scores[docID] += float64(count)
		}
	}
	return topResults(scores, topK)
}

// PrefixSearch returns raw tokens in the vocabulary sharing prefix, via the
// trie's fast path rather than a full ngram scan.
func (idx *NgramIndex) PrefixSearch(prefix string) []string {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.prefixes.PrefixSearch(strings.ToLower(prefix))
}

// RawSearch performs a parallel linear scan over the raw text corpus for any
// substring of q (case-insensitive), bounded by a worker pool and a hard
// per-query maxResults cap — no cross-query balancing, per SPEC_FULL.md §9's
// resolved Open Question. This is the last-resort recall path: it cannot
// miss any ingested text.
func (idx *NgramIndex) RawSearch(ctx context.Context, q string, maxResults int) []Result {
	idx.mu.RLock()
	ids := make([]string, 0, len(idx.rawText))
	texts := make([]string, 0, len(idx.rawText))
	for id, text := range idx.rawText {
		ids = append(ids, id)
		texts = append(texts, text)
	}
	idx.mu.RUnlock()

	needle := strings.ToLower(q)
	if needle == "" || len(ids) == 0 {
		return nil
	}

	type job struct {
		id   string
		text string
	}
	jobs := make(chan job, len(ids))
	for i := range ids {
		jobs <- job{ids[i], texts[i]}
	}
	close(jobs)

	var mu sync.Mutex
	var hits []Result
	var wg sync.WaitGroup
	workers := idx.fallbackWorkers
	if workers > len(ids) {
		workers = len(ids)
	}
	if workers < 1 {
		workers = 1
	}
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				select {
				case <-ctx.Done():
					return
				default:
				}
				if strings.Contains(strings.ToLower(j.text), needle) {
					mu.Lock()
					if len(hits) < maxResults || maxResults <= 0 {
						hits = append(hits, Result{DocID: j.id, Score: 0.01})
					}
					mu.Unlock()
				}
			}
		}()
	}
	wg.Wait()

	sort.Slice(hits, func(i, j int) bool { return hits[i].DocID < hits[j].DocID })
	if maxResults > 0 && len(hits) > maxResults {
		hits = hits[:maxResults]
	}
	return hits
}

func topResults(scores map[string]float64, topK int) []Result {
	out := make([]Result, 0, len(scores))
	for id, sc := range scores {
		out = append(out, Result{DocID: id, Score: sc})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].DocID < out[j].DocID
	})
	if topK > 0 && len(out) > topK {
		out = out[:topK]
	}
	return out
}

type ngramSnapshot struct {
	RawText map[string]string `json:"raw_text"`
}

// Flush persists the raw-text corpus (postings and the trie are rebuilt
// from it on Load — cheaper than serializing the full posting map).
func (idx *NgramIndex) Flush() error {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	if idx.path == "" {
		return nil
	}
	data, err := json.Marshal(ngramSnapshot{RawText: idx.rawText})
	if err != nil {
		return errs.Wrap(errs.Fatal, "marshaling ngram index", err)
	}
	return writeAtomicFile(idx.path, data)
}

// Load rebuilds the index from its JSON file; a missing file is not an error.
func (idx *NgramIndex) Load() error {
	if idx.path == "" {
		return nil
	}
	data, err := os.ReadFile(idx.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return errs.Wrap(errs.CorruptIndex, "reading ngram index", err)
	}
	var snap ngramSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return errs.Wrap(errs.CorruptIndex, "parsing ngram index", err)
	}
	idx.mu.Lock()
	idx.rawText = make(map[string]string, len(snap.RawText))
	idx.postings = make(map[string]map[string]int)
	idx.prefixes = trie.New()
	idx.mu.Unlock()
	for id, text := range snap.RawText {
		if err := idx.Add(id, text); err != nil {
			return err
		}
	}
	return nil
}

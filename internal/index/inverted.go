package index

import (
	"encoding/json"
	"os"
	"strings"
	"sync"
	"unicode"

	"github.com/kittclouds/recall/internal/errs"
)

// Tokenize splits text into case-folded keyword tokens: Han-script runes are
// emitted as character unigrams (CJK has no whitespace word boundaries),
// everything else as whitespace-delimited words, per SPEC_FULL.md §4.A.
func Tokenize(text string) []string {
	var tokens []string
	var cur strings.Builder
	flush := func() {
		if cur.Len() > 0 {
			tokens = append(tokens, cur.String())
			cur.Reset()
		}
	}
	for _, r := range text {
		if unicode.Is(unicode.Han, r) {
			flush()
			tokens = append(tokens, string(unicode.ToLower(r)))
			continue
		}
		if unicode.IsSpace(r) || unicode.IsPunct(r) {
			flush()
			continue
		}
		cur.WriteRune(unicode.ToLower(r))
	}
	flush()
	return tokens
}

// InvertedIndex maps keyword -> unordered set of document ids.
type InvertedIndex struct {
	mu               sync.RWMutex
	postings         map[string]map[string]struct{}
	mutationsSince   int
	flushEveryNMuts  int
	path             string
}

// NewInvertedIndex creates an empty index that flushes to path every
// flushEveryNMutations mutations (0 disables periodic flush; caller still
// flushes on shutdown).
func NewInvertedIndex(path string, flushEveryNMutations int) *InvertedIndex {
	return &InvertedIndex{
		postings:        make(map[string]map[string]struct{}),
		flushEveryNMuts: flushEveryNMutations,
		path:            path,
	}
}

// Add indexes every token of text under docID.
func (idx *InvertedIndex) Add(docID, text string) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	for _, tok := range Tokenize(text) {
		set, ok := idx.postings[tok]
		if !ok {
			set = make(map[string]struct{})
			idx.postings[tok] = set
		}
		set[docID] = struct{}{}
	}
	return idx.maybeFlushLocked()
}

// Remove deletes docID from every posting list it appears in.
func (idx *InvertedIndex) Remove(docID string) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	for tok, set := range idx.postings {
		delete(set, docID)
		if len(set) == 0 {
			delete(idx.postings, tok)
		}
	}
	return idx.maybeFlushLocked()
}

func (idx *InvertedIndex) maybeFlushLocked() error {
	if idx.flushEveryNMuts <= 0 {
		return nil
	}
	idx.mutationsSince++
	if idx.mutationsSince >= idx.flushEveryNMuts {
		idx.mutationsSince = 0
		return idx.flushLocked()
	}
	return nil
}

// Search returns the posting set for a single keyword (case-folded).
func (idx *InvertedIndex) Search(kw string) map[string]struct{} {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	set := idx.postings[strings.ToLower(kw)]
	out := make(map[string]struct{}, len(set))
	for id := range set {
		out[id] = struct{}{}
	}
	return out
}

// SearchAny returns the union of posting sets across every keyword.
func (idx *InvertedIndex) SearchAny(kws []string) []string {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	union := make(map[string]struct{})
	for _, kw := range kws {
		for id := range idx.postings[strings.ToLower(kw)] {
			union[id] = struct{}{}
		}
	}
	out := make([]string, 0, len(union))
	for id := range union {
		out = append(out, id)
	}
	return out
}

// Vocabulary returns every indexed keyword, used by the engine facade to
// rebuild L1's counting bloom filter at startup (the bloom filter itself is
// not part of §6's on-disk layout — it is a derived, in-memory-only
// acceleration structure over this index's vocabulary).
func (idx *InvertedIndex) Vocabulary() []string {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	out := make([]string, 0, len(idx.postings))
	for tok := range idx.postings {
		out = append(out, tok)
	}
	return out
}

type invertedSnapshot map[string][]string

// Flush writes the index to its JSON file atomically.
func (idx *InvertedIndex) Flush() error {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.flushLocked()
}

func (idx *InvertedIndex) flushLocked() error {
	if idx.path == "" {
		return nil
	}
	snap := make(invertedSnapshot, len(idx.postings))
	for tok, set := range idx.postings {
		ids := make([]string, 0, len(set))
		for id := range set {
			ids = append(ids, id)
		}
		snap[tok] = ids
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return errs.Wrap(errs.Fatal, "marshaling inverted index", err)
	}
	return writeAtomicFile(idx.path, data)
}

// Load rebuilds the index from its JSON file; a missing file is not an error.
func (idx *InvertedIndex) Load() error {
	if idx.path == "" {
		return nil
	}
	data, err := os.ReadFile(idx.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return errs.Wrap(errs.CorruptIndex, "reading inverted index", err)
	}
	var snap invertedSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return errs.Wrap(errs.CorruptIndex, "parsing inverted index", err)
	}
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.postings = make(map[string]map[string]struct{}, len(snap))
	for tok, ids := range snap {
		set := make(map[string]struct{}, len(ids))
		for _, id := range ids {
			set[id] = struct{}{}
		}
		idx.postings[tok] = set
	}
	return nil
}

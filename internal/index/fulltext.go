package index

import (
	"encoding/json"
	"os"
	"sync"

	"github.com/kittclouds/recall/internal/bm25"
	"github.com/kittclouds/recall/internal/errs"
)

// FullTextIndex is L3's BM25 sibling: a field-weighted relevance ranker over
// internal/bm25.Scorer (this package's own stand-in for the teacher's
// referenced-but-absent pkg/resorank). Callers index multiple named fields
// per document (e.g. "content", "name", "summary") so FieldWeights can
// reward matches in short, high-signal fields over long ones.
type FullTextIndex struct {
	mu     sync.RWMutex
	scorer *bm25.Scorer
	path   string
}

// NewFullTextIndex creates an index with cfg (use bm25.DefaultConfig() for
// the teacher-grounded k1/b defaults).
func NewFullTextIndex(path string, cfg bm25.Config) *FullTextIndex {
	return &FullTextIndex{scorer: bm25.NewScorer(cfg), path: path}
}

// Add tokenizes fields with Tokenize and indexes docID's per-field and
// aggregate statistics, plus an optional dense embedding for vector blending.
func (f *FullTextIndex) Add(docID string, fields map[string]string, embedding []float32) {
	f.mu.Lock()
	defer f.mu.Unlock()

	fieldLengths := make(map[string]int, len(fields))
	total := 0
	tokenStats := make(map[string]bm25.TokenMetadata)
	for field, text := range fields {
		toks := Tokenize(text)
		fieldLengths[field] = len(toks)
		total += len(toks)
		counts := make(map[string]int)
		for _, tok := range toks {
			counts[tok]++
		}
		for tok, tf := range counts {
			tm := tokenStats[tok]
			if tm.FieldOccurrences == nil {
				tm.FieldOccurrences = make(map[string]bm25.FieldOccurrence)
			}
			tm.FieldOccurrences[field] = bm25.FieldOccurrence{TF: tf, FieldLength: len(toks)}
			tokenStats[tok] = tm
		}
	}
	f.scorer.IndexDocument(docID, bm25.DocumentMetadata{
		TotalTokenCount: total,
		FieldLengths:    fieldLengths,
		Embedding:       embedding,
	}, tokenStats)
}

// Remove deletes docID from the index.
func (f *FullTextIndex) Remove(docID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scorer.RemoveDocument(docID)
}

// Search tokenizes query and returns the topK BM25-ranked documents,
// optionally blended with cosine similarity against queryVector.
func (f *FullTextIndex) Search(query string, queryVector []float32, topK int) []Result {
	f.mu.RLock()
	defer f.mu.RUnlock()
	raw := f.scorer.Search(Tokenize(query), queryVector, topK)
	out := make([]Result, len(raw))
	for i, r := range raw {
		out[i] = Result{DocID: r.DocID, Score: r.Score}
	}
	return out
}

// fullTextSnapshot captures enough to rebuild the scorer: raw fields per
// document plus its embedding, replayed through Add on Load.
type fullTextSnapshot struct {
	Docs map[string]fullTextDoc `json:"docs"`
}

type fullTextDoc struct {
	Fields    map[string]string `json:"fields"`
	Embedding []float32         `json:"embedding,omitempty"`
}

// Flush persists the raw per-document fields (not the derived token
// statistics, which are cheap to recompute and would otherwise duplicate
// the corpus on disk).
func (f *FullTextIndex) Flush(docs map[string]fullTextDoc) error {
	if f.path == "" {
		return nil
	}
	data, err := json.Marshal(fullTextSnapshot{Docs: docs})
	if err != nil {
		return errs.Wrap(errs.Fatal, "marshaling fulltext index", err)
	}
	return writeAtomicFile(f.path, data)
}

// Load rebuilds the scorer from a snapshot written by Flush; a missing file
// is not an error.
func (f *FullTextIndex) Load() (map[string]fullTextDoc, error) {
	if f.path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(f.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errs.Wrap(errs.CorruptIndex, "reading fulltext index", err)
	}
	var snap fullTextSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, errs.Wrap(errs.CorruptIndex, "parsing fulltext index", err)
	}
	for docID, doc := range snap.Docs {
		f.Add(docID, doc.Fields, doc.Embedding)
	}
	return snap.Docs, nil
}

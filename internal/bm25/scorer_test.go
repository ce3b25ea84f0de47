package bm25

import "testing"

func TestScorerRanksExactTermHigher(t *testing.T) {
	cfg := DefaultConfig()
	s := NewScorer(cfg)

	s.IndexDocument("doc:berlin", DocumentMetadata{TotalTokenCount: 3, FieldLengths: map[string]int{"default": 3}},
		map[string]TokenMetadata{
			"berlin": {CorpusDocFreq: 1, FieldOccurrences: map[string]FieldOccurrence{"default": {TF: 1, FieldLength: 3}}},
			"live":   {CorpusDocFreq: 2, FieldOccurrences: map[string]FieldOccurrence{"default": {TF: 1, FieldLength: 3}}},
		})
	s.IndexDocument("doc:paris", DocumentMetadata{TotalTokenCount: 3, FieldLengths: map[string]int{"default": 3}},
		map[string]TokenMetadata{
			"paris": {CorpusDocFreq: 1, FieldOccurrences: map[string]FieldOccurrence{"default": {TF: 1, FieldLength: 3}}},
			"live":  {CorpusDocFreq: 2, FieldOccurrences: map[string]FieldOccurrence{"default": {TF: 1, FieldLength: 3}}},
		})

	results := s.Search([]string{"berlin", "live"}, nil, 10)
	if len(results) == 0 || results[0].DocID != "doc:berlin" {
		t.Fatalf("expected doc:berlin ranked first, got %+v", results)
	}
}

func TestScorerRemoveDocument(t *testing.T) {
	s := NewScorer(DefaultConfig())
	s.IndexDocument("a", DocumentMetadata{TotalTokenCount: 1, FieldLengths: map[string]int{"default": 1}},
		map[string]TokenMetadata{"x": {CorpusDocFreq: 1, FieldOccurrences: map[string]FieldOccurrence{"default": {TF: 1, FieldLength: 1}}}})
	s.RemoveDocument("a")
	if results := s.Search([]string{"x"}, nil, 10); len(results) != 0 {
		t.Fatalf("expected no results after removal, got %+v", results)
	}
}

func TestScorerEmptyQueryReturnsEmpty(t *testing.T) {
	s := NewScorer(DefaultConfig())
	if results := s.Search(nil, nil, 10); len(results) != 0 {
		t.Fatalf("expected empty results for empty query, got %+v", results)
	}
}

package index

import (
	"context"
	"testing"
)

func TestNgramIndexSearchAndPrefix(t *testing.T) {
	idx := NewNgramIndex("", 2)
	idx.Add("mem:1", "dragon riders of berk")
	idx.Add("mem:2", "dragon age origins")

	results := idx.Search("dragon", 10)
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d: %+v", len(results), results)
	}

	prefixed := idx.PrefixSearch("drag")
	if len(prefixed) == 0 {
		t.Fatal("expected prefix matches for 'drag'")
	}
}

func TestNgramIndexRawSearchFallback(t *testing.T) {
	idx := NewNgramIndex("", 3)
	idx.Add("mem:1", "The quick brown fox jumps over the lazy dog.")
	idx.Add("mem:2", "Lorem ipsum dolor sit amet.")

	hits := idx.RawSearch(context.Background(), "quick brown", 10)
	if len(hits) != 1 || hits[0].DocID != "mem:1" {
		t.Fatalf("expected exactly mem:1, got %+v", hits)
	}
}

func TestNgramIndexRemove(t *testing.T) {
	idx := NewNgramIndex("", 2)
	idx.Add("mem:1", "hello world")
	idx.Remove("mem:1")
	if results := idx.Search("hello", 10); len(results) != 0 {
		t.Fatalf("expected no results after removal, got %+v", results)
	}
}

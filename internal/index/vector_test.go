package index

import (
	"context"
	"testing"
)

func TestFlatVectorIndexSearchRanksClosestFirst(t *testing.T) {
	idx := NewFlatVectorIndex(5000, 4)
	idx.Add("mem:1", []float32{1, 0, 0})
	idx.Add("mem:2", []float32{0, 1, 0})
	idx.Add("mem:3", []float32{0.9, 0.1, 0})

	results, err := idx.Search(context.Background(), []float32{1, 0, 0}, 2)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].DocID != "mem:1" {
		t.Fatalf("expected mem:1 closest, got %s", results[0].DocID)
	}
}

func TestFlatVectorIndexRemove(t *testing.T) {
	idx := NewFlatVectorIndex(5000, 4)
	idx.Add("mem:1", []float32{1, 0})
	idx.Remove("mem:1")
	results, err := idx.Search(context.Background(), []float32{1, 0}, 5)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("expected no results after removal, got %+v", results)
	}
}

func TestFlatVectorIndexDimMismatch(t *testing.T) {
	idx := NewFlatVectorIndex(5000, 4)
	if err := idx.Add("mem:1", []float32{1, 0, 0}); err != nil {
		t.Fatalf("first add: %v", err)
	}
	if err := idx.Add("mem:2", []float32{1, 0}); err == nil {
		t.Fatal("expected dim mismatch error")
	}
}

func TestFlatVectorIndexIVFRebuildStillFindsNeighbor(t *testing.T) {
	idx := NewFlatVectorIndex(3, 2) // tiny threshold to force IVF clustering
	idx.Add("mem:1", []float32{1, 0})
	idx.Add("mem:2", []float32{0, 1})
	idx.Add("mem:3", []float32{-1, 0})
	idx.Add("mem:4", []float32{0, -1})
	idx.Rebuild()

	results, err := idx.Search(context.Background(), []float32{1, 0.05}, 1)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 1 || results[0].DocID != "mem:1" {
		t.Fatalf("expected mem:1 nearest after IVF rebuild, got %+v", results)
	}
}

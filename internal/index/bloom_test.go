package index

import "testing"

func TestCountingBloomNoFalseNegatives(t *testing.T) {
	b := NewCountingBloom(1000, 0.01)
	terms := []string{"berlin", "paris", "dragon", "acme", "globex"}
	for _, term := range terms {
		b.Add(term)
	}
	for _, term := range terms {
		if !b.Contains(term) {
			t.Fatalf("expected %q to be contained, false negative", term)
		}
	}
}

func TestCountingBloomRemove(t *testing.T) {
	b := NewCountingBloom(10, 0.01)
	b.Add("alpha")
	b.Add("alpha")
	b.Remove("alpha")
	if !b.Contains("alpha") {
		t.Fatal("expected alpha still contained after one of two adds removed")
	}
	b.Remove("alpha")
	if b.Contains("alpha") {
		t.Fatal("expected alpha absent after both adds removed (may false-positive rarely, but astronomically unlikely here)")
	}
}

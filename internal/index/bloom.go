package index

import (
	"encoding/json"
	"hash/fnv"
	"math"
	"sync"
)

// CountingBloom is a counting bloom filter (byte-sized counters, so Remove
// doesn't require a full rebuild). Sizing follows the standard formulas
// m = -n*ln(p)/(ln2)^2, k = (m/n)*ln2 for a target false-positive rate p at
// expected corpus size n, per SPEC_FULL.md §4.A. Hashing is two independent
// FNV-1a/FNV-1 64-bit hashes combined by double-hashing (h_i = h1 + i*h2),
// avoiding a dependency on a third-party hash-family library the rest of the
// pack doesn't use.
type CountingBloom struct {
	mu       sync.RWMutex
	counters []byte
	k        int
}

// NewCountingBloom sizes a filter for n expected items at false-positive rate p.
func NewCountingBloom(n int, p float64) *CountingBloom {
	if n <= 0 {
		n = 1
	}
	if p <= 0 || p >= 1 {
		p = 0.01
	}
	m := int(math.Ceil(-float64(n) * math.Log(p) / (math.Ln2 * math.Ln2)))
	if m < 8 {
		m = 8
	}
	k := int(math.Round(float64(m) / float64(n) * math.Ln2))
	if k < 1 {
		k = 1
	}
	if k > 16 {
		k = 16
	}
	return &CountingBloom{counters: make([]byte, m), k: k}
}

func hashes(term string) (uint64, uint64) {
	h1 := fnv.New64a()
	h1.Write([]byte(term))
	h2 := fnv.New64()
	h2.Write([]byte(term))
	return h1.Sum64(), h2.Sum64()
}

func (b *CountingBloom) positions(term string) []int {
	h1, h2 := hashes(term)
	m := uint64(len(b.counters))
	positions := make([]int, b.k)
	for i := 0; i < b.k; i++ {
		positions[i] = int((h1 + uint64(i)*h2) % m)
	}
	return positions
}

// Add increments the counters for term.
func (b *CountingBloom) Add(term string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, pos := range b.positions(term) {
		if b.counters[pos] < 255 {
			b.counters[pos]++
		}
	}
}

// Remove decrements the counters for term. Safe to call even if term was
// never added (counters floor at zero).
func (b *CountingBloom) Remove(term string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, pos := range b.positions(term) {
		if b.counters[pos] > 0 {
			b.counters[pos]--
		}
	}
}

// Contains reports whether term may be present (false positives possible,
// false negatives never).
func (b *CountingBloom) Contains(term string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, pos := range b.positions(term) {
		if b.counters[pos] == 0 {
			return false
		}
	}
	return true
}

type bloomSnapshot struct {
	Counters []byte `json:"counters"`
	K        int    `json:"k"`
}

// MarshalJSON flushes the filter to its on-disk form (indexes/ files are
// plain JSON per SPEC_FULL.md §6).
func (b *CountingBloom) MarshalJSON() ([]byte, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return json.Marshal(bloomSnapshot{Counters: b.counters, K: b.k})
}

func (b *CountingBloom) UnmarshalJSON(data []byte) error {
	var snap bloomSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.counters = snap.Counters
	b.k = snap.K
	return nil
}

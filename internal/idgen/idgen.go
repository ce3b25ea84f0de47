// Package idgen generates random hex ids, the same 8-random-byte idiom the
// teacher uses in pkg/chat/service.go and pkg/memory/extractor.go's
// generateID helper.
package idgen

import (
	"crypto/rand"
	"encoding/hex"
)

// New returns a random 16-character hex id.
func New() string {
	b := make([]byte, 8)
	rand.Read(b)
	return hex.EncodeToString(b)
}

// Prefixed returns prefix + ":" + a new random id, matching SPEC_FULL.md
// §4.A's doc-id namespacing convention (e.g. "node:1a2b...").
func Prefixed(prefix string) string {
	return prefix + ":" + New()
}

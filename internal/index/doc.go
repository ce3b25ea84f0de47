// Package index implements the index family (SPEC_FULL.md §4.A): counting
// bloom filter (L1), temporal interval tree (L2), inverted keyword index
// (L3), entity mention index (L4), n-gram fuzzy/substring index (L6), a
// first-party BM25 full-text index, and a flat/IVF vector index. The
// indexes share a broad add/remove/query/flush shape, but method names and
// signatures differ per index; document ids are namespaced by subsystem
// (mem:/edge:/node:/fsh:/ctx:) so the retriever can dereference a hit
// without consulting a side table.
package index

import "strings"

// DocKind is the namespace prefix encoded in every document id.
type DocKind string

const (
	KindMemory        DocKind = "mem"
	KindEdge          DocKind = "edge"
	KindNode          DocKind = "node"
	KindForeshadowing DocKind = "fsh"
	KindContext       DocKind = "ctx"
)

// SplitDocID returns the namespace kind and remaining id, per the
// "mem:<uuid>" / "fsh:<user>:<char>:<id>" convention of SPEC_FULL.md §4.A.
func SplitDocID(docID string) (DocKind, string) {
	parts := strings.SplitN(docID, ":", 2)
	if len(parts) != 2 {
		return "", docID
	}
	return DocKind(parts[0]), parts[1]
}

// Result is one scored hit from any index's Search.
type Result struct {
	DocID string
	Score float64
}

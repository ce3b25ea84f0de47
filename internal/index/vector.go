package index

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"sync"

	sqlitevec "github.com/asg017/sqlite-vec-go-bindings/ncruces"

	"github.com/kittclouds/recall/internal/errs"
)

// VectorIndex is L7: dense-embedding nearest-neighbor search over memory and
// node content. Two implementations share this contract: FlatVectorIndex (a
// brute-force linear scan, exact and simplest, fine up to a few tens of
// thousands of vectors) and SQLiteVectorIndex (delegates ANN search to the
// sqlite-vec vec0 virtual table when the SQLite backend is active, per
// SPEC_FULL.md §10's instruction to wire asg017/sqlite-vec-go-bindings — the
// teacher's internal/store/sqlite_store.go imports it for side effects only
// and never issues a vec0 query; this index is where that dependency
// actually gets exercised).
type VectorIndex interface {
	Add(docID string, embedding []float32) error
	Remove(docID string) error
	Search(ctx context.Context, query []float32, topK int) ([]Result, error)
	Close() error
}

// FlatVectorIndex is an exact brute-force cosine-similarity scan, partitioned
// into coarse buckets (IVF-style) so Search only scans the clusters nearest
// the query instead of the whole corpus once the corpus grows past
// ivfThreshold vectors. Below that threshold it degrades to a plain flat
// scan — exact results, no clustering overhead for small corpora.
type FlatVectorIndex struct {
	mu            sync.RWMutex
	vectors       map[string][]float32
	centroids     [][]float32
	assignment    map[string]int // docID -> centroid index, once clustered
	dim           int
	ivfThreshold  int
	nClusters     int
}

// NewFlatVectorIndex creates an empty index. ivfThreshold is the corpus size
// at which Rebuild switches from flat scan to IVF partitioning; nClusters is
// the number of coarse partitions to build when it does.
func NewFlatVectorIndex(ivfThreshold, nClusters int) *FlatVectorIndex {
	if ivfThreshold <= 0 {
		ivfThreshold = 5000
	}
	if nClusters <= 0 {
		nClusters = 16
	}
	return &FlatVectorIndex{
		vectors:      make(map[string][]float32),
		assignment:   make(map[string]int),
		ivfThreshold: ivfThreshold,
		nClusters:    nClusters,
	}
}

func (f *FlatVectorIndex) Add(docID string, embedding []float32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.dim == 0 {
		f.dim = len(embedding)
	} else if len(embedding) != f.dim {
		return errs.New(errs.Conflict, fmt.Sprintf("embedding dim mismatch: index is %d, got %d", f.dim, len(embedding)))
	}
	f.vectors[docID] = embedding
	return nil
}

func (f *FlatVectorIndex) Remove(docID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.vectors, docID)
	delete(f.assignment, docID)
	return nil
}

// Rebuild partitions the corpus into nClusters coarse buckets via a small
// fixed number of Lloyd's-algorithm iterations, run only when the corpus
// reaches ivfThreshold. Below that, Search flat-scans everything and
// Rebuild is a no-op.
func (f *FlatVectorIndex) Rebuild() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.vectors) < f.ivfThreshold {
		f.centroids = nil
		f.assignment = make(map[string]int)
		return
	}
	ids := make([]string, 0, len(f.vectors))
	for id := range f.vectors {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	k := f.nClusters
	if k > len(ids) {
		k = len(ids)
	}
	centroids := make([][]float32, k)
	for i := 0; i < k; i++ {
		step := len(ids) / k
		centroids[i] = append([]float32(nil), f.vectors[ids[i*step]]...)
	}

	assignment := make(map[string]int, len(ids))
	for iter := 0; iter < 5; iter++ {
		for _, id := range ids {
			best, bestSim := 0, -2.0
			for ci, c := range centroids {
				sim := cosineSim(f.vectors[id], c)
				if sim > bestSim {
					best, bestSim = ci, sim
				}
			}
			assignment[id] = best
		}
		sums := make([][]float64, k)
		counts := make([]int, k)
		for ci := range sums {
			sums[ci] = make([]float64, f.dim)
		}
		for _, id := range ids {
			ci := assignment[id]
			counts[ci]++
			for d, v := range f.vectors[id] {
				sums[ci][d] += float64(v)
			}
		}
		for ci := range centroids {
			if counts[ci] == 0 {
				continue
			}
			newC := make([]float32, f.dim)
			for d := range newC {
				newC[d] = float32(sums[ci][d] / float64(counts[ci]))
			}
			centroids[ci] = newC
		}
	}
	f.centroids = centroids
	f.assignment = assignment
}

// Search returns the topK nearest neighbors to query by cosine similarity.
// When the index has been clustered (Rebuild ran at or above ivfThreshold), only
// the nearest few clusters are scanned; otherwise every vector is scanned.
func (f *FlatVectorIndex) Search(ctx context.Context, query []float32, topK int) ([]Result, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	candidates := f.vectors
	if len(f.centroids) > 0 {
		type ranked struct {
			idx int
			sim float64
		}
		cr := make([]ranked, len(f.centroids))
		for i, c := range f.centroids {
			cr[i] = ranked{i, cosineSim(query, c)}
		}
		sort.Slice(cr, func(i, j int) bool { return cr[i].sim > cr[j].sim })
		probe := 2
		if probe > len(cr) {
			probe = len(cr)
		}
		probeSet := make(map[int]bool, probe)
		for i := 0; i < probe; i++ {
			probeSet[cr[i].idx] = true
		}
		candidates = make(map[string][]float32)
		for id, ci := range f.assignment {
			if probeSet[ci] {
				candidates[id] = f.vectors[id]
			}
		}
	}

	scores := make(map[string]float64, len(candidates))
	for id, v := range candidates {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		scores[id] = cosineSim(query, v)
	}
	return topResults(scores, topK), nil
}

func (f *FlatVectorIndex) Close() error { return nil }

// Vector returns the stored embedding for docID, for callers (the retriever's
// L8 exact re-score pass) that need the raw vector rather than a ranked
// Search result.
func (f *FlatVectorIndex) Vector(docID string) ([]float32, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	v, ok := f.vectors[docID]
	return v, ok
}

// Flush writes the index to path in SPEC_FULL.md §6's vector.bin format:
// little-endian [u32 count][u32 dim][count x (u32 id_len, id bytes)][count x
// dim x f32]. An empty path is a no-op, matching the other indexes' Flush.
func (f *FlatVectorIndex) Flush(path string) error {
	if path == "" {
		return nil
	}
	f.mu.RLock()
	defer f.mu.RUnlock()

	ids := make([]string, 0, len(f.vectors))
	for id := range f.vectors {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var buf bytes.Buffer
	binary.Write(&buf, binary.LittleEndian, uint32(len(ids)))
	binary.Write(&buf, binary.LittleEndian, uint32(f.dim))
	for _, id := range ids {
		binary.Write(&buf, binary.LittleEndian, uint32(len(id)))
		buf.WriteString(id)
	}
	for _, id := range ids {
		for _, v := range f.vectors[id] {
			binary.Write(&buf, binary.LittleEndian, v)
		}
	}
	return writeAtomicFile(path, buf.Bytes())
}

// Load rebuilds the index from path's vector.bin contents; a missing file is
// not an error.
func (f *FlatVectorIndex) Load(path string) error {
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errs.Wrap(errs.CorruptIndex, "reading vector index", err)
	}
	r := bytes.NewReader(data)
	var count, dim uint32
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return errs.Wrap(errs.CorruptIndex, "parsing vector index header", err)
	}
	if err := binary.Read(r, binary.LittleEndian, &dim); err != nil {
		return errs.Wrap(errs.CorruptIndex, "parsing vector index header", err)
	}

	ids := make([]string, count)
	for i := range ids {
		var idLen uint32
		if err := binary.Read(r, binary.LittleEndian, &idLen); err != nil {
			return errs.Wrap(errs.CorruptIndex, "parsing vector index id table", err)
		}
		idBytes := make([]byte, idLen)
		if _, err := io.ReadFull(r, idBytes); err != nil {
			return errs.Wrap(errs.CorruptIndex, "parsing vector index id table", err)
		}
		ids[i] = string(idBytes)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.dim = int(dim)
	for _, id := range ids {
		vec := make([]float32, dim)
		if err := binary.Read(r, binary.LittleEndian, vec); err != nil {
			return errs.Wrap(errs.CorruptIndex, "parsing vector index vectors", err)
		}
		f.vectors[id] = vec
	}
	return nil
}

func cosineSim(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// SQLiteVectorIndex delegates vector search to a sqlite-vec vec0 virtual
// table, used when the engine is configured with the SQLite store backend.
// Grounded on the teacher's internal/store/sqlite_store.go import of
// asg017/sqlite-vec-go-bindings/ncruces (there for its side-effect
// registration of the vec0 module); this index is what actually issues
// vec0 DDL/DML/queries against it.
type SQLiteVectorIndex struct {
	db    *sql.DB
	table string
	dim   int
}

// NewSQLiteVectorIndex creates (or reuses) a vec0 virtual table named table
// in db, sized for dim-dimensional float32 embeddings.
func NewSQLiteVectorIndex(db *sql.DB, table string, dim int) (*SQLiteVectorIndex, error) {
	ddl := fmt.Sprintf("CREATE VIRTUAL TABLE IF NOT EXISTS %s USING vec0(doc_id TEXT PRIMARY KEY, embedding float[%d])", table, dim)
	if _, err := db.Exec(ddl); err != nil {
		return nil, errs.Wrap(errs.Fatal, "creating vec0 virtual table", err)
	}
	return &SQLiteVectorIndex{db: db, table: table, dim: dim}, nil
}

func (s *SQLiteVectorIndex) Add(docID string, embedding []float32) error {
	blob, err := sqlitevec.SerializeFloat32(embedding)
	if err != nil {
		return errs.Wrap(errs.Fatal, "serializing embedding", err)
	}
	query := fmt.Sprintf("INSERT INTO %s(doc_id, embedding) VALUES (?, ?) ON CONFLICT(doc_id) DO UPDATE SET embedding = excluded.embedding", s.table)
	if _, err := s.db.Exec(query, docID, blob); err != nil {
		return errs.Wrap(errs.Fatal, "inserting vec0 row", err)
	}
	return nil
}

func (s *SQLiteVectorIndex) Remove(docID string) error {
	query := fmt.Sprintf("DELETE FROM %s WHERE doc_id = ?", s.table)
	if _, err := s.db.Exec(query, docID); err != nil {
		return errs.Wrap(errs.Fatal, "deleting vec0 row", err)
	}
	return nil
}

func (s *SQLiteVectorIndex) Search(ctx context.Context, query []float32, topK int) ([]Result, error) {
	blob, err := sqlitevec.SerializeFloat32(query)
	if err != nil {
		return nil, errs.Wrap(errs.Fatal, "serializing query embedding", err)
	}
	sqlQuery := fmt.Sprintf(`
		SELECT doc_id, distance
		FROM %s
		WHERE embedding MATCH ? AND k = ?
		ORDER BY distance`, s.table)
	rows, err := s.db.QueryContext(ctx, sqlQuery, blob, topK)
	if err != nil {
		return nil, errs.Wrap(errs.Fatal, "querying vec0 index", err)
	}
	defer rows.Close()

	var out []Result
	for rows.Next() {
		var docID string
		var distance float64
		if err := rows.Scan(&docID, &distance); err != nil {
			return nil, errs.Wrap(errs.Fatal, "scanning vec0 result", err)
		}
		out = append(out, Result{DocID: docID, Score: 1 / (1 + distance)})
	}
	return out, rows.Err()
}

func (s *SQLiteVectorIndex) Close() error { return nil }

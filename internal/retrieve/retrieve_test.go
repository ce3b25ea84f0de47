package retrieve

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/kittclouds/recall/internal/graph"
	"github.com/kittclouds/recall/internal/index"
	"github.com/kittclouds/recall/internal/model"
	"github.com/kittclouds/recall/internal/store"
)

func newTestFixture(t *testing.T) (*Retriever, store.Storer) {
	t.Helper()
	dir, err := os.MkdirTemp("", "recall-retrieve-test-*")
	if err != nil {
		t.Fatalf("temp dir: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })

	st, err := store.Open(dir)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	g, err := graph.New(st, nil)
	if err != nil {
		t.Fatalf("new graph: %v", err)
	}

	bloom := index.NewCountingBloom(100, 0.01)
	temporal := index.NewTemporalIndex("")
	inverted := index.NewInvertedIndex("", 0)
	entity := index.NewEntityIndex("")
	ngram := index.NewNgramIndex("", 2)
	vector := index.NewFlatVectorIndex(10000, 8)

	r := New(bloom, temporal, inverted, entity, ngram, vector, g, st, nil, nil, nil)
	return r, st
}

func seedEpisode(t *testing.T, r *Retriever, st store.Storer, id, content string, ts time.Time) {
	t.Helper()
	ep := &model.Episode{ID: id, Content: content, Timestamp: ts, Role: model.RoleUser}
	if err := st.AppendEpisode(ep); err != nil {
		t.Fatalf("append episode: %v", err)
	}
	docID := "mem:" + id
	for _, kw := range index.Tokenize(content) {
		r.bloom.Add(kw)
	}
	if err := r.inverted.Add(docID, content); err != nil {
		t.Fatalf("index inverted: %v", err)
	}
	if err := r.ngram.Add(docID, content); err != nil {
		t.Fatalf("index ngram: %v", err)
	}
}

func TestRetrieveKeywordArm(t *testing.T) {
	r, st := newTestFixture(t)
	seedEpisode(t, r, st, "1", "Luffy sailed toward the Grand Line", time.Now())
	seedEpisode(t, r, st, "2", "Nami studied the weather charts", time.Now())

	cfg := DefaultConfig()
	cfg.VectorEnabled = false
	cfg.GraphEnabled = false
	cfg.EntityEnabled = false

	results, err := r.Retrieve(context.Background(), "grand line", nil, []string{"grand", "line"}, 10, nil, nil, &cfg)
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	if len(results) == 0 || results[0].DocID != "mem:1" {
		t.Fatalf("expected mem:1 to rank first, got %+v", results)
	}
}

func TestRetrieveEntityArm(t *testing.T) {
	r, st := newTestFixture(t)
	seedEpisode(t, r, st, "1", "Luffy fought Kaido at the rooftop", time.Now())
	seedEpisode(t, r, st, "2", "The weather was calm that day", time.Now())
	r.entity.AddMention("Luffy", "mem:1")

	cfg := DefaultConfig()
	cfg.VectorEnabled = false
	cfg.GraphEnabled = false
	cfg.InvertedEnabled = false

	results, err := r.Retrieve(context.Background(), "", []string{"Luffy"}, nil, 10, nil, nil, &cfg)
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	if len(results) != 1 || results[0].DocID != "mem:1" {
		t.Fatalf("expected only mem:1 via entity arm, got %+v", results)
	}
}

func TestRetrieveHardRecallFallback(t *testing.T) {
	r, st := newTestFixture(t)
	seedEpisode(t, r, st, "1", "an extremely rare phrase xylophone-quartz appears here", time.Now())

	cfg := DefaultConfig()
	cfg.VectorEnabled = false
	cfg.GraphEnabled = false
	cfg.EntityEnabled = false
	cfg.InvertedEnabled = false
	cfg.NgramEnabled = false

	results, err := r.Retrieve(context.Background(), "xylophone-quartz", nil, nil, 10, nil, nil, &cfg)
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	if len(results) != 1 || results[0].DocID != "mem:1" {
		t.Fatalf("expected hard-recall fallback to find mem:1, got %+v", results)
	}
}

func TestRetrieveEmptyWhenNoFallback(t *testing.T) {
	r, _ := newTestFixture(t)
	cfg := DefaultConfig()
	cfg.FallbackEnabled = false
	cfg.VectorEnabled = false
	cfg.GraphEnabled = false

	results, err := r.Retrieve(context.Background(), "nothing indexed", nil, []string{"nothing"}, 10, nil, nil, &cfg)
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("expected no results with fallback disabled, got %+v", results)
	}
}

func TestFuseArmsRRF(t *testing.T) {
	r, _ := newTestFixture(t)
	arms := map[string][]index.Result{
		"keyword": {{DocID: "mem:1", Score: 3}, {DocID: "mem:2", Score: 1}},
		"entity":  {{DocID: "mem:1", Score: 2}},
	}
	cfg := DefaultConfig()
	fused := r.fuseArms(&cfg, arms)
	if len(fused) != 2 || fused[0].DocID != "mem:1" {
		t.Fatalf("expected mem:1 to rank first from both arms agreeing, got %+v", fused)
	}
}

func TestRetrieveAsyncDeliversResult(t *testing.T) {
	r, st := newTestFixture(t)
	seedEpisode(t, r, st, "1", "Zoro trained with three swords", time.Now())

	cfg := DefaultConfig()
	cfg.VectorEnabled = false
	cfg.GraphEnabled = false
	cfg.EntityEnabled = false

	ch := r.RetrieveAsync(context.Background(), "three swords", nil, []string{"three", "swords"}, 10, nil, nil, &cfg, false)
	select {
	case res := <-ch:
		if res.Err != nil {
			t.Fatalf("unexpected error: %v", res.Err)
		}
		if len(res.Results) == 0 || res.Results[0].DocID != "mem:1" {
			t.Fatalf("expected mem:1, got %+v", res.Results)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for RetrieveAsync result")
	}
}

func TestLexicalOverlapScorer(t *testing.T) {
	s := lexicalOverlapScorer{}
	high := s.Score("Luffy fought Kaido", "Luffy fought Kaido on the rooftop")
	low := s.Score("Luffy fought Kaido", "Nami studied the weather charts")
	if high <= low {
		t.Fatalf("expected high overlap score (%f) to exceed low (%f)", high, low)
	}
}

func TestDeterministicTieBreakByDocID(t *testing.T) {
	results := []index.Result{
		{DocID: "mem:b", Score: 1},
		{DocID: "mem:a", Score: 1},
	}
	sortDeterministic(results)
	if results[0].DocID != "mem:a" {
		t.Fatalf("expected docID-ascending tie-break, got %+v", results)
	}
}

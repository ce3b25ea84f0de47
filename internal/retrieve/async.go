package retrieve

import (
	"context"

	"github.com/kittclouds/recall/internal/index"
)

// AsyncResult is delivered on RetrieveAsync's channel: either the final
// hits or an error, never both.
type AsyncResult struct {
	Results []index.Result
	Err     error
}

// RetrieveAsync runs Retrieve and, if an LLMJudge is wired and
// llmJudgeEnabled is set, additionally applies L11 before delivering on the returned channel.
// The channel is buffered by one so the goroutine never blocks on a caller
// that stops listening (e.g. after ctx is canceled). L11 is the only layer
// requiring this async form: it's the sole blocking-on-external-I/O step in
// the refine phase, per SPEC_FULL.md §4.E.
func (r *Retriever) RetrieveAsync(
	ctx context.Context,
	query string,
	entities []string,
	keywords []string,
	topK int,
	filters *Filters,
	window *TimeWindow,
	cfg *Config,
	llmJudgeEnabled bool,
) <-chan AsyncResult {
	out := make(chan AsyncResult, 1)
	go func() {
		results, err := r.Retrieve(ctx, query, entities, keywords, topK, filters, window, cfg)
		if err != nil {
			out <- AsyncResult{Err: err}
			return
		}
		if llmJudgeEnabled && r.llmJudge != nil && len(results) > 0 {
			judged, jerr := r.l11LLMJudge(ctx, query, results)
			if jerr == nil {
				results = judged
			}
			// on error (including context deadline) the prior order is kept
			// silently, per SPEC_FULL.md §4.E's L11 timeout behavior.
		}
		out <- AsyncResult{Results: results}
	}()
	return out
}

// l11LLMJudge asks the wired LLMJudge for a normalized 0-1 relevance score
// per candidate and replaces the prior score outright (L11 is the final,
// most expensive refinement pass). Candidates the judge doesn't return a
// score for keep their prior score; all candidates are then re-sorted
// together by score, so an unjudged candidate can rank above a judged one.
func (r *Retriever) l11LLMJudge(ctx context.Context, query string, candidates []index.Result) ([]index.Result, error) {
	docs := make([]JudgeDoc, len(candidates))
	for i, c := range candidates {
		docs[i] = JudgeDoc{DocID: c.DocID, Text: r.dereferenceText(c.DocID)}
	}
	scores, err := r.llmJudge.Judge(ctx, query, docs)
	if err != nil {
		return nil, err
	}
	out := make([]index.Result, len(candidates))
	for i, c := range candidates {
		if s, ok := scores[c.DocID]; ok {
			out[i] = index.Result{DocID: c.DocID, Score: s}
		} else {
			out[i] = c
		}
	}
	sortDeterministic(out)
	return out, nil
}

package engine

import "time"

// AddResult is the response shape of Engine.Add (SPEC_FULL.md §6):
// {id, entities[], consistency_warnings[]}.
type AddResult struct {
	ID                  string
	Entities            []string
	ConsistencyWarnings []string
}

// SearchHit is one scored result from Engine.Search: {id, score, content,
// metadata, entities}.
type SearchHit struct {
	ID       string
	Score    float64
	Content  string
	Metadata map[string]any
	Entities []string
}

// TenantStats mirrors the original's administrative stats() call: node,
// fact and episode counts plus the contradiction manager's own Stats.
type TenantStats struct {
	NodeCount           int
	FactCount           int
	EpisodeCount        int
	PendingContradictions  int
	ResolvedContradictions int
}

// dateRange is the result of parseDateRange: the [from, until) validity
// bounds an engine-level regex scan recovered from a relation's source
// sentence. Either bound may be nil (open-ended).
type dateRange struct {
	from  *time.Time
	until *time.Time
}

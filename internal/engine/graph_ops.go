package engine

import (
	"time"

	"github.com/kittclouds/recall/internal/graph"
	"github.com/kittclouds/recall/internal/model"
)

// QueryAtTime returns subject's active facts whose validity interval
// contains t, optionally filtered by predicate (SPEC_FULL.md §6/§4.B).
func (e *Engine) QueryAtTime(userID, characterID, subject string, t time.Time, predicate string) ([]*model.TemporalFact, error) {
	tn, err := e.getTenant(userID, characterID)
	if err != nil {
		return nil, err
	}
	tn.mu.Lock()
	defer tn.mu.Unlock()
	return tn.graph.QueryAtTime(subject, t, predicate)
}

// QueryTimeline returns the chronologically sorted (time, fact, event)
// sequence for subject, optionally filtered by predicate and/or a [start,
// end] window.
func (e *Engine) QueryTimeline(userID, characterID, subject, predicate string, start, end *time.Time) ([]graph.TimelineEvent, error) {
	tn, err := e.getTenant(userID, characterID)
	if err != nil {
		return nil, err
	}
	tn.mu.Lock()
	defer tn.mu.Unlock()
	return tn.graph.QueryTimeline(subject, predicate, start, end)
}

// BFS returns the depth-bucketed neighbourhood of startID up to maxDepth
// hops, optionally filtered by predicate and/or a point-in-time restriction.
func (e *Engine) BFS(userID, characterID, startID string, maxDepth int, predicateFilter string, timeFilter *graph.TimeFilter, direction graph.Direction) (*graph.BFSResult, error) {
	tn, err := e.getTenant(userID, characterID)
	if err != nil {
		return nil, err
	}
	tn.mu.Lock()
	defer tn.mu.Unlock()
	return tn.graph.BFS(startID, maxDepth, predicateFilter, timeFilter, direction), nil
}

// FindPath returns the shortest directed path of currently-valid edges from
// source to target, or nil if unreachable within maxDepth hops.
func (e *Engine) FindPath(userID, characterID, source, target string, maxDepth int, timeFilter *graph.TimeFilter) ([]string, error) {
	tn, err := e.getTenant(userID, characterID)
	if err != nil {
		return nil, err
	}
	tn.mu.Lock()
	defer tn.mu.Unlock()
	return tn.graph.FindPath(source, target, maxDepth, timeFilter), nil
}

// GetNeighbors returns id's immediate neighbours in direction, optionally
// filtered by predicate and/or a point-in-time restriction.
func (e *Engine) GetNeighbors(userID, characterID, id, predicateFilter string, timeFilter *graph.TimeFilter, direction graph.Direction) ([]string, error) {
	tn, err := e.getTenant(userID, characterID)
	if err != nil {
		return nil, err
	}
	tn.mu.Lock()
	defer tn.mu.Unlock()
	return tn.graph.GetNeighbors(id, predicateFilter, timeFilter, direction), nil
}

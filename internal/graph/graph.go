// Package graph implements the tri-temporal graph (SPEC_FULL.md §4.B): the
// sole write-owner of nodes, edges (TemporalFacts) and episodes. It keeps
// in-memory indexes (facts by subject, by object and by predicate; nodes by
// id and by name) that are authoritative at query time regardless of which Storer
// backend is selected, matching the teacher's internal/store.Storer
// "pluggable backend, query answers must match" contract. No pack example
// ships a concept graph implementation (the teacher's own pkg/graph and
// pkg/response/slim.go reference one, but only its usage survives — see
// DESIGN.md): BFS/FindPath/DetectCommunities below are first-party,
// grounded on that usage shape (ConceptGraph.Nodes/Edges, NewGraph,
// EnsureNode, AddLabeledEdge) generalized to the tri-temporal domain.
package graph

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/kittclouds/recall/internal/errs"
	"github.com/kittclouds/recall/internal/idgen"
	"github.com/kittclouds/recall/internal/model"
	"github.com/kittclouds/recall/internal/store"
)

// ContradictionDetector is implemented by internal/contradiction.Manager.
// Kept as an interface here (rather than an import) so the contradiction
// package never needs to import graph back.
type ContradictionDetector interface {
	DetectContradictions(existing []*model.TemporalFact, candidate *model.TemporalFact) ([]*model.Contradiction, error)
}

// Direction constrains BFS/FindPath traversal.
type Direction string

const (
	DirOut  Direction = "out"
	DirIn   Direction = "in"
	DirBoth Direction = "both"
)

// TimeFilter restricts traversal/queries to facts valid at a given instant.
// A zero value means "no time restriction, consider all active facts".
type TimeFilter struct {
	At      time.Time
	Enabled bool
}

// TimelineEvent is one point on a subject's timeline, as returned by
// QueryTimeline.
type TimelineEvent struct {
	Time  time.Time
	Fact  *model.TemporalFact
	Event model.EventKind
}

// SnapshotDiff is the result of CompareSnapshots.
type SnapshotDiff struct {
	Added          []*model.TemporalFact
	Removed        []*model.TemporalFact
	UnchangedCount int
}

// BFSResult buckets reachable node ids by hop distance from the start node.
type BFSResult struct {
	Depth map[string]int
	Order []string // visitation order, start node first
}

// defaultSelfLoopAllowlist holds predicates permitted on subject==object
// edges. It is empty, so every self-loop is rejected, resolving
// SPEC_FULL.md §4.B's self-loop Open Question as "reject by default".
var defaultSelfLoopAllowlist = map[string]bool{}

// Graph is the tri-temporal graph: the write owner of nodes/edges/episodes,
// backed by a pluggable store.Storer.
type Graph struct {
	mu    sync.RWMutex
	store store.Storer

	contradictions ContradictionDetector
	selfLoopAllow  map[string]bool

	// In-memory adjacency indexes, authoritative at query time.
	nodesByID     map[string]*model.Node
	nodesByName   map[string]string // normalized name -> node id
	factsByID     map[string]*model.TemporalFact
	factsBySubj   map[string][]string // subject node id -> fact ids
	factsByObj    map[string][]string // object node id -> fact ids
	factsByPred   map[string][]string // predicate -> fact ids
}

// New constructs a Graph over s, loading its current node/fact set into the
// in-memory indexes. detector may be nil, in which case AddEdge never runs
// contradiction detection regardless of checkContradiction.
func New(s store.Storer, detector ContradictionDetector) (*Graph, error) {
	g := &Graph{
		store:          s,
		contradictions: detector,
		selfLoopAllow:  defaultSelfLoopAllowlist,
		nodesByID:      make(map[string]*model.Node),
		nodesByName:    make(map[string]string),
		factsByID:      make(map[string]*model.TemporalFact),
		factsBySubj:    make(map[string][]string),
		factsByObj:     make(map[string][]string),
		factsByPred:    make(map[string][]string),
	}
	if err := g.reload(); err != nil {
		return nil, err
	}
	return g, nil
}

func (g *Graph) reload() error {
	nodes, err := g.store.ListNodes("")
	if err != nil {
		return errs.Wrap(errs.Fatal, "loading nodes", err)
	}
	for _, n := range nodes {
		g.indexNodeLocked(n)
	}
	facts, err := g.store.ListAllFacts()
	if err != nil {
		return errs.Wrap(errs.Fatal, "loading facts", err)
	}
	for _, f := range facts {
		g.indexFactLocked(f)
	}
	return nil
}

func (g *Graph) indexNodeLocked(n *model.Node) {
	g.nodesByID[n.ID] = n
	g.nodesByName[normalizeName(n.Name)] = n.ID
}

func (g *Graph) indexFactLocked(f *model.TemporalFact) {
	g.factsByID[f.ID] = f
	g.factsBySubj[f.Subject] = appendUnique(g.factsBySubj[f.Subject], f.ID)
	g.factsByObj[f.Object] = appendUnique(g.factsByObj[f.Object], f.ID)
	g.factsByPred[f.Predicate] = appendUnique(g.factsByPred[f.Predicate], f.ID)
}

func appendUnique(ids []string, id string) []string {
	for _, existing := range ids {
		if existing == id {
			return ids
		}
	}
	return append(ids, id)
}

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// AddNode upserts a node by normalized name: merges into an existing active
// node (bumping VerificationCount, merging aliases/attributes) or creates a
// new one.
func (g *Graph) AddNode(name string, nodeType model.NodeType, attrs map[string]any, aliases []string) (*model.Node, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := time.Now()
	if existingID, ok := g.nodesByName[normalizeName(name)]; ok {
		existing := g.nodesByID[existingID]
		if existing != nil && existing.Active() {
			existing.VerificationCount++
			existing.UpdatedAt = now
			existing.Aliases = mergeAliases(existing.Aliases, aliases)
			if existing.Attributes == nil {
				existing.Attributes = make(map[string]any)
			}
			for k, v := range attrs {
				existing.Attributes[k] = v
			}
			if err := g.store.UpsertNode(existing); err != nil {
				return nil, errs.Wrap(errs.Fatal, "persisting merged node", err)
			}
			return existing, nil
		}
	}

	n := &model.Node{
		ID:                idgen.Prefixed("node"),
		Name:              name,
		NodeType:          nodeType,
		Attributes:        attrs,
		Aliases:           aliases,
		VerificationCount: 1,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := g.store.UpsertNode(n); err != nil {
		return nil, errs.Wrap(errs.Fatal, "persisting new node", err)
	}
	g.indexNodeLocked(n)
	return n, nil
}

func mergeAliases(existing, incoming []string) []string {
	seen := make(map[string]bool, len(existing))
	for _, a := range existing {
		seen[strings.ToLower(a)] = true
	}
	out := existing
	for _, a := range incoming {
		key := strings.ToLower(a)
		if !seen[key] {
			seen[key] = true
			out = append(out, a)
		}
	}
	return out
}

// resolveNodeRef resolves a caller-supplied subject/object reference: if it
// matches an existing node id it is returned as-is; otherwise it is treated
// as a name and upserted via AddNode (defaulting to NodeEntity).
func (g *Graph) resolveNodeRef(ref string) (string, error) {
	g.mu.RLock()
	if _, ok := g.nodesByID[ref]; ok {
		g.mu.RUnlock()
		return ref, nil
	}
	if id, ok := g.nodesByName[normalizeName(ref)]; ok {
		g.mu.RUnlock()
		return id, nil
	}
	g.mu.RUnlock()

	n, err := g.AddNode(ref, model.NodeEntity, nil, nil)
	if err != nil {
		return "", err
	}
	return n.ID, nil
}

// AddEdge upserts the subject/object nodes if supplied as names, constructs
// the TemporalFact, optionally runs contradiction detection, appends it to
// the indexes, and returns (fact, contradictions).
func (g *Graph) AddEdge(
	subject, predicate, object, factText string,
	validFrom, validUntil *time.Time,
	sourceText string,
	confidence float64,
	checkContradiction bool,
) (*model.TemporalFact, []*model.Contradiction, error) {
	subjID, err := g.resolveNodeRef(subject)
	if err != nil {
		return nil, nil, err
	}
	objID, err := g.resolveNodeRef(object)
	if err != nil {
		return nil, nil, err
	}
	if subjID == objID && !g.selfLoopAllow[predicate] {
		return nil, nil, errs.Conflictf("self-loop edge rejected for predicate %q (subject == object == %s)", predicate, subjID)
	}

	now := time.Now()
	fact := &model.TemporalFact{
		ID:         idgen.Prefixed("edge"),
		Subject:    subjID,
		Predicate:  predicate,
		Object:     objID,
		Fact:       factText,
		ValidFrom:  validFrom,
		ValidUntil: validUntil,
		KnownAt:    now,
		CreatedAt:  now,
		Confidence: confidence,
		SourceText: sourceText,
	}

	var contradictions []*model.Contradiction
	if checkContradiction && g.contradictions != nil {
		existing, err := g.ListFactsForSubject(subjID)
		if err != nil {
			return nil, nil, err
		}
		contradictions, err = g.contradictions.DetectContradictions(existing, fact)
		if err != nil {
			return nil, nil, errs.Wrap(errs.Fatal, "detecting contradictions", err)
		}
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.store.UpsertFact(fact); err != nil {
		return nil, nil, errs.Wrap(errs.Fatal, "persisting fact", err)
	}
	g.indexFactLocked(fact)
	return fact, contradictions, nil
}

// ListFactsForSubject returns every active fact for subject node id,
// answered from the in-memory index.
func (g *Graph) ListFactsForSubject(subjectID string) ([]*model.TemporalFact, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	ids := g.factsBySubj[subjectID]
	out := make([]*model.TemporalFact, 0, len(ids))
	for _, id := range ids {
		if f := g.factsByID[id]; f != nil && f.Active() {
			out = append(out, f)
		}
	}
	return out, nil
}

// GetNode returns a node by id.
func (g *Graph) GetNode(id string) (*model.Node, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	n, ok := g.nodesByID[id]
	if !ok {
		return nil, errs.NotFoundf("node %q", id)
	}
	return n, nil
}

// QueryAtTime returns active facts for subject whose validity interval
// contains t, optionally filtered by predicate.
func (g *Graph) QueryAtTime(subject string, t time.Time, predicate string) ([]*model.TemporalFact, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var out []*model.TemporalFact
	for _, id := range g.factsBySubj[subject] {
		f := g.factsByID[id]
		if f == nil || !f.Active() || !f.ValidAt(t) {
			continue
		}
		if predicate != "" && f.Predicate != predicate {
			continue
		}
		out = append(out, f)
	}
	return out, nil
}

// QueryTimeline returns chronological start/end/superseded events for
// subject, optionally filtered by predicate and [start,end].
func (g *Graph) QueryTimeline(subject, predicate string, start, end *time.Time) ([]TimelineEvent, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var events []TimelineEvent
	for _, id := range g.factsBySubj[subject] {
		f := g.factsByID[id]
		if f == nil {
			continue
		}
		if predicate != "" && f.Predicate != predicate {
			continue
		}
		if f.ValidFrom != nil && withinRange(*f.ValidFrom, start, end) {
			events = append(events, TimelineEvent{Time: *f.ValidFrom, Fact: f, Event: model.EventStarted})
		}
		if f.ValidUntil != nil && withinRange(*f.ValidUntil, start, end) {
			events = append(events, TimelineEvent{Time: *f.ValidUntil, Fact: f, Event: model.EventEnded})
		}
		if f.SupersededAt != nil && withinRange(*f.SupersededAt, start, end) {
			events = append(events, TimelineEvent{Time: *f.SupersededAt, Fact: f, Event: model.EventSuperseded})
		}
	}
	sort.Slice(events, func(i, j int) bool { return events[i].Time.Before(events[j].Time) })
	return events, nil
}

func withinRange(t time.Time, start, end *time.Time) bool {
	if start != nil && t.Before(*start) {
		return false
	}
	if end != nil && t.After(*end) {
		return false
	}
	return true
}

// CompareSnapshots diffs the fact set valid at T1 against T2 for subject.
func (g *Graph) CompareSnapshots(subject string, t1, t2 time.Time) (*SnapshotDiff, error) {
	at1, err := g.QueryAtTime(subject, t1, "")
	if err != nil {
		return nil, err
	}
	at2, err := g.QueryAtTime(subject, t2, "")
	if err != nil {
		return nil, err
	}
	set1 := make(map[string]*model.TemporalFact, len(at1))
	for _, f := range at1 {
		set1[f.ID] = f
	}
	set2 := make(map[string]*model.TemporalFact, len(at2))
	for _, f := range at2 {
		set2[f.ID] = f
	}

	diff := &SnapshotDiff{}
	for id, f := range set2 {
		if _, ok := set1[id]; !ok {
			diff.Added = append(diff.Added, f)
		} else {
			diff.UnchangedCount++
		}
	}
	for id, f := range set1 {
		if _, ok := set2[id]; !ok {
			diff.Removed = append(diff.Removed, f)
		}
	}
	return diff, nil
}

// BFS performs depth-bucketed neighbour expansion from startID, up to
// maxDepth hops, optionally restricted by predicateFilter, timeFilter and
// traversal direction.
func (g *Graph) BFS(startID string, maxDepth int, predicateFilter string, timeFilter *TimeFilter, direction Direction) *BFSResult {
	g.mu.RLock()
	defer g.mu.RUnlock()

	result := &BFSResult{Depth: map[string]int{startID: 0}}
	result.Order = append(result.Order, startID)
	queue := []string{startID}
	for depth := 0; depth < maxDepth && len(queue) > 0; depth++ {
		var next []string
		for _, id := range queue {
			for _, neighbor := range g.neighborsLocked(id, predicateFilter, timeFilter, direction) {
				if _, seen := result.Depth[neighbor]; seen {
					continue
				}
				result.Depth[neighbor] = depth + 1
				result.Order = append(result.Order, neighbor)
				next = append(next, neighbor)
			}
		}
		queue = next
	}
	return result
}

// GetNeighbors returns id's immediate (one-hop) neighbours in direction,
// optionally filtered by predicate and/or a point-in-time validity check.
// Exposed for the engine facade's GetNeighbors operation — a BFS of depth 1
// without the bookkeeping BFS itself does for deeper traversals.
func (g *Graph) GetNeighbors(id, predicateFilter string, timeFilter *TimeFilter, direction Direction) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.neighborsLocked(id, predicateFilter, timeFilter, direction)
}

func (g *Graph) neighborsLocked(id, predicateFilter string, timeFilter *TimeFilter, direction Direction) []string {
	var out []string
	consider := func(factID string, forward bool) {
		f := g.factsByID[factID]
		if f == nil || !f.Active() {
			return
		}
		if predicateFilter != "" && f.Predicate != predicateFilter {
			return
		}
		if timeFilter != nil && timeFilter.Enabled && !f.ValidAt(timeFilter.At) {
			return
		}
		if forward {
			out = append(out, f.Object)
		} else {
			out = append(out, f.Subject)
		}
	}
	if direction == DirOut || direction == DirBoth {
		for _, factID := range g.factsBySubj[id] {
			consider(factID, true)
		}
	}
	if direction == DirIn || direction == DirBoth {
		for _, factID := range g.factsByObj[id] {
			consider(factID, false)
		}
	}
	return out
}

// FindPath returns the shortest directed path (node ids, source first, then
// one entry per hop) from source to target using only currently-valid
// edges, or nil if unreachable within maxDepth hops.
func (g *Graph) FindPath(source, target string, maxDepth int, timeFilter *TimeFilter) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if source == target {
		return []string{source}
	}
	visited := map[string]string{source: ""} // node -> predecessor
	queue := []string{source}
	for depth := 0; depth < maxDepth && len(queue) > 0; depth++ {
		var next []string
		for _, id := range queue {
			for _, neighbor := range g.neighborsLocked(id, "", timeFilter, DirOut) {
				if _, seen := visited[neighbor]; seen {
					continue
				}
				visited[neighbor] = id
				if neighbor == target {
					return reconstructPath(visited, source, target)
				}
				next = append(next, neighbor)
			}
		}
		queue = next
	}
	return nil
}

func reconstructPath(visited map[string]string, source, target string) []string {
	var path []string
	cur := target
	for {
		path = append([]string{cur}, path...)
		if cur == source {
			break
		}
		prev, ok := visited[cur]
		if !ok {
			return nil
		}
		cur = prev
	}
	return path
}

// RemoveNode soft-deletes id: sets ExpiredAt, cascades expiry to every
// incident edge, and unindexes the node from name lookup.
func (g *Graph) RemoveNode(id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	n, ok := g.nodesByID[id]
	if !ok {
		return errs.NotFoundf("node %q", id)
	}
	now := time.Now()
	n.ExpiredAt = &now
	n.UpdatedAt = now
	if err := g.store.UpsertNode(n); err != nil {
		return errs.Wrap(errs.Fatal, "persisting soft-deleted node", err)
	}
	delete(g.nodesByName, normalizeName(n.Name))

	incident := append(append([]string{}, g.factsBySubj[id]...), g.factsByObj[id]...)
	for _, factID := range incident {
		f := g.factsByID[factID]
		if f == nil || !f.Active() {
			continue
		}
		f.ExpiredAt = &now
		if err := g.store.UpsertFact(f); err != nil {
			return errs.Wrap(errs.Fatal, "cascading expiry to incident fact", err)
		}
	}
	return nil
}

// DetectCommunities groups the currently-valid edge set into connected
// components, materializing each as a synthetic community node. An
// administrative operation supplementing the distillation's dropped
// community-detection feature (SPEC_FULL.md §4.B).
func (g *Graph) DetectCommunities() ([]*model.Node, error) {
	g.mu.RLock()
	parent := make(map[string]string)
	var find func(string) string
	find = func(x string) string {
		if parent[x] != x {
			parent[x] = find(parent[x])
		}
		return parent[x]
	}
	union := func(a, b string) {
		ra, rb := find(a), find(b)
		if ra != rb {
			parent[ra] = rb
		}
	}
	for id := range g.nodesByID {
		parent[id] = id
	}
	for _, f := range g.factsByID {
		if !f.Active() {
			continue
		}
		if _, ok := parent[f.Subject]; !ok {
			continue
		}
		if _, ok := parent[f.Object]; !ok {
			continue
		}
		union(f.Subject, f.Object)
	}
	groups := make(map[string][]string)
	for id := range g.nodesByID {
		root := find(id)
		groups[root] = append(groups[root], id)
	}
	g.mu.RUnlock()

	var communities []*model.Node
	now := time.Now()
	for _, members := range groups {
		if len(members) < 2 {
			continue
		}
		sort.Strings(members)
		c := &model.Node{
			ID:        idgen.Prefixed("node"),
			Name:      "community:" + strings.Join(members[:min(3, len(members))], "+"),
			NodeType:  model.NodeCommunity,
			Attributes: map[string]any{"member_ids": members, "member_count": len(members)},
			CreatedAt: now,
			UpdatedAt: now,
		}
		communities = append(communities, c)
	}

	g.mu.Lock()
	for _, c := range communities {
		if err := g.store.UpsertNode(c); err != nil {
			g.mu.Unlock()
			return nil, errs.Wrap(errs.Fatal, "persisting community node", err)
		}
		g.indexNodeLocked(c)
	}
	g.mu.Unlock()
	return communities, nil
}

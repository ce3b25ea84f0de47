package store

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/kittclouds/recall/internal/errs"
	"github.com/kittclouds/recall/internal/model"
)

// JSONStore is the zero-external-dependency Storer: nodes and facts live in
// memory, mirrored to nodes.json/edges.json; episodes are an append-only
// episodes.jsonl; everything else gets its own small JSON file under the
// directory layout of SPEC_FULL.md §6. Grounded on the teacher's
// sqlite_store.go RWMutex-guarded, atomic-replace durability idiom, adapted
// to a flat-file backend since that idiom doesn't depend on SQLite itself.
type JSONStore struct {
	mu  sync.RWMutex
	dir string

	nodes map[string]*model.Node
	facts map[string]*model.TemporalFact

	episodes   []*model.Episode
	episodeF   *os.File

	rules        []*model.AbsoluteRule
	conditions   map[string]*model.PersistentCondition
	foreshadows  map[string]*model.Foreshadowing
	pending      map[string]*model.Contradiction
	resolved     []*model.Contradiction
}

var _ Storer = (*JSONStore)(nil)

// Open creates (if needed) and loads the directory-scoped JSON store rooted
// at dir, matching <root>/<user_id>/<character_id>/.
func Open(dir string) (*JSONStore, error) {
	if err := os.MkdirAll(filepath.Join(dir, "indexes"), 0o755); err != nil {
		return nil, errs.Wrap(errs.Fatal, "creating data root", err)
	}
	if err := os.MkdirAll(filepath.Join(dir, "contradictions"), 0o755); err != nil {
		return nil, errs.Wrap(errs.Fatal, "creating contradictions dir", err)
	}

	s := &JSONStore{
		dir:         dir,
		nodes:       make(map[string]*model.Node),
		facts:       make(map[string]*model.TemporalFact),
		conditions:  make(map[string]*model.PersistentCondition),
		foreshadows: make(map[string]*model.Foreshadowing),
		pending:     make(map[string]*model.Contradiction),
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(s.path("episodes.jsonl"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, errs.Wrap(errs.Fatal, "opening episodes.jsonl", err)
	}
	s.episodeF = f
	return s, nil
}

func (s *JSONStore) path(parts ...string) string {
	return filepath.Join(append([]string{s.dir}, parts...)...)
}

func (s *JSONStore) load() error {
	if err := loadJSON(s.path("nodes.json"), &s.nodes); err != nil {
		return err
	}
	if s.nodes == nil {
		s.nodes = make(map[string]*model.Node)
	}
	if err := loadJSONSlice(s.path("edges.json"), func(list []*model.TemporalFact) {
		for _, f := range list {
			s.facts[f.ID] = f
		}
	}); err != nil {
		return err
	}
	eps, err := loadJSONL[model.Episode](s.path("episodes.jsonl"))
	if err != nil {
		return err
	}
	s.episodes = eps

	var rules []*model.AbsoluteRule
	if err := loadJSONSlice(s.path("absolute_rules.json"), func(list []*model.AbsoluteRule) { rules = list }); err != nil {
		return err
	}
	s.rules = rules

	var conds []*model.PersistentCondition
	if err := loadJSONSlice(s.path("persistent_conditions.json"), func(list []*model.PersistentCondition) { conds = list }); err != nil {
		return err
	}
	for _, c := range conds {
		s.conditions[c.ID] = c
	}

	var fsh []*model.Foreshadowing
	if err := loadJSONSlice(s.path("foreshadowings.json"), func(list []*model.Foreshadowing) { fsh = list }); err != nil {
		return err
	}
	for _, f := range fsh {
		s.foreshadows[f.ID] = f
	}

	var pend []*model.Contradiction
	if err := loadJSONSlice(s.path("contradictions", "pending.json"), func(list []*model.Contradiction) { pend = list }); err != nil {
		return err
	}
	for _, c := range pend {
		s.pending[c.ID] = c
	}

	var res []*model.Contradiction
	if err := loadJSONSlice(s.path("contradictions", "resolved.json"), func(list []*model.Contradiction) { res = list }); err != nil {
		return err
	}
	s.resolved = res

	return nil
}

// loadJSON unmarshals path into v if the file exists; a missing file is not
// an error (fresh store).
func loadJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errs.Wrap(errs.CorruptIndex, "reading "+path, err)
	}
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return errs.Wrap(errs.CorruptIndex, "parsing "+path, err)
	}
	return nil
}

func loadJSONSlice[T any](path string, assign func([]T)) error {
	var list []T
	if err := loadJSON(path, &list); err != nil {
		return err
	}
	if assign != nil {
		assign(list)
	}
	return nil
}

func loadJSONL[T any](path string) ([]T, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errs.Wrap(errs.CorruptIndex, "opening "+path, err)
	}
	defer f.Close()

	var out []T
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		var item T
		if err := json.Unmarshal([]byte(line), &item); err != nil {
			return nil, errs.Wrap(errs.CorruptIndex, "parsing line in "+path, err)
		}
		out = append(out, item)
	}
	if err := sc.Err(); err != nil {
		return nil, errs.Wrap(errs.CorruptIndex, "scanning "+path, err)
	}
	return out, nil
}

// writeAtomic writes data to path via temp-file + fsync + rename, per
// SPEC_FULL.md §6's durability requirement.
func writeAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func (s *JSONStore) flushNodes() error {
	data, err := json.Marshal(s.nodes)
	if err != nil {
		return err
	}
	return writeAtomic(s.path("nodes.json"), data)
}

func (s *JSONStore) flushFacts() error {
	list := make([]*model.TemporalFact, 0, len(s.facts))
	for _, f := range s.facts {
		list = append(list, f)
	}
	data, err := json.Marshal(list)
	if err != nil {
		return err
	}
	return writeAtomic(s.path("edges.json"), data)
}

func (s *JSONStore) flushRules() error {
	data, err := json.Marshal(s.rules)
	if err != nil {
		return err
	}
	return writeAtomic(s.path("absolute_rules.json"), data)
}

func (s *JSONStore) flushConditions() error {
	list := make([]*model.PersistentCondition, 0, len(s.conditions))
	for _, c := range s.conditions {
		list = append(list, c)
	}
	data, err := json.Marshal(list)
	if err != nil {
		return err
	}
	return writeAtomic(s.path("persistent_conditions.json"), data)
}

func (s *JSONStore) flushForeshadows() error {
	list := make([]*model.Foreshadowing, 0, len(s.foreshadows))
	for _, f := range s.foreshadows {
		list = append(list, f)
	}
	data, err := json.Marshal(list)
	if err != nil {
		return err
	}
	return writeAtomic(s.path("foreshadowings.json"), data)
}

func (s *JSONStore) flushPending() error {
	list := make([]*model.Contradiction, 0, len(s.pending))
	for _, c := range s.pending {
		list = append(list, c)
	}
	data, err := json.Marshal(list)
	if err != nil {
		return err
	}
	return writeAtomic(s.path("contradictions", "pending.json"), data)
}

func (s *JSONStore) flushResolved() error {
	data, err := json.Marshal(s.resolved)
	if err != nil {
		return err
	}
	return writeAtomic(s.path("contradictions", "resolved.json"), data)
}

// --- Nodes ---

func (s *JSONStore) UpsertNode(n *model.Node) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nodes[n.ID] = n
	return s.flushNodes()
}

func (s *JSONStore) GetNode(id string) (*model.Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.nodes[id]
	if !ok {
		return nil, errs.NotFoundf("node %s", id)
	}
	return n, nil
}

func (s *JSONStore) GetNodeByName(name string) (*model.Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	lower := strings.ToLower(name)
	for _, n := range s.nodes {
		if !n.Active() {
			continue
		}
		if strings.ToLower(n.Name) == lower {
			return n, nil
		}
		for _, a := range n.Aliases {
			if strings.ToLower(a) == lower {
				return n, nil
			}
		}
	}
	return nil, errs.NotFoundf("node named %q", name)
}

func (s *JSONStore) ListNodes(nodeType model.NodeType) ([]*model.Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*model.Node, 0, len(s.nodes))
	for _, n := range s.nodes {
		if nodeType != "" && n.NodeType != nodeType {
			continue
		}
		out = append(out, n)
	}
	return out, nil
}

func (s *JSONStore) CountNodes() (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.nodes), nil
}

// --- Facts ---

func (s *JSONStore) UpsertFact(f *model.TemporalFact) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.facts[f.ID] = f
	return s.flushFacts()
}

func (s *JSONStore) GetFact(id string) (*model.TemporalFact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.facts[id]
	if !ok {
		return nil, errs.NotFoundf("fact %s", id)
	}
	return f, nil
}

func (s *JSONStore) ListFactsForSubject(subject string) ([]*model.TemporalFact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*model.TemporalFact
	for _, f := range s.facts {
		if f.Subject == subject {
			out = append(out, f)
		}
	}
	return out, nil
}

func (s *JSONStore) ListAllFacts() ([]*model.TemporalFact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*model.TemporalFact, 0, len(s.facts))
	for _, f := range s.facts {
		out = append(out, f)
	}
	return out, nil
}

func (s *JSONStore) CountFacts() (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.facts), nil
}

// --- Episodes ---

func (s *JSONStore) AppendEpisode(e *model.Episode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	if _, err := s.episodeF.Write(append(data, '\n')); err != nil {
		return err
	}
	if err := s.episodeF.Sync(); err != nil {
		return err
	}
	s.episodes = append(s.episodes, e)
	return nil
}

func (s *JSONStore) GetEpisode(id string) (*model.Episode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, e := range s.episodes {
		if e.ID == id {
			return e, nil
		}
	}
	return nil, errs.NotFoundf("episode %s", id)
}

func (s *JSONStore) ListEpisodes() ([]*model.Episode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*model.Episode, len(s.episodes))
	copy(out, s.episodes)
	return out, nil
}

// --- Absolute rules ---

func (s *JSONStore) UpsertAbsoluteRule(r *model.AbsoluteRule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, existing := range s.rules {
		if existing.ID == r.ID {
			s.rules[i] = r
			return s.flushRules()
		}
	}
	s.rules = append(s.rules, r)
	return s.flushRules()
}

func (s *JSONStore) ListAbsoluteRules() ([]*model.AbsoluteRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*model.AbsoluteRule, len(s.rules))
	copy(out, s.rules)
	return out, nil
}

// --- Persistent conditions ---

func (s *JSONStore) UpsertPersistentCondition(c *model.PersistentCondition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conditions[c.ID] = c
	return s.flushConditions()
}

func (s *JSONStore) DeletePersistentCondition(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conditions, id)
	return s.flushConditions()
}

func (s *JSONStore) ListPersistentConditions() ([]*model.PersistentCondition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*model.PersistentCondition, 0, len(s.conditions))
	for _, c := range s.conditions {
		out = append(out, c)
	}
	return out, nil
}

// --- Foreshadowings ---

func (s *JSONStore) UpsertForeshadowing(f *model.Foreshadowing) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.foreshadows[f.ID] = f
	return s.flushForeshadows()
}

func (s *JSONStore) ListForeshadowings() ([]*model.Foreshadowing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*model.Foreshadowing, 0, len(s.foreshadows))
	for _, f := range s.foreshadows {
		out = append(out, f)
	}
	return out, nil
}

// --- Contradictions ---

func (s *JSONStore) SavePendingContradiction(c *model.Contradiction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending[c.ID] = c
	return s.flushPending()
}

func (s *JSONStore) DeletePendingContradiction(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pending, id)
	return s.flushPending()
}

func (s *JSONStore) SaveResolvedContradiction(c *model.Contradiction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resolved = append(s.resolved, c)
	return s.flushResolved()
}

func (s *JSONStore) ListPendingContradictions() ([]*model.Contradiction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*model.Contradiction, 0, len(s.pending))
	for _, c := range s.pending {
		out = append(out, c)
	}
	return out, nil
}

func (s *JSONStore) ListResolvedContradictions(limit int) ([]*model.Contradiction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if limit <= 0 || limit > len(s.resolved) {
		limit = len(s.resolved)
	}
	start := len(s.resolved) - limit
	out := make([]*model.Contradiction, limit)
	copy(out, s.resolved[start:])
	return out, nil
}

func (s *JSONStore) GetContradiction(id string) (*model.Contradiction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if c, ok := s.pending[id]; ok {
		return c, nil
	}
	for _, c := range s.resolved {
		if c.ID == id {
			return c, nil
		}
	}
	return nil, errs.NotFoundf("contradiction %s", id)
}

// snapshot is the Export/Import wire format.
type snapshot struct {
	Nodes        []*model.Node               `json:"nodes"`
	Facts        []*model.TemporalFact       `json:"facts"`
	Episodes     []*model.Episode            `json:"episodes"`
	Rules        []*model.AbsoluteRule       `json:"rules"`
	Conditions   []*model.PersistentCondition `json:"conditions"`
	Foreshadows  []*model.Foreshadowing      `json:"foreshadows"`
	Pending      []*model.Contradiction      `json:"pending"`
	Resolved     []*model.Contradiction      `json:"resolved"`
}

func (s *JSONStore) Export() ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := snapshot{Episodes: s.episodes, Rules: s.rules, Resolved: s.resolved}
	for _, n := range s.nodes {
		snap.Nodes = append(snap.Nodes, n)
	}
	for _, f := range s.facts {
		snap.Facts = append(snap.Facts, f)
	}
	for _, c := range s.conditions {
		snap.Conditions = append(snap.Conditions, c)
	}
	for _, f := range s.foreshadows {
		snap.Foreshadows = append(snap.Foreshadows, f)
	}
	for _, c := range s.pending {
		snap.Pending = append(snap.Pending, c)
	}
	return json.Marshal(snap)
}

func (s *JSONStore) Import(data []byte) error {
	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return errs.Wrap(errs.CorruptIndex, "importing snapshot", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nodes = make(map[string]*model.Node, len(snap.Nodes))
	for _, n := range snap.Nodes {
		s.nodes[n.ID] = n
	}
	s.facts = make(map[string]*model.TemporalFact, len(snap.Facts))
	for _, f := range snap.Facts {
		s.facts[f.ID] = f
	}
	s.episodes = snap.Episodes
	s.rules = snap.Rules
	s.conditions = make(map[string]*model.PersistentCondition, len(snap.Conditions))
	for _, c := range snap.Conditions {
		s.conditions[c.ID] = c
	}
	s.foreshadows = make(map[string]*model.Foreshadowing, len(snap.Foreshadows))
	for _, f := range snap.Foreshadows {
		s.foreshadows[f.ID] = f
	}
	s.pending = make(map[string]*model.Contradiction, len(snap.Pending))
	for _, c := range snap.Pending {
		s.pending[c.ID] = c
	}
	s.resolved = snap.Resolved

	if err := s.flushNodes(); err != nil {
		return err
	}
	if err := s.flushFacts(); err != nil {
		return err
	}
	if err := s.flushRules(); err != nil {
		return err
	}
	if err := s.flushConditions(); err != nil {
		return err
	}
	if err := s.flushForeshadows(); err != nil {
		return err
	}
	if err := s.flushPending(); err != nil {
		return err
	}
	return s.flushResolved()
}

func (s *JSONStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.episodeF != nil {
		return s.episodeF.Close()
	}
	return nil
}

// Quarantine renames a corrupt file aside so the store can rebuild from
// source-of-truth, per SPEC_FULL.md §7 CorruptIndex recovery.
func Quarantine(path string, now func() string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	return os.Rename(path, fmt.Sprintf("%s.corrupt.%s", path, now()))
}

package index

import (
	"encoding/json"
	"os"
	"strings"
	"sync"
	"unicode"

	"github.com/coregx/ahocorasick"

	"github.com/kittclouds/recall/internal/errs"
)

// CanonicalizeEntityText normalizes a surface form for Aho-Corasick
// matching: lowercase, preserve letters/digits and the common in-name
// joiners (apostrophe, hyphen, period, underscore, slash, hash, ampersand),
// collapse everything else to single spaces. Adapted from the teacher's
// pkg/implicit-matcher CanonicalizeForMatch, which this index reuses for
// the same reason the teacher does: multiword names like "Monkey D. Luffy"
// must canonicalize identically whether compiled as a pattern or scanned in
// free text.
func CanonicalizeEntityText(s string) string {
	var out strings.Builder
	out.Grow(len(s))
	lastSpace := true
	for _, ch := range s {
		c := unicode.ToLower(ch)
		switch c {
		case '’', '‘':
			c = '\''
		case '–', '—':
			c = '-'
		}
		if unicode.IsLetter(c) || unicode.IsDigit(c) || isEntityJoiner(c) {
			out.WriteRune(c)
			lastSpace = false
		} else if !lastSpace {
			out.WriteRune(' ')
			lastSpace = true
		}
	}
	result := strings.TrimRight(out.String(), " ")
	return result
}

func isEntityJoiner(r rune) bool {
	switch r {
	case '\'', '-', '.', '_', '/', '#', '&':
		return true
	}
	return false
}

// EntityIndex is L4: entity name (normalized) -> set of document ids that
// mention it, maintained by the Extractor via AddMention. Recognition (free
// text -> known entity name) is delegated to an Aho-Corasick automaton,
// grounded on the teacher's coregx/ahocorasick usage in
// pkg/implicit-matcher/dictionary.go.
type EntityIndex struct {
	mu        sync.RWMutex
	ac        *ahocorasick.Automaton
	patterns  []string
	nameOfIdx map[int]string        // pattern index -> canonical entity name
	mentions  map[string]map[string]struct{} // canonical name -> docIDs
	path      string
}

// NewEntityIndex creates an empty index.
func NewEntityIndex(path string) *EntityIndex {
	return &EntityIndex{
		nameOfIdx: make(map[int]string),
		mentions:  make(map[string]map[string]struct{}),
		path:      path,
	}
}

// IndexedEntity is one name's back-references, returned by GetRelatedTurns.
type IndexedEntity struct {
	Name         string
	DocIDs       []string
}

// Rebuild recompiles the Aho-Corasick automaton from the given
// (name, aliases) pairs. Must be called whenever the node set's names or
// aliases change; mention postings are untouched.
func (e *EntityIndex) Rebuild(entities map[string][]string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.patterns = e.patterns[:0]
	e.nameOfIdx = make(map[int]string)
	seen := make(map[string]bool)
	for name, aliases := range entities {
		surfaces := append([]string{name}, aliases...)
		for _, surface := range surfaces {
			key := CanonicalizeEntityText(surface)
			if key == "" || seen[key] {
				continue
			}
			seen[key] = true
			idx := len(e.patterns)
			e.patterns = append(e.patterns, key)
			e.nameOfIdx[idx] = name
		}
	}
	if len(e.patterns) == 0 {
		e.ac = nil
		return nil
	}
	automaton, err := ahocorasick.NewBuilder().
		AddStrings(e.patterns).
		SetMatchKind(ahocorasick.LeftmostLongest).
		SetPrefilter(true).
		Build()
	if err != nil {
		return errs.Wrap(errs.Fatal, "building entity automaton", err)
	}
	e.ac = automaton
	return nil
}

// Scan returns the canonical entity names mentioned in text.
func (e *EntityIndex) Scan(text string) []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.ac == nil {
		return nil
	}
	canonical := CanonicalizeEntityText(text)
	matches := e.ac.FindAllOverlapping([]byte(canonical))
	seen := make(map[string]bool)
	var names []string
	for _, m := range matches {
		name := e.nameOfIdx[m.PatternID]
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		names = append(names, name)
	}
	return names
}

// AddMention records that docID mentions entity (by canonical name).
func (e *EntityIndex) AddMention(entity, docID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	set, ok := e.mentions[entity]
	if !ok {
		set = make(map[string]struct{})
		e.mentions[entity] = set
	}
	set[docID] = struct{}{}
}

// RemoveDoc removes docID from every entity's mention set.
func (e *EntityIndex) RemoveDoc(docID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for entity, set := range e.mentions {
		delete(set, docID)
		if len(set) == 0 {
			delete(e.mentions, entity)
		}
	}
}

// GetRelatedTurns returns the back-referenced document ids for entity.
func (e *EntityIndex) GetRelatedTurns(entity string) IndexedEntity {
	e.mu.RLock()
	defer e.mu.RUnlock()
	set := e.mentions[entity]
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	return IndexedEntity{Name: entity, DocIDs: ids}
}

type entitySnapshot struct {
	Mentions map[string][]string `json:"mentions"`
}

// Flush persists mention postings (the automaton is rebuilt from the live
// node set on startup via Rebuild, not serialized).
func (e *EntityIndex) Flush() error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.path == "" {
		return nil
	}
	snap := entitySnapshot{Mentions: make(map[string][]string, len(e.mentions))}
	for name, set := range e.mentions {
		ids := make([]string, 0, len(set))
		for id := range set {
			ids = append(ids, id)
		}
		snap.Mentions[name] = ids
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return errs.Wrap(errs.Fatal, "marshaling entity index", err)
	}
	return writeAtomicFile(e.path, data)
}

// Load restores mention postings from disk; a missing file is not an error.
func (e *EntityIndex) Load() error {
	if e.path == "" {
		return nil
	}
	data, err := os.ReadFile(e.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return errs.Wrap(errs.CorruptIndex, "reading entity index", err)
	}
	var snap entitySnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return errs.Wrap(errs.CorruptIndex, "parsing entity index", err)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.mentions = make(map[string]map[string]struct{}, len(snap.Mentions))
	for name, ids := range snap.Mentions {
		set := make(map[string]struct{}, len(ids))
		for _, id := range ids {
			set[id] = struct{}{}
		}
		e.mentions[name] = set
	}
	return nil
}

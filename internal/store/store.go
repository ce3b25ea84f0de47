// Package store provides pluggable persistence for the tri-temporal graph.
// Adapted from the teacher's internal/store/models.go Storer interface
// (the note/entity/edge CRUD surface), retargeted from its note-taking
// domain to the tri-temporal memory domain: nodes, facts, episodes,
// absolute rules, persistent conditions, foreshadowings and contradictions.
package store

import "github.com/kittclouds/recall/internal/model"

// Storer is the durability trait behind the Tri-temporal Graph (SPEC_FULL.md
// §4.B "Pluggable backend"). Exactly two implementations exist: jsonstore
// (file+JSON, zero dependency, default) and sqlitestore (embedded SQLite via
// ncruces/go-sqlite3, for faster BFS at 10^5+ nodes). Both must answer every
// query identically; a backend swap is a data migration, not an API change.
//
// One Storer instance is scoped to exactly one (user_id, character_id) pair,
// matching the on-disk layout of SPEC_FULL.md §6
// (<root>/<user_id>/<character_id>/...); this is also what makes the user
// isolation invariant (§8.6) trivial to satisfy — two users never share a
// Storer, let alone a lock.
type Storer interface {
	// Nodes
	UpsertNode(n *model.Node) error
	GetNode(id string) (*model.Node, error)
	GetNodeByName(name string) (*model.Node, error)
	ListNodes(nodeType model.NodeType) ([]*model.Node, error)
	CountNodes() (int, error)

	// Facts
	UpsertFact(f *model.TemporalFact) error
	GetFact(id string) (*model.TemporalFact, error)
	ListFactsForSubject(subject string) ([]*model.TemporalFact, error)
	ListAllFacts() ([]*model.TemporalFact, error)
	CountFacts() (int, error)

	// Episodes (append-only log)
	AppendEpisode(e *model.Episode) error
	GetEpisode(id string) (*model.Episode, error)
	ListEpisodes() ([]*model.Episode, error)

	// Absolute rules
	UpsertAbsoluteRule(r *model.AbsoluteRule) error
	ListAbsoluteRules() ([]*model.AbsoluteRule, error)

	// Persistent conditions
	UpsertPersistentCondition(c *model.PersistentCondition) error
	DeletePersistentCondition(id string) error
	ListPersistentConditions() ([]*model.PersistentCondition, error)

	// Foreshadowings
	UpsertForeshadowing(f *model.Foreshadowing) error
	ListForeshadowings() ([]*model.Foreshadowing, error)

	// Contradictions
	SavePendingContradiction(c *model.Contradiction) error
	SaveResolvedContradiction(c *model.Contradiction) error
	DeletePendingContradiction(id string) error
	ListPendingContradictions() ([]*model.Contradiction, error)
	ListResolvedContradictions(limit int) ([]*model.Contradiction, error)
	GetContradiction(id string) (*model.Contradiction, error)

	// Export/Import (full-database serialization, e.g. for migration between backends)
	Export() ([]byte, error)
	Import(data []byte) error

	// Lifecycle
	Close() error
}

package store

import (
	"database/sql"
	"encoding/json"
	"sync"
	"time"

	_ "github.com/asg017/sqlite-vec-go-bindings/ncruces"
	_ "github.com/ncruces/go-sqlite3/driver"

	"github.com/kittclouds/recall/internal/errs"
	"github.com/kittclouds/recall/internal/model"
)

// SQLiteStore is the embedded-database Storer, adapted from the teacher's
// internal/store/sqlite_store.go: pure-Go SQLite via ncruces/go-sqlite3 (no
// cgo), a single RWMutex guarding the connection, ON CONFLICT upserts, and a
// schema carrying the tri-temporal columns the teacher's note-versioning
// schema didn't need (valid_from/valid_until/known_at/superseded_at).
// Chosen over the file+JSON default when SPEC_FULL.md's
// TEMPORAL_GRAPH_BACKEND=sqlite, for faster BFS/joins at 10^5+ nodes.
type SQLiteStore struct {
	mu sync.RWMutex
	db *sql.DB
}

var _ Storer = (*SQLiteStore)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS nodes (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	node_type TEXT NOT NULL,
	attributes TEXT,
	aliases TEXT,
	content TEXT,
	verification_count INTEGER DEFAULT 0,
	created_at INTEGER,
	updated_at INTEGER,
	expired_at INTEGER
);
CREATE INDEX IF NOT EXISTS idx_nodes_name ON nodes(name);

CREATE TABLE IF NOT EXISTS facts (
	id TEXT PRIMARY KEY,
	subject TEXT NOT NULL,
	predicate TEXT NOT NULL,
	object TEXT NOT NULL,
	fact TEXT,
	valid_from INTEGER,
	valid_until INTEGER,
	known_at INTEGER,
	created_at INTEGER,
	expired_at INTEGER,
	superseded_at INTEGER,
	confidence REAL,
	source_text TEXT,
	source_episodes TEXT
);
CREATE INDEX IF NOT EXISTS idx_facts_subject ON facts(subject);
CREATE INDEX IF NOT EXISTS idx_facts_predicate ON facts(subject, predicate);

CREATE TABLE IF NOT EXISTS episodes (
	id TEXT PRIMARY KEY,
	role TEXT,
	content TEXT,
	turn_number INTEGER,
	timestamp INTEGER,
	user_id TEXT,
	character_id TEXT,
	memory_ids TEXT,
	entity_ids TEXT,
	relation_ids TEXT
);

CREATE TABLE IF NOT EXISTS absolute_rules (
	id TEXT PRIMARY KEY,
	user_id TEXT,
	character_id TEXT,
	text TEXT,
	created_at INTEGER
);

CREATE TABLE IF NOT EXISTS persistent_conditions (
	id TEXT PRIMARY KEY,
	user_id TEXT,
	character_id TEXT,
	context_type TEXT,
	content TEXT,
	confidence REAL,
	created_at INTEGER,
	last_used INTEGER,
	use_count INTEGER
);

CREATE TABLE IF NOT EXISTS foreshadowings (
	id TEXT PRIMARY KEY,
	user_id TEXT,
	character_id TEXT,
	episode_id TEXT,
	hint TEXT,
	confidence REAL,
	created_at INTEGER,
	resolved INTEGER,
	resolved_by_episode TEXT
);

CREATE TABLE IF NOT EXISTS contradictions (
	id TEXT PRIMARY KEY,
	type TEXT,
	old_fact_id TEXT,
	new_fact_id TEXT,
	confidence REAL,
	detected_at INTEGER,
	resolved INTEGER,
	resolved_at INTEGER,
	resolution TEXT
);
`

// OpenSQLite opens (creating if needed) the graph.db file at path.
func OpenSQLite(path string, busyTimeoutMS int) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, errs.Wrap(errs.Fatal, "opening sqlite store", err)
	}
	db.SetMaxOpenConns(1) // single-writer file-backed db; matches teacher's single-connection idiom
	if busyTimeoutMS <= 0 {
		busyTimeoutMS = 5000
	}
	if _, err := db.Exec("PRAGMA busy_timeout = ?", busyTimeoutMS); err != nil {
		return nil, errs.Wrap(errs.Fatal, "setting busy_timeout", err)
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, errs.Wrap(errs.Fatal, "applying schema", err)
	}
	return &SQLiteStore{db: db}, nil
}

// DB exposes the underlying connection so the vector index can share it for
// a vec0 virtual table when this backend is active.
func (s *SQLiteStore) DB() *sql.DB { return s.db }

func unixOrNil(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UnixNano()
}

func timeOrNil(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.Unix(0, v.Int64)
	return &t
}

func marshalOrEmpty(v any) string {
	data, _ := json.Marshal(v)
	return string(data)
}

func (s *SQLiteStore) UpsertNode(n *model.Node) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(`
		INSERT INTO nodes (id, name, node_type, attributes, aliases, content, verification_count, created_at, updated_at, expired_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name=excluded.name, node_type=excluded.node_type, attributes=excluded.attributes,
			aliases=excluded.aliases, content=excluded.content, verification_count=excluded.verification_count,
			updated_at=excluded.updated_at, expired_at=excluded.expired_at
	`, n.ID, n.Name, string(n.NodeType), marshalOrEmpty(n.Attributes), marshalOrEmpty(n.Aliases), n.Content,
		n.VerificationCount, n.CreatedAt.UnixNano(), n.UpdatedAt.UnixNano(), unixOrNil(n.ExpiredAt))
	return err
}

func (s *SQLiteStore) scanNode(row *sql.Row) (*model.Node, error) {
	var n model.Node
	var attrs, aliases string
	var createdAt, updatedAt int64
	var expiredAt sql.NullInt64
	var nodeType string
	if err := row.Scan(&n.ID, &n.Name, &nodeType, &attrs, &aliases, &n.Content, &n.VerificationCount, &createdAt, &updatedAt, &expiredAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, errs.NotFoundf("node not found")
		}
		return nil, err
	}
	n.NodeType = model.NodeType(nodeType)
	json.Unmarshal([]byte(attrs), &n.Attributes)
	json.Unmarshal([]byte(aliases), &n.Aliases)
	n.CreatedAt = time.Unix(0, createdAt)
	n.UpdatedAt = time.Unix(0, updatedAt)
	n.ExpiredAt = timeOrNil(expiredAt)
	return &n, nil
}

func (s *SQLiteStore) GetNode(id string) (*model.Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row := s.db.QueryRow(`SELECT id, name, node_type, attributes, aliases, content, verification_count, created_at, updated_at, expired_at FROM nodes WHERE id = ?`, id)
	return s.scanNode(row)
}

func (s *SQLiteStore) GetNodeByName(name string) (*model.Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row := s.db.QueryRow(`SELECT id, name, node_type, attributes, aliases, content, verification_count, created_at, updated_at, expired_at FROM nodes WHERE lower(name) = lower(?) AND expired_at IS NULL LIMIT 1`, name)
	n, err := s.scanNode(row)
	if err == nil {
		return n, nil
	}
	// fall back to alias scan (JSON column, no functional index)
	rows, qerr := s.db.Query(`SELECT id, name, node_type, attributes, aliases, content, verification_count, created_at, updated_at, expired_at FROM nodes WHERE expired_at IS NULL`)
	if qerr != nil {
		return nil, qerr
	}
	defer rows.Close()
	for rows.Next() {
		var id, nm, nodeType, attrs, aliasesJSON, content string
		var vc int
		var createdAt, updatedAt int64
		var expiredAt sql.NullInt64
		if serr := rows.Scan(&id, &nm, &nodeType, &attrs, &aliasesJSON, &content, &vc, &createdAt, &updatedAt, &expiredAt); serr != nil {
			continue
		}
		var aliases []string
		json.Unmarshal([]byte(aliasesJSON), &aliases)
		for _, a := range aliases {
			if equalFold(a, name) {
				var attributes map[string]any
				json.Unmarshal([]byte(attrs), &attributes)
				return &model.Node{ID: id, Name: nm, NodeType: model.NodeType(nodeType), Attributes: attributes, Aliases: aliases,
					Content: content, VerificationCount: vc, CreatedAt: time.Unix(0, createdAt), UpdatedAt: time.Unix(0, updatedAt),
					ExpiredAt: timeOrNil(expiredAt)}, nil
			}
		}
	}
	return nil, errs.NotFoundf("node named %q", name)
}

func equalFold(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		ca, cb := a[i], b[i]
		if 'A' <= ca && ca <= 'Z' {
			ca += 'a' - 'A'
		}
		if 'A' <= cb && cb <= 'Z' {
			cb += 'a' - 'A'
		}
		if ca != cb {
			return false
		}
	}
	return true
}

func (s *SQLiteStore) ListNodes(nodeType model.NodeType) ([]*model.Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	query := `SELECT id, name, node_type, attributes, aliases, content, verification_count, created_at, updated_at, expired_at FROM nodes`
	var rows *sql.Rows
	var err error
	if nodeType != "" {
		rows, err = s.db.Query(query+` WHERE node_type = ?`, string(nodeType))
	} else {
		rows, err = s.db.Query(query)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*model.Node
	for rows.Next() {
		var n model.Node
		var attrs, aliases, nodeTypeStr string
		var createdAt, updatedAt int64
		var expiredAt sql.NullInt64
		if err := rows.Scan(&n.ID, &n.Name, &nodeTypeStr, &attrs, &aliases, &n.Content, &n.VerificationCount, &createdAt, &updatedAt, &expiredAt); err != nil {
			return nil, err
		}
		n.NodeType = model.NodeType(nodeTypeStr)
		json.Unmarshal([]byte(attrs), &n.Attributes)
		json.Unmarshal([]byte(aliases), &n.Aliases)
		n.CreatedAt = time.Unix(0, createdAt)
		n.UpdatedAt = time.Unix(0, updatedAt)
		n.ExpiredAt = timeOrNil(expiredAt)
		out = append(out, &n)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) CountNodes() (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM nodes`).Scan(&n)
	return n, err
}

func (s *SQLiteStore) UpsertFact(f *model.TemporalFact) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(`
		INSERT INTO facts (id, subject, predicate, object, fact, valid_from, valid_until, known_at, created_at, expired_at, superseded_at, confidence, source_text, source_episodes)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			valid_from=excluded.valid_from, valid_until=excluded.valid_until, expired_at=excluded.expired_at,
			superseded_at=excluded.superseded_at, confidence=excluded.confidence
	`, f.ID, f.Subject, f.Predicate, f.Object, f.Fact, unixOrNil(f.ValidFrom), unixOrNil(f.ValidUntil), f.KnownAt.UnixNano(),
		f.CreatedAt.UnixNano(), unixOrNil(f.ExpiredAt), unixOrNil(f.SupersededAt), f.Confidence, f.SourceText, marshalOrEmpty(f.SourceEpisodes))
	return err
}

func scanFact(rows interface {
	Scan(dest ...any) error
}) (*model.TemporalFact, error) {
	var f model.TemporalFact
	var validFrom, validUntil, expiredAt, supersededAt sql.NullInt64
	var knownAt, createdAt int64
	var sourceEpisodes string
	if err := rows.Scan(&f.ID, &f.Subject, &f.Predicate, &f.Object, &f.Fact, &validFrom, &validUntil, &knownAt,
		&createdAt, &expiredAt, &supersededAt, &f.Confidence, &f.SourceText, &sourceEpisodes); err != nil {
		return nil, err
	}
	f.ValidFrom = timeOrNil(validFrom)
	f.ValidUntil = timeOrNil(validUntil)
	f.KnownAt = time.Unix(0, knownAt)
	f.CreatedAt = time.Unix(0, createdAt)
	f.ExpiredAt = timeOrNil(expiredAt)
	f.SupersededAt = timeOrNil(supersededAt)
	json.Unmarshal([]byte(sourceEpisodes), &f.SourceEpisodes)
	return &f, nil
}

const factCols = `id, subject, predicate, object, fact, valid_from, valid_until, known_at, created_at, expired_at, superseded_at, confidence, source_text, source_episodes`

func (s *SQLiteStore) GetFact(id string) (*model.TemporalFact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row := s.db.QueryRow(`SELECT `+factCols+` FROM facts WHERE id = ?`, id)
	f, err := scanFact(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, errs.NotFoundf("fact %s", id)
		}
		return nil, err
	}
	return f, nil
}

func (s *SQLiteStore) ListFactsForSubject(subject string) ([]*model.TemporalFact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.Query(`SELECT `+factCols+` FROM facts WHERE subject = ?`, subject)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*model.TemporalFact
	for rows.Next() {
		f, err := scanFact(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) ListAllFacts() ([]*model.TemporalFact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.Query(`SELECT ` + factCols + ` FROM facts`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*model.TemporalFact
	for rows.Next() {
		f, err := scanFact(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) CountFacts() (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM facts`).Scan(&n)
	return n, err
}

func (s *SQLiteStore) AppendEpisode(e *model.Episode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(`INSERT INTO episodes (id, role, content, turn_number, timestamp, user_id, character_id, memory_ids, entity_ids, relation_ids)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, string(e.Role), e.Content, e.TurnNumber, e.Timestamp.UnixNano(), e.UserID, e.CharacterID,
		marshalOrEmpty(e.MemoryIDs), marshalOrEmpty(e.EntityIDs), marshalOrEmpty(e.RelationIDs))
	return err
}

func (s *SQLiteStore) scanEpisode(rows interface {
	Scan(dest ...any) error
}) (*model.Episode, error) {
	var e model.Episode
	var role string
	var ts int64
	var mem, ent, rel string
	if err := rows.Scan(&e.ID, &role, &e.Content, &e.TurnNumber, &ts, &e.UserID, &e.CharacterID, &mem, &ent, &rel); err != nil {
		return nil, err
	}
	e.Role = model.Role(role)
	e.Timestamp = time.Unix(0, ts)
	json.Unmarshal([]byte(mem), &e.MemoryIDs)
	json.Unmarshal([]byte(ent), &e.EntityIDs)
	json.Unmarshal([]byte(rel), &e.RelationIDs)
	return &e, nil
}

func (s *SQLiteStore) GetEpisode(id string) (*model.Episode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row := s.db.QueryRow(`SELECT id, role, content, turn_number, timestamp, user_id, character_id, memory_ids, entity_ids, relation_ids FROM episodes WHERE id = ?`, id)
	e, err := s.scanEpisode(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, errs.NotFoundf("episode %s", id)
		}
		return nil, err
	}
	return e, nil
}

func (s *SQLiteStore) ListEpisodes() ([]*model.Episode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.Query(`SELECT id, role, content, turn_number, timestamp, user_id, character_id, memory_ids, entity_ids, relation_ids FROM episodes ORDER BY timestamp ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*model.Episode
	for rows.Next() {
		e, err := s.scanEpisode(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) UpsertAbsoluteRule(r *model.AbsoluteRule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(`INSERT INTO absolute_rules (id, user_id, character_id, text, created_at) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET text=excluded.text`, r.ID, r.UserID, r.CharacterID, r.Text, r.CreatedAt.UnixNano())
	return err
}

func (s *SQLiteStore) ListAbsoluteRules() ([]*model.AbsoluteRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.Query(`SELECT id, user_id, character_id, text, created_at FROM absolute_rules`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*model.AbsoluteRule
	for rows.Next() {
		var r model.AbsoluteRule
		var createdAt int64
		if err := rows.Scan(&r.ID, &r.UserID, &r.CharacterID, &r.Text, &createdAt); err != nil {
			return nil, err
		}
		r.CreatedAt = time.Unix(0, createdAt)
		out = append(out, &r)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) UpsertPersistentCondition(c *model.PersistentCondition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(`INSERT INTO persistent_conditions (id, user_id, character_id, context_type, content, confidence, created_at, last_used, use_count)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET content=excluded.content, confidence=excluded.confidence, last_used=excluded.last_used, use_count=excluded.use_count`,
		c.ID, c.UserID, c.CharacterID, string(c.ContextType), c.Content, c.Confidence, c.CreatedAt.UnixNano(), c.LastUsed.UnixNano(), c.UseCount)
	return err
}

func (s *SQLiteStore) DeletePersistentCondition(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(`DELETE FROM persistent_conditions WHERE id = ?`, id)
	return err
}

func (s *SQLiteStore) ListPersistentConditions() ([]*model.PersistentCondition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.Query(`SELECT id, user_id, character_id, context_type, content, confidence, created_at, last_used, use_count FROM persistent_conditions`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*model.PersistentCondition
	for rows.Next() {
		var c model.PersistentCondition
		var ctxType string
		var createdAt, lastUsed int64
		if err := rows.Scan(&c.ID, &c.UserID, &c.CharacterID, &ctxType, &c.Content, &c.Confidence, &createdAt, &lastUsed, &c.UseCount); err != nil {
			return nil, err
		}
		c.ContextType = model.ContextType(ctxType)
		c.CreatedAt = time.Unix(0, createdAt)
		c.LastUsed = time.Unix(0, lastUsed)
		out = append(out, &c)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) UpsertForeshadowing(f *model.Foreshadowing) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(`INSERT INTO foreshadowings (id, user_id, character_id, episode_id, hint, confidence, created_at, resolved, resolved_by_episode)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET resolved=excluded.resolved, resolved_by_episode=excluded.resolved_by_episode`,
		f.ID, f.UserID, f.CharacterID, f.EpisodeID, f.Hint, f.Confidence, f.CreatedAt.UnixNano(), boolToInt(f.Resolved), f.ResolvedByEpisode)
	return err
}

func (s *SQLiteStore) ListForeshadowings() ([]*model.Foreshadowing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.Query(`SELECT id, user_id, character_id, episode_id, hint, confidence, created_at, resolved, resolved_by_episode FROM foreshadowings`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*model.Foreshadowing
	for rows.Next() {
		var f model.Foreshadowing
		var createdAt int64
		var resolved int
		var resolvedBy sql.NullString
		if err := rows.Scan(&f.ID, &f.UserID, &f.CharacterID, &f.EpisodeID, &f.Hint, &f.Confidence, &createdAt, &resolved, &resolvedBy); err != nil {
			return nil, err
		}
		f.CreatedAt = time.Unix(0, createdAt)
		f.Resolved = resolved != 0
		f.ResolvedByEpisode = resolvedBy.String
		out = append(out, &f)
	}
	return out, rows.Err()
}

// boolToInt matches the teacher's nullable-column scanning idiom for SQLite,
// which has no native boolean type.
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func (s *SQLiteStore) upsertContradiction(c *model.Contradiction) error {
	var resolvedAt any
	if c.ResolvedAt != nil {
		resolvedAt = c.ResolvedAt.UnixNano()
	}
	var resolution any
	if c.Resolution != nil {
		resolution = string(*c.Resolution)
	}
	_, err := s.db.Exec(`INSERT INTO contradictions (id, type, old_fact_id, new_fact_id, confidence, detected_at, resolved, resolved_at, resolution)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET resolved=excluded.resolved, resolved_at=excluded.resolved_at, resolution=excluded.resolution`,
		c.ID, string(c.Type), c.OldFactID, c.NewFactID, c.Confidence, c.DetectedAt.UnixNano(), boolToInt(c.Resolved), resolvedAt, resolution)
	return err
}

func (s *SQLiteStore) SavePendingContradiction(c *model.Contradiction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.upsertContradiction(c)
}

func (s *SQLiteStore) DeletePendingContradiction(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(`DELETE FROM contradictions WHERE id = ? AND resolved = 0`, id)
	return err
}

func (s *SQLiteStore) SaveResolvedContradiction(c *model.Contradiction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.upsertContradiction(c)
}

func (s *SQLiteStore) scanContradiction(rows interface {
	Scan(dest ...any) error
}) (*model.Contradiction, error) {
	var c model.Contradiction
	var t string
	var detectedAt int64
	var resolved int
	var resolvedAt sql.NullInt64
	var resolution sql.NullString
	if err := rows.Scan(&c.ID, &t, &c.OldFactID, &c.NewFactID, &c.Confidence, &detectedAt, &resolved, &resolvedAt, &resolution); err != nil {
		return nil, err
	}
	c.Type = model.ContradictionType(t)
	c.DetectedAt = time.Unix(0, detectedAt)
	c.Resolved = resolved != 0
	c.ResolvedAt = timeOrNil(resolvedAt)
	if resolution.Valid {
		strat := model.ResolutionStrategy(resolution.String)
		c.Resolution = &strat
	}
	return &c, nil
}

const contradictionCols = `id, type, old_fact_id, new_fact_id, confidence, detected_at, resolved, resolved_at, resolution`

func (s *SQLiteStore) ListPendingContradictions() ([]*model.Contradiction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.Query(`SELECT `+contradictionCols+` FROM contradictions WHERE resolved = 0`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*model.Contradiction
	for rows.Next() {
		c, err := s.scanContradiction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) ListResolvedContradictions(limit int) ([]*model.Contradiction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	query := `SELECT ` + contradictionCols + ` FROM contradictions WHERE resolved = 1 ORDER BY detected_at DESC`
	var rows *sql.Rows
	var err error
	if limit > 0 {
		rows, err = s.db.Query(query+` LIMIT ?`, limit)
	} else {
		rows, err = s.db.Query(query)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*model.Contradiction
	for rows.Next() {
		c, err := s.scanContradiction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) GetContradiction(id string) (*model.Contradiction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row := s.db.QueryRow(`SELECT `+contradictionCols+` FROM contradictions WHERE id = ?`, id)
	c, err := s.scanContradiction(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, errs.NotFoundf("contradiction %s", id)
		}
		return nil, err
	}
	return c, nil
}

// Export dumps every table to the same JSON snapshot shape JSONStore uses, so
// Export/Import round-trips across backends (a backend swap is a data
// migration, not an API change, per SPEC_FULL.md §4.B).
func (s *SQLiteStore) Export() ([]byte, error) {
	nodes, err := s.ListNodes("")
	if err != nil {
		return nil, err
	}
	facts, err := s.ListAllFacts()
	if err != nil {
		return nil, err
	}
	episodes, err := s.ListEpisodes()
	if err != nil {
		return nil, err
	}
	rules, err := s.ListAbsoluteRules()
	if err != nil {
		return nil, err
	}
	conditions, err := s.ListPersistentConditions()
	if err != nil {
		return nil, err
	}
	foreshadows, err := s.ListForeshadowings()
	if err != nil {
		return nil, err
	}
	pending, err := s.ListPendingContradictions()
	if err != nil {
		return nil, err
	}
	resolved, err := s.ListResolvedContradictions(0)
	if err != nil {
		return nil, err
	}
	return json.Marshal(snapshot{
		Nodes: nodes, Facts: facts, Episodes: episodes, Rules: rules,
		Conditions: conditions, Foreshadows: foreshadows, Pending: pending, Resolved: resolved,
	})
}

func (s *SQLiteStore) Import(data []byte) error {
	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return errs.Wrap(errs.CorruptIndex, "importing snapshot", err)
	}
	for _, n := range snap.Nodes {
		if err := s.UpsertNode(n); err != nil {
			return err
		}
	}
	for _, f := range snap.Facts {
		if err := s.UpsertFact(f); err != nil {
			return err
		}
	}
	for _, e := range snap.Episodes {
		if err := s.AppendEpisode(e); err != nil {
			return err
		}
	}
	for _, r := range snap.Rules {
		if err := s.UpsertAbsoluteRule(r); err != nil {
			return err
		}
	}
	for _, c := range snap.Conditions {
		if err := s.UpsertPersistentCondition(c); err != nil {
			return err
		}
	}
	for _, f := range snap.Foreshadows {
		if err := s.UpsertForeshadowing(f); err != nil {
			return err
		}
	}
	for _, c := range snap.Pending {
		if err := s.SavePendingContradiction(c); err != nil {
			return err
		}
	}
	for _, c := range snap.Resolved {
		if err := s.SaveResolvedContradiction(c); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

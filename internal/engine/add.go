package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/kittclouds/recall/internal/config"
	"github.com/kittclouds/recall/internal/extract"
	"github.com/kittclouds/recall/internal/idgen"
	"github.com/kittclouds/recall/internal/index"
	"github.com/kittclouds/recall/internal/model"
)

// Add stores one conversational turn end-to-end (SPEC_FULL.md §6): extract
// entities/relations, upsert the graph, run contradiction detection on every
// new fact, update every index, and append the raw episode. Per §7's error
// propagation policy, extraction failure never fails the call — the episode
// is always stored, even if nothing could be extracted from it.
func (e *Engine) Add(ctx context.Context, content, userID, characterID string, metadata map[string]any) (*AddResult, error) {
	t, err := e.getTenant(userID, characterID)
	if err != nil {
		return nil, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	cfg := e.config()
	role := roleFromMetadata(metadata)
	t.turnCounter++

	episode := &model.Episode{
		ID:          idgen.Prefixed(string(index.KindMemory)),
		Role:        role,
		Content:     content,
		TurnNumber:  t.turnCounter,
		Timestamp:   time.Now(),
		UserID:      userID,
		CharacterID: characterID,
	}
	docID := episode.ID

	knownEntities := t.entity.Scan(content)
	mode := extractorModeFor(cfg.ExtractorMode)
	result, err := t.extractor.Run(ctx, mode, content, knownEntities)
	if err != nil {
		// extract.Extractor.Run never actually returns a non-nil error in
		// any of its branches (see internal/extract/extract.go) — this is
		// a defensive no-op guard for §7's "Add never fails on extraction
		// failure" invariant, not a path exercised in practice.
		result = extract.Result{}
	}

	var (
		entityNames         []string
		consistencyWarnings []string
		newEntity           bool
	)
	for _, ent := range result.Entities {
		node, err := t.graph.AddNode(ent.Name, model.NodeEntity, map[string]any{"kind": string(ent.Kind)}, ent.Aliases)
		if err != nil {
			consistencyWarnings = append(consistencyWarnings, fmt.Sprintf("could not record entity %q: %v", ent.Name, err))
			continue
		}
		if node.CreatedAt.Equal(node.UpdatedAt) {
			newEntity = true
		}
		episode.EntityIDs = append(episode.EntityIDs, node.ID)
		entityNames = append(entityNames, node.Name)
		t.entity.AddMention(node.Name, docID)
	}
	if newEntity {
		if err := rebuildEntityAutomaton(t); err != nil {
			return nil, err
		}
	}

	for _, rel := range result.Relations {
		dr := parseDateRange(rel.SourceSentence)
		fact, contras, err := t.graph.AddEdge(rel.Subject, rel.Predicate, rel.Object, rel.Fact, dr.from, dr.until, rel.SourceSentence, rel.Confidence, true)
		if err != nil {
			consistencyWarnings = append(consistencyWarnings, fmt.Sprintf("could not record relation %q %s %q: %v", rel.Subject, rel.Predicate, rel.Object, err))
			continue
		}
		fact.SourceEpisodes = append(fact.SourceEpisodes, episode.ID)
		episode.RelationIDs = append(episode.RelationIDs, fact.ID)

		factDocID := fact.ID
		if err := t.inverted.Add(factDocID, fact.Fact); err != nil {
			return nil, err
		}
		if err := t.ngram.Add(factDocID, fact.Fact); err != nil {
			return nil, err
		}
		for _, tok := range index.Tokenize(fact.Fact) {
			t.bloom.Add(tok)
		}
		t.temporal.Insert(fact.ID, fact.ValidFrom, fact.ValidUntil)

		for _, c := range contras {
			consistencyWarnings = append(consistencyWarnings, fmt.Sprintf("contradiction detected: new fact %s conflicts with %s (confidence %.2f)", c.NewFactID, c.OldFactID, c.Confidence))
			if cfg.ContradictionAutoResolve {
				if _, err := t.contra.Resolve(c.ID, t.defaultResolution); err != nil {
					consistencyWarnings = append(consistencyWarnings, fmt.Sprintf("auto-resolution of contradiction %s failed: %v", c.ID, err))
				}
			}
		}
	}

	if err := t.inverted.Add(docID, content); err != nil {
		return nil, err
	}
	if err := t.ngram.Add(docID, content); err != nil {
		return nil, err
	}
	for _, tok := range index.Tokenize(content) {
		t.bloom.Add(tok)
	}

	if t.llm != nil {
		if rules, err := t.store.ListAbsoluteRules(); err == nil && len(rules) > 0 {
			texts := make([]string, len(rules))
			for i, r := range rules {
				texts[i] = r.Text
			}
			if flagged, err := t.llm.CheckConsistency(ctx, texts, content); err == nil {
				consistencyWarnings = append(consistencyWarnings, flagged...)
			}
		}
	}

	if err := t.store.AppendEpisode(episode); err != nil {
		return nil, err
	}

	return &AddResult{
		ID:                  episode.ID,
		Entities:            entityNames,
		ConsistencyWarnings: consistencyWarnings,
	}, nil
}

func roleFromMetadata(metadata map[string]any) model.Role {
	if v, ok := metadata["role"]; ok {
		if s, ok := v.(string); ok && s == string(model.RoleAssistant) {
			return model.RoleAssistant
		}
	}
	return model.RoleUser
}

func extractorModeFor(m config.ExtractorMode) extract.Mode {
	switch m {
	case config.ExtractorRules:
		return extract.ModeRules
	case config.ExtractorLLM:
		return extract.ModeLLM
	default:
		return extract.ModeAdaptive
	}
}

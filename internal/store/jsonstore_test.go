package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kittclouds/recall/internal/model"
)

func TestJSONStoreNodeUpsertAndLookup(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "u1", "c1"))
	require.NoError(t, err)
	defer s.Close()

	n := &model.Node{ID: "node:1", Name: "Berlin", NodeType: model.NodeEntity, CreatedAt: time.Now()}
	require.NoError(t, s.UpsertNode(n))

	got, err := s.GetNodeByName("berlin")
	require.NoError(t, err)
	require.Equal(t, "node:1", got.ID)

	count, err := s.CountNodes()
	require.NoError(t, err)
	require.Equal(t, 1, count)
}

func TestJSONStoreFactsAndReload(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "u1", "c1")
	s, err := Open(dir)
	require.NoError(t, err)

	f := &model.TemporalFact{ID: "edge:1", Subject: "node:1", Predicate: "WORKED_AT", Object: "node:2", Confidence: 0.9, KnownAt: time.Now(), CreatedAt: time.Now()}
	require.NoError(t, s.UpsertFact(f))
	require.NoError(t, s.Close())

	reopened, err := Open(dir)
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.GetFact("edge:1")
	require.NoError(t, err)
	require.Equal(t, "WORKED_AT", got.Predicate)
}

func TestJSONStoreEpisodeAppendOnlyReload(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "u1", "c1")
	s, err := Open(dir)
	require.NoError(t, err)

	require.NoError(t, s.AppendEpisode(&model.Episode{ID: "ep1", Content: "hello", UserID: "u1", CharacterID: "c1"}))
	require.NoError(t, s.Close())

	reopened, err := Open(dir)
	require.NoError(t, err)
	defer reopened.Close()

	eps, err := reopened.ListEpisodes()
	require.NoError(t, err)
	require.Len(t, eps, 1)
	require.Equal(t, "hello", eps[0].Content)
}

func TestJSONStoreUserIsolationByDirectory(t *testing.T) {
	root := t.TempDir()
	a, err := Open(filepath.Join(root, "userA", "c1"))
	require.NoError(t, err)
	defer a.Close()
	b, err := Open(filepath.Join(root, "userB", "c1"))
	require.NoError(t, err)
	defer b.Close()

	require.NoError(t, a.AppendEpisode(&model.Episode{ID: "secret", Content: "my secret is 12345"}))

	epsB, err := b.ListEpisodes()
	require.NoError(t, err)
	require.Empty(t, epsB)
}

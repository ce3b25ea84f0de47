package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TestTemporalQueryAtTime covers SPEC_FULL.md §8.6 scenario S3: two
// successive, non-overlapping WORKED_AT facts on the same subject are each
// resolved correctly by QueryAtTime at a timestamp inside their own window.
func TestTemporalQueryAtTime(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	_, err := e.Add(ctx, "I worked at Acme from 2018 to 2020.", "carol", "default", nil)
	require.NoError(t, err)
	_, err = e.Add(ctx, "I worked at Globex from 2020 to 2023.", "carol", "default", nil)
	require.NoError(t, err)

	tn, err := e.getTenant("carol", "default")
	require.NoError(t, err)
	subj, err := tn.store.GetNodeByName("I")
	require.NoError(t, err)
	acme, err := tn.store.GetNodeByName("Acme")
	require.NoError(t, err)
	globex, err := tn.store.GetNodeByName("Globex")
	require.NoError(t, err)

	at2019 := time.Date(2019, 6, 1, 0, 0, 0, 0, time.UTC)
	facts, err := e.QueryAtTime("carol", "default", subj.ID, at2019, "WORKED_AT")
	require.NoError(t, err)
	require.Len(t, facts, 1)
	require.Equal(t, acme.ID, facts[0].Object)

	at2021 := time.Date(2021, 6, 1, 0, 0, 0, 0, time.UTC)
	facts, err = e.QueryAtTime("carol", "default", subj.ID, at2021, "WORKED_AT")
	require.NoError(t, err)
	require.Len(t, facts, 1)
	require.Equal(t, globex.ID, facts[0].Object)
}

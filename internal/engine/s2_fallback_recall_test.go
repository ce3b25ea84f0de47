package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestFallbackRecallNoEmbedder covers SPEC_FULL.md §8.6 scenario S2:
// with no embedding provider configured (the engine never wires one — see
// DESIGN.md), a literal numeric token still round-trips through Search via
// the lexical recall arms and the hard fallback, never relying on L7/L8.
func TestFallbackRecallNoEmbedder(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	added, err := e.Add(ctx, "My lucky number is 7749382.", "bob", "default", nil)
	require.NoError(t, err)

	hits, err := e.Search(ctx, "7749382", "bob", "default", 10, nil)
	require.NoError(t, err)
	require.NotEmpty(t, hits)

	var found bool
	for _, h := range hits {
		if h.ID == added.ID {
			found = true
			require.Greater(t, h.Score, 0.0)
		}
	}
	require.True(t, found, "expected the lucky-number turn to be recalled via lexical fallback, got %+v", hits)
}

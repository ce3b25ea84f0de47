package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestUserIsolation covers SPEC_FULL.md §8.6 scenario S5: one user's
// episodes are never visible to another user's Search, even under the
// same character id — tenants are keyed on (user_id, character_id).
func TestUserIsolation(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	added, err := e.Add(ctx, "my secret is 12345", "user-a", "default", nil)
	require.NoError(t, err)

	bHits, err := e.Search(ctx, "12345", "user-b", "default", 10, nil)
	require.NoError(t, err)
	require.Empty(t, bHits, "user B must not see user A's episode")

	aHits, err := e.Search(ctx, "12345", "user-a", "default", 10, nil)
	require.NoError(t, err)
	var found bool
	for _, h := range aHits {
		if h.ID == added.ID {
			found = true
		}
	}
	require.True(t, found, "user A must still see their own episode")
}

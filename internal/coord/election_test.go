package coord

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestElectEmptyRegistryHasNoPrimary(t *testing.T) {
	require.Equal(t, NoConnection, Elect(nil, NoConnection, NoConnection))
	require.Equal(t, NoConnection, Elect(nil, 4, 4))
}

func TestElectPrefersFirstVisible(t *testing.T) {
	candidates := []Candidate{{ID: 1, Hidden: true}, {ID: 2}, {ID: 3}}
	require.Equal(t, ConnectionID(2), Elect(candidates, NoConnection, NoConnection))
}

func TestElectHonoursVisiblePreference(t *testing.T) {
	candidates := []Candidate{{ID: 1, Hidden: true}, {ID: 2}, {ID: 3}}
	require.Equal(t, ConnectionID(3), Elect(candidates, NoConnection, 3))
	require.Equal(t, ConnectionID(3), Elect(candidates, 1, 3))
}

func TestElectIgnoresHiddenPreference(t *testing.T) {
	candidates := []Candidate{{ID: 1}, {ID: 2, Hidden: true}}
	require.Equal(t, ConnectionID(1), Elect(candidates, NoConnection, 2))
}

func TestElectKeepsVisiblePrimary(t *testing.T) {
	candidates := []Candidate{{ID: 1}, {ID: 2}, {ID: 3}}
	require.Equal(t, ConnectionID(1), Elect(candidates, 1, 3))
}

func TestElectReplacesHiddenPrimary(t *testing.T) {
	candidates := []Candidate{{ID: 1, Hidden: true}, {ID: 2}, {ID: 3}}
	require.Equal(t, ConnectionID(2), Elect(candidates, 1, NoConnection))
}

func TestElectKeepsHiddenPrimaryWhenNoneVisible(t *testing.T) {
	candidates := []Candidate{{ID: 1, Hidden: true}, {ID: 2, Hidden: true}}
	require.Equal(t, ConnectionID(2), Elect(candidates, 2, NoConnection))
}

func TestElectFallsBackToFirstWhenAllHidden(t *testing.T) {
	candidates := []Candidate{{ID: 4, Hidden: true}, {ID: 7, Hidden: true}}
	require.Equal(t, ConnectionID(4), Elect(candidates, NoConnection, NoConnection))
}

func TestElectClearsStalePrimary(t *testing.T) {
	candidates := []Candidate{{ID: 2}, {ID: 3}}
	require.Equal(t, ConnectionID(2), Elect(candidates, 1, NoConnection))
}

func TestElectInvariantsHoldForRandomStates(t *testing.T) {
	rng := rand.New(rand.NewSource(1))

	for round := 0; round < 500; round++ {
		n := rng.Intn(6)
		candidates := make([]Candidate, n)
		anyVisible := false
		for i := range candidates {
			candidates[i] = Candidate{ID: ConnectionID(i + 1), Hidden: rng.Intn(2) == 0}
			anyVisible = anyVisible || !candidates[i].Hidden
		}
		current := ConnectionID(rng.Intn(n + 2))
		preferred := ConnectionID(rng.Intn(n + 2))

		got := Elect(candidates, current, preferred)
		if n == 0 {
			require.Equal(t, NoConnection, got)
			continue
		}

		var winner *Candidate
		for i := range candidates {
			if candidates[i].ID == got {
				winner = &candidates[i]
			}
		}
		require.NotNil(t, winner, "primary %d must be registered", got)
		if anyVisible {
			require.False(t, winner.Hidden, "visible candidate exists but primary %d is hidden", got)
		}
	}
}

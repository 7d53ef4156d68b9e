package container

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ruvnet/tokenfield/internal/chronicle"
	"github.com/ruvnet/tokenfield/internal/errors"
	"github.com/ruvnet/tokenfield/internal/token"
)

func spaceFixture(t *testing.T) *chronicle.Doc {
	t.Helper()
	doc := chronicle.New("x")
	require.NoError(t, doc.Transaction(func(tx *chronicle.Tx) error {
		for _, tok := range token.StandardDeck("card", 5) {
			tx.Set("tokens."+tok.ID, tok.ToValue())
		}
		return nil
	}))
	return doc
}

func TestSpace_PlaceAndRemove(t *testing.T) {
	doc := spaceFixture(t)

	var pid string
	require.NoError(t, doc.Transaction(func(tx *chronicle.Tx) error {
		sp := NewSpace(tx, "board")
		var err error
		pid, err = sp.Place("table", "card-0", nil, nil, true, "Alice")
		require.NoError(t, err)

		placements := sp.Placements("table")
		require.Len(t, placements, 1)
		assert.Equal(t, pid, placements[0].ID)
		assert.Equal(t, "card-0", placements[0].TokenID)
		assert.True(t, placements[0].FaceUp)
		assert.Equal(t, "Alice", placements[0].Owner)
		return nil
	}))

	require.NoError(t, doc.Transaction(func(tx *chronicle.Tx) error {
		sp := NewSpace(tx, "board")
		tokenID, err := sp.Remove("table", pid)
		require.NoError(t, err)
		assert.Equal(t, "card-0", tokenID)
		assert.Empty(t, sp.Placements("table"))
		return nil
	}))
}

func TestSpace_PlaceUnknownToken(t *testing.T) {
	doc := chronicle.New("x")
	err := doc.Transaction(func(tx *chronicle.Tx) error {
		_, err := NewSpace(tx, "board").Place("table", "ghost", nil, nil, false, "")
		return err
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.UnknownToken))
}

func TestSpace_FlipAndSetPosition(t *testing.T) {
	doc := spaceFixture(t)

	require.NoError(t, doc.Transaction(func(tx *chronicle.Tx) error {
		sp := NewSpace(tx, "board")
		pid, err := sp.Place("table", "card-1", nil, nil, false, "")
		require.NoError(t, err)

		require.NoError(t, sp.Flip("table", pid, true))
		require.NoError(t, sp.SetPosition("table", pid, 12, 34))

		p := sp.Placements("table")[0]
		assert.True(t, p.FaceUp)
		require.NotNil(t, p.X)
		assert.Equal(t, 12.0, *p.X)
		assert.Equal(t, 34.0, *p.Y)
		return nil
	}))
}

func TestSpace_TransferZone(t *testing.T) {
	doc := spaceFixture(t)

	require.NoError(t, doc.Transaction(func(tx *chronicle.Tx) error {
		sp := NewSpace(tx, "board")
		pid, err := sp.Place("hand", "card-2", nil, nil, false, "")
		require.NoError(t, err)

		require.NoError(t, sp.TransferZone("hand", pid, "table"))
		assert.Empty(t, sp.Placements("hand"))

		placements := sp.Placements("table")
		require.Len(t, placements, 1)
		assert.Equal(t, pid, placements[0].ID)
		return nil
	}))
}

func TestSpace_SpreadLayoutDeterministic(t *testing.T) {
	positions := func() []float64 {
		doc := spaceFixture(t)
		var xs []float64
		require.NoError(t, doc.Transaction(func(tx *chronicle.Tx) error {
			sp := NewSpace(tx, "board")
			for _, id := range []string{"card-0", "card-1", "card-2"} {
				_, err := sp.Place("row", id, nil, nil, true, "")
				require.NoError(t, err)
			}
			require.NoError(t, sp.SpreadZone("row", 10, 0, 25))
			for _, p := range sp.Placements("row") {
				xs = append(xs, *p.X)
			}
			return nil
		}))
		return xs
	}

	first := positions()
	assert.Equal(t, []float64{10, 35, 60}, first)
	assert.Equal(t, first, positions())
}

func TestSpace_DeleteZoneUnknown(t *testing.T) {
	doc := chronicle.New("x")
	err := doc.Transaction(func(tx *chronicle.Tx) error {
		return NewSpace(tx, "board").DeleteZone("nope")
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.UnknownZone))
}

func TestSpace_PlacementIDsStableAcrossMerge(t *testing.T) {
	doc := spaceFixture(t)
	var pid string
	require.NoError(t, doc.Transaction(func(tx *chronicle.Tx) error {
		var err error
		pid, err = NewSpace(tx, "board").Place("table", "card-3", nil, nil, false, "")
		return err
	}))

	other := chronicle.New("y")
	require.NoError(t, other.Merge(doc))

	require.NoError(t, other.Transaction(func(tx *chronicle.Tx) error {
		placements := NewSpace(tx, "board").Placements("table")
		require.Len(t, placements, 1)
		assert.Equal(t, pid, placements[0].ID)
		return nil
	}))
}

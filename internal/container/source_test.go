package container

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ruvnet/tokenfield/internal/chronicle"
	"github.com/ruvnet/tokenfield/internal/token"
)

func sourceFixture(t *testing.T) *chronicle.Doc {
	t.Helper()
	doc := chronicle.New("x")
	require.NoError(t, doc.Transaction(func(tx *chronicle.Tx) error {
		require.NoError(t, NewStack(tx, "deck-a").AddTokens(token.StandardDeck("a", 3), -1))
		require.NoError(t, NewStack(tx, "deck-b").AddTokens(token.StandardDeck("b", 3), -1))

		src := NewSource(tx, "pool")
		src.Create(ResetRebuild)
		require.NoError(t, src.AddStack("deck-a"))
		require.NoError(t, src.AddStack("deck-b"))
		return nil
	}))
	return doc
}

func TestSource_DrawSpansMembers(t *testing.T) {
	doc := sourceFixture(t)

	require.NoError(t, doc.Transaction(func(tx *chronicle.Tx) error {
		src := NewSource(tx, "pool")

		drawn := src.Draw(4)
		require.Len(t, drawn, 4)
		// First member empties before the second is touched.
		assert.Equal(t, []string{"a-2", "a-1", "a-0", "b-2"}, drawn)

		counts := src.Inspect()
		assert.Equal(t, 0, counts["deck-a"])
		assert.Equal(t, 2, counts["deck-b"])
		return nil
	}))
}

func TestSource_BurnExcludesFromDraw(t *testing.T) {
	doc := sourceFixture(t)

	require.NoError(t, doc.Transaction(func(tx *chronicle.Tx) error {
		src := NewSource(tx, "pool")
		burned := src.Burn(2)
		require.Len(t, burned, 2)

		drawn := src.Draw(10)
		for _, id := range burned {
			assert.NotContains(t, drawn, id)
		}
		assert.Len(t, drawn, 4)
		return nil
	}))
}

func TestSource_ShuffleDeterministicFromRoot(t *testing.T) {
	order := func() []string {
		doc := sourceFixture(t)
		var drawn []string
		require.NoError(t, doc.Transaction(func(tx *chronicle.Tx) error {
			src := NewSource(tx, "pool")
			src.Shuffle(99)
			drawn = src.Draw(6)
			return nil
		}))
		return drawn
	}

	assert.Equal(t, order(), order())
}

func TestSource_ResetRebuild(t *testing.T) {
	doc := sourceFixture(t)

	require.NoError(t, doc.Transaction(func(tx *chronicle.Tx) error {
		src := NewSource(tx, "pool")
		src.Burn(2)
		src.Draw(2)

		src.Reset()
		assert.Empty(t, src.Burned())
		counts := src.Inspect()
		assert.Equal(t, 3, counts["deck-a"])
		assert.Equal(t, 3, counts["deck-b"])
		return nil
	}))
}

func TestSource_ResetReshuffleDiscards(t *testing.T) {
	doc := sourceFixture(t)

	require.NoError(t, doc.Transaction(func(tx *chronicle.Tx) error {
		src := NewSource(tx, "pool")
		src.SetPolicy(ResetReshuffleDiscard)

		NewStack(tx, "deck-a").Discard(2)
		require.Equal(t, 1, NewStack(tx, "deck-a").Len())

		src.Reset()
		assert.Equal(t, 3, NewStack(tx, "deck-a").Len())
		assert.Empty(t, NewStack(tx, "deck-a").DiscardPile())
		return nil
	}))
}

package container

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ruvnet/tokenfield/internal/chronicle"
	"github.com/ruvnet/tokenfield/internal/token"
)

func buildStack(t *testing.T, doc *chronicle.Doc, name string, n int) {
	t.Helper()
	require.NoError(t, doc.Transaction(func(tx *chronicle.Tx) error {
		return NewStack(tx, name).AddTokens(token.StandardDeck("card", n), -1)
	}))
}

func TestStack_ShuffleDrawDeterminism(t *testing.T) {
	// Two independent runs with the same seed draw the same ids.
	var firstDraw []string
	var remaining []string

	for run := 0; run < 2; run++ {
		doc := chronicle.New("x")
		buildStack(t, doc, "main", 52)

		var drawn []string
		require.NoError(t, doc.Transaction(func(tx *chronicle.Tx) error {
			s := NewStack(tx, "main")
			s.Shuffle(42)
			drawn, _ = s.Draw(5)
			remaining = s.Cards()
			return nil
		}))
		require.Len(t, drawn, 5)

		if run == 0 {
			firstDraw = drawn
		} else {
			assert.Equal(t, firstDraw, drawn)
		}
	}

	assert.Len(t, remaining, 47)
}

func TestStack_SaveLoadPreservesOrdering(t *testing.T) {
	doc := chronicle.New("x")
	buildStack(t, doc, "main", 52)
	require.NoError(t, doc.Transaction(func(tx *chronicle.Tx) error {
		s := NewStack(tx, "main")
		s.Shuffle(42)
		s.Draw(5)
		return nil
	}))

	var want []string
	require.NoError(t, doc.Transaction(func(tx *chronicle.Tx) error {
		want = NewStack(tx, "main").Cards()
		return nil
	}))

	blob, err := doc.Save()
	require.NoError(t, err)
	loaded, err := chronicle.Load("y", blob)
	require.NoError(t, err)

	var got []string
	require.NoError(t, loaded.Transaction(func(tx *chronicle.Tx) error {
		got = NewStack(tx, "main").Cards()
		return nil
	}))
	assert.Equal(t, want, got)
	assert.Len(t, got, 47)
}

func TestStack_DrawShortAndEmptySignal(t *testing.T) {
	doc := chronicle.New("x")
	buildStack(t, doc, "main", 3)

	require.NoError(t, doc.Transaction(func(tx *chronicle.Tx) error {
		s := NewStack(tx, "main")

		drawn, becameEmpty := s.Draw(5)
		assert.Len(t, drawn, 3)
		assert.True(t, becameEmpty)

		// Emptiness is signaled once; further draws stay silent.
		drawn, becameEmpty = s.Draw(1)
		assert.Empty(t, drawn)
		assert.False(t, becameEmpty)
		return nil
	}))
}

func TestStack_ResetRestoresInitialContents(t *testing.T) {
	doc := chronicle.New("x")
	buildStack(t, doc, "main", 10)

	require.NoError(t, doc.Transaction(func(tx *chronicle.Tx) error {
		s := NewStack(tx, "main")
		initial := s.Cards()

		s.Shuffle(7)
		s.Draw(4)
		s.Discard(2)
		require.Len(t, s.Cards(), 4)
		require.Len(t, s.DiscardPile(), 2)

		s.Reset()
		assert.Equal(t, initial, s.Cards())
		assert.Empty(t, s.DiscardPile())
		return nil
	}))
}

func TestStack_CutAndReverse(t *testing.T) {
	doc := chronicle.New("x")
	buildStack(t, doc, "main", 6)

	require.NoError(t, doc.Transaction(func(tx *chronicle.Tx) error {
		s := NewStack(tx, "main")

		s.Cut(2)
		assert.Equal(t, []string{"card-2", "card-3", "card-4", "card-5", "card-0", "card-1"}, s.Cards())

		s.Reverse(0, -1)
		assert.Equal(t, []string{"card-1", "card-0", "card-5", "card-4", "card-3", "card-2"}, s.Cards())
		return nil
	}))
}

func TestStack_DuplicateTokenRejected(t *testing.T) {
	doc := chronicle.New("x")
	buildStack(t, doc, "main", 3)

	err := doc.Transaction(func(tx *chronicle.Tx) error {
		return NewStack(tx, "main").AddTokens(token.StandardDeck("card", 1), -1)
	})
	require.Error(t, err)
}

func TestStack_PeekDoesNotRemove(t *testing.T) {
	doc := chronicle.New("x")
	buildStack(t, doc, "main", 5)

	require.NoError(t, doc.Transaction(func(tx *chronicle.Tx) error {
		s := NewStack(tx, "main")
		top := s.Peek(2)
		assert.Equal(t, []string{"card-4", "card-3"}, top)
		assert.Equal(t, 5, s.Len())
		return nil
	}))
}

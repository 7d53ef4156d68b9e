package chronicle

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ruvnet/tokenfield/internal/errors"
)

func TestDoc_SetGet(t *testing.T) {
	doc := New("x")

	require.NoError(t, doc.Set("agents.Alice.name", "Alice"))
	require.NoError(t, doc.Set("agents.Alice.score", 3))

	v, ok := doc.Get("agents.Alice.name")
	require.True(t, ok)
	assert.Equal(t, "Alice", v)

	v, ok = doc.Get("agents.Alice.score")
	require.True(t, ok)
	assert.Equal(t, 3.0, v)

	_, ok = doc.Get("agents.Bob")
	assert.False(t, ok)
}

func TestDoc_TransactionAbortRestoresState(t *testing.T) {
	doc := New("x")
	require.NoError(t, doc.Set("game.phase", "setup"))
	before, err := doc.Save()
	require.NoError(t, err)

	err = doc.Transaction(func(tx *Tx) error {
		tx.Set("game.phase", "play")
		tx.ListAppend("game.order", "Alice")
		return errors.New(errors.PreconditionFailed, "boom")
	})
	require.Error(t, err)

	after, err := doc.Save()
	require.NoError(t, err)
	assert.Equal(t, before, after)

	v, _ := doc.Get("game.phase")
	assert.Equal(t, "setup", v)
}

func TestDoc_CounterMergesAdditively(t *testing.T) {
	// Two peers concurrently grant gold from an identical initial state;
	// after bidirectional merge both observe the sum.
	x := New("x")
	y := New("y")

	require.NoError(t, x.Transaction(func(tx *Tx) error {
		tx.CounterAdd("agents.Alice.resources.gold", 10)
		return nil
	}))
	require.NoError(t, y.Transaction(func(tx *Tx) error {
		tx.CounterAdd("agents.Alice.resources.gold", 7)
		return nil
	}))

	require.NoError(t, x.Merge(y))
	require.NoError(t, y.Merge(x))

	for _, doc := range []*Doc{x, y} {
		v, ok := doc.Get("agents.Alice.resources.gold")
		require.True(t, ok)
		assert.Equal(t, 17.0, v)
	}
}

func TestDoc_MergeConvergesToIdenticalBlobs(t *testing.T) {
	x := New("x")
	y := New("y")

	require.NoError(t, x.Set("game.phase", "draw"))
	require.NoError(t, y.Set("game.phase", "discard"))
	require.NoError(t, x.Set("agents.Alice.status", "active"))
	require.NoError(t, y.Set("agents.Bob.status", "active"))

	require.NoError(t, x.Merge(y))
	require.NoError(t, y.Merge(x))

	bx, err := x.Save()
	require.NoError(t, err)
	by, err := y.Save()
	require.NoError(t, err)
	assert.Equal(t, bx, by)

	// Last writer wins on the conflicting scalar; both clocks were 1 so the
	// actor id breaks the tie.
	vx, _ := x.Get("game.phase")
	vy, _ := y.Get("game.phase")
	assert.Equal(t, vx, vy)
	assert.Equal(t, "discard", vx)
}

func TestDoc_MergeCommutativeAndAssociative(t *testing.T) {
	mk := func(actor, key, val string) *Doc {
		d := New(actor)
		require.NoError(t, d.Set("custom."+key, val))
		return d
	}

	x, y, z := mk("x", "a", "1"), mk("y", "b", "2"), mk("z", "c", "3")

	// merge(merge(x, y), z)
	left := x.Fork("x")
	require.NoError(t, left.Merge(y))
	require.NoError(t, left.Merge(z))

	// merge(x, merge(y, z))
	yz := y.Fork("y")
	require.NoError(t, yz.Merge(z))
	right := x.Fork("x")
	require.NoError(t, right.Merge(yz))

	bl, err := left.Save()
	require.NoError(t, err)
	br, err := right.Save()
	require.NoError(t, err)
	assert.Equal(t, bl, br)

	// merge(y, x) == merge(x, y)
	xy := x.Fork("x")
	require.NoError(t, xy.Merge(y))
	yx := y.Fork("y")
	require.NoError(t, yx.Merge(x))
	b1, _ := xy.Save()
	b2, _ := yx.Save()
	assert.Equal(t, b1, b2)
}

func TestDoc_ListConcurrentAppendsConverge(t *testing.T) {
	base := New("base")
	require.NoError(t, base.Transaction(func(tx *Tx) error {
		tx.ListAppend("stacks.main.cards", "c0")
		return nil
	}))

	x := base.Fork("x")
	y := base.Fork("y")

	require.NoError(t, x.Transaction(func(tx *Tx) error {
		tx.ListAppend("stacks.main.cards", "from-x")
		return nil
	}))
	require.NoError(t, y.Transaction(func(tx *Tx) error {
		tx.ListAppend("stacks.main.cards", "from-y")
		return nil
	}))

	require.NoError(t, x.Merge(y))
	require.NoError(t, y.Merge(x))

	bx, _ := x.Save()
	by, _ := y.Save()
	assert.Equal(t, bx, by)

	vx, _ := x.Get("stacks.main.cards")
	assert.Len(t, vx, 3)
	assert.Equal(t, "c0", vx.([]interface{})[0])
}

func TestDoc_SaveLoadRoundtrip(t *testing.T) {
	doc := New("x")
	require.NoError(t, doc.Transaction(func(tx *Tx) error {
		tx.Set("game.phase", "play")
		tx.ListAppend("stacks.main.cards", "c1")
		tx.ListAppend("stacks.main.cards", "c2")
		tx.CounterAdd("agents.Alice.resources.gold", 5)
		return nil
	}))

	blob, err := doc.Save()
	require.NoError(t, err)

	loaded, err := Load("y", blob)
	require.NoError(t, err)

	blob2, err := loaded.Save()
	require.NoError(t, err)
	assert.Equal(t, blob, blob2)

	v, _ := loaded.Get("agents.Alice.resources.gold")
	assert.Equal(t, 5.0, v)
}

func TestLoad_CorruptBlob(t *testing.T) {
	_, err := Load("x", []byte("not a chronicle"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.CorruptDocument))

	_, err = Load("x", []byte("TKFD\x01{broken"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.CorruptDocument))

	_, err = Load("x", []byte{})
	require.Error(t, err)
}

func TestDoc_DeleteLeavesTombstone(t *testing.T) {
	x := New("x")
	require.NoError(t, x.Set("tokens.t1.label", "one"))

	y := x.Fork("y")

	require.NoError(t, x.Transaction(func(tx *Tx) error {
		tx.Delete("tokens.t1")
		return nil
	}))

	require.NoError(t, y.Merge(x))
	_, ok := y.Get("tokens.t1")
	assert.False(t, ok)
}

func TestDoc_SyncDelta(t *testing.T) {
	src := New("src")
	require.NoError(t, src.Set("game.phase", "one"))

	dst := New("dst")

	delta, cursor, err := src.SyncMessage(nil)
	require.NoError(t, err)
	require.NoError(t, dst.ApplyDelta(delta))

	v, ok := dst.Get("game.phase")
	require.True(t, ok)
	assert.Equal(t, "one", v)

	// A second sync from the advanced cursor carries only new writes.
	require.NoError(t, src.Set("game.phase", "two"))
	require.NoError(t, src.Set("game.turn", 4))

	delta2, _, err := src.SyncMessage(cursor)
	require.NoError(t, err)
	assert.Less(t, len(delta2), len(delta)+200)
	require.NoError(t, dst.ApplyDelta(delta2))

	v, _ = dst.Get("game.phase")
	assert.Equal(t, "two", v)
	v, _ = dst.Get("game.turn")
	assert.Equal(t, 4.0, v)

	// Both sides now save identical blobs.
	bs, _ := src.Save()
	bd, _ := dst.Save()
	assert.Equal(t, bs, bd)
}

func TestDoc_ListRemoveTombstoneSyncs(t *testing.T) {
	src := New("src")
	require.NoError(t, src.Transaction(func(tx *Tx) error {
		for _, id := range []string{"a", "b", "c"} {
			tx.ListAppend("stacks.main.cards", id)
		}
		return nil
	}))

	dst := New("dst")
	delta, cursor, err := src.SyncMessage(nil)
	require.NoError(t, err)
	require.NoError(t, dst.ApplyDelta(delta))

	require.NoError(t, src.Transaction(func(tx *Tx) error {
		_, ok := tx.ListRemove("stacks.main.cards", 2)
		require.True(t, ok)
		return nil
	}))

	delta2, _, err := src.SyncMessage(cursor)
	require.NoError(t, err)
	require.NoError(t, dst.ApplyDelta(delta2))

	v, _ := dst.Get("stacks.main.cards")
	assert.Equal(t, []interface{}{"a", "b"}, v)
}

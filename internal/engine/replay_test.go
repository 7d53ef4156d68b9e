package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// dealHandlers registers the named rule used by the replay tests.
func dealHandlers(reg *HandlerRegistry) {
	reg.Register("deal-on-create", RuleHandler{
		Condition: func(ctx *RuleContext, last *Action) bool {
			return last.Type == "agent:create"
		},
		Action: func(ctx *RuleContext, last *Action) error {
			ctx.Dispatch(NewAction("agent:giveCards", map[string]interface{}{
				"name":  last.Payload["name"],
				"stack": "main",
				"count": 3.0,
			}))
			return nil
		},
	})
}

func playSession(t *testing.T) *Engine {
	t.Helper()
	e := New(Options{ActorID: "sess", RootSeed: 42, Logger: zaptest.NewLogger(t)})
	dealHandlers(e.Handlers())
	require.NoError(t, e.AddNamedRule("deal-starting-hand", 100, false, "deal-on-create"))

	steps := []*Action{
		deckAction("main", 52),
		NewAction("stack:shuffle", map[string]interface{}{"stack": "main", "seed": 7.0}),
		NewAction("agent:create", map[string]interface{}{"name": "Alice"}),
		NewAction("agent:create", map[string]interface{}{"name": "Bob"}),
		NewAction("game:start", nil),
		NewAction("agent:giveResource", map[string]interface{}{"name": "Alice", "resource": "gold", "amount": 10.0}),
		NewAction("agent:endTurn", nil),
		NewAction("stack:draw", map[string]interface{}{"stack": "main", "count": 2.0}),
	}
	for _, a := range steps {
		_, err := e.Dispatch(a)
		require.NoError(t, err)
	}
	return e
}

func TestReplay_ByteIdenticalBlob(t *testing.T) {
	original := playSession(t)
	want, err := original.Doc().Save()
	require.NoError(t, err)

	log := original.ExportReplayLog()
	encoded, err := log.Encode()
	require.NoError(t, err)
	decoded, err := DecodeReplayLog(encoded)
	require.NoError(t, err)

	handlers := NewHandlerRegistry()
	dealHandlers(handlers)

	replayed, err := Replay(decoded, ReplayOptions{
		Logger:   zaptest.NewLogger(t),
		Handlers: handlers,
		Rules:    original.PortableRules(),
	})
	require.NoError(t, err)

	got, err := replayed.Doc().Save()
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestReplay_RuleDispatchesNotDuplicatedInHistory(t *testing.T) {
	e := playSession(t)

	// Only externally dispatched actions are logged; the rule-driven
	// giveCards re-derives during replay.
	for _, a := range e.History() {
		assert.NotEqual(t, "agent:giveCards", a.Type)
	}
}

func TestReplay_SnapshotCheckpoints(t *testing.T) {
	e := New(Options{ActorID: "snap", SnapshotInterval: 2, Logger: zaptest.NewLogger(t)})

	for i := 0; i < 5; i++ {
		_, err := e.Dispatch(NewAction("game:setCustomValue", map[string]interface{}{"key": "i", "value": float64(i)}))
		require.NoError(t, err)
	}

	snap, ok := e.LatestSnapshot()
	require.True(t, ok)
	assert.Equal(t, 4, snap.ActionIndex)
	assert.NotEmpty(t, snap.Blob)
}

func TestDecodeReplayLog_Corrupt(t *testing.T) {
	_, err := DecodeReplayLog([]byte("{nope"))
	require.Error(t, err)
}

package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ruvnet/tokenfield/internal/errors"
	"github.com/ruvnet/tokenfield/internal/token"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	return New(Options{
		ActorID:  "test",
		RootSeed: 1,
		Logger:   zaptest.NewLogger(t),
	})
}

func deckAction(stack string, n int) *Action {
	deck := token.StandardDeck("card", n)
	tokens := make([]interface{}, len(deck))
	for i, tok := range deck {
		tokens[i] = tok.ToValue()
	}
	return NewAction("stack:addTokens", map[string]interface{}{"stack": stack, "tokens": tokens})
}

func TestDispatch_UnknownAction(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.Dispatch(NewAction("stack:conjure", nil))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.UnknownAction))
}

func TestDispatch_InvalidPayload(t *testing.T) {
	e := newTestEngine(t)

	_, err := e.Dispatch(NewAction("stack:draw", map[string]interface{}{"stack": "main"}))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.InvalidAction))

	_, err = e.Dispatch(NewAction("stack:draw", map[string]interface{}{"stack": 7, "count": 1.0}))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.InvalidAction))
}

func TestDispatch_StackShuffleDraw(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.Dispatch(deckAction("main", 52))
	require.NoError(t, err)

	_, err = e.Dispatch(NewAction("stack:shuffle", map[string]interface{}{"stack": "main", "seed": 42.0}))
	require.NoError(t, err)

	res, err := e.Dispatch(NewAction("stack:draw", map[string]interface{}{"stack": "main", "count": 5.0}))
	require.NoError(t, err)

	drawn := res.(map[string]interface{})["tokens"].([]string)
	assert.Len(t, drawn, 5)
}

func TestDispatch_AtomicityOnHandlerError(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.Dispatch(NewAction("agent:create", map[string]interface{}{"name": "Alice"}))
	require.NoError(t, err)
	_, err = e.Dispatch(NewAction("agent:giveResource", map[string]interface{}{"name": "Alice", "resource": "gold", "amount": 3.0}))
	require.NoError(t, err)

	before, err := e.Doc().Save()
	require.NoError(t, err)

	// Overdraft without allowNegative fails; no partial effects remain.
	_, err = e.Dispatch(NewAction("agent:takeResource", map[string]interface{}{"name": "Alice", "resource": "gold", "amount": 10.0}))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.PreconditionFailed))

	after, err := e.Doc().Save()
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestDispatch_RuleCascadeDealsStartingHand(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.Dispatch(deckAction("main", 52))
	require.NoError(t, err)

	// On agent:create, draw five cards into the new agent's hand.
	require.NoError(t, e.AddRule("deal-starting-hand", 100, false,
		func(ctx *RuleContext, last *Action) bool {
			return last.Type == "agent:create"
		},
		func(ctx *RuleContext, last *Action) error {
			ctx.Dispatch(NewAction("agent:giveCards", map[string]interface{}{
				"name":  last.Payload["name"],
				"stack": "main",
				"count": 5.0,
			}))
			return nil
		}))

	_, err = e.Dispatch(NewAction("agent:create", map[string]interface{}{"name": "Alice"}))
	require.NoError(t, err)

	hand, ok := e.Doc().Get("agents.Alice.hand")
	require.True(t, ok)
	assert.Len(t, hand, 5)

	cards, _ := e.Doc().Get("stacks.main.cards")
	assert.Len(t, cards, 47)
}

func TestDispatch_RulePriorityAndTies(t *testing.T) {
	e := newTestEngine(t)

	var order []string
	add := func(name string, priority int) {
		require.NoError(t, e.AddRule(name, priority, false,
			nil,
			func(ctx *RuleContext, last *Action) error {
				if last.Type == "game:setCustomValue" {
					order = append(order, name)
				}
				return nil
			}))
	}
	add("low", 1)
	add("high", 10)
	add("high-second", 10)

	_, err := e.Dispatch(NewAction("game:setCustomValue", map[string]interface{}{"key": "k", "value": "v"}))
	require.NoError(t, err)

	assert.Equal(t, []string{"high", "high-second", "low"}, order)
}

func TestDispatch_OnceRuleFiresOnce(t *testing.T) {
	e := newTestEngine(t)

	fired := 0
	require.NoError(t, e.AddRule("once-rule", 0, true,
		func(ctx *RuleContext, last *Action) bool { return last.Type == "game:nextPhase" },
		func(ctx *RuleContext, last *Action) error {
			fired++
			return nil
		}))

	for i := 0; i < 3; i++ {
		_, err := e.Dispatch(NewAction("game:nextPhase", nil))
		require.NoError(t, err)
	}
	assert.Equal(t, 1, fired)
}

func TestDispatch_RuleErrorDoesNotAbort(t *testing.T) {
	e := newTestEngine(t)

	var ruleErrors []string
	e.Events().Subscribe("rule:error", func(name string, data map[string]interface{}) {
		ruleErrors = append(ruleErrors, data["rule"].(string))
	})

	require.NoError(t, e.AddRule("broken", 10, false,
		nil,
		func(ctx *RuleContext, last *Action) error {
			return errors.New(errors.PreconditionFailed, "nope")
		}))

	ran := false
	require.NoError(t, e.AddRule("healthy", 1, false,
		nil,
		func(ctx *RuleContext, last *Action) error {
			ran = true
			return nil
		}))

	_, err := e.Dispatch(NewAction("game:setCustomValue", map[string]interface{}{"key": "k", "value": 1.0}))
	require.NoError(t, err)

	assert.True(t, ran)
	assert.Equal(t, []string{"broken"}, ruleErrors)
}

func TestDispatch_TokenLineage(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.Dispatch(deckAction("main", 2))
	require.NoError(t, err)

	res, err := e.Dispatch(NewAction("token:merge", map[string]interface{}{
		"tokens": []interface{}{"card-0", "card-1"},
	}))
	require.NoError(t, err)
	merged := res.(map[string]interface{})["token"].(string)

	v, ok := e.Doc().Get("tokens." + merged + ".mergedFrom")
	require.True(t, ok)
	assert.ElementsMatch(t, []interface{}{"card-0", "card-1"}, v)

	// Inputs are gone from the stack and the token table.
	cards, _ := e.Doc().Get("stacks.main.cards")
	assert.Empty(t, cards)
	_, ok = e.Doc().Get("tokens.card-0")
	assert.False(t, ok)
	_, ok = e.Doc().Get("tokens.card-1")
	assert.False(t, ok)

	res, err = e.Dispatch(NewAction("token:split", map[string]interface{}{
		"token": merged, "pieces": 2.0,
	}))
	require.NoError(t, err)
	children := res.(map[string]interface{})["tokens"].([]string)
	require.Len(t, children, 2)

	for _, child := range children {
		v, ok := e.Doc().Get("tokens." + child + ".splitFrom")
		require.True(t, ok)
		assert.Equal(t, merged, v)
	}
	_, ok = e.Doc().Get("tokens." + merged)
	assert.False(t, ok)
}

func TestDispatch_GameLoopAdvancesTurns(t *testing.T) {
	e := newTestEngine(t)
	for _, name := range []string{"Alice", "Bob", "Cara"} {
		_, err := e.Dispatch(NewAction("agent:create", map[string]interface{}{"name": name}))
		require.NoError(t, err)
	}
	_, err := e.Dispatch(NewAction("game:start", map[string]interface{}{
		"phases": []interface{}{"draw", "play"},
	}))
	require.NoError(t, err)
	assert.Equal(t, "Alice", e.ActiveAgent())

	_, err = e.Dispatch(NewAction("agent:endTurn", nil))
	require.NoError(t, err)
	assert.Equal(t, "Bob", e.ActiveAgent())

	// Eliminated agents are skipped in rotation.
	_, err = e.Dispatch(NewAction("agent:eliminate", map[string]interface{}{"name": "Cara"}))
	require.NoError(t, err)
	_, err = e.Dispatch(NewAction("agent:endTurn", nil))
	require.NoError(t, err)
	assert.Equal(t, "Alice", e.ActiveAgent())

	// Skip marks are consumed once.
	_, err = e.Dispatch(NewAction("game:skipTurn", map[string]interface{}{"agent": "Bob"}))
	require.NoError(t, err)
	_, err = e.Dispatch(NewAction("agent:endTurn", nil))
	require.NoError(t, err)
	assert.Equal(t, "Alice", e.ActiveAgent())
}

func TestDispatch_DeclareWinnerIsTerminal(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.Dispatch(NewAction("agent:create", map[string]interface{}{"name": "Alice"}))
	require.NoError(t, err)
	_, err = e.Dispatch(NewAction("agent:create", map[string]interface{}{"name": "Bob"}))
	require.NoError(t, err)

	_, err = e.Dispatch(NewAction("game:declareWinner", map[string]interface{}{"agent": "Alice"}))
	require.NoError(t, err)

	// A second, different winner is rejected.
	_, err = e.Dispatch(NewAction("game:declareWinner", map[string]interface{}{"agent": "Bob"}))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.PreconditionFailed))
}

func TestEmitter_WildcardAndOrder(t *testing.T) {
	e := newTestEngine(t)

	var got []string
	e.Events().Subscribe("engine:action", func(name string, data map[string]interface{}) {
		got = append(got, "specific")
	})
	e.Events().Subscribe(Wildcard, func(name string, data map[string]interface{}) {
		got = append(got, "wildcard:"+name)
	})

	_, err := e.Dispatch(NewAction("game:setCustomValue", map[string]interface{}{"key": "k", "value": 1.0}))
	require.NoError(t, err)

	require.NotEmpty(t, got)
	assert.Equal(t, "specific", got[0])
	assert.Equal(t, "wildcard:engine:action", got[1])
}

func TestDispatch_BatchParallelDispatchAtomic(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.Dispatch(deckAction("main", 10))
	require.NoError(t, err)

	before, _ := e.Doc().Save()

	// Second sub-action references a missing stack: the whole batch aborts.
	_, err = e.Dispatch(NewAction("batch:parallelDispatch", map[string]interface{}{
		"actions": []interface{}{
			map[string]interface{}{"type": "stack:draw", "payload": map[string]interface{}{"stack": "main", "count": 3.0}},
			map[string]interface{}{"type": "stack:draw", "payload": map[string]interface{}{"stack": "ghost", "count": 1.0}},
		},
	}))
	require.Error(t, err)

	after, _ := e.Doc().Save()
	assert.Equal(t, before, after)
}

func TestDispatch_BatchFilterAndTransform(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.Dispatch(deckAction("main", 4))
	require.NoError(t, err)

	res, err := e.Dispatch(NewAction("batch:filterTokens", map[string]interface{}{"group": "card"}))
	require.NoError(t, err)
	ids := res.(map[string]interface{})["tokens"].([]string)
	assert.Len(t, ids, 4)

	list := make([]interface{}, len(ids))
	for i, id := range ids {
		list[i] = id
	}
	_, err = e.Dispatch(NewAction("batch:transformTokens", map[string]interface{}{
		"tokens":     list,
		"properties": map[string]interface{}{"tapped": true},
	}))
	require.NoError(t, err)

	v, ok := e.Doc().Get("tokens." + ids[0] + ".meta.tapped")
	require.True(t, ok)
	assert.Equal(t, true, v)
}

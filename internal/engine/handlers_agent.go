package engine

import (
	"github.com/ruvnet/tokenfield/internal/agent"
	"github.com/ruvnet/tokenfield/internal/chronicle"
	"github.com/ruvnet/tokenfield/internal/container"
	"github.com/ruvnet/tokenfield/internal/errors"
)

func init() {
	register("agent:create", schema{
		req("name", kindString),
		opt("meta", kindMap),
	}, func(e *Engine, tx *chronicle.Tx, a *Action) (interface{}, error) {
		reg := agent.NewRegistry(tx)
		if err := reg.Create(a.str("name"), a.mapval("meta")); err != nil {
			return nil, err
		}
		NewGame(tx).appendOrder(a.str("name"))
		return map[string]interface{}{"name": a.str("name")}, nil
	})

	register("agent:setActive", schema{
		req("name", kindString),
		opt("active", kindBool),
	}, func(e *Engine, tx *chronicle.Tx, a *Action) (interface{}, error) {
		active := true
		if a.has("active") {
			active = a.boolean("active")
		}
		reg := agent.NewRegistry(tx)
		if err := reg.SetActive(a.str("name"), active); err != nil {
			return nil, err
		}
		if active {
			tx.Set("game.activeAgent", a.str("name"))
		}
		return nil, nil
	})

	register("agent:giveResource", schema{
		req("name", kindString),
		req("resource", kindString),
		req("amount", kindNumber),
	}, func(e *Engine, tx *chronicle.Tx, a *Action) (interface{}, error) {
		reg := agent.NewRegistry(tx)
		if err := reg.GiveResource(a.str("name"), a.str("resource"), a.num("amount", 0)); err != nil {
			return nil, err
		}
		return map[string]interface{}{"balance": reg.Resource(a.str("name"), a.str("resource"))}, nil
	})

	register("agent:takeResource", schema{
		req("name", kindString),
		req("resource", kindString),
		req("amount", kindNumber),
		opt("allowNegative", kindBool),
	}, func(e *Engine, tx *chronicle.Tx, a *Action) (interface{}, error) {
		reg := agent.NewRegistry(tx)
		balance, err := reg.TakeResource(a.str("name"), a.str("resource"), a.num("amount", 0), a.boolean("allowNegative"))
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{"balance": balance}, nil
	})

	register("agent:setResource", schema{
		req("name", kindString),
		req("resource", kindString),
		req("value", kindNumber),
	}, func(e *Engine, tx *chronicle.Tx, a *Action) (interface{}, error) {
		reg := agent.NewRegistry(tx)
		if !reg.Exists(a.str("name")) {
			return nil, errors.Newf(errors.UnknownAgent, "agent %s does not exist", a.str("name"))
		}
		current := reg.Resource(a.str("name"), a.str("resource"))
		return nil, reg.GiveResource(a.str("name"), a.str("resource"), a.num("value", 0)-current)
	})

	register("agent:transferResource", schema{
		req("from", kindString),
		req("to", kindString),
		req("resource", kindString),
		req("amount", kindNumber),
		opt("allowNegative", kindBool),
	}, func(e *Engine, tx *chronicle.Tx, a *Action) (interface{}, error) {
		reg := agent.NewRegistry(tx)
		if _, err := reg.TakeResource(a.str("from"), a.str("resource"), a.num("amount", 0), a.boolean("allowNegative")); err != nil {
			return nil, err
		}
		return nil, reg.GiveResource(a.str("to"), a.str("resource"), a.num("amount", 0))
	})

	register("agent:setMeta", schema{
		req("name", kindString),
		req("meta", kindMap),
	}, func(e *Engine, tx *chronicle.Tx, a *Action) (interface{}, error) {
		return nil, agent.NewRegistry(tx).MergeMeta(a.str("name"), a.mapval("meta"))
	})

	register("agent:giveCards", schema{
		req("name", kindString),
		opt("stack", kindString),
		opt("zone", kindString),
		opt("space", kindString),
		opt("count", kindNumber),
		opt("tokens", kindList),
	}, agentGiveCards)

	register("agent:takeCards", schema{
		req("name", kindString),
		req("tokens", kindList),
		opt("stack", kindString),
	}, agentTakeCards)

	register("agent:discardCards", schema{
		req("name", kindString),
		req("stack", kindString),
		req("tokens", kindList),
	}, agentDiscardCards)

	register("agent:eliminate", schema{
		req("name", kindString),
	}, func(e *Engine, tx *chronicle.Tx, a *Action) (interface{}, error) {
		reg := agent.NewRegistry(tx)
		if err := reg.SetStatus(a.str("name"), agent.StatusEliminated); err != nil {
			return nil, err
		}
		e.stageEvent("agent:eliminated", map[string]interface{}{"name": a.str("name")})
		g := NewGame(tx)
		if g.ActiveAgent() == a.str("name") {
			if _, err := g.AdvanceTurn(); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})

	register("agent:restore", schema{
		req("name", kindString),
	}, func(e *Engine, tx *chronicle.Tx, a *Action) (interface{}, error) {
		return nil, agent.NewRegistry(tx).SetStatus(a.str("name"), agent.StatusActive)
	})

	register("agent:setStatus", schema{
		req("name", kindString),
		req("status", kindString),
	}, func(e *Engine, tx *chronicle.Tx, a *Action) (interface{}, error) {
		switch a.str("status") {
		case agent.StatusActive, agent.StatusInactive, agent.StatusEliminated:
		default:
			return nil, errors.Newf(errors.InvalidAction, "agent:setStatus: unknown status %q", a.str("status"))
		}
		return nil, agent.NewRegistry(tx).SetStatus(a.str("name"), a.str("status"))
	})

	register("agent:endTurn", schema{
		opt("name", kindString),
	}, func(e *Engine, tx *chronicle.Tx, a *Action) (interface{}, error) {
		g := NewGame(tx)
		name := a.str("name")
		if name != "" && name != g.ActiveAgent() {
			return nil, errors.Newf(errors.PreconditionFailed, "agent %s is not the active agent", name)
		}
		next, err := g.AdvanceTurn()
		if err != nil {
			return nil, err
		}
		e.stageEvent("game:turn", map[string]interface{}{"active": next, "turn": float64(g.Turn())})
		return map[string]interface{}{"active": next}, nil
	})

	register("agent:markReady", schema{
		req("name", kindString),
	}, func(e *Engine, tx *chronicle.Tx, a *Action) (interface{}, error) {
		return nil, agent.NewRegistry(tx).SetTurnComplete(a.str("name"), true)
	})

	register("agent:clearHand", schema{
		req("name", kindString),
	}, func(e *Engine, tx *chronicle.Tx, a *Action) (interface{}, error) {
		ids, err := agent.NewRegistry(tx).ClearHand(a.str("name"))
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{"tokens": ids}, nil
	})
}

// agentGiveCards moves tokens from a stack or zone into an agent's hand in
// one transaction.
func agentGiveCards(e *Engine, tx *chronicle.Tx, a *Action) (interface{}, error) {
	reg := agent.NewRegistry(tx)
	name := a.str("name")
	if !reg.Exists(name) {
		return nil, errors.Newf(errors.UnknownAgent, "agent %s does not exist", name)
	}

	var ids []string
	switch {
	case a.str("stack") != "":
		s := container.NewStack(tx, a.str("stack"))
		if !s.Exists() {
			return nil, errors.Newf(errors.UnknownStack, "stack %s does not exist", a.str("stack"))
		}
		drawn, becameEmpty := s.Draw(a.intval("count", 1))
		if becameEmpty {
			e.stageEvent("stack:empty", map[string]interface{}{"stack": s.Name()})
		}
		ids = drawn
	case a.str("zone") != "":
		sp := spaceOf(tx, a)
		for _, pid := range a.strs("tokens") {
			tokenID, err := sp.Remove(a.str("zone"), pid)
			if err != nil {
				return nil, err
			}
			ids = append(ids, tokenID)
		}
	default:
		ids = a.strs("tokens")
		for _, id := range ids {
			if !tx.Has("tokens." + id) {
				return nil, errors.Newf(errors.UnknownToken, "token %s does not exist", id)
			}
		}
	}

	if err := reg.HandPush(name, ids...); err != nil {
		return nil, err
	}
	return map[string]interface{}{"tokens": ids}, nil
}

// agentTakeCards removes tokens from an agent's hand, optionally returning
// them to a stack.
func agentTakeCards(e *Engine, tx *chronicle.Tx, a *Action) (interface{}, error) {
	reg := agent.NewRegistry(tx)
	name := a.str("name")
	ids := a.strs("tokens")
	for _, id := range ids {
		if err := reg.HandRemove(name, id); err != nil {
			return nil, err
		}
	}
	if stackName := a.str("stack"); stackName != "" {
		s := container.NewStack(tx, stackName)
		if !s.Exists() {
			return nil, errors.Newf(errors.UnknownStack, "stack %s does not exist", stackName)
		}
		for _, id := range ids {
			tx.ListAppend("stacks."+stackName+".cards", id)
		}
	}
	return map[string]interface{}{"tokens": ids}, nil
}

// agentDiscardCards moves tokens from an agent's hand to a stack's discard
// pile.
func agentDiscardCards(e *Engine, tx *chronicle.Tx, a *Action) (interface{}, error) {
	reg := agent.NewRegistry(tx)
	s := container.NewStack(tx, a.str("stack"))
	if !s.Exists() {
		return nil, errors.Newf(errors.UnknownStack, "stack %s does not exist", a.str("stack"))
	}
	ids := a.strs("tokens")
	for _, id := range ids {
		if err := reg.HandRemove(a.str("name"), id); err != nil {
			return nil, err
		}
		s.DiscardToken(id)
	}
	return map[string]interface{}{"tokens": ids}, nil
}

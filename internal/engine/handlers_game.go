package engine

import (
	"github.com/ruvnet/tokenfield/internal/chronicle"
	"github.com/ruvnet/tokenfield/internal/errors"
)

func init() {
	register("game:start", schema{
		opt("phases", kindList),
	}, func(e *Engine, tx *chronicle.Tx, a *Action) (interface{}, error) {
		g := NewGame(tx)
		if g.Started() {
			return nil, errors.New(errors.PreconditionFailed, "game already started")
		}
		if err := g.Start(a.strs("phases")); err != nil {
			return nil, err
		}
		e.stageEvent("game:started", map[string]interface{}{"active": g.ActiveAgent()})
		return map[string]interface{}{"active": g.ActiveAgent()}, nil
	})

	register("game:setPhase", schema{
		req("phase", kindString),
	}, func(e *Engine, tx *chronicle.Tx, a *Action) (interface{}, error) {
		g := NewGame(tx)
		g.SetPhase(a.str("phase"))
		e.stageEvent("game:phase", map[string]interface{}{"phase": a.str("phase")})
		return nil, nil
	})

	register("game:nextPhase", schema{}, func(e *Engine, tx *chronicle.Tx, a *Action) (interface{}, error) {
		g := NewGame(tx)
		phase := g.NextPhase()
		e.stageEvent("game:phase", map[string]interface{}{"phase": phase})
		return map[string]interface{}{"phase": phase}, nil
	})

	register("game:setCustomValue", schema{
		req("key", kindString),
		req("value", kindAny),
	}, func(e *Engine, tx *chronicle.Tx, a *Action) (interface{}, error) {
		NewGame(tx).SetCustom(a.str("key"), a.Payload["value"])
		return nil, nil
	})

	register("game:declareWinner", schema{
		req("agent", kindString),
	}, func(e *Engine, tx *chronicle.Tx, a *Action) (interface{}, error) {
		g := NewGame(tx)
		if err := g.DeclareWinner(a.str("agent")); err != nil {
			return nil, err
		}
		e.stageEvent("game:over", map[string]interface{}{"winner": a.str("agent")})
		return nil, nil
	})

	register("game:declareDraw", schema{}, func(e *Engine, tx *chronicle.Tx, a *Action) (interface{}, error) {
		g := NewGame(tx)
		g.DeclareDraw()
		e.stageEvent("game:over", map[string]interface{}{"draw": true})
		return nil, nil
	})

	register("game:skipTurn", schema{
		req("agent", kindString),
	}, func(e *Engine, tx *chronicle.Tx, a *Action) (interface{}, error) {
		NewGame(tx).SkipTurn(a.str("agent"))
		return nil, nil
	})

	register("game:reset", schema{}, func(e *Engine, tx *chronicle.Tx, a *Action) (interface{}, error) {
		NewGame(tx).Reset()
		e.stageEvent("game:reset", map[string]interface{}{})
		return nil, nil
	})
}

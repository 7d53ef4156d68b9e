package engine

import (
	"github.com/ruvnet/tokenfield/internal/chronicle"
	"github.com/ruvnet/tokenfield/internal/container"
	"github.com/ruvnet/tokenfield/internal/errors"
)

func init() {
	register("source:addStack", schema{
		req("source", kindString),
		req("stack", kindString),
		opt("policy", kindString),
	}, func(e *Engine, tx *chronicle.Tx, a *Action) (interface{}, error) {
		src := container.NewSource(tx, a.str("source"))
		if !src.Exists() {
			src.Create(a.str("policy"))
		}
		return nil, src.AddStack(a.str("stack"))
	})

	register("source:shuffle", schema{
		req("source", kindString),
		opt("seed", kindNumber),
	}, sourceRequired(func(e *Engine, tx *chronicle.Tx, a *Action, src *container.Source) (interface{}, error) {
		src.Shuffle(a.seed(e.Seed(tx)))
		return nil, nil
	}))

	register("source:draw", schema{
		req("source", kindString),
		req("count", kindNumber),
	}, sourceRequired(func(e *Engine, tx *chronicle.Tx, a *Action, src *container.Source) (interface{}, error) {
		return map[string]interface{}{"tokens": src.Draw(a.intval("count", 0))}, nil
	}))

	register("source:burn", schema{
		req("source", kindString),
		req("count", kindNumber),
	}, sourceRequired(func(e *Engine, tx *chronicle.Tx, a *Action, src *container.Source) (interface{}, error) {
		burned := src.Burn(a.intval("count", 0))
		return map[string]interface{}{"count": len(burned)}, nil
	}))

	register("source:inspect", schema{
		req("source", kindString),
	}, sourceRequired(func(e *Engine, tx *chronicle.Tx, a *Action, src *container.Source) (interface{}, error) {
		counts := src.Inspect()
		out := make(map[string]interface{}, len(counts))
		for name, n := range counts {
			out[name] = float64(n)
		}
		return map[string]interface{}{"stacks": out, "burned": float64(len(src.Burned()))}, nil
	}))

	register("source:reset", schema{
		req("source", kindString),
	}, sourceRequired(func(e *Engine, tx *chronicle.Tx, a *Action, src *container.Source) (interface{}, error) {
		src.Reset()
		return nil, nil
	}))

	register("source:setPolicy", schema{
		req("source", kindString),
		req("policy", kindString),
	}, sourceRequired(func(e *Engine, tx *chronicle.Tx, a *Action, src *container.Source) (interface{}, error) {
		src.SetPolicy(a.str("policy"))
		return nil, nil
	}))
}

func sourceRequired(h func(e *Engine, tx *chronicle.Tx, a *Action, src *container.Source) (interface{}, error)) handlerFunc {
	return func(e *Engine, tx *chronicle.Tx, a *Action) (interface{}, error) {
		src := container.NewSource(tx, a.str("source"))
		if !src.Exists() {
			return nil, errors.Newf(errors.UnknownSource, "source %s does not exist", a.str("source"))
		}
		return h(e, tx, a, src)
	}
}

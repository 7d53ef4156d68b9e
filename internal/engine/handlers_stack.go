package engine

import (
	"github.com/ruvnet/tokenfield/internal/chronicle"
	"github.com/ruvnet/tokenfield/internal/container"
	"github.com/ruvnet/tokenfield/internal/errors"
	"github.com/ruvnet/tokenfield/internal/token"
)

func init() {
	register("stack:addTokens", schema{
		req("stack", kindString),
		req("tokens", kindList),
		opt("position", kindNumber),
	}, stackAddTokens)

	register("stack:shuffle", schema{
		req("stack", kindString),
		opt("seed", kindNumber),
	}, stackRequired(func(e *Engine, tx *chronicle.Tx, a *Action, s *container.Stack) (interface{}, error) {
		s.Shuffle(a.seed(e.Seed(tx)))
		return map[string]interface{}{"count": s.Len()}, nil
	}))

	register("stack:draw", schema{
		req("stack", kindString),
		req("count", kindNumber),
	}, stackRequired(func(e *Engine, tx *chronicle.Tx, a *Action, s *container.Stack) (interface{}, error) {
		drawn, becameEmpty := s.Draw(a.intval("count", 0))
		if becameEmpty {
			e.stageEvent("stack:empty", map[string]interface{}{"stack": s.Name()})
		}
		return map[string]interface{}{"tokens": drawn}, nil
	}))

	register("stack:burn", schema{
		req("stack", kindString),
		req("count", kindNumber),
	}, stackRequired(func(e *Engine, tx *chronicle.Tx, a *Action, s *container.Stack) (interface{}, error) {
		burned := s.Burn(a.intval("count", 0))
		return map[string]interface{}{"count": len(burned)}, nil
	}))

	register("stack:peek", schema{
		req("stack", kindString),
		req("count", kindNumber),
	}, stackRequired(func(e *Engine, tx *chronicle.Tx, a *Action, s *container.Stack) (interface{}, error) {
		return map[string]interface{}{"tokens": s.Peek(a.intval("count", 0))}, nil
	}))

	register("stack:cut", schema{
		req("stack", kindString),
		req("position", kindNumber),
	}, stackRequired(func(e *Engine, tx *chronicle.Tx, a *Action, s *container.Stack) (interface{}, error) {
		s.Cut(a.intval("position", 0))
		return nil, nil
	}))

	register("stack:reverse", schema{
		req("stack", kindString),
		opt("start", kindNumber),
		opt("end", kindNumber),
	}, stackRequired(func(e *Engine, tx *chronicle.Tx, a *Action, s *container.Stack) (interface{}, error) {
		s.Reverse(a.intval("start", 0), a.intval("end", -1))
		return nil, nil
	}))

	register("stack:reset", schema{
		req("stack", kindString),
	}, stackRequired(func(e *Engine, tx *chronicle.Tx, a *Action, s *container.Stack) (interface{}, error) {
		s.Reset()
		return map[string]interface{}{"count": s.Len()}, nil
	}))

	register("stack:discard", schema{
		req("stack", kindString),
		req("count", kindNumber),
	}, stackRequired(func(e *Engine, tx *chronicle.Tx, a *Action, s *container.Stack) (interface{}, error) {
		moved := s.Discard(a.intval("count", 0))
		return map[string]interface{}{"tokens": moved}, nil
	}))
}

// stackRequired wraps a handler with the existence check shared by every
// stack operation except addTokens.
func stackRequired(h func(e *Engine, tx *chronicle.Tx, a *Action, s *container.Stack) (interface{}, error)) handlerFunc {
	return func(e *Engine, tx *chronicle.Tx, a *Action) (interface{}, error) {
		s := container.NewStack(tx, a.str("stack"))
		if !s.Exists() {
			return nil, errors.Newf(errors.UnknownStack, "stack %s does not exist", a.str("stack"))
		}
		return h(e, tx, a, s)
	}
}

func stackAddTokens(e *Engine, tx *chronicle.Tx, a *Action) (interface{}, error) {
	s := container.NewStack(tx, a.str("stack"))
	pos := -1
	if a.has("position") {
		pos = a.intval("position", -1)
	}

	tokens := make([]*token.Token, 0, len(a.list("tokens")))
	for _, raw := range a.list("tokens") {
		t, ok := token.FromValue(raw)
		if !ok {
			return nil, errors.New(errors.InvalidAction, "stack:addTokens: malformed token")
		}
		tokens = append(tokens, t)
	}
	if err := s.AddTokens(tokens, pos); err != nil {
		return nil, err
	}
	return map[string]interface{}{"count": s.Len()}, nil
}

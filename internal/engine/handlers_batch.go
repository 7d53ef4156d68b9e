package engine

import (
	"github.com/ruvnet/tokenfield/internal/chronicle"
	"github.com/ruvnet/tokenfield/internal/container"
	"github.com/ruvnet/tokenfield/internal/errors"
	"github.com/ruvnet/tokenfield/internal/token"
)

func init() {
	register("batch:filterTokens", schema{
		opt("group", kindString),
		opt("kind", kindString),
		opt("meta", kindMap),
	}, batchFilterTokens)

	register("batch:transformTokens", schema{
		req("tokens", kindList),
		req("properties", kindMap),
	}, batchTransformTokens)

	register("batch:mapZones", schema{
		req("op", kindString),
		opt("space", kindString),
		opt("seed", kindNumber),
	}, batchMapZones)

	register("batch:parallelDispatch", schema{
		req("actions", kindList),
	}, batchParallelDispatch)
}

// batchFilterTokens returns the ids of tokens matching every given
// criterion.
func batchFilterTokens(e *Engine, tx *chronicle.Tx, a *Action) (interface{}, error) {
	group, kind := a.str("group"), a.str("kind")
	meta := a.mapval("meta")

	matched := make([]string, 0)
	for _, id := range tx.Keys("tokens") {
		raw, ok := tx.Get("tokens." + id)
		if !ok {
			continue
		}
		t, ok := token.FromValue(raw)
		if !ok {
			continue
		}
		if group != "" && t.Group != group {
			continue
		}
		if kind != "" && t.Kind != kind {
			continue
		}
		miss := false
		for k, want := range meta {
			if t.Meta == nil || t.Meta[k] != want {
				miss = true
				break
			}
		}
		if miss {
			continue
		}
		matched = append(matched, id)
	}
	return map[string]interface{}{"tokens": matched}, nil
}

// batchTransformTokens merges a property map into every listed token.
func batchTransformTokens(e *Engine, tx *chronicle.Tx, a *Action) (interface{}, error) {
	props := a.mapval("properties")
	ids := a.strs("tokens")
	for _, id := range ids {
		if !tx.Has("tokens." + id) {
			return nil, errors.Newf(errors.UnknownToken, "token %s does not exist", id)
		}
		for k, v := range props {
			tx.Set("tokens."+id+".meta."+k, v)
		}
	}
	return map[string]interface{}{"count": float64(len(ids))}, nil
}

// batchMapZones applies one operation to every zone of a space.
func batchMapZones(e *Engine, tx *chronicle.Tx, a *Action) (interface{}, error) {
	name := a.str("space")
	if name == "" {
		name = DefaultSpace
	}
	sp := container.NewSpace(tx, name)
	zones := sp.Zones()
	for _, zone := range zones {
		var err error
		switch a.str("op") {
		case "shuffle":
			err = sp.ShuffleZone(zone, a.seed(e.Seed(tx)))
		case "clear":
			err = sp.ClearZone(zone)
		case "spread":
			err = sp.SpreadZone(zone, 0, 0, 30)
		case "stack":
			err = sp.StackZone(zone, 0, 0, 2)
		default:
			return nil, errors.Newf(errors.InvalidAction, "batch:mapZones: unknown op %q", a.str("op"))
		}
		if err != nil {
			return nil, err
		}
	}
	return map[string]interface{}{"zones": float64(len(zones))}, nil
}

// batchParallelDispatch applies a vector of sub-actions atomically: all
// succeed or the whole batch aborts. Sub-actions observe document order.
func batchParallelDispatch(e *Engine, tx *chronicle.Tx, a *Action) (interface{}, error) {
	raw := a.list("actions")
	results := make([]interface{}, 0, len(raw))
	for _, item := range raw {
		m, ok := item.(map[string]interface{})
		if !ok {
			return nil, errors.New(errors.InvalidAction, "batch:parallelDispatch: malformed sub-action")
		}
		kind, _ := m["type"].(string)
		payload, _ := m["payload"].(map[string]interface{})
		sub := &Action{Type: kind, Payload: payload, Meta: a.Meta}
		if sub.Payload == nil {
			sub.Payload = map[string]interface{}{}
		}
		res, err := e.apply(tx, sub)
		if err != nil {
			return nil, err
		}
		results = append(results, res)
	}
	return map[string]interface{}{"results": results}, nil
}

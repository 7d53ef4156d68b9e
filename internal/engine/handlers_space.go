package engine

import (
	"github.com/ruvnet/tokenfield/internal/chronicle"
	"github.com/ruvnet/tokenfield/internal/container"
)

// DefaultSpace is the space used when an action names none.
const DefaultSpace = "board"

func spaceOf(tx *chronicle.Tx, a *Action) *container.Space {
	name := a.str("space")
	if name == "" {
		name = DefaultSpace
	}
	return container.NewSpace(tx, name)
}

func init() {
	register("space:createZone", schema{
		req("zone", kindString),
		opt("space", kindString),
		opt("layout", kindString),
		opt("owner", kindString),
	}, func(e *Engine, tx *chronicle.Tx, a *Action) (interface{}, error) {
		spaceOf(tx, a).CreateZone(a.str("zone"), a.str("layout"), a.str("owner"))
		return nil, nil
	})

	register("space:deleteZone", schema{
		req("zone", kindString),
		opt("space", kindString),
	}, func(e *Engine, tx *chronicle.Tx, a *Action) (interface{}, error) {
		return nil, spaceOf(tx, a).DeleteZone(a.str("zone"))
	})

	register("space:place", schema{
		req("zone", kindString),
		req("token", kindString),
		opt("space", kindString),
		opt("x", kindNumber),
		opt("y", kindNumber),
		opt("faceUp", kindBool),
		opt("owner", kindString),
	}, func(e *Engine, tx *chronicle.Tx, a *Action) (interface{}, error) {
		var x, y *float64
		if a.has("x") {
			v := a.num("x", 0)
			x = &v
		}
		if a.has("y") {
			v := a.num("y", 0)
			y = &v
		}
		pid, err := spaceOf(tx, a).Place(a.str("zone"), a.str("token"), x, y, a.boolean("faceUp"), a.str("owner"))
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{"placement": pid}, nil
	})

	register("space:move", schema{
		req("zone", kindString),
		req("placement", kindString),
		req("index", kindNumber),
		opt("space", kindString),
	}, func(e *Engine, tx *chronicle.Tx, a *Action) (interface{}, error) {
		return nil, spaceOf(tx, a).Move(a.str("zone"), a.str("placement"), a.intval("index", -1))
	})

	register("space:remove", schema{
		req("zone", kindString),
		req("placement", kindString),
		opt("space", kindString),
	}, func(e *Engine, tx *chronicle.Tx, a *Action) (interface{}, error) {
		tokenID, err := spaceOf(tx, a).Remove(a.str("zone"), a.str("placement"))
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{"token": tokenID}, nil
	})

	register("space:flip", schema{
		req("zone", kindString),
		req("placement", kindString),
		req("faceUp", kindBool),
		opt("space", kindString),
	}, func(e *Engine, tx *chronicle.Tx, a *Action) (interface{}, error) {
		return nil, spaceOf(tx, a).Flip(a.str("zone"), a.str("placement"), a.boolean("faceUp"))
	})

	register("space:setPosition", schema{
		req("zone", kindString),
		req("placement", kindString),
		req("x", kindNumber),
		req("y", kindNumber),
		opt("space", kindString),
	}, func(e *Engine, tx *chronicle.Tx, a *Action) (interface{}, error) {
		return nil, spaceOf(tx, a).SetPosition(a.str("zone"), a.str("placement"), a.num("x", 0), a.num("y", 0))
	})

	register("space:transferZone", schema{
		req("from", kindString),
		req("to", kindString),
		req("placement", kindString),
		opt("space", kindString),
	}, func(e *Engine, tx *chronicle.Tx, a *Action) (interface{}, error) {
		return nil, spaceOf(tx, a).TransferZone(a.str("from"), a.str("placement"), a.str("to"))
	})

	register("space:shuffleZone", schema{
		req("zone", kindString),
		opt("space", kindString),
		opt("seed", kindNumber),
	}, func(e *Engine, tx *chronicle.Tx, a *Action) (interface{}, error) {
		return nil, spaceOf(tx, a).ShuffleZone(a.str("zone"), a.seed(e.Seed(tx)))
	})

	register("space:spreadZone", schema{
		req("zone", kindString),
		opt("space", kindString),
		opt("x", kindNumber),
		opt("y", kindNumber),
		opt("spacing", kindNumber),
	}, func(e *Engine, tx *chronicle.Tx, a *Action) (interface{}, error) {
		return nil, spaceOf(tx, a).SpreadZone(a.str("zone"), a.num("x", 0), a.num("y", 0), a.num("spacing", 30))
	})

	register("space:fanZone", schema{
		req("zone", kindString),
		opt("space", kindString),
		opt("x", kindNumber),
		opt("y", kindNumber),
		opt("radius", kindNumber),
		opt("arc", kindNumber),
	}, func(e *Engine, tx *chronicle.Tx, a *Action) (interface{}, error) {
		return nil, spaceOf(tx, a).FanZone(a.str("zone"), a.num("x", 0), a.num("y", 0), a.num("radius", 100), a.num("arc", 60))
	})

	register("space:stackZone", schema{
		req("zone", kindString),
		opt("space", kindString),
		opt("x", kindNumber),
		opt("y", kindNumber),
		opt("offset", kindNumber),
	}, func(e *Engine, tx *chronicle.Tx, a *Action) (interface{}, error) {
		return nil, spaceOf(tx, a).StackZone(a.str("zone"), a.num("x", 0), a.num("y", 0), a.num("offset", 2))
	})

	register("space:clearZone", schema{
		req("zone", kindString),
		opt("space", kindString),
	}, func(e *Engine, tx *chronicle.Tx, a *Action) (interface{}, error) {
		return nil, spaceOf(tx, a).ClearZone(a.str("zone"))
	})
}

package engine

import (
	"github.com/ruvnet/tokenfield/internal/agent"
	"github.com/ruvnet/tokenfield/internal/chronicle"
	"github.com/ruvnet/tokenfield/internal/errors"
)

// Game accesses the turn/phase/round bookkeeping under game.* in the
// chronicle.
type Game struct {
	tx *chronicle.Tx
}

// NewGame binds a game accessor to a transaction.
func NewGame(tx *chronicle.Tx) *Game {
	return &Game{tx: tx}
}

// Start initializes the loop: phase sequence, counters and the first active
// agent in creation order.
func (g *Game) Start(phases []string) error {
	if len(phases) == 0 {
		phases = []string{"main"}
	}
	g.tx.Set("game.started", true)
	g.tx.Set("game.phase", phases[0])
	g.tx.Set("game.phaseIndex", 0)
	iphases := make([]interface{}, len(phases))
	for i, p := range phases {
		iphases[i] = p
	}
	g.tx.Set("game.phases", iphases)
	g.tx.Set("game.turn", 1)
	g.tx.Set("game.round", 1)
	g.tx.Set("game.isDraw", false)
	g.tx.Delete("game.winner")

	order := g.Order()
	reg := agent.NewRegistry(g.tx)
	for _, name := range order {
		a, err := reg.Get(name)
		if err == nil && a.Status != agent.StatusEliminated {
			if err := reg.SetActive(name, true); err != nil {
				return err
			}
			g.tx.Set("game.activeAgent", name)
			break
		}
	}
	return nil
}

// Started reports whether the game loop has started.
func (g *Game) Started() bool {
	v, _ := g.tx.Get("game.started")
	return v == true
}

// Phase returns the current phase.
func (g *Game) Phase() string {
	v, _ := g.tx.Get("game.phase")
	s, _ := v.(string)
	return s
}

// SetPhase replaces the current phase.
func (g *Game) SetPhase(phase string) {
	g.tx.Set("game.phase", phase)
	for i, p := range g.phases() {
		if p == phase {
			g.tx.Set("game.phaseIndex", i)
			return
		}
	}
}

// NextPhase advances to the next phase in the configured cycle.
func (g *Game) NextPhase() string {
	phases := g.phases()
	if len(phases) == 0 {
		return g.Phase()
	}
	idx := 0
	if v, ok := g.tx.Get("game.phaseIndex"); ok {
		if f, ok := v.(float64); ok {
			idx = int(f)
		}
	}
	idx = (idx + 1) % len(phases)
	g.tx.Set("game.phaseIndex", idx)
	g.tx.Set("game.phase", phases[idx])
	return phases[idx]
}

func (g *Game) phases() []string {
	raw := g.tx.ListValues("game.phases")
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// Turn returns the current turn number.
func (g *Game) Turn() int {
	return g.intField("game.turn")
}

// Round returns the current round number.
func (g *Game) Round() int {
	return g.intField("game.round")
}

func (g *Game) intField(path string) int {
	if v, ok := g.tx.Get(path); ok {
		if f, ok := v.(float64); ok {
			return int(f)
		}
	}
	return 0
}

// Winner returns the declared winner, empty when none.
func (g *Game) Winner() string {
	v, _ := g.tx.Get("game.winner")
	s, _ := v.(string)
	return s
}

// IsDraw reports whether the game ended in a draw.
func (g *Game) IsDraw() bool {
	v, _ := g.tx.Get("game.isDraw")
	return v == true
}

// Terminal reports whether the loop has ended.
func (g *Game) Terminal() bool {
	return g.Winner() != "" || g.IsDraw()
}

// DeclareWinner sets the winner; at most one winner is ever set.
func (g *Game) DeclareWinner(name string) error {
	reg := agent.NewRegistry(g.tx)
	if !reg.Exists(name) {
		return errors.Newf(errors.UnknownAgent, "agent %s does not exist", name)
	}
	if w := g.Winner(); w != "" && w != name {
		return errors.Newf(errors.PreconditionFailed, "winner already declared: %s", w)
	}
	g.tx.Set("game.winner", name)
	return nil
}

// DeclareDraw marks the game drawn.
func (g *Game) DeclareDraw() {
	g.tx.Set("game.isDraw", true)
}

// SetCustom writes a custom key/value.
func (g *Game) SetCustom(key string, value interface{}) {
	g.tx.Set("game.custom."+key, value)
}

// Custom reads a custom key.
func (g *Game) Custom(key string) (interface{}, bool) {
	return g.tx.Get("game.custom." + key)
}

// SkipTurn marks an agent's next turn to be skipped.
func (g *Game) SkipTurn(name string) {
	g.tx.Set("game.skip."+name, true)
}

// ActiveAgent returns the single agent currently allowed to submit
// turn-phase actions.
func (g *Game) ActiveAgent() string {
	v, _ := g.tx.Get("game.activeAgent")
	s, _ := v.(string)
	return s
}

// Order returns agent names in creation order, the rotation used for
// round-robin turns.
func (g *Game) Order() []string {
	raw := g.tx.ListValues("game.order")
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// appendOrder records a newly created agent in the rotation.
func (g *Game) appendOrder(name string) {
	g.tx.ListAppend("game.order", name)
}

// AdvanceTurn moves the active-agent pointer to the next eligible agent,
// consuming skip marks and bumping turn/round counters. Returns the new
// active agent, or empty when every agent is eliminated.
func (g *Game) AdvanceTurn() (string, error) {
	order := g.Order()
	if len(order) == 0 {
		return "", nil
	}
	reg := agent.NewRegistry(g.tx)

	current := g.ActiveAgent()
	idx := -1
	for i, name := range order {
		if name == current {
			idx = i
			break
		}
	}
	if current != "" {
		if err := reg.SetActive(current, false); err == nil {
			_ = reg.SetTurnComplete(current, true)
		}
	}

	g.tx.Set("game.turn", float64(g.Turn()+1))

	for step := 1; step <= len(order)*2; step++ {
		next := order[(idx+step)%len(order)]
		if (idx+step)%len(order) == 0 {
			g.tx.Set("game.round", float64(g.Round()+1))
		}
		a, err := reg.Get(next)
		if err != nil || a.Status == agent.StatusEliminated {
			continue
		}
		if v, _ := g.tx.Get("game.skip." + next); v == true {
			g.tx.Set("game.skip."+next, false)
			continue
		}
		if err := reg.SetActive(next, true); err != nil {
			return "", err
		}
		_ = reg.SetTurnComplete(next, false)
		g.tx.Set("game.activeAgent", next)
		return next, nil
	}
	// Everyone eliminated or skipped twice over: the loop is over.
	g.tx.Set("game.activeAgent", "")
	return "", nil
}

// Reset clears the loop state; agents and containers are left in place.
func (g *Game) Reset() {
	g.tx.Delete("game.started")
	g.tx.Delete("game.phase")
	g.tx.Delete("game.phaseIndex")
	g.tx.Delete("game.phases")
	g.tx.Delete("game.turn")
	g.tx.Delete("game.round")
	g.tx.Delete("game.winner")
	g.tx.Delete("game.isDraw")
	g.tx.Delete("game.skip")
	g.tx.Delete("game.custom")
	g.tx.Delete("game.activeAgent")
}

package engine

import (
	"fmt"
	"sort"
	"sync"

	"github.com/ruvnet/tokenfield/internal/agent"
	"github.com/ruvnet/tokenfield/internal/chronicle"
	"github.com/ruvnet/tokenfield/internal/container"
)

// RuleContext is handed to rule conditions and actions. It exposes the open
// transaction and container accessors; dispatches made through it are queued
// and drained after the current rule batch, never reentrantly.
type RuleContext struct {
	engine *Engine
	tx     *chronicle.Tx
	action *Action
}

// Tx returns the open transaction.
func (c *RuleContext) Tx() *chronicle.Tx { return c.tx }

// Dispatch queues a follow-up action for FIFO drain after the rule batch.
func (c *RuleContext) Dispatch(a *Action) {
	c.engine.queue = append(c.engine.queue, a)
}

// Emit stages an event for delivery after the dispatch commits.
func (c *RuleContext) Emit(name string, data map[string]interface{}) {
	c.engine.stageEvent(name, data)
}

// Stack returns a stack accessor bound to the open transaction.
func (c *RuleContext) Stack(name string) *container.Stack {
	return container.NewStack(c.tx, name)
}

// Space returns a space accessor bound to the open transaction.
func (c *RuleContext) Space(name string) *container.Space {
	return container.NewSpace(c.tx, name)
}

// Source returns a source accessor bound to the open transaction.
func (c *RuleContext) Source(name string) *container.Source {
	return container.NewSource(c.tx, name)
}

// Agents returns the agent registry bound to the open transaction.
func (c *RuleContext) Agents() *agent.Registry {
	return agent.NewRegistry(c.tx)
}

// Game returns the game-state accessor bound to the open transaction.
func (c *RuleContext) Game() *Game {
	return &Game{tx: c.tx}
}

// CondFunc decides whether a rule fires for the last action.
type CondFunc func(ctx *RuleContext, last *Action) bool

// RuleFunc is a rule's action.
type RuleFunc func(ctx *RuleContext, last *Action) error

// RuleHandler is a named, registrable condition/action pair. Persisted rules
// carry a handler id resolved through a HandlerRegistry before replay.
type RuleHandler struct {
	Condition CondFunc
	Action    RuleFunc
}

// HandlerRegistry maps handler ids to rule handlers.
type HandlerRegistry struct {
	mu       sync.RWMutex
	handlers map[string]RuleHandler
}

// NewHandlerRegistry creates an empty handler registry.
func NewHandlerRegistry() *HandlerRegistry {
	return &HandlerRegistry{handlers: make(map[string]RuleHandler)}
}

// Register installs a handler under an id.
func (r *HandlerRegistry) Register(id string, h RuleHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[id] = h
}

// Lookup resolves a handler id.
func (r *HandlerRegistry) Lookup(id string) (RuleHandler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[id]
	return h, ok
}

// Rule is a prioritized condition/action pair evaluated after every dispatch.
type Rule struct {
	Name      string `json:"name"`
	Priority  int    `json:"priority"`
	Once      bool   `json:"once"`
	HandlerID string `json:"handlerId,omitempty"`

	cond  CondFunc
	act   RuleFunc
	fired bool
	seq   int
}

// RuleSet holds the rules of one engine.
type RuleSet struct {
	rules []*Rule
	seq   int
}

// NewRuleSet creates an empty rule set.
func NewRuleSet() *RuleSet {
	return &RuleSet{}
}

// Add installs a rule with ad-hoc functions. Such rules are a developer
// convenience and are skipped by the replay serializer; use AddNamed for
// portable rules.
func (rs *RuleSet) Add(name string, priority int, once bool, cond CondFunc, act RuleFunc) error {
	return rs.install(&Rule{Name: name, Priority: priority, Once: once, cond: cond, act: act})
}

// AddNamed installs a rule whose behavior is resolved from a handler
// registry, making it serializable for replay.
func (rs *RuleSet) AddNamed(name string, priority int, once bool, handlerID string, reg *HandlerRegistry) error {
	h, ok := reg.Lookup(handlerID)
	if !ok {
		return fmt.Errorf("unknown rule handler %q", handlerID)
	}
	return rs.install(&Rule{Name: name, Priority: priority, Once: once, HandlerID: handlerID, cond: h.Condition, act: h.Action})
}

func (rs *RuleSet) install(r *Rule) error {
	for _, cur := range rs.rules {
		if cur.Name == r.Name {
			return fmt.Errorf("rule %q already exists", r.Name)
		}
	}
	rs.seq++
	r.seq = rs.seq
	rs.rules = append(rs.rules, r)
	return nil
}

// Remove deletes a rule by name.
func (rs *RuleSet) Remove(name string) bool {
	for i, r := range rs.rules {
		if r.Name == name {
			rs.rules = append(rs.rules[:i], rs.rules[i+1:]...)
			return true
		}
	}
	return false
}

// Names returns the installed rule names in insertion order.
func (rs *RuleSet) Names() []string {
	out := make([]string, len(rs.rules))
	for i, r := range rs.rules {
		out[i] = r.Name
	}
	return out
}

// ordered returns rules by descending priority, insertion order on ties.
func (rs *RuleSet) ordered() []*Rule {
	out := make([]*Rule, len(rs.rules))
	copy(out, rs.rules)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		return out[i].seq < out[j].seq
	})
	return out
}

// Portable returns the serializable rules (those with handler ids).
func (rs *RuleSet) Portable() []*Rule {
	out := make([]*Rule, 0, len(rs.rules))
	for _, r := range rs.rules {
		if r.HandlerID != "" {
			out = append(out, r)
		}
	}
	return out
}

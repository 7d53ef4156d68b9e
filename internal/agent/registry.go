// Package agent maps agent names to their chronicle records: hand,
// resources, status and metadata.
package agent

import (
	"github.com/ruvnet/tokenfield/internal/chronicle"
	"github.com/ruvnet/tokenfield/internal/errors"
)

// Agent statuses.
const (
	StatusActive     = "active"
	StatusInactive   = "inactive"
	StatusEliminated = "eliminated"
)

// Agent is the materialized view of one agent record.
type Agent struct {
	Name         string                 `json:"name"`
	Status       string                 `json:"status"`
	Active       bool                   `json:"active"`
	TurnComplete bool                   `json:"turnComplete"`
	Hand         []string               `json:"hand"`
	Meta         map[string]interface{} `json:"meta,omitempty"`
}

// Registry accesses agents under agents.<name> in a transaction.
type Registry struct {
	tx *chronicle.Tx
}

// NewRegistry binds a registry accessor to a transaction.
func NewRegistry(tx *chronicle.Tx) *Registry {
	return &Registry{tx: tx}
}

func base(name string) string { return "agents." + name }

// Exists reports whether an agent is registered.
func (r *Registry) Exists(name string) bool {
	return r.tx.Has(base(name))
}

// Create registers a new agent. Name collisions fail with DuplicateAgent.
func (r *Registry) Create(name string, meta map[string]interface{}) error {
	if r.Exists(name) {
		return errors.Newf(errors.DuplicateAgent, "agent %s already exists", name)
	}
	v := map[string]interface{}{
		"name":         name,
		"status":       StatusActive,
		"active":       false,
		"turnComplete": false,
	}
	if len(meta) > 0 {
		v["meta"] = meta
	}
	r.tx.Set(base(name), v)
	return nil
}

// Get materializes an agent record, failing with UnknownAgent if absent.
func (r *Registry) Get(name string) (*Agent, error) {
	if !r.Exists(name) {
		return nil, errors.Newf(errors.UnknownAgent, "agent %s does not exist", name)
	}
	a := &Agent{Name: name}
	if v, ok := r.tx.Get(base(name) + ".status"); ok {
		a.Status, _ = v.(string)
	}
	if v, ok := r.tx.Get(base(name) + ".active"); ok {
		a.Active, _ = v.(bool)
	}
	if v, ok := r.tx.Get(base(name) + ".turnComplete"); ok {
		a.TurnComplete, _ = v.(bool)
	}
	for _, v := range r.tx.ListValues(base(name) + ".hand") {
		if id, ok := v.(string); ok {
			a.Hand = append(a.Hand, id)
		}
	}
	if v, ok := r.tx.Get(base(name) + ".meta"); ok {
		a.Meta, _ = v.(map[string]interface{})
	}
	return a, nil
}

// Names returns all registered agent names in canonical order.
func (r *Registry) Names() []string {
	return r.tx.Keys("agents")
}

// SetActive marks the agent as the active one; active agents must not be
// eliminated.
func (r *Registry) SetActive(name string, active bool) error {
	a, err := r.Get(name)
	if err != nil {
		return err
	}
	if active && a.Status == StatusEliminated {
		return errors.Newf(errors.PreconditionFailed, "agent %s is eliminated", name)
	}
	r.tx.Set(base(name)+".active", active)
	return nil
}

// SetStatus sets the agent's lifecycle status.
func (r *Registry) SetStatus(name, status string) error {
	if !r.Exists(name) {
		return errors.Newf(errors.UnknownAgent, "agent %s does not exist", name)
	}
	r.tx.Set(base(name)+".status", status)
	if status == StatusEliminated {
		r.tx.Set(base(name)+".active", false)
	}
	return nil
}

// SetTurnComplete sets the turn-complete flag.
func (r *Registry) SetTurnComplete(name string, done bool) error {
	if !r.Exists(name) {
		return errors.Newf(errors.UnknownAgent, "agent %s does not exist", name)
	}
	r.tx.Set(base(name)+".turnComplete", done)
	return nil
}

// MergeMeta merges a property map into the agent's metadata.
func (r *Registry) MergeMeta(name string, meta map[string]interface{}) error {
	if !r.Exists(name) {
		return errors.Newf(errors.UnknownAgent, "agent %s does not exist", name)
	}
	for k, v := range meta {
		r.tx.Set(base(name)+".meta."+k, v)
	}
	return nil
}

// Resource returns the agent's balance for a resource; absent reads as zero.
func (r *Registry) Resource(name, resource string) float64 {
	return r.tx.CounterValue(base(name) + ".resources." + resource)
}

// GiveResource adds to the agent's resource balance. Concurrent gives on
// different peers merge additively.
func (r *Registry) GiveResource(name, resource string, amount float64) error {
	if !r.Exists(name) {
		return errors.Newf(errors.UnknownAgent, "agent %s does not exist", name)
	}
	r.tx.CounterAdd(base(name)+".resources."+resource, amount)
	return nil
}

// TakeResource subtracts from the agent's resource balance, clamping at zero
// unless allowNegative is set; insufficient balance fails with
// PreconditionFailed.
func (r *Registry) TakeResource(name, resource string, amount float64, allowNegative bool) (float64, error) {
	if !r.Exists(name) {
		return 0, errors.Newf(errors.UnknownAgent, "agent %s does not exist", name)
	}
	balance := r.Resource(name, resource)
	if balance < amount && !allowNegative {
		return 0, errors.Newf(errors.PreconditionFailed, "agent %s has %.0f %s, needs %.0f", name, balance, resource, amount)
	}
	r.tx.CounterAdd(base(name)+".resources."+resource, -amount)
	return balance - amount, nil
}

// HandPush appends token ids to the agent's hand.
func (r *Registry) HandPush(name string, ids ...string) error {
	if !r.Exists(name) {
		return errors.Newf(errors.UnknownAgent, "agent %s does not exist", name)
	}
	for _, id := range ids {
		r.tx.ListAppend(base(name)+".hand", id)
	}
	return nil
}

// HandRemove removes a token id from the agent's hand.
func (r *Registry) HandRemove(name, id string) error {
	a, err := r.Get(name)
	if err != nil {
		return err
	}
	for i, cur := range a.Hand {
		if cur == id {
			r.tx.ListRemove(base(name)+".hand", i)
			return nil
		}
	}
	return errors.Newf(errors.PreconditionFailed, "agent %s does not hold token %s", name, id)
}

// ClearHand removes every token from the agent's hand and returns the ids.
func (r *Registry) ClearHand(name string) ([]string, error) {
	a, err := r.Get(name)
	if err != nil {
		return nil, err
	}
	r.tx.ListClear(base(name) + ".hand")
	return a.Hand, nil
}

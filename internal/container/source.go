package container

import (
	"github.com/ruvnet/tokenfield/internal/chronicle"
	"github.com/ruvnet/tokenfield/internal/errors"
	"github.com/ruvnet/tokenfield/internal/rng"
)

// Reset policies for sources.
const (
	ResetRebuild          = "rebuild"
	ResetReshuffleDiscard = "reshuffle-discards"
	ResetNone             = "none"
)

// Source composes multiple stacks into one draw pool, addressed at
// sources.<name>.
type Source struct {
	tx   *chronicle.Tx
	name string
}

// NewSource binds a source accessor to a transaction.
func NewSource(tx *chronicle.Tx, name string) *Source {
	return &Source{tx: tx, name: name}
}

func (s *Source) base() string { return "sources." + s.name }

// Exists reports whether the source has been created.
func (s *Source) Exists() bool {
	return s.tx.Has(s.base())
}

// Create initializes an empty source with the given reset policy.
func (s *Source) Create(policy string) {
	if s.Exists() {
		return
	}
	if policy == "" {
		policy = ResetRebuild
	}
	s.tx.Set(s.base(), map[string]interface{}{"name": s.name, "policy": policy})
}

// AddStack appends a member stack. The stack must already exist.
func (s *Source) AddStack(stackName string) error {
	if !s.tx.Has("stacks." + stackName) {
		return errors.Newf(errors.UnknownStack, "stack %s does not exist", stackName)
	}
	if !s.Exists() {
		s.Create("")
	}
	s.tx.ListAppend(s.base()+".stacks", stackName)
	return nil
}

// Members returns the member stack names in order.
func (s *Source) Members() []string {
	return toStrings(s.tx.ListValues(s.base() + ".stacks"))
}

// Policy returns the reset policy.
func (s *Source) Policy() string {
	if v, ok := s.tx.Get(s.base() + ".policy"); ok {
		if p, ok := v.(string); ok {
			return p
		}
	}
	return ResetRebuild
}

// SetPolicy sets the reset policy.
func (s *Source) SetPolicy(policy string) {
	s.tx.Set(s.base()+".policy", policy)
}

// Draw removes up to n tokens, taking from the first non-empty member stack
// in order. A drawn token is never in any member stack or the burned set.
func (s *Source) Draw(n int) []string {
	drawn := make([]string, 0, n)
	for _, member := range s.Members() {
		if len(drawn) == n {
			break
		}
		stack := NewStack(s.tx, member)
		got, _ := stack.Draw(n - len(drawn))
		drawn = append(drawn, got...)
	}
	return drawn
}

// Burn draws up to n tokens and moves them to the burned set.
func (s *Source) Burn(n int) []string {
	burned := s.Draw(n)
	for _, id := range burned {
		s.tx.ListAppend(s.base()+".burned", id)
	}
	return burned
}

// Burned returns the burned token ids.
func (s *Source) Burned() []string {
	return toStrings(s.tx.ListValues(s.base() + ".burned"))
}

// Shuffle shuffles each member stack with a seed derived from the root seed
// and the member index, keeping the whole pool deterministic from one root.
func (s *Source) Shuffle(root int64) {
	for i, member := range s.Members() {
		NewStack(s.tx, member).Shuffle(rng.MemberSeed(root, i))
	}
}

// Inspect returns the remaining count per member stack.
func (s *Source) Inspect() map[string]int {
	out := make(map[string]int)
	for _, member := range s.Members() {
		out[member] = NewStack(s.tx, member).Len()
	}
	return out
}

// Reset restores the source according to its policy: rebuild restores every
// member to its initial contents and clears the burned set;
// reshuffle-discards returns each member's discard pile to the stack; none
// leaves everything in place.
func (s *Source) Reset() {
	switch s.Policy() {
	case ResetRebuild:
		for _, member := range s.Members() {
			NewStack(s.tx, member).Reset()
		}
		s.tx.ListClear(s.base() + ".burned")
	case ResetReshuffleDiscard:
		for _, member := range s.Members() {
			stack := NewStack(s.tx, member)
			for _, id := range stack.DiscardPile() {
				s.tx.ListAppend("stacks."+member+".cards", id)
			}
			s.tx.ListClear("stacks." + member + ".discard")
		}
	case ResetNone:
	}
}

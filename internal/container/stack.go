// Package container implements the stateful primitives bound to a chronicle:
// ordered stacks, spatial zones and composed draw sources. Containers hold no
// state of their own; they read and mutate the document through named paths.
package container

import (
	"github.com/ruvnet/tokenfield/internal/chronicle"
	"github.com/ruvnet/tokenfield/internal/errors"
	"github.com/ruvnet/tokenfield/internal/rng"
	"github.com/ruvnet/tokenfield/internal/token"
)

// Stack is an ordered sequence of tokens with a discard pile, addressed at
// stacks.<name> in the chronicle.
type Stack struct {
	tx   *chronicle.Tx
	name string
}

// NewStack binds a stack accessor to a transaction.
func NewStack(tx *chronicle.Tx, name string) *Stack {
	return &Stack{tx: tx, name: name}
}

func (s *Stack) base() string      { return "stacks." + s.name }
func (s *Stack) cardsPath() string { return s.base() + ".cards" }

// Exists reports whether the stack has been created.
func (s *Stack) Exists() bool {
	return s.tx.Has(s.base())
}

// Name returns the stack name.
func (s *Stack) Name() string { return s.name }

// Len returns the number of tokens currently in the stack.
func (s *Stack) Len() int {
	return s.tx.ListLen(s.cardsPath())
}

// Cards returns the ordered token ids in the stack.
func (s *Stack) Cards() []string {
	return toStrings(s.tx.ListValues(s.cardsPath()))
}

// DiscardPile returns the ordered token ids in the discard pile.
func (s *Stack) DiscardPile() []string {
	return toStrings(s.tx.ListValues(s.base() + ".discard"))
}

// AddTokens stores the tokens in the chronicle and inserts their ids into
// the stack at the given position (append when pos < 0). The stack is
// created lazily on first add.
func (s *Stack) AddTokens(tokens []*token.Token, pos int) error {
	if !s.tx.Has(s.base()) {
		s.tx.Set(s.base(), map[string]interface{}{"name": s.name})
	}

	present := make(map[string]bool)
	for _, id := range s.Cards() {
		present[id] = true
	}
	for _, id := range s.DiscardPile() {
		present[id] = true
	}

	for _, t := range tokens {
		if present[t.ID] {
			return errors.Newf(errors.InternalInvariantViolation, "token %s already present in stack %s", t.ID, s.name)
		}
		present[t.ID] = true
		s.tx.Set("tokens."+t.ID, t.ToValue())
		if pos < 0 {
			s.tx.ListAppend(s.cardsPath(), t.ID)
		} else {
			s.tx.ListInsert(s.cardsPath(), pos, t.ID)
			pos++
		}
		s.tx.ListAppend(s.base()+".initial", t.ID)
	}
	s.tx.Set(s.base()+".emptyEmitted", false)
	return nil
}

// Shuffle permutes the stack in place using the deterministic generator.
func (s *Stack) Shuffle(seed int64) {
	cards := s.Cards()
	r := rng.New(seed)
	r.Shuffle(len(cards), func(i, j int) {
		cards[i], cards[j] = cards[j], cards[i]
	})
	for i, id := range cards {
		s.tx.ListSet(s.cardsPath(), i, id)
	}
}

// Draw removes up to n tokens from the end of the stack. The second return
// reports whether the stack just transitioned to empty, which callers emit
// as stack:empty exactly once per emptiness.
func (s *Stack) Draw(n int) ([]string, bool) {
	drawn := make([]string, 0, n)
	for i := 0; i < n; i++ {
		length := s.Len()
		if length == 0 {
			break
		}
		if v, ok := s.tx.ListRemove(s.cardsPath(), length-1); ok {
			if id, ok := v.(string); ok {
				drawn = append(drawn, id)
			}
		}
	}

	becameEmpty := false
	if s.Len() == 0 && n > 0 {
		emitted, _ := s.tx.Get(s.base() + ".emptyEmitted")
		if emitted != true {
			s.tx.Set(s.base()+".emptyEmitted", true)
			becameEmpty = true
		}
	}
	return drawn, becameEmpty
}

// Burn removes up to n tokens from the end of the stack into the discard
// pile without revealing them.
func (s *Stack) Burn(n int) []string {
	drawn, _ := s.Draw(n)
	for _, id := range drawn {
		s.tx.ListAppend(s.base()+".discard", id)
	}
	return drawn
}

// Discard moves up to n tokens from the end of the stack to the discard pile.
func (s *Stack) Discard(n int) []string {
	return s.Burn(n)
}

// DiscardToken places a specific token id on the discard pile.
func (s *Stack) DiscardToken(id string) {
	s.tx.ListAppend(s.base()+".discard", id)
}

// Peek returns up to n token ids from the end of the stack without removal,
// last card first.
func (s *Stack) Peek(n int) []string {
	cards := s.Cards()
	out := make([]string, 0, n)
	for i := len(cards) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, cards[i])
	}
	return out
}

// Cut rotates the stack at the given position.
func (s *Stack) Cut(pos int) {
	cards := s.Cards()
	if len(cards) == 0 {
		return
	}
	pos = ((pos % len(cards)) + len(cards)) % len(cards)
	rotated := append(append([]string{}, cards[pos:]...), cards[:pos]...)
	for i, id := range rotated {
		s.tx.ListSet(s.cardsPath(), i, id)
	}
}

// Reverse reverses the range [start, end] of the stack; a negative end means
// the last card.
func (s *Stack) Reverse(start, end int) {
	cards := s.Cards()
	if end < 0 || end >= len(cards) {
		end = len(cards) - 1
	}
	if start < 0 {
		start = 0
	}
	for i, j := start, end; i < j; i, j = i+1, j-1 {
		cards[i], cards[j] = cards[j], cards[i]
	}
	for i, id := range cards {
		s.tx.ListSet(s.cardsPath(), i, id)
	}
}

// Reset restores the stack to the token set it was created with and clears
// the discard pile.
func (s *Stack) Reset() {
	initial := toStrings(s.tx.ListValues(s.base() + ".initial"))
	s.tx.ListClear(s.cardsPath())
	s.tx.ListClear(s.base() + ".discard")
	for _, id := range initial {
		s.tx.ListAppend(s.cardsPath(), id)
	}
	s.tx.Set(s.base()+".emptyEmitted", false)
}

// RemoveToken removes a specific token id from the stack or its discard
// pile. Used when tokens leave play through merges and splits.
func (s *Stack) RemoveToken(id string) bool {
	for i, cur := range s.Cards() {
		if cur == id {
			s.tx.ListRemove(s.cardsPath(), i)
			return true
		}
	}
	for i, cur := range s.DiscardPile() {
		if cur == id {
			s.tx.ListRemove(s.base()+".discard", i)
			return true
		}
	}
	return false
}

func toStrings(values []interface{}) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

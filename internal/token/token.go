// Package token defines the universal simulation entity: an identified,
// labeled, typed unit carrying lineage and arbitrary metadata.
package token

import (
	"fmt"

	"github.com/google/uuid"
)

// Token is the universal entity moved between stacks, zones and hands.
type Token struct {
	ID          string                 `json:"id"`
	Label       string                 `json:"label"`
	Group       string                 `json:"group,omitempty"`
	Kind        string                 `json:"kind,omitempty"`
	Index       *float64               `json:"index,omitempty"`
	Meta        map[string]interface{} `json:"meta,omitempty"`
	MergedFrom  []string               `json:"mergedFrom,omitempty"`
	SplitFrom   string                 `json:"splitFrom,omitempty"`
	AttachedTo  string                 `json:"attachedTo,omitempty"`
	Attachments map[string][]string    `json:"attachments,omitempty"`
}

// New creates a token with a fresh id.
func New(label, group, kind string) *Token {
	return &Token{
		ID:    uuid.NewString(),
		Label: label,
		Group: group,
		Kind:  kind,
	}
}

// WithIndex sets the numeric index and returns the token.
func (t *Token) WithIndex(i float64) *Token {
	t.Index = &i
	return t
}

// WithMeta merges metadata into the token and returns it.
func (t *Token) WithMeta(meta map[string]interface{}) *Token {
	if t.Meta == nil {
		t.Meta = make(map[string]interface{}, len(meta))
	}
	for k, v := range meta {
		t.Meta[k] = v
	}
	return t
}

// ToValue converts the token to the map form stored in the chronicle.
func (t *Token) ToValue() map[string]interface{} {
	out := map[string]interface{}{
		"id":    t.ID,
		"label": t.Label,
	}
	if t.Group != "" {
		out["group"] = t.Group
	}
	if t.Kind != "" {
		out["kind"] = t.Kind
	}
	if t.Index != nil {
		out["index"] = *t.Index
	}
	if len(t.Meta) > 0 {
		meta := make(map[string]interface{}, len(t.Meta))
		for k, v := range t.Meta {
			meta[k] = v
		}
		out["meta"] = meta
	}
	if len(t.MergedFrom) > 0 {
		mf := make([]interface{}, len(t.MergedFrom))
		for i, id := range t.MergedFrom {
			mf[i] = id
		}
		out["mergedFrom"] = mf
	}
	if t.SplitFrom != "" {
		out["splitFrom"] = t.SplitFrom
	}
	if t.AttachedTo != "" {
		out["attachedTo"] = t.AttachedTo
	}
	if len(t.Attachments) > 0 {
		att := make(map[string]interface{}, len(t.Attachments))
		for k, ids := range t.Attachments {
			list := make([]interface{}, len(ids))
			for i, id := range ids {
				list[i] = id
			}
			att[k] = list
		}
		out["attachments"] = att
	}
	return out
}

// FromValue reconstructs a token from its chronicle map form.
func FromValue(v interface{}) (*Token, bool) {
	m, ok := v.(map[string]interface{})
	if !ok {
		return nil, false
	}
	t := &Token{}
	t.ID, _ = m["id"].(string)
	if t.ID == "" {
		return nil, false
	}
	t.Label, _ = m["label"].(string)
	t.Group, _ = m["group"].(string)
	t.Kind, _ = m["kind"].(string)
	if idx, ok := m["index"].(float64); ok {
		t.Index = &idx
	}
	if meta, ok := m["meta"].(map[string]interface{}); ok {
		t.Meta = meta
	}
	if mf, ok := m["mergedFrom"].([]interface{}); ok {
		for _, id := range mf {
			if s, ok := id.(string); ok {
				t.MergedFrom = append(t.MergedFrom, s)
			}
		}
	}
	t.SplitFrom, _ = m["splitFrom"].(string)
	t.AttachedTo, _ = m["attachedTo"].(string)
	if att, ok := m["attachments"].(map[string]interface{}); ok {
		t.Attachments = make(map[string][]string, len(att))
		for k, raw := range att {
			if list, ok := raw.([]interface{}); ok {
				ids := make([]string, 0, len(list))
				for _, id := range list {
					if s, ok := id.(string); ok {
						ids = append(ids, s)
					}
				}
				t.Attachments[k] = ids
			}
		}
	}
	return t, true
}

// StandardDeck builds n ordered tokens labeled and identified by index.
// Ids are deterministic so scripted simulations replay byte-identically.
func StandardDeck(group string, n int) []*Token {
	deck := make([]*Token, n)
	for i := 0; i < n; i++ {
		label := fmt.Sprintf("%s-%d", group, i)
		deck[i] = (&Token{ID: label, Label: label, Group: group, Kind: "card"}).WithIndex(float64(i))
	}
	return deck
}

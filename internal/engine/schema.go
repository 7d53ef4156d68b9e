package engine

import (
	"github.com/ruvnet/tokenfield/internal/chronicle"
	"github.com/ruvnet/tokenfield/internal/errors"
)

// handlerFunc mutates containers and registries through the open
// transaction and returns the action's result.
type handlerFunc func(e *Engine, tx *chronicle.Tx, a *Action) (interface{}, error)

// fieldKind is the wire type a payload field must carry.
type fieldKind int

const (
	kindString fieldKind = iota
	kindNumber
	kindBool
	kindList
	kindMap
	kindAny
)

// field is one entry of a per-kind payload schema.
type field struct {
	name     string
	kind     fieldKind
	required bool
}

func req(name string, kind fieldKind) field {
	return field{name: name, kind: kind, required: true}
}

func opt(name string, kind fieldKind) field {
	return field{name: name, kind: kind}
}

// schema validates an action payload structurally before its handler runs.
type schema []field

func (s schema) validate(kind string, payload map[string]interface{}) error {
	for _, f := range s {
		v, ok := payload[f.name]
		if !ok {
			if f.required {
				return errors.Newf(errors.InvalidAction, "%s: missing field %q", kind, f.name)
			}
			continue
		}
		if !matches(f.kind, v) {
			return errors.Newf(errors.InvalidAction, "%s: field %q has wrong type", kind, f.name)
		}
	}
	return nil
}

func matches(k fieldKind, v interface{}) bool {
	switch k {
	case kindString:
		_, ok := v.(string)
		return ok
	case kindNumber:
		switch v.(type) {
		case float64, int, int64:
			return true
		}
		return false
	case kindBool:
		_, ok := v.(bool)
		return ok
	case kindList:
		_, ok := v.([]interface{})
		return ok
	case kindMap:
		_, ok := v.(map[string]interface{})
		return ok
	case kindAny:
		return true
	}
	return false
}

// actionDef binds a kind's schema to its handler.
type actionDef struct {
	schema  schema
	handler handlerFunc
}

var actions = map[string]actionDef{}

// register installs an action kind. Called from handler-file init functions;
// duplicate kinds are a programming error.
func register(kind string, s schema, h handlerFunc) {
	if _, exists := actions[kind]; exists {
		panic("duplicate action kind: " + kind)
	}
	actions[kind] = actionDef{schema: s, handler: h}
}

// Kinds returns every registered action kind.
func Kinds() []string {
	out := make([]string, 0, len(actions))
	for k := range actions {
		out = append(out, k)
	}
	return out
}

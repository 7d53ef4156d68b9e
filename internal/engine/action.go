// Package engine implements the action dispatcher, rule engine and game
// loop over a chronicle document. Every mutation of simulation state goes
// through Dispatch.
package engine

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ruvnet/tokenfield/internal/errors"
)

// Meta carries the action envelope fields shared on the wire and in logs.
type Meta struct {
	Actor     string `json:"actor"`
	Timestamp int64  `json:"timestamp"`
	ID        string `json:"id"`
}

// Action is a typed command that mutates simulation state.
type Action struct {
	Type    string                 `json:"type"`
	Payload map[string]interface{} `json:"payload"`
	Meta    Meta                   `json:"meta"`
}

// NewAction builds an action with a fresh id and timestamp.
func NewAction(kind string, payload map[string]interface{}) *Action {
	if payload == nil {
		payload = map[string]interface{}{}
	}
	return &Action{
		Type:    kind,
		Payload: payload,
		Meta: Meta{
			ID:        uuid.NewString(),
			Timestamp: time.Now().UnixMilli(),
		},
	}
}

// Family returns the action family prefix, e.g. "stack" for "stack:draw".
func (a *Action) Family() string {
	if i := strings.IndexByte(a.Type, ':'); i > 0 {
		return a.Type[:i]
	}
	return a.Type
}

// Encode serializes the action to its wire form.
func (a *Action) Encode() ([]byte, error) {
	return json.Marshal(a)
}

// DecodeAction parses an action from its wire form.
func DecodeAction(data []byte) (*Action, error) {
	var a Action
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, errors.Wrap(err, errors.CorruptMessage, "failed to decode action")
	}
	if a.Type == "" {
		return nil, errors.New(errors.CorruptMessage, "action has no type")
	}
	return &a, nil
}

// --- typed payload access ---

func (a *Action) str(key string) string {
	v, _ := a.Payload[key].(string)
	return v
}

func (a *Action) num(key string, def float64) float64 {
	switch v := a.Payload[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	}
	return def
}

func (a *Action) intval(key string, def int) int {
	return int(a.num(key, float64(def)))
}

func (a *Action) boolean(key string) bool {
	v, _ := a.Payload[key].(bool)
	return v
}

func (a *Action) has(key string) bool {
	_, ok := a.Payload[key]
	return ok
}

func (a *Action) strs(key string) []string {
	raw, ok := a.Payload[key].([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func (a *Action) mapval(key string) map[string]interface{} {
	v, _ := a.Payload[key].(map[string]interface{})
	return v
}

func (a *Action) list(key string) []interface{} {
	v, _ := a.Payload[key].([]interface{})
	return v
}

// seed returns the payload seed or the fallback when absent.
func (a *Action) seed(fallback int64) int64 {
	if v, ok := a.Payload["seed"].(float64); ok {
		return int64(v)
	}
	return fallback
}

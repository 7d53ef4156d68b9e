package engine

import (
	"encoding/hex"
	"hash/fnv"
	"sort"
	"strconv"

	"github.com/ruvnet/tokenfield/internal/agent"
	"github.com/ruvnet/tokenfield/internal/chronicle"
	"github.com/ruvnet/tokenfield/internal/container"
	"github.com/ruvnet/tokenfield/internal/errors"
	"github.com/ruvnet/tokenfield/internal/token"
)

func init() {
	register("token:setProperty", schema{
		req("token", kindString),
		req("properties", kindMap),
	}, func(e *Engine, tx *chronicle.Tx, a *Action) (interface{}, error) {
		id := a.str("token")
		if !tx.Has("tokens." + id) {
			return nil, errors.Newf(errors.UnknownToken, "token %s does not exist", id)
		}
		for k, v := range a.mapval("properties") {
			tx.Set("tokens."+id+".meta."+k, v)
		}
		return nil, nil
	})

	register("token:attach", schema{
		req("host", kindString),
		req("attachment", kindString),
		opt("attachmentType", kindString),
	}, tokenAttach)

	register("token:detach", schema{
		req("host", kindString),
		req("attachment", kindString),
		opt("attachmentType", kindString),
	}, tokenDetach)

	register("token:merge", schema{
		req("tokens", kindList),
		opt("label", kindString),
	}, tokenMerge)

	register("token:split", schema{
		req("token", kindString),
		req("pieces", kindNumber),
	}, tokenSplit)

	register("token:remove", schema{
		req("token", kindString),
	}, func(e *Engine, tx *chronicle.Tx, a *Action) (interface{}, error) {
		id := a.str("token")
		if !tx.Has("tokens." + id) {
			return nil, errors.Newf(errors.UnknownToken, "token %s does not exist", id)
		}
		removeFromPlay(tx, id)
		tx.Delete("tokens." + id)
		return nil, nil
	})
}

func tokenAttach(e *Engine, tx *chronicle.Tx, a *Action) (interface{}, error) {
	host, attachment := a.str("host"), a.str("attachment")
	for _, id := range []string{host, attachment} {
		if !tx.Has("tokens." + id) {
			return nil, errors.Newf(errors.UnknownToken, "token %s does not exist", id)
		}
	}
	attachmentType := a.str("attachmentType")
	if attachmentType == "" {
		attachmentType = "default"
	}
	tx.ListAppend("tokens."+host+".attachments."+attachmentType, attachment)
	tx.Set("tokens."+attachment+".attachedTo", host)
	return nil, nil
}

func tokenDetach(e *Engine, tx *chronicle.Tx, a *Action) (interface{}, error) {
	host, attachment := a.str("host"), a.str("attachment")
	if !tx.Has("tokens." + host) {
		return nil, errors.Newf(errors.UnknownToken, "token %s does not exist", host)
	}
	attachmentType := a.str("attachmentType")
	if attachmentType == "" {
		attachmentType = "default"
	}
	path := "tokens." + host + ".attachments." + attachmentType
	values := tx.ListValues(path)
	for i, v := range values {
		if v == attachment {
			tx.ListRemove(path, i)
			break
		}
	}
	tx.Delete("tokens." + attachment + ".attachedTo")
	return nil, nil
}

// tokenMerge produces a new token whose mergedFrom is the input id set;
// inputs are removed from play and their records deleted.
func tokenMerge(e *Engine, tx *chronicle.Tx, a *Action) (interface{}, error) {
	ids := a.strs("tokens")
	if len(ids) < 2 {
		return nil, errors.New(errors.InvalidAction, "token:merge requires at least two tokens")
	}
	for _, id := range ids {
		if !tx.Has("tokens." + id) {
			return nil, errors.Newf(errors.UnknownToken, "token %s does not exist", id)
		}
	}

	label := a.str("label")
	if label == "" {
		label = "merged"
	}

	merged := &token.Token{
		ID:         derivedID("merge", ids, tx.Clock()),
		Label:      label,
		Kind:       "merged",
		MergedFrom: append([]string{}, ids...),
	}
	tx.Set("tokens."+merged.ID, merged.ToValue())

	for _, id := range ids {
		removeFromPlay(tx, id)
		tx.Delete("tokens." + id)
	}
	return map[string]interface{}{"token": merged.ID}, nil
}

// tokenSplit produces pieces new tokens referencing the parent; the parent
// is removed.
func tokenSplit(e *Engine, tx *chronicle.Tx, a *Action) (interface{}, error) {
	id := a.str("token")
	pieces := a.intval("pieces", 0)
	if pieces < 2 {
		return nil, errors.New(errors.InvalidAction, "token:split requires at least two pieces")
	}
	raw, ok := tx.Get("tokens." + id)
	if !ok {
		return nil, errors.Newf(errors.UnknownToken, "token %s does not exist", id)
	}
	parent, _ := token.FromValue(raw)

	children := make([]string, pieces)
	for i := 0; i < pieces; i++ {
		child := &token.Token{
			ID:        derivedID("split", []string{id, strconv.Itoa(i)}, tx.Clock()),
			Label:     parent.Label + "/" + strconv.Itoa(i),
			Group:     parent.Group,
			Kind:      parent.Kind,
			SplitFrom: id,
		}
		tx.Set("tokens."+child.ID, child.ToValue())
		children[i] = child.ID
	}

	removeFromPlay(tx, id)
	tx.Delete("tokens." + id)
	return map[string]interface{}{"tokens": children}, nil
}

// derivedID builds a deterministic token id from the operation, its inputs
// and the transaction clock, so replays mint identical ids.
func derivedID(op string, inputs []string, clock uint64) string {
	sorted := append([]string{}, inputs...)
	sort.Strings(sorted)
	h := fnv.New64a()
	h.Write([]byte(op))
	for _, s := range sorted {
		h.Write([]byte{0})
		h.Write([]byte(s))
	}
	var buf [8]byte
	v := h.Sum64() ^ clock
	for i := 0; i < 8; i++ {
		buf[i] = byte(v >> (8 * i))
	}
	return "tok-" + hex.EncodeToString(buf[:])
}

// removeFromPlay removes a token from every stack, source burn pile, agent
// hand and placement.
func removeFromPlay(tx *chronicle.Tx, id string) {
	for _, name := range tx.Keys("stacks") {
		container.NewStack(tx, name).RemoveToken(id)
	}
	for _, name := range tx.Keys("sources") {
		path := "sources." + name + ".burned"
		for i, v := range tx.ListValues(path) {
			if v == id {
				tx.ListRemove(path, i)
				break
			}
		}
	}
	reg := agent.NewRegistry(tx)
	for _, name := range reg.Names() {
		// HandRemove fails when the agent does not hold the token; that is
		// the common case here.
		_ = reg.HandRemove(name, id)
	}
	for _, spaceName := range tx.Keys("spaces") {
		container.NewSpace(tx, spaceName).RemoveTokenPlacements(id)
	}
}

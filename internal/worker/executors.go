package worker

import (
	"context"
	"strings"
	"time"

	"github.com/ruvnet/tokenfield/internal/chronicle"
	"github.com/ruvnet/tokenfield/internal/engine"
	"github.com/ruvnet/tokenfield/internal/errors"
	"github.com/ruvnet/tokenfield/internal/token"
)

// simulateGame runs a fresh chronicle through the config's action script or
// the default turn logic and returns the final blob plus metrics. The
// cooperative cancellation token is checked between actions.
func (p *Pool) simulateGame(ctx context.Context, cfg *SimulateGameConfig) (*SimulateGameResult, error) {
	start := time.Now()

	actor := cfg.ActorID
	if actor == "" {
		actor = "worker"
	}
	e := engine.New(engine.Options{
		ActorID:  actor,
		RootSeed: cfg.Seed,
		Logger:   p.logger,
	})

	script := cfg.Script
	if len(script) == 0 {
		script = defaultGameScript(cfg)
	}

	res := &SimulateGameResult{}
	for _, a := range script {
		select {
		case <-ctx.Done():
			return nil, errors.Wrap(ctx.Err(), errors.Cancelled, "simulation cancelled")
		case <-p.ctx.Done():
			return nil, errors.New(errors.Cancelled, "worker pool is shutting down")
		default:
		}

		res.Total++
		if _, err := e.Dispatch(a); err != nil {
			res.Failed++
			continue
		}
		res.Succeeded++
	}

	blob, err := e.Doc().Save()
	if err != nil {
		return nil, err
	}
	res.Blob = blob
	res.Duration = time.Since(start)
	return res, nil
}

// defaultGameScript builds the default turn logic: numbered deck, agents,
// a shuffled main stack and one draw per agent per turn.
func defaultGameScript(cfg *SimulateGameConfig) []*engine.Action {
	agents := cfg.Agents
	if len(agents) == 0 {
		agents = []string{"agent-0", "agent-1"}
	}
	turns := cfg.Turns
	if turns <= 0 {
		turns = 10
	}

	deck := token.StandardDeck("card", 52)
	tokens := make([]interface{}, len(deck))
	for i, t := range deck {
		tokens[i] = t.ToValue()
	}

	script := []*engine.Action{
		scriptAction("stack:addTokens", map[string]interface{}{"stack": "main", "tokens": tokens}),
		scriptAction("stack:shuffle", map[string]interface{}{"stack": "main", "seed": float64(cfg.Seed)}),
	}
	for _, name := range agents {
		script = append(script, scriptAction("agent:create", map[string]interface{}{"name": name}))
	}
	script = append(script, scriptAction("game:start", nil))

	for turn := 0; turn < turns; turn++ {
		name := agents[turn%len(agents)]
		script = append(script,
			scriptAction("agent:giveCards", map[string]interface{}{"name": name, "stack": "main", "count": float64(1)}),
			scriptAction("agent:endTurn", nil),
		)
	}
	return script
}

// scriptAction builds a deterministic action: fixed envelope so identical
// configs yield identical logs and blobs.
func scriptAction(kind string, payload map[string]interface{}) *engine.Action {
	if payload == nil {
		payload = map[string]interface{}{}
	}
	return &engine.Action{
		Type:    kind,
		Payload: payload,
		Meta:    engine.Meta{ID: kind + "#scripted", Timestamp: 1},
	}
}

// mergeChronicles constructs a chronicle from the base blob and folds each
// delta through merge.
func (p *Pool) mergeChronicles(in *MergeChroniclesInput) (*MergeChroniclesResult, error) {
	actor := in.ActorID
	if actor == "" {
		actor = "merge-worker"
	}
	doc, err := chronicle.Load(actor, in.Base)
	if err != nil {
		return nil, err
	}
	for _, delta := range in.Deltas {
		if err := doc.MergeBlob(delta); err != nil {
			return nil, err
		}
		p.metrics.RecordMerge()
	}
	blob, err := doc.Save()
	if err != nil {
		return nil, err
	}
	return &MergeChroniclesResult{Blob: blob}, nil
}

// batchOps applies a vector of container actions with an optional starting
// state and returns per-op results plus the final blob. Failed ops report
// their error without aborting the batch.
func (p *Pool) batchOps(ctx context.Context, kind string, in *BatchOpsInput) (*BatchOpsResult, error) {
	family := "stack"
	if kind == TaskBatchSpaceOps {
		family = "space"
	}

	actor := in.ActorID
	if actor == "" {
		actor = "batch-worker"
	}

	e := engine.New(engine.Options{ActorID: actor, RootSeed: in.Seed, Logger: p.logger})
	if len(in.State) > 0 {
		doc, err := chronicle.Load(actor, in.State)
		if err != nil {
			return nil, err
		}
		if err := e.Doc().Merge(doc); err != nil {
			return nil, err
		}
	}

	out := &BatchOpsResult{Results: make([]OpResult, 0, len(in.Ops))}
	for _, op := range in.Ops {
		select {
		case <-ctx.Done():
			return nil, errors.Wrap(ctx.Err(), errors.Cancelled, "batch cancelled")
		default:
		}

		if !strings.HasPrefix(op.Type, family+":") {
			out.Results = append(out.Results, OpResult{Error: "op " + op.Type + " not in family " + family})
			continue
		}
		res, err := e.Dispatch(op)
		if err != nil {
			out.Results = append(out.Results, OpResult{Error: err.Error()})
			continue
		}
		out.Results = append(out.Results, OpResult{Result: res})
	}

	blob, err := e.Doc().Save()
	if err != nil {
		return nil, err
	}
	out.Blob = blob
	return out, nil
}

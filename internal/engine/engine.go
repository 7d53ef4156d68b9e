package engine

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ruvnet/tokenfield/internal/chronicle"
	"github.com/ruvnet/tokenfield/internal/errors"
	"github.com/ruvnet/tokenfield/pkg/metrics"
)

// Options configures an engine.
type Options struct {
	ActorID          string
	RootSeed         int64
	SnapshotInterval int
	Logger           *zap.Logger
	Metrics          *metrics.Metrics
}

// Snapshot is a checkpoint of the chronicle taken every N actions.
type Snapshot struct {
	ActionIndex int
	Blob        []byte
}

// Engine is the authoritative command interface over one chronicle. All
// reads and writes to the document are serialized through it; handler logic
// never observes concurrent mutation.
type Engine struct {
	mu  sync.Mutex
	doc *chronicle.Doc

	rules    *RuleSet
	handlers *HandlerRegistry
	emitter  *Emitter

	// queue holds rule-dispatched actions drained FIFO within the current
	// dispatch; pending holds events staged for post-commit delivery.
	queue   []*Action
	pending []Event

	history          []*Action
	snapshots        []Snapshot
	snapshotInterval int

	rootSeed   int64
	inDispatch bool

	logger  *zap.Logger
	metrics *metrics.Metrics
}

// New creates an engine over a fresh chronicle.
func New(opts Options) *Engine {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.ActorID == "" {
		opts.ActorID = "local"
	}
	if opts.SnapshotInterval <= 0 {
		opts.SnapshotInterval = 100
	}
	return &Engine{
		doc:              chronicle.New(opts.ActorID),
		rules:            NewRuleSet(),
		handlers:         NewHandlerRegistry(),
		emitter:          NewEmitter(opts.Logger),
		snapshotInterval: opts.SnapshotInterval,
		rootSeed:         opts.RootSeed,
		logger:           opts.Logger,
		metrics:          opts.Metrics,
	}
}

// Doc returns the underlying chronicle.
func (e *Engine) Doc() *chronicle.Doc { return e.doc }

// Events returns the engine's event emitter.
func (e *Engine) Events() *Emitter { return e.emitter }

// Handlers returns the named rule-handler registry.
func (e *Engine) Handlers() *HandlerRegistry { return e.handlers }

// AddRule installs a rule with ad-hoc functions.
func (e *Engine) AddRule(name string, priority int, once bool, cond CondFunc, act RuleFunc) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rules.Add(name, priority, once, cond, act)
}

// AddNamedRule installs a portable rule resolved from the handler registry.
func (e *Engine) AddNamedRule(name string, priority int, once bool, handlerID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rules.AddNamed(name, priority, once, handlerID, e.handlers)
}

// RemoveRule deletes a rule by name.
func (e *Engine) RemoveRule(name string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rules.Remove(name)
}

// Dispatch validates and applies an action. The handler, the triggered rules
// and any rule-dispatched follow-ups commit as one observable batch; on any
// handler error the transaction is aborted and state is unchanged.
func (e *Engine) Dispatch(a *Action) (interface{}, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.inDispatch {
		return nil, errors.New(errors.InternalInvariantViolation, "reentrant dispatch; rules must use RuleContext.Dispatch")
	}

	start := time.Now()
	e.normalize(a)

	e.inDispatch = true
	e.queue = nil
	e.pending = nil

	var result interface{}
	err := e.doc.Transaction(func(tx *chronicle.Tx) error {
		res, err := e.apply(tx, a)
		if err != nil {
			return err
		}
		result = res
		e.stageEvent("engine:action", map[string]interface{}{"action": a, "result": res})
		e.runRules(tx, a)
		e.drainQueue(tx)
		return nil
	})

	e.inDispatch = false
	e.queue = nil

	if err != nil {
		e.pending = nil
		e.metrics.RecordAction(a.Family(), "error")
		e.logger.Debug("dispatch failed",
			zap.String("type", a.Type),
			zap.Error(err))
		return nil, err
	}

	e.history = append(e.history, a)
	e.maybeSnapshot()

	pending := e.pending
	e.pending = nil
	for _, ev := range pending {
		e.emitter.Emit(ev.Name, ev.Data)
	}

	e.metrics.RecordAction(a.Family(), "ok")
	e.metrics.RecordDispatchDuration(time.Since(start))
	return result, nil
}

// normalize fills envelope defaults without touching replayed metadata.
func (e *Engine) normalize(a *Action) {
	if a.Payload == nil {
		a.Payload = map[string]interface{}{}
	}
	if a.Meta.Actor == "" {
		a.Meta.Actor = e.doc.Actor()
	}
	if a.Meta.Timestamp == 0 {
		a.Meta.Timestamp = time.Now().UnixMilli()
	}
}

// apply validates the payload and runs the kind's handler.
func (e *Engine) apply(tx *chronicle.Tx, a *Action) (interface{}, error) {
	def, ok := actions[a.Type]
	if !ok {
		return nil, errors.Newf(errors.UnknownAction, "unknown action kind %q", a.Type)
	}
	if err := def.schema.validate(a.Type, a.Payload); err != nil {
		return nil, err
	}
	return def.handler(e, tx, a)
}

// runRules evaluates rules for the last action in descending priority,
// insertion order on ties. Rule action failures are caught, surfaced as
// rule:error events and do not abort the dispatch.
func (e *Engine) runRules(tx *chronicle.Tx, last *Action) {
	ctx := &RuleContext{engine: e, tx: tx, action: last}
	for _, r := range e.rules.ordered() {
		if r.Once && r.fired {
			continue
		}
		if !e.evalCondition(r, ctx, last) {
			continue
		}
		if err := e.runRuleAction(r, ctx, last); err != nil {
			e.metrics.RecordRuleError()
			e.stageEvent("rule:error", map[string]interface{}{
				"rule":  r.Name,
				"error": err.Error(),
			})
			e.logger.Warn("rule action failed",
				zap.String("rule", r.Name),
				zap.Error(err))
			continue
		}
		if r.Once {
			r.fired = true
		}
		e.metrics.RecordRuleFiring()
	}
}

func (e *Engine) evalCondition(r *Rule, ctx *RuleContext, last *Action) (fired bool) {
	defer func() {
		if rec := recover(); rec != nil {
			e.logger.Warn("rule condition panicked",
				zap.String("rule", r.Name),
				zap.Any("panic", rec))
			fired = false
		}
	}()
	if r.cond == nil {
		return true
	}
	return r.cond(ctx, last)
}

func (e *Engine) runRuleAction(r *Rule, ctx *RuleContext, last *Action) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = errors.Newf(errors.InternalInvariantViolation, "rule %s panicked: %v", r.Name, rec)
		}
	}()
	if r.act == nil {
		return nil
	}
	return r.act(ctx, last)
}

// drainQueue applies rule-dispatched actions FIFO. A failing queued action
// is rolled back to its savepoint and surfaced as an event; the dispatch
// continues.
func (e *Engine) drainQueue(tx *chronicle.Tx) {
	for len(e.queue) > 0 {
		next := e.queue[0]
		e.queue = e.queue[1:]
		e.normalize(next)

		sp := tx.Savepoint()
		res, err := e.apply(tx, next)
		if err != nil {
			tx.Restore(sp)
			e.metrics.RecordAction(next.Family(), "error")
			e.stageEvent("rule:error", map[string]interface{}{
				"action": next.Type,
				"error":  err.Error(),
			})
			continue
		}
		e.metrics.RecordAction(next.Family(), "ok")
		e.stageEvent("engine:action", map[string]interface{}{"action": next, "result": res})
		e.runRules(tx, next)
	}
}

func (e *Engine) stageEvent(name string, data map[string]interface{}) {
	e.pending = append(e.pending, Event{Name: name, Data: data})
}

// maybeSnapshot checkpoints the chronicle every snapshotInterval actions.
func (e *Engine) maybeSnapshot() {
	if len(e.history)%e.snapshotInterval != 0 {
		return
	}
	blob, err := e.doc.Save()
	if err != nil {
		e.logger.Error("snapshot failed", zap.Error(err))
		return
	}
	e.snapshots = append(e.snapshots, Snapshot{ActionIndex: len(e.history), Blob: blob})
	e.metrics.RecordSnapshot()
}

// History returns the append-only action log.
func (e *Engine) History() []*Action {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]*Action, len(e.history))
	copy(out, e.history)
	return out
}

// LatestSnapshot returns the most recent checkpoint, if any.
func (e *Engine) LatestSnapshot() (Snapshot, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.snapshots) == 0 {
		return Snapshot{}, false
	}
	return e.snapshots[len(e.snapshots)-1], true
}

// Seed derives the shuffle seed when an action carries none: the root seed
// mixed with the document's logical clock, so the action log alone replays
// identically.
func (e *Engine) Seed(tx *chronicle.Tx) int64 {
	return e.rootSeed ^ int64(tx.Clock())
}

// ActiveAgent returns the current active agent from committed state.
func (e *Engine) ActiveAgent() string {
	v, _ := e.doc.Get("game.activeAgent")
	s, _ := v.(string)
	return s
}

// Inspect returns a read-only fork of the chronicle for UI inspection.
func (e *Engine) Inspect() *chronicle.Doc {
	return e.doc.Fork(e.doc.Actor() + "-inspect")
}

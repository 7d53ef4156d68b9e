package engine

import (
	"encoding/json"
	"strconv"

	"go.uber.org/zap"

	"github.com/ruvnet/tokenfield/internal/errors"
	"github.com/ruvnet/tokenfield/pkg/metrics"
)

// ReplayLog is the minimal exchange format for session sharing: the ordered
// action list plus the root seed. Replaying it from an empty chronicle
// yields a byte-identical final blob.
type ReplayLog struct {
	ActorID string    `json:"actorId"`
	Seed    int64     `json:"seed"`
	Actions []*Action `json:"actions"`
}

// Encode serializes the replay log.
func (l *ReplayLog) Encode() ([]byte, error) {
	return json.Marshal(l)
}

// DecodeReplayLog parses a replay log.
func DecodeReplayLog(data []byte) (*ReplayLog, error) {
	var l ReplayLog
	if err := json.Unmarshal(data, &l); err != nil {
		return nil, errors.Wrap(err, errors.CorruptDocument, "failed to decode replay log")
	}
	return &l, nil
}

// ExportReplayLog captures the engine's history as a replay log.
func (e *Engine) ExportReplayLog() *ReplayLog {
	return &ReplayLog{
		ActorID: e.doc.Actor(),
		Seed:    e.rootSeed,
		Actions: e.History(),
	}
}

// PortableRules returns the engine's serializable rules for session sharing.
func (e *Engine) PortableRules() []*Rule {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rules.Portable()
}

// ReplayOptions configures a replay run.
type ReplayOptions struct {
	Logger  *zap.Logger
	Metrics *metrics.Metrics

	// Rules to install before replaying; handler ids must be registered in
	// Handlers before Replay runs so rule-driven follow-ups re-derive
	// identically.
	Rules    []*Rule
	Handlers *HandlerRegistry
}

// Replay builds a fresh engine and re-applies the log's actions in order.
// With the same handler registrations, the resulting chronicle blob is
// byte-identical to the original session's.
func Replay(log *ReplayLog, opts ReplayOptions) (*Engine, error) {
	e := New(Options{
		ActorID:  log.ActorID,
		RootSeed: log.Seed,
		Logger:   opts.Logger,
		Metrics:  opts.Metrics,
	})

	if opts.Handlers != nil {
		e.handlers = opts.Handlers
	}
	for _, r := range opts.Rules {
		if err := e.AddNamedRule(r.Name, r.Priority, r.Once, r.HandlerID); err != nil {
			return nil, err
		}
	}

	for i, a := range log.Actions {
		if _, err := e.Dispatch(a); err != nil {
			return nil, errors.Wrap(err, errors.CorruptDocument,
				"replay diverged at action "+a.Type+" #"+strconv.Itoa(i))
		}
	}
	return e, nil
}


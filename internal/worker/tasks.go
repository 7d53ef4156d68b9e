package worker

import (
	"time"

	"github.com/ruvnet/tokenfield/internal/engine"
)

// Task kinds accepted by the pool.
const (
	TaskSimulateGame    = "simulate-game"
	TaskMergeChronicles = "merge-chronicles"
	TaskBatchStackOps   = "batch-stack-operations"
	TaskBatchSpaceOps   = "batch-space-operations"
)

// SimulateGameConfig drives a fresh chronicle through an action script or
// the default turn logic.
type SimulateGameConfig struct {
	ActorID string           `json:"actorId"`
	Seed    int64            `json:"seed"`
	Turns   int              `json:"turns"`
	Agents  []string         `json:"agents,omitempty"`
	Script  []*engine.Action `json:"script,omitempty"`
}

// SimulateGameResult carries the final chronicle blob and run metrics.
type SimulateGameResult struct {
	Blob      []byte        `json:"blob"`
	Total     int           `json:"total"`
	Succeeded int           `json:"succeeded"`
	Failed    int           `json:"failed"`
	Duration  time.Duration `json:"duration"`
}

// MergeChroniclesInput folds delta blobs into a base chronicle.
type MergeChroniclesInput struct {
	ActorID string   `json:"actorId"`
	Base    []byte   `json:"base"`
	Deltas  [][]byte `json:"deltas"`
}

// MergeChroniclesResult is the merged blob.
type MergeChroniclesResult struct {
	Blob []byte `json:"blob"`
}

// BatchOpsInput applies a vector of container actions against an optional
// starting state.
type BatchOpsInput struct {
	ActorID string           `json:"actorId"`
	State   []byte           `json:"state,omitempty"`
	Seed    int64            `json:"seed"`
	Ops     []*engine.Action `json:"ops"`
}

// OpResult is the outcome of one batched operation.
type OpResult struct {
	Result interface{} `json:"result,omitempty"`
	Error  string      `json:"error,omitempty"`
}

// BatchOpsResult carries per-op results and the final state blob.
type BatchOpsResult struct {
	Results []OpResult `json:"results"`
	Blob    []byte     `json:"blob"`
}

// Request is the wire form of a scheduled task.
type Request struct {
	Kind   string      `json:"kind"`
	TaskID string      `json:"taskId"`
	Data   interface{} `json:"data"`
}

// Response is the wire form of a task outcome.
type Response struct {
	Type   string      `json:"type"` // result | error
	TaskID string      `json:"taskId"`
	Data   interface{} `json:"data,omitempty"`
	Error  string      `json:"error,omitempty"`
}

// Package worker hosts the parallel execution runtime: a pool of
// chronicle-capable executors running simulation batches, merges and
// batched container operations behind a request-response protocol.
package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ruvnet/tokenfield/internal/config"
	"github.com/ruvnet/tokenfield/internal/errors"
	"github.com/ruvnet/tokenfield/pkg/metrics"
)

// task is one scheduled unit of work.
type task struct {
	kind     string
	id       string
	payload  interface{}
	ctx      context.Context
	response chan *Response
}

// Pool is the worker runtime. Each executor owns the chronicles it builds;
// results cross back as blobs.
type Pool struct {
	cfg     config.WorkerConfig
	tasks   chan *task
	logger  *zap.Logger
	metrics *metrics.Metrics

	mu      sync.Mutex
	closed  bool
	pending int

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewPool starts a pool of cfg.PoolSize executors.
func NewPool(cfg config.WorkerConfig, logger *zap.Logger, m *metrics.Metrics) *Pool {
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())

	p := &Pool{
		cfg:     cfg,
		tasks:   make(chan *task, cfg.PoolSize*16),
		logger:  logger,
		metrics: m,
		ctx:     ctx,
		cancel:  cancel,
	}

	p.wg.Add(cfg.PoolSize)
	for i := 0; i < cfg.PoolSize; i++ {
		go p.worker(i)
	}
	return p
}

// Submit schedules a task and returns the channel its response arrives on.
func (p *Pool) Submit(ctx context.Context, kind string, payload interface{}) (string, <-chan *Response, error) {
	taskID := uuid.NewString()
	t := &task{
		kind:     kind,
		id:       taskID,
		payload:  payload,
		ctx:      ctx,
		response: make(chan *Response, 1),
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return "", nil, errors.New(errors.Cancelled, "worker pool is shutting down")
	}
	p.pending++
	p.mu.Unlock()

	// With a batching window set, each submission waits out the window
	// before it is queued. Submissions are not grouped: every task is still
	// picked up and run by an executor on its own.
	if p.cfg.BatchWindow > 0 {
		timer := time.NewTimer(p.cfg.BatchWindow)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			p.finish()
			return "", nil, errors.Wrap(ctx.Err(), errors.Cancelled, "task cancelled before pickup")
		}
	}

	select {
	case p.tasks <- t:
		return taskID, t.response, nil
	case <-ctx.Done():
		p.finish()
		return "", nil, errors.Wrap(ctx.Err(), errors.Cancelled, "task cancelled before pickup")
	case <-p.ctx.Done():
		p.finish()
		return "", nil, errors.New(errors.Cancelled, "worker pool is shutting down")
	}
}

// Do schedules a task and waits for its response.
func (p *Pool) Do(ctx context.Context, kind string, payload interface{}) (*Response, error) {
	_, ch, err := p.Submit(ctx, kind, payload)
	if err != nil {
		return nil, err
	}
	select {
	case resp := <-ch:
		if resp.Type == "error" {
			return resp, fmt.Errorf("task failed: %s", resp.Error)
		}
		return resp, nil
	case <-ctx.Done():
		return nil, errors.Wrap(ctx.Err(), errors.Timeout, "timed out waiting for worker response")
	}
}

// Pending returns the number of tasks submitted but not yet completed.
func (p *Pool) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pending
}

// Shutdown drains outstanding tasks up to the grace deadline, then rejects
// the rest with Cancelled.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()

	grace := p.cfg.ShutdownGrace
	if grace <= 0 {
		grace = time.Second
	}
	deadline := time.NewTimer(grace)
	defer deadline.Stop()

	tick := time.NewTicker(10 * time.Millisecond)
	defer tick.Stop()

drain:
	for {
		select {
		case <-tick.C:
			if p.Pending() == 0 {
				break drain
			}
		case <-deadline.C:
			break drain
		case <-ctx.Done():
			break drain
		}
	}

	p.cancel()
	p.wg.Wait()

	// Reject whatever the executors never picked up.
	for {
		select {
		case t := <-p.tasks:
			t.response <- &Response{Type: "error", TaskID: t.id, Error: "task cancelled on shutdown"}
			p.finish()
			p.metrics.RecordTask(t.kind, "cancelled")
		default:
			p.logger.Info("worker pool stopped")
			return nil
		}
	}
}

func (p *Pool) finish() {
	p.mu.Lock()
	p.pending--
	p.mu.Unlock()
}

// worker is one executor loop.
func (p *Pool) worker(id int) {
	defer p.wg.Done()

	for {
		select {
		case <-p.ctx.Done():
			return
		case t, ok := <-p.tasks:
			if !ok {
				return
			}
			p.run(id, t)
		}
	}
}

func (p *Pool) run(workerID int, t *task) {
	defer p.finish()

	start := time.Now()
	data, err := p.execute(t)
	p.metrics.RecordTaskDuration(time.Since(start))

	if err != nil {
		p.metrics.RecordTask(t.kind, "error")
		p.logger.Warn("task failed",
			zap.Int("worker", workerID),
			zap.String("kind", t.kind),
			zap.String("task_id", t.id),
			zap.Error(err))
		t.response <- &Response{Type: "error", TaskID: t.id, Error: err.Error()}
		return
	}

	p.metrics.RecordTask(t.kind, "ok")
	t.response <- &Response{Type: "result", TaskID: t.id, Data: data}
}

func (p *Pool) execute(t *task) (interface{}, error) {
	switch t.kind {
	case TaskSimulateGame:
		cfg, ok := t.payload.(*SimulateGameConfig)
		if !ok {
			return nil, errors.New(errors.InvalidAction, "simulate-game payload must be *SimulateGameConfig")
		}
		return p.simulateGame(t.ctx, cfg)
	case TaskMergeChronicles:
		in, ok := t.payload.(*MergeChroniclesInput)
		if !ok {
			return nil, errors.New(errors.InvalidAction, "merge-chronicles payload must be *MergeChroniclesInput")
		}
		return p.mergeChronicles(in)
	case TaskBatchStackOps, TaskBatchSpaceOps:
		in, ok := t.payload.(*BatchOpsInput)
		if !ok {
			return nil, errors.New(errors.InvalidAction, "batch payload must be *BatchOpsInput")
		}
		return p.batchOps(t.ctx, t.kind, in)
	}
	return nil, errors.Newf(errors.UnknownAction, "unknown task kind %q", t.kind)
}

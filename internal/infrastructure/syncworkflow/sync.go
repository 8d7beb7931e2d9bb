// Package syncworkflow provides a synchronous, in-process [domain.WorkflowEngine].
// Activities execute inline with no persistence or replay.
package syncworkflow

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/f4biogr/rollout/internal/domain"
)

var runCounter atomic.Int64

// Engine implements [domain.WorkflowEngine] with synchronous, in-process
// execution. No durable state is kept.
type Engine struct{}

func (e *Engine) RolloutRunner(wf *domain.RolloutWorkflow) (domain.RolloutRunner, error) {
	return &runner{wf: wf}, nil
}

type runner struct {
	wf *domain.RolloutWorkflow
}

func (r *runner) Run(ctx context.Context, releaseID domain.ReleaseID) (domain.WorkflowHandle[domain.AttemptReport], error) {
	id := runCounter.Add(1)
	dr := &syncRunner{id: id, ctx: ctx}
	result, err := r.wf.Run(dr, releaseID)
	return &handle{id: id, result: result, err: err}, nil
}

type syncRunner struct {
	id  int64
	ctx context.Context
}

func (r *syncRunner) ID() string               { return fmt.Sprintf("sync-%d", r.id) }
func (r *syncRunner) Context() context.Context { return r.ctx }
func (r *syncRunner) Run(activity domain.Activity[any, any], in any) (any, error) {
	return activity.Run(r.ctx, in)
}

// RunAll fans the activity out over ins on goroutines gated by a semaphore
// of size limit and joins before returning. Slot i of the results always
// belongs to ins[i].
func (r *syncRunner) RunAll(activity domain.Activity[any, any], ins []any, limit int) ([]any, []error) {
	outs := make([]any, len(ins))
	errs := make([]error, len(ins))
	if limit < 1 {
		limit = len(ins)
	}

	sem := make(chan struct{}, limit)
	var wg sync.WaitGroup
	for i, in := range ins {
		wg.Add(1)
		go func(i int, in any) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			outs[i], errs[i] = activity.Run(r.ctx, in)
		}(i, in)
	}
	wg.Wait()
	return outs, errs
}

type handle struct {
	id     int64
	result domain.AttemptReport
	err    error
}

func (h *handle) WorkflowID() string { return fmt.Sprintf("sync-%d", h.id) }
func (h *handle) AwaitResult(_ context.Context) (domain.AttemptReport, error) {
	return h.result, h.err
}

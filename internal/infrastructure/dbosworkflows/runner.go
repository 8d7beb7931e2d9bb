// Package dbosworkflows implements [domain.WorkflowEngine] using
// the DBOS Transact Go SDK.
package dbosworkflows

import (
	"context"
	"fmt"

	"github.com/dbos-inc/dbos-transact-golang/dbos"

	"github.com/f4biogr/rollout/internal/domain"
)

// activityInvoker calls RunAsStep with the correct concrete output type.
// Created at construction time when concrete types are known.
type activityInvoker func(ctx dbos.DBOSContext, in any) (any, error)

// Engine implements [domain.WorkflowEngine] backed by DBOS.
//
// The caller must call [dbos.Launch] after creating runners and before
// invoking them.
type Engine struct {
	DBOSCtx dbos.DBOSContext
}

func (e *Engine) RolloutRunner(wf *domain.RolloutWorkflow) (domain.RolloutRunner, error) {
	invokers := make(map[string]activityInvoker)

	registerActivity(invokers, wf.LoadRelease())
	registerActivity(invokers, wf.LoadFleet())
	registerActivity(invokers, wf.CaptureHostVersion())
	registerActivity(invokers, wf.RolloutHost())
	registerActivity(invokers, wf.RollbackHost())
	registerActivity(invokers, wf.RecordAttempt())

	wfFunc := func(ctx dbos.DBOSContext, releaseID domain.ReleaseID) (domain.AttemptReport, error) {
		runner := &durableRunner{ctx: ctx, invokers: invokers}
		return wf.Run(runner, releaseID)
	}

	dbos.RegisterWorkflow(e.DBOSCtx, wfFunc, dbos.WithWorkflowName(wf.Name()))

	return &rolloutRunner{
		dbosCtx: e.DBOSCtx,
		wfFunc:  wfFunc,
	}, nil
}

// registerActivity creates a typed invoker that calls [dbos.RunAsStep]
// with the concrete output type O, ensuring correct JSON deserialization
// during workflow replay.
func registerActivity[I, O any](invokers map[string]activityInvoker, activity domain.Activity[I, O]) {
	invokers[activity.Name()] = func(ctx dbos.DBOSContext, in any) (any, error) {
		return dbos.RunAsStep(ctx, func(stepCtx context.Context) (O, error) {
			return activity.Run(stepCtx, in.(I))
		}, dbos.WithStepName(activity.Name()))
	}
}

type durableRunner struct {
	ctx      dbos.DBOSContext
	invokers map[string]activityInvoker
}

func (r *durableRunner) ID() string {
	id, _ := dbos.GetWorkflowID(r.ctx)
	return id
}

func (r *durableRunner) Context() context.Context {
	return r.ctx
}

func (r *durableRunner) Run(activity domain.Activity[any, any], in any) (any, error) {
	invoke, ok := r.invokers[activity.Name()]
	if !ok {
		return nil, fmt.Errorf("activity %q not registered", activity.Name())
	}
	return invoke(r.ctx, in)
}

// RunAll runs the batch serially. RunAsStep blocks until its step result
// is checkpointed, so a step-level fan-out would fork the workflow's
// history; one host at a time trades throughput for exactly-once records.
func (r *durableRunner) RunAll(activity domain.Activity[any, any], ins []any, _ int) ([]any, []error) {
	outs := make([]any, len(ins))
	errs := make([]error, len(ins))
	for i, in := range ins {
		outs[i], errs[i] = r.Run(activity, in)
	}
	return outs, errs
}

type rolloutRunner struct {
	dbosCtx dbos.DBOSContext
	wfFunc  dbos.Workflow[domain.ReleaseID, domain.AttemptReport]
}

func (r *rolloutRunner) Run(ctx context.Context, releaseID domain.ReleaseID) (domain.WorkflowHandle[domain.AttemptReport], error) {
	handle, err := dbos.RunWorkflow(r.dbosCtx, r.wfFunc, releaseID)
	if err != nil {
		return nil, fmt.Errorf("run DBOS workflow: %w", err)
	}
	return &workflowHandle{handle: handle}, nil
}

type workflowHandle struct {
	handle dbos.WorkflowHandle[domain.AttemptReport]
}

func (h *workflowHandle) WorkflowID() string {
	return h.handle.GetWorkflowID()
}

func (h *workflowHandle) AwaitResult(_ context.Context) (domain.AttemptReport, error) {
	return h.handle.GetResult()
}

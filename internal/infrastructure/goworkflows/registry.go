// Package goworkflows implements [domain.WorkflowEngine] using
// cschleiden/go-workflows for durable workflow execution.
package goworkflows

import (
	"context"
	"fmt"
	"time"

	"github.com/cschleiden/go-workflows/client"
	"github.com/cschleiden/go-workflows/registry"
	"github.com/cschleiden/go-workflows/worker"
	"github.com/cschleiden/go-workflows/workflow"
	"github.com/google/uuid"

	"github.com/f4biogr/rollout/internal/domain"
)

// activityInvoker calls an activity from the workflow context with the
// correct generic types. Created at construction time when concrete
// types are known.
type activityInvoker func(wfCtx workflow.Context, in any) (any, error)

// activityStarter schedules an activity and returns an awaiter for its
// future, so a batch can be in flight at once.
type activityStarter func(wfCtx workflow.Context, in any) activityAwaiter

type activityAwaiter func(wfCtx workflow.Context) (any, error)

// Engine implements [domain.WorkflowEngine] backed by go-workflows.
type Engine struct {
	Worker  *worker.Worker
	Client  *client.Client
	Timeout time.Duration
}

func (e *Engine) timeout() time.Duration {
	if e.Timeout > 0 {
		return e.Timeout
	}
	return 30 * time.Second
}

func (e *Engine) RolloutRunner(wf *domain.RolloutWorkflow) (domain.RolloutRunner, error) {
	invokers := make(map[string]activityInvoker)
	starters := make(map[string]activityStarter)

	if err := registerActivity(e.Worker, invokers, starters, wf.LoadRelease()); err != nil {
		return nil, err
	}
	if err := registerActivity(e.Worker, invokers, starters, wf.LoadFleet()); err != nil {
		return nil, err
	}
	if err := registerActivity(e.Worker, invokers, starters, wf.CaptureHostVersion()); err != nil {
		return nil, err
	}
	if err := registerActivity(e.Worker, invokers, starters, wf.RolloutHost()); err != nil {
		return nil, err
	}
	if err := registerActivity(e.Worker, invokers, starters, wf.RollbackHost()); err != nil {
		return nil, err
	}
	if err := registerActivity(e.Worker, invokers, starters, wf.RecordAttempt()); err != nil {
		return nil, err
	}

	wfFunc := func(ctx workflow.Context, releaseID domain.ReleaseID) (domain.AttemptReport, error) {
		runner := &durableRunner{wfCtx: ctx, invokers: invokers, starters: starters}
		return wf.Run(runner, releaseID)
	}

	if err := e.Worker.RegisterWorkflow(wfFunc, registry.WithName(wf.Name())); err != nil {
		return nil, fmt.Errorf("register workflow %q: %w", wf.Name(), err)
	}

	return &rolloutRunner{
		client:  e.Client,
		wfName:  wf.Name(),
		timeout: e.timeout(),
	}, nil
}

// registerActivity registers a typed activity with go-workflows and
// creates the corresponding typed invoker and starter.
func registerActivity[I, O any](
	w *worker.Worker,
	invokers map[string]activityInvoker,
	starters map[string]activityStarter,
	activity domain.Activity[I, O],
) error {
	activityFn := func(ctx context.Context, in I) (O, error) {
		return activity.Run(ctx, in)
	}

	if err := w.RegisterActivity(activityFn, registry.WithName(activity.Name())); err != nil {
		return fmt.Errorf("register activity %q: %w", activity.Name(), err)
	}

	invokers[activity.Name()] = func(wfCtx workflow.Context, in any) (any, error) {
		result, err := workflow.ExecuteActivity[O](
			wfCtx, workflow.DefaultActivityOptions, activity.Name(), in,
		).Get(wfCtx)
		return result, err
	}

	starters[activity.Name()] = func(wfCtx workflow.Context, in any) activityAwaiter {
		future := workflow.ExecuteActivity[O](
			wfCtx, workflow.DefaultActivityOptions, activity.Name(), in,
		)
		return func(wfCtx workflow.Context) (any, error) {
			return future.Get(wfCtx)
		}
	}

	return nil
}

type durableRunner struct {
	wfCtx    workflow.Context
	invokers map[string]activityInvoker
	starters map[string]activityStarter
}

func (r *durableRunner) ID() string {
	return workflow.WorkflowInstance(r.wfCtx).InstanceID
}

func (r *durableRunner) Context() context.Context {
	return context.Background()
}

func (r *durableRunner) Run(activity domain.Activity[any, any], in any) (any, error) {
	invoke, ok := r.invokers[activity.Name()]
	if !ok {
		return nil, fmt.Errorf("activity %q not registered", activity.Name())
	}
	return invoke(r.wfCtx, in)
}

// RunAll schedules the batch in waves of limit futures. Waves keep the
// event ordering deterministic under replay while still letting up to
// limit activities run at once.
func (r *durableRunner) RunAll(activity domain.Activity[any, any], ins []any, limit int) ([]any, []error) {
	outs := make([]any, len(ins))
	errs := make([]error, len(ins))

	start, ok := r.starters[activity.Name()]
	if !ok {
		err := fmt.Errorf("activity %q not registered", activity.Name())
		for i := range errs {
			errs[i] = err
		}
		return outs, errs
	}

	if limit < 1 {
		limit = len(ins)
	}
	for base := 0; base < len(ins); base += limit {
		end := min(base+limit, len(ins))
		awaiters := make([]activityAwaiter, end-base)
		for i := base; i < end; i++ {
			awaiters[i-base] = start(r.wfCtx, ins[i])
		}
		for i := base; i < end; i++ {
			outs[i], errs[i] = awaiters[i-base](r.wfCtx)
		}
	}
	return outs, errs
}

type rolloutRunner struct {
	client  *client.Client
	wfName  string
	timeout time.Duration
}

func (r *rolloutRunner) Run(ctx context.Context, releaseID domain.ReleaseID) (domain.WorkflowHandle[domain.AttemptReport], error) {
	instance, err := r.client.CreateWorkflowInstance(ctx, client.WorkflowInstanceOptions{
		InstanceID: uuid.NewString(),
	}, r.wfName, releaseID)
	if err != nil {
		return nil, fmt.Errorf("create workflow instance: %w", err)
	}

	return &workflowHandle{
		client:   r.client,
		instance: instance,
		timeout:  r.timeout,
	}, nil
}

type workflowHandle struct {
	client   *client.Client
	instance *workflow.Instance
	timeout  time.Duration
}

func (h *workflowHandle) WorkflowID() string {
	return h.instance.InstanceID
}

func (h *workflowHandle) AwaitResult(ctx context.Context) (domain.AttemptReport, error) {
	return client.GetWorkflowResult[domain.AttemptReport](ctx, h.client, h.instance, h.timeout)
}

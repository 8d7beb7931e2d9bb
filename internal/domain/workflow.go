package domain

import "context"

// Activity is a named, typed, idempotent operation. Implementations must
// be safe for at-least-once invocation.
type Activity[I any, O any] interface {
	Name() string
	Run(ctx context.Context, in I) (O, error)
}

// DurableRunner is the capability object provided to a running workflow.
// It durably runs activities and provides a context for pure operations
// that need cancellation propagation.
type DurableRunner interface {
	ID() string

	// Context returns the workflow execution context. In a durable
	// engine this is the deterministic replay context; in the
	// synchronous backend it is the caller's context.
	Context() context.Context

	// Run durably runs an activity. The engine provides the activity's
	// context internally; callers should use [RunActivity] for type safety.
	Run(activity Activity[any, any], in any) (any, error)

	// RunAll durably runs one activity over a batch of inputs, at most
	// limit at a time, and returns the outputs in input order. Each
	// invocation's error lands in the matching errs slot so callers see
	// every per-input outcome rather than the first failure. limit < 1
	// means unbounded.
	RunAll(activity Activity[any, any], ins []any, limit int) (outs []any, errs []error)
}

// RunActivity provides type-safe durable activity execution from within
// a workflow body. It is a thin wrapper around [DurableRunner.Run].
func RunActivity[I any, O any](runner DurableRunner, activity Activity[I, O], in I) (O, error) {
	result, err := runner.Run(&activityAdapter[I, O]{activity: activity}, in)
	if err != nil {
		var zero O
		return zero, err
	}
	return result.(O), nil
}

// RunActivityAll fans one activity out over ins with bounded concurrency
// and joins the results in input order. It is the type-safe wrapper around
// [DurableRunner.RunAll].
func RunActivityAll[I any, O any](runner DurableRunner, activity Activity[I, O], ins []I, limit int) ([]O, []error) {
	boxed := make([]any, len(ins))
	for i, in := range ins {
		boxed[i] = in
	}
	rawOuts, errs := runner.RunAll(&activityAdapter[I, O]{activity: activity}, boxed, limit)
	outs := make([]O, len(rawOuts))
	for i, raw := range rawOuts {
		if errs[i] != nil {
			continue
		}
		outs[i] = raw.(O)
	}
	return outs, errs
}

// WorkflowHandle is a handle to a running or completed workflow execution.
type WorkflowHandle[O any] interface {
	WorkflowID() string
	AwaitResult(ctx context.Context) (O, error)
}

// RolloutRunner starts and awaits rollout workflows.
type RolloutRunner interface {
	Run(ctx context.Context, releaseID ReleaseID) (WorkflowHandle[AttemptReport], error)
}

// WorkflowEngine creates runners for the workflow types known to the
// domain. Infrastructure packages provide engine-specific implementations.
type WorkflowEngine interface {
	RolloutRunner(wf *RolloutWorkflow) (RolloutRunner, error)
}

// NewActivity creates an [Activity] from a stable name and a function.
// Workflow types use this to define their activities as methods.
func NewActivity[I, O any](name string, fn func(context.Context, I) (O, error)) Activity[I, O] {
	return &activityFunc[I, O]{name: name, fn: fn}
}

type activityFunc[I, O any] struct {
	name string
	fn   func(context.Context, I) (O, error)
}

func (a *activityFunc[I, O]) Name() string                             { return a.name }
func (a *activityFunc[I, O]) Run(ctx context.Context, in I) (O, error) { return a.fn(ctx, in) }

// activityAdapter bridges a typed [Activity] to the any-typed
// [DurableRunner.Run] interface.
type activityAdapter[I any, O any] struct{ activity Activity[I, O] }

func (a *activityAdapter[I, O]) Name() string { return a.activity.Name() }
func (a *activityAdapter[I, O]) Run(ctx context.Context, in any) (any, error) {
	return a.activity.Run(ctx, in.(I))
}

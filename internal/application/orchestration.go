package application

import (
	"context"
	"fmt"

	"github.com/f4biogr/rollout/internal/domain"
)

// OrchestrationService executes release rollouts as durable workflows.
type OrchestrationService struct {
	Workflow domain.RolloutRunner
}

// Orchestrate starts the rollout workflow for a release and waits for the
// final attempt report.
func (o *OrchestrationService) Orchestrate(ctx context.Context, releaseID domain.ReleaseID) (domain.AttemptReport, error) {
	handle, err := o.Workflow.Run(ctx, releaseID)
	if err != nil {
		return domain.AttemptReport{}, fmt.Errorf("start rollout workflow: %w", err)
	}
	report, err := handle.AwaitResult(ctx)
	if err != nil {
		return domain.AttemptReport{}, fmt.Errorf("await rollout workflow %s: %w", handle.WorkflowID(), err)
	}
	return report, nil
}

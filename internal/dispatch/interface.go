package dispatch

import "context"

//go:generate mockgen -destination=mocks/mock_workflow.go -package=mocks github.com/FriendsOfShopware/automation-bot/internal/dispatch WorkflowService

// WorkflowService defines the workflow-dispatch transport operations used by
// the orchestrator.
type WorkflowService interface {
	// FindWorkflowID resolves a workflow file path to its id, or 0 if the
	// workflow does not exist.
	FindWorkflowID(ctx context.Context, owner, repo, path string) (int64, error)
	// DispatchWorkflow triggers one run of the workflow.
	DispatchWorkflow(ctx context.Context, owner, repo string, workflowID int64, ref string, inputs map[string]any) error
}

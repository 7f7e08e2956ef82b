package driven

import (
	"context"
	"errors"

	"github.com/repoforge/apb/internal/domain/model"
)

// ErrWorkflowNotFound indicates the monitored workflow does not exist in a
// repository. It is a normal per-repository condition, not a run failure.
var ErrWorkflowNotFound = errors.New("workflow not found")

// GitHubClient defines the driven port for the repository-hosting API.
// The dispatcher core depends only on this narrow surface so it can be
// exercised with fakes.
type GitHubClient interface {
	// SearchRepositories returns every repository matching the search query.
	SearchRepositories(ctx context.Context, query string) ([]model.Repository, error)

	// LatestWorkflowRun returns the most recent completed run of the named
	// workflow in the repository. It returns nil, nil when the workflow exists
	// but has no completed runs, and ErrWorkflowNotFound when the repository
	// does not have the workflow at all.
	LatestWorkflowRun(ctx context.Context, repoFullName, workflowID string) (*model.WorkflowRun, error)

	// SendDispatch sends a repository dispatch event of the given type.
	SendDispatch(ctx context.Context, repoFullName, eventType string) error
}

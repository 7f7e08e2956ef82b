package driven

import (
	"context"
	"errors"

	"github.com/repoforge/apb/internal/domain/model"
)

// ErrRunNotFound indicates the requested run does not exist in the history store.
var ErrRunNotFound = errors.New("run not found")

// RunStore defines the driven port for the optional run history audit log.
// It records completed runs; it is never consulted by the dispatcher itself,
// so duplicate dispatches across runs remain possible and accepted.
type RunStore interface {
	// SaveRun records a completed run and all its decisions, returning the
	// stored run's ID.
	SaveRun(ctx context.Context, result model.RunResult) (int64, error)

	// ListRuns returns up to limit recorded runs, most recent first.
	ListRuns(ctx context.Context, limit int) ([]model.RunSummary, error)

	// GetRun reconstructs a recorded run by ID.
	// Returns ErrRunNotFound if no such run exists.
	GetRun(ctx context.Context, id int64) (*model.RunResult, error)
}

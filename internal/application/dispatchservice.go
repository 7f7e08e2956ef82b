// Package application contains use-case orchestration services.
package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/repoforge/apb/internal/domain/model"
	"github.com/repoforge/apb/internal/domain/port/driven"
)

// QueryError indicates the candidate repository search failed. It is fatal to
// the run; nothing is dispatched.
type QueryError struct {
	Query string
	Err   error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("repository query %q failed: %v", e.Query, e.Err)
}

func (e *QueryError) Unwrap() error { return e.Err }

// Params are the inputs to a single dispatcher run.
type Params struct {
	Query            string
	WorkflowID       string
	EventType        string
	BuildAge         time.Duration
	BuildAgeRaw      string
	MaxRebuilds      int // 0 means unlimited
	IncludeNonPublic bool
	MaskNonPublic    bool
}

// DispatchService decides which repositories are stale and sends rebuild
// events to them. Each run is a pure function of its params and the current
// API responses; the service holds no state across runs.
type DispatchService struct {
	gh driven.GitHubClient
}

// NewDispatchService creates a DispatchService backed by the given client.
func NewDispatchService(gh driven.GitHubClient) *DispatchService {
	return &DispatchService{gh: gh}
}

// candidate pairs a repository with its staleness evaluation while the run
// is in progress. logName is the name to use in log output; it differs from
// the decision's repository name only for masked non-public repositories.
type candidate struct {
	decision  model.Decision
	staleness time.Duration
	logName   string
}

// Run executes one dispatch cycle: search, evaluate staleness, dispatch to at
// most MaxRebuilds of the stalest eligible repositories, and report every
// decision. A failed dispatch is recorded on its decision and does not abort
// the run; a failed search aborts the run with a QueryError.
func (s *DispatchService) Run(ctx context.Context, p Params) (*model.RunResult, error) {
	now := time.Now().UTC()

	slog.Info("querying for repositories", "query", p.Query)

	repos, err := s.gh.SearchRepositories(ctx, p.Query)
	if err != nil {
		return nil, &QueryError{Query: p.Query, Err: err}
	}

	var eligible, settled []candidate
	seen := make(map[string]bool, len(repos))

	for _, repo := range repos {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		// A repository appears at most once per run even if the search
		// returns duplicates.
		if seen[repo.FullName] {
			continue
		}
		seen[repo.FullName] = true

		if repo.Private && !p.IncludeNonPublic {
			slog.Debug("skipping non-public repository")
			continue
		}

		logName := repo.FullName
		if repo.Private && p.MaskNonPublic {
			logName = "<non-public>"
		}

		c := s.evaluate(ctx, repo, p, now, logName)
		if c.decision.Eligible {
			eligible = append(eligible, c)
		} else {
			settled = append(settled, c)
		}
	}

	// Stalest first; never-built repositories sort ahead of everything.
	// Equal staleness breaks the tie by repository name ascending.
	sort.SliceStable(eligible, func(i, j int) bool {
		if eligible[i].staleness != eligible[j].staleness {
			return eligible[i].staleness > eligible[j].staleness
		}
		return eligible[i].decision.Repository < eligible[j].decision.Repository
	})
	sort.SliceStable(settled, func(i, j int) bool {
		return settled[i].decision.Repository < settled[j].decision.Repository
	})

	// The cap bounds dispatch attempts: the first MaxRebuilds eligible
	// repositories are selected up front, and a failed dispatch does not
	// free its slot for a repository further down the list.
	var attempted, dispatched int
	for i := range eligible {
		d := &eligible[i].decision

		if p.MaxRebuilds > 0 && attempted >= p.MaxRebuilds {
			d.Reason = model.ReasonSkippedCap
			continue
		}
		attempted++

		if err := s.gh.SendDispatch(ctx, d.Repository, p.EventType); err != nil {
			d.Error = err.Error()
			slog.Error("dispatch failed", "repo", eligible[i].logName, "error", err)
			continue
		}

		d.EventSent = true
		dispatched++
		slog.Info("sent rebuild event",
			"repo", eligible[i].logName,
			"event_type", p.EventType,
			"number", attempted,
		)

		if p.MaxRebuilds > 0 && attempted == p.MaxRebuilds {
			slog.Warn("max rebuild events sent", "max_rebuilds", p.MaxRebuilds)
		}
	}

	decisions := make([]model.Decision, 0, len(eligible)+len(settled))
	for _, c := range eligible {
		decisions = append(decisions, c.decision)
	}
	for _, c := range settled {
		decisions = append(decisions, c.decision)
	}

	result := &model.RunResult{
		Query:           p.Query,
		WorkflowID:      p.WorkflowID,
		EventType:       p.EventType,
		BuildAge:        p.BuildAgeRaw,
		BuildAgeSeconds: int64(p.BuildAge / time.Second),
		RanAt:           now,
		Decisions:       decisions,
		Dispatched:      dispatched,
		Examined:        len(decisions),
	}

	slog.Info("run complete",
		"examined", result.Examined,
		"eligible", len(eligible),
		"dispatched", result.Dispatched,
	)

	return result, nil
}

// evaluate computes the staleness decision for one repository.
func (s *DispatchService) evaluate(ctx context.Context, repo model.Repository, p Params, now time.Time, logName string) candidate {
	d := model.Decision{Repository: repo.FullName}

	run, err := s.gh.LatestWorkflowRun(ctx, repo.FullName, p.WorkflowID)
	switch {
	case errors.Is(err, driven.ErrWorkflowNotFound):
		slog.Info("repository does not have workflow", "repo", logName, "workflow", p.WorkflowID)
		d.Reason = model.ReasonWorkflowMissing
		return candidate{decision: d, logName: logName}
	case err != nil:
		slog.Error("run status check failed", "repo", logName, "error", err)
		d.Reason = model.ReasonCheckFailed
		d.Error = err.Error()
		return candidate{decision: d, logName: logName}
	case run == nil:
		slog.Info("repository has never been built", "repo", logName, "workflow", p.WorkflowID)
		d.Eligible = true
		d.Reason = model.ReasonNeverBuilt
		// Never built sorts ahead of any finite staleness.
		return candidate{decision: d, staleness: time.Duration(1<<63 - 1), logName: logName}
	}

	staleness := now.Sub(run.CompletedAt)
	completedAt := run.CompletedAt
	d.StalenessSeconds = int64(staleness / time.Second)
	d.LastRunAt = &completedAt
	d.LastOutcome = run.Conclusion

	if staleness >= p.BuildAge {
		slog.Info("repository needs a rebuild", "repo", logName, "staleness", staleness.Round(time.Second))
		d.Eligible = true
		d.Reason = model.ReasonStale
		return candidate{decision: d, staleness: staleness, logName: logName}
	}

	slog.Info("repository is fresh", "repo", logName, "staleness", staleness.Round(time.Second))
	d.Reason = model.ReasonFresh
	return candidate{decision: d, staleness: staleness, logName: logName}
}

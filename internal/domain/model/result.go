package model

import "time"

// Reason explains why a repository was or was not selected for a rebuild.
type Reason string

const (
	// ReasonStale marks a repository whose last build exceeds the age threshold.
	ReasonStale Reason = "stale"
	// ReasonNeverBuilt marks a repository with the workflow configured but no
	// completed runs. Never-built repositories are always eligible.
	ReasonNeverBuilt Reason = "never_built"
	// ReasonFresh marks a repository built within the age threshold.
	ReasonFresh Reason = "fresh"
	// ReasonWorkflowMissing marks a repository without the monitored workflow.
	ReasonWorkflowMissing Reason = "workflow_missing"
	// ReasonSkippedCap marks an eligible repository left undispatched because
	// the per-run rebuild cap was already reached.
	ReasonSkippedCap Reason = "skipped_cap"
	// ReasonCheckFailed marks a repository whose run status could not be
	// retrieved. The failure is recorded on the decision and does not abort
	// the run.
	ReasonCheckFailed Reason = "check_failed"
)

// Decision records the outcome for a single candidate repository.
type Decision struct {
	Repository       string     `json:"repository"`
	Eligible         bool       `json:"eligible"`
	Reason           Reason     `json:"reason"`
	StalenessSeconds int64      `json:"staleness_seconds,omitempty"`
	LastRunAt        *time.Time `json:"last_run_at,omitempty"`
	LastOutcome      string     `json:"last_run_outcome,omitempty"`
	EventSent        bool       `json:"event_sent"`
	Error            string     `json:"error,omitempty"`
}

// Staleness returns the recorded staleness as a duration.
func (d Decision) Staleness() time.Duration {
	return time.Duration(d.StalenessSeconds) * time.Second
}

// RunResult describes one dispatcher invocation: every decision made plus the
// run's configuration echo, in the shape written to the status file.
type RunResult struct {
	Query           string     `json:"repository_query"`
	WorkflowID      string     `json:"workflow_id"`
	EventType       string     `json:"event_type"`
	BuildAge        string     `json:"build_age"`
	BuildAgeSeconds int64      `json:"build_age_seconds"`
	RanAt           time.Time  `json:"ran_at"`
	Decisions       []Decision `json:"repositories"`
	Dispatched      int        `json:"dispatched"`
	Examined        int        `json:"examined"`
}

// RunSummary is a condensed view of a recorded run, used for history listings.
type RunSummary struct {
	ID         int64
	RanAt      time.Time
	Query      string
	WorkflowID string
	EventType  string
	Examined   int
	Dispatched int
}

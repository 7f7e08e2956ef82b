package model

import "time"

// Repository is a candidate repository matched by the search query.
type Repository struct {
	FullName      string
	Owner         string
	Name          string
	Private       bool
	DefaultBranch string
}

// WorkflowRun is the most recent completed run of the monitored workflow
// in a repository.
type WorkflowRun struct {
	CompletedAt time.Time
	Conclusion  string
}

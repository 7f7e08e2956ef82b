package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/repoforge/apb/internal/domain/model"
	"github.com/repoforge/apb/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.RunStore = (*RunRepo)(nil)

// RunRepo is the SQLite implementation of the RunStore port interface.
type RunRepo struct {
	db *DB
}

// NewRunRepo creates a new RunRepo backed by the given DB.
func NewRunRepo(db *DB) *RunRepo {
	return &RunRepo{db: db}
}

// SaveRun records a completed run and all its decisions in one transaction.
func (r *RunRepo) SaveRun(ctx context.Context, result model.RunResult) (int64, error) {
	tx, err := r.db.Writer.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin save run: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	const insertRun = `
		INSERT INTO runs (ran_at, repository_query, workflow_id, event_type, build_age, build_age_seconds, examined, dispatched)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	res, err := tx.ExecContext(ctx, insertRun,
		result.RanAt.UTC(),
		result.Query,
		result.WorkflowID,
		result.EventType,
		result.BuildAge,
		result.BuildAgeSeconds,
		result.Examined,
		result.Dispatched,
	)
	if err != nil {
		return 0, fmt.Errorf("insert run: %w", err)
	}

	runID, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("run id: %w", err)
	}

	const insertDecision = `
		INSERT INTO decisions (run_id, position, repository, eligible, reason, staleness_seconds, last_run_at, last_outcome, event_sent, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	for i, d := range result.Decisions {
		var lastRunAt any
		if d.LastRunAt != nil {
			lastRunAt = d.LastRunAt.UTC()
		}

		if _, err := tx.ExecContext(ctx, insertDecision,
			runID, i, d.Repository, d.Eligible, string(d.Reason),
			d.StalenessSeconds, lastRunAt, d.LastOutcome, d.EventSent, d.Error,
		); err != nil {
			return 0, fmt.Errorf("insert decision for %s: %w", d.Repository, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit save run: %w", err)
	}

	return runID, nil
}

// ListRuns returns up to limit recorded runs, most recent first.
func (r *RunRepo) ListRuns(ctx context.Context, limit int) ([]model.RunSummary, error) {
	const query = `
		SELECT id, ran_at, repository_query, workflow_id, event_type, examined, dispatched
		FROM runs ORDER BY ran_at DESC, id DESC LIMIT ?`

	rows, err := r.db.Reader.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var summaries []model.RunSummary
	for rows.Next() {
		var s model.RunSummary
		if err := rows.Scan(&s.ID, &s.RanAt, &s.Query, &s.WorkflowID, &s.EventType, &s.Examined, &s.Dispatched); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		summaries = append(summaries, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}

	return summaries, nil
}

// GetRun reconstructs a recorded run by ID, decisions in their original order.
func (r *RunRepo) GetRun(ctx context.Context, id int64) (*model.RunResult, error) {
	const runQuery = `
		SELECT ran_at, repository_query, workflow_id, event_type, build_age, build_age_seconds, examined, dispatched
		FROM runs WHERE id = ?`

	var result model.RunResult
	err := r.db.Reader.QueryRowContext(ctx, runQuery, id).Scan(
		&result.RanAt, &result.Query, &result.WorkflowID, &result.EventType,
		&result.BuildAge, &result.BuildAgeSeconds, &result.Examined, &result.Dispatched,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get run %d: %w", id, driven.ErrRunNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get run %d: %w", id, err)
	}

	const decisionQuery = `
		SELECT repository, eligible, reason, staleness_seconds, last_run_at, last_outcome, event_sent, error
		FROM decisions WHERE run_id = ? ORDER BY position`

	rows, err := r.db.Reader.QueryContext(ctx, decisionQuery, id)
	if err != nil {
		return nil, fmt.Errorf("get run %d decisions: %w", id, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			d         model.Decision
			reason    string
			lastRunAt sql.NullTime
		)
		if err := rows.Scan(&d.Repository, &d.Eligible, &reason, &d.StalenessSeconds, &lastRunAt, &d.LastOutcome, &d.EventSent, &d.Error); err != nil {
			return nil, fmt.Errorf("scan decision: %w", err)
		}
		d.Reason = model.Reason(reason)
		if lastRunAt.Valid {
			t := lastRunAt.Time.UTC()
			d.LastRunAt = &t
		}
		result.Decisions = append(result.Decisions, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate decisions: %w", err)
	}

	result.RanAt = result.RanAt.UTC()
	return &result, nil
}

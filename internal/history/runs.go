package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

const workflowRunColumns = `
	id, workflow, network_name, ref, run_id, run_url, inputs, triggered_at,
	run_status, run_conclusion`

// RecordWorkflowRun logs a correlated dispatch that does not create a
// deployment (destroy, upscale). It fails with ErrRunAlreadyBound if the
// run is already recorded.
func (h *History) RecordWorkflowRun(ctx context.Context, r *WorkflowRunRecord) (*WorkflowRunRecord, error) {
	if r.RunID <= 0 {
		return nil, fmt.Errorf("workflow run id is required")
	}

	inputs, err := json.Marshal(inputsOrEmpty(r.Inputs))
	if err != nil {
		return nil, fmt.Errorf("failed to encode inputs: %w", err)
	}

	triggeredAt := r.TriggeredAt.UTC().Truncate(timeResolution)
	if r.TriggeredAt.IsZero() {
		_, triggeredAt = h.timestamp()
	}
	status := r.RunStatus
	if status == "" {
		status = "queued"
	}

	tx, err := h.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	bound, err := runBoundTx(ctx, tx, r.RunID)
	if err != nil {
		return nil, err
	}
	if bound {
		return nil, fmt.Errorf("run %d: %w", r.RunID, ErrRunAlreadyBound)
	}

	result, err := tx.ExecContext(ctx, `
		INSERT INTO workflow_runs
		(workflow, network_name, ref, run_id, run_url, inputs, triggered_at, run_status, run_conclusion)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, r.Workflow, r.NetworkName, r.Ref, r.RunID, r.RunURL, string(inputs), formatTime(triggeredAt), status, r.RunConclusion)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("run %d: %w", r.RunID, ErrRunAlreadyBound)
		}
		return nil, fmt.Errorf("failed to insert workflow run: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get last insert ID: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit workflow run: %w", err)
	}

	return h.GetWorkflowRun(ctx, id)
}

// GetWorkflowRun returns a dispatch log entry by id.
func (h *History) GetWorkflowRun(ctx context.Context, id int64) (*WorkflowRunRecord, error) {
	row := h.db.QueryRowContext(ctx, `SELECT `+workflowRunColumns+` FROM workflow_runs WHERE id = ?`, id)
	r, err := scanWorkflowRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("workflow run %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query workflow run: %w", err)
	}
	return r, nil
}

// ListWorkflowRuns returns the dispatch log, oldest first.
func (h *History) ListWorkflowRuns(ctx context.Context, filter WorkflowRunFilter) ([]WorkflowRunRecord, error) {
	var where []string
	var args []interface{}
	if filter.Workflow != "" {
		where = append(where, "workflow = ?")
		args = append(args, filter.Workflow)
	}
	if filter.NetworkName != "" {
		where = append(where, "network_name = ?")
		args = append(args, filter.NetworkName)
	}
	if filter.Unfinished {
		where = append(where, "run_status != 'completed'")
	}

	query := `SELECT ` + workflowRunColumns + ` FROM workflow_runs`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY triggered_at ASC, id ASC`

	rows, err := h.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query workflow runs: %w", err)
	}
	defer rows.Close()

	var runs []WorkflowRunRecord
	for rows.Next() {
		r, err := scanWorkflowRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan workflow run: %w", err)
		}
		runs = append(runs, *r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return runs, nil
}

func scanWorkflowRun(s scanner) (*WorkflowRunRecord, error) {
	var r WorkflowRunRecord
	var inputs, triggeredAt string
	var conclusion sql.NullString

	err := s.Scan(
		&r.ID,
		&r.Workflow,
		&r.NetworkName,
		&r.Ref,
		&r.RunID,
		&r.RunURL,
		&inputs,
		&triggeredAt,
		&r.RunStatus,
		&conclusion,
	)
	if err != nil {
		return nil, err
	}

	if r.TriggeredAt, err = parseTime(triggeredAt); err != nil {
		return nil, fmt.Errorf("failed to parse triggered_at timestamp: %w", err)
	}
	if conclusion.Valid {
		r.RunConclusion = &conclusion.String
	}
	if err := json.Unmarshal([]byte(inputs), &r.Inputs); err != nil {
		return nil, fmt.Errorf("failed to decode inputs: %w", err)
	}
	return &r, nil
}

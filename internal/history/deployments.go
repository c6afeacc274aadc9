package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"netrunner/internal/smoketest"
)

const deploymentColumns = `
	id, name, network_id, environment_type, workflow, ref, run_id, run_url,
	created_at, related_pr, description, inputs, run_status, run_conclusion,
	smoke_test_result, smoke_test_answers, smoke_tested_at, posted, posted_at,
	destroyed_at`

// RecordDeployment persists a deployment bound to a correlated run and logs
// the run in the dispatch log, atomically. It fails with
// ErrRunAlreadyBound if any record already owns the run and with
// ErrDuplicateActiveName if an active deployment has the same name.
func (h *History) RecordDeployment(ctx context.Context, d *Deployment) (*Deployment, error) {
	if d.Name == "" {
		return nil, fmt.Errorf("deployment name is required")
	}
	if d.RunID <= 0 {
		return nil, fmt.Errorf("deployment must be bound to a run")
	}

	inputs, err := json.Marshal(inputsOrEmpty(d.Inputs))
	if err != nil {
		return nil, fmt.Errorf("failed to encode inputs: %w", err)
	}

	createdAt := d.CreatedAt.UTC().Truncate(timeResolution)
	if d.CreatedAt.IsZero() {
		_, createdAt = h.timestamp()
	}
	status := d.RunStatus
	if status == "" {
		status = "queued"
	}

	tx, err := h.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	bound, err := runBoundTx(ctx, tx, d.RunID)
	if err != nil {
		return nil, err
	}
	if bound {
		return nil, fmt.Errorf("run %d: %w", d.RunID, ErrRunAlreadyBound)
	}

	var existing int64
	err = tx.QueryRowContext(ctx,
		`SELECT id FROM deployments WHERE name = ? AND destroyed_at IS NULL`, d.Name,
	).Scan(&existing)
	switch {
	case err == nil:
		return nil, fmt.Errorf("%s (deployment %d): %w", d.Name, existing, ErrDuplicateActiveName)
	case !errors.Is(err, sql.ErrNoRows):
		return nil, fmt.Errorf("failed to check active name: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO workflow_runs
		(workflow, network_name, ref, run_id, run_url, inputs, triggered_at, run_status, run_conclusion)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, d.Workflow, d.Name, d.Ref, d.RunID, d.RunURL, string(inputs), formatTime(createdAt), status, d.RunConclusion); err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("run %d: %w", d.RunID, ErrRunAlreadyBound)
		}
		return nil, fmt.Errorf("failed to insert workflow run: %w", err)
	}

	result, err := tx.ExecContext(ctx, `
		INSERT INTO deployments
		(name, network_id, environment_type, workflow, ref, run_id, run_url, created_at,
		 related_pr, description, inputs, run_status, run_conclusion)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		d.Name,
		d.NetworkID,
		nullString(d.EnvironmentType),
		d.Workflow,
		d.Ref,
		d.RunID,
		d.RunURL,
		formatTime(createdAt),
		d.RelatedPR,
		d.Description,
		string(inputs),
		status,
		d.RunConclusion,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("deployment %s: %w", d.Name, bindError(err))
		}
		return nil, fmt.Errorf("failed to insert deployment: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get last insert ID: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit deployment: %w", err)
	}

	return h.GetDeployment(ctx, id)
}

// GetDeployment returns a deployment by id.
func (h *History) GetDeployment(ctx context.Context, id int64) (*Deployment, error) {
	row := h.db.QueryRowContext(ctx, `SELECT `+deploymentColumns+` FROM deployments WHERE id = ?`, id)
	d, err := scanDeployment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("deployment %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query deployment: %w", err)
	}
	return d, nil
}

// ActiveDeployment returns the non-destroyed deployment with the given name.
func (h *History) ActiveDeployment(ctx context.Context, name string) (*Deployment, error) {
	row := h.db.QueryRowContext(ctx,
		`SELECT `+deploymentColumns+` FROM deployments WHERE name = ? AND destroyed_at IS NULL`, name)
	d, err := scanDeployment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("active deployment %s: %w", name, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query deployment: %w", err)
	}
	return d, nil
}

// ListDeployments returns deployments ordered by creation time, oldest first.
func (h *History) ListDeployments(ctx context.Context, filter DeploymentFilter) ([]Deployment, error) {
	var where []string
	var args []interface{}
	if filter.Name != "" {
		where = append(where, "name = ?")
		args = append(args, filter.Name)
	}
	if filter.ActiveOnly {
		where = append(where, "destroyed_at IS NULL")
	}
	if filter.Unfinished {
		where = append(where, "run_status != 'completed'")
	}

	query := `SELECT ` + deploymentColumns + ` FROM deployments`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY created_at ASC, id ASC`

	rows, err := h.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query deployments: %w", err)
	}
	defer rows.Close()

	var deployments []Deployment
	for rows.Next() {
		d, err := scanDeployment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan deployment: %w", err)
		}
		deployments = append(deployments, *d)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return deployments, nil
}

// RecordRunOutcome stores the latest status and conclusion of a run on both
// the dispatch log and any deployment bound to it.
func (h *History) RecordRunOutcome(ctx context.Context, runID int64, status, conclusion string) error {
	tx, err := h.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var affected int64
	for _, table := range []string{"workflow_runs", "deployments"} {
		res, err := tx.ExecContext(ctx,
			`UPDATE `+table+` SET run_status = ?, run_conclusion = ? WHERE run_id = ?`,
			status, nullString(conclusion), runID)
		if err != nil {
			return fmt.Errorf("failed to update %s: %w", table, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to read affected rows: %w", err)
		}
		affected += n
	}
	if affected == 0 {
		return fmt.Errorf("run %d: %w", runID, ErrNotFound)
	}

	return tx.Commit()
}

// RecordSmokeTestResult stores the per-question answers and the overall
// result derived from them.
func (h *History) RecordSmokeTestResult(ctx context.Context, id int64, answers smoketest.Answers) (smoketest.Result, error) {
	result, err := smoketest.Evaluate(answers)
	if err != nil {
		return smoketest.NotRun, err
	}

	encoded, err := json.Marshal(answers)
	if err != nil {
		return smoketest.NotRun, fmt.Errorf("failed to encode answers: %w", err)
	}

	now, _ := h.timestamp()
	res, err := h.db.ExecContext(ctx, `
		UPDATE deployments
		SET smoke_test_result = ?, smoke_test_answers = ?, smoke_tested_at = ?
		WHERE id = ?
	`, string(result), string(encoded), now, id)
	if err != nil {
		return smoketest.NotRun, fmt.Errorf("failed to record smoke test: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return smoketest.NotRun, fmt.Errorf("failed to read affected rows: %w", err)
	} else if n == 0 {
		return smoketest.NotRun, fmt.Errorf("deployment %d: %w", id, ErrNotFound)
	}

	return result, nil
}

// MarkPosted sets the posted flag. Posting again is allowed; repost reports
// whether the deployment had been posted before.
func (h *History) MarkPosted(ctx context.Context, id int64) (repost bool, err error) {
	tx, err := h.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	err = tx.QueryRowContext(ctx, `SELECT posted FROM deployments WHERE id = ?`, id).Scan(&repost)
	if errors.Is(err, sql.ErrNoRows) {
		return false, fmt.Errorf("deployment %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return false, fmt.Errorf("failed to query deployment: %w", err)
	}

	now, _ := h.timestamp()
	if _, err := tx.ExecContext(ctx, `UPDATE deployments SET posted = 1, posted_at = ? WHERE id = ?`, now, id); err != nil {
		return false, fmt.Errorf("failed to mark posted: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit: %w", err)
	}
	return repost, nil
}

// MarkDestroyed marks the active deployment with the given name destroyed,
// freeing the name for a new launch.
func (h *History) MarkDestroyed(ctx context.Context, name string) (*Deployment, error) {
	tx, err := h.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var id int64
	err = tx.QueryRowContext(ctx,
		`SELECT id FROM deployments WHERE name = ? AND destroyed_at IS NULL`, name).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("active deployment %s: %w", name, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query deployment: %w", err)
	}

	now, _ := h.timestamp()
	if _, err := tx.ExecContext(ctx, `UPDATE deployments SET destroyed_at = ? WHERE id = ?`, now, id); err != nil {
		return nil, fmt.Errorf("failed to mark destroyed: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit: %w", err)
	}
	return h.GetDeployment(ctx, id)
}

func runBoundTx(ctx context.Context, tx *sql.Tx, runID int64) (bool, error) {
	var bound bool
	err := tx.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM workflow_runs WHERE run_id = ?)
		    OR EXISTS (SELECT 1 FROM deployments WHERE run_id = ?)
	`, runID, runID).Scan(&bound)
	if err != nil {
		return false, fmt.Errorf("failed to check run binding: %w", err)
	}
	return bound, nil
}

func inputsOrEmpty(in map[string]string) map[string]string {
	if in == nil {
		return map[string]string{}
	}
	return in
}

// scanDeployment scans a database row into a Deployment.
// Works with both *sql.Row and *sql.Rows
func scanDeployment(s scanner) (*Deployment, error) {
	var d Deployment
	var envType, conclusion, answers, smokeTestedAt, postedAt, destroyedAt sql.NullString
	var relatedPR sql.NullInt64
	var description sql.NullString
	var createdAt, inputs, smokeResult string

	err := s.Scan(
		&d.ID,
		&d.Name,
		&d.NetworkID,
		&envType,
		&d.Workflow,
		&d.Ref,
		&d.RunID,
		&d.RunURL,
		&createdAt,
		&relatedPR,
		&description,
		&inputs,
		&d.RunStatus,
		&conclusion,
		&smokeResult,
		&answers,
		&smokeTestedAt,
		&d.Posted,
		&postedAt,
		&destroyedAt,
	)
	if err != nil {
		return nil, err
	}

	if d.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("failed to parse created_at timestamp: %w", err)
	}
	if d.SmokeTestedAt, err = parseNullTime(smokeTestedAt); err != nil {
		return nil, fmt.Errorf("failed to parse smoke_tested_at timestamp: %w", err)
	}
	if d.PostedAt, err = parseNullTime(postedAt); err != nil {
		return nil, fmt.Errorf("failed to parse posted_at timestamp: %w", err)
	}
	if d.DestroyedAt, err = parseNullTime(destroyedAt); err != nil {
		return nil, fmt.Errorf("failed to parse destroyed_at timestamp: %w", err)
	}

	d.EnvironmentType = envType.String
	if relatedPR.Valid {
		pr := int(relatedPR.Int64)
		d.RelatedPR = &pr
	}
	if description.Valid {
		d.Description = &description.String
	}
	if conclusion.Valid {
		d.RunConclusion = &conclusion.String
	}

	if err := json.Unmarshal([]byte(inputs), &d.Inputs); err != nil {
		return nil, fmt.Errorf("failed to decode inputs: %w", err)
	}

	d.SmokeTest = smoketest.Result(smokeResult)
	if answers.Valid {
		if err := json.Unmarshal([]byte(answers.String), &d.SmokeTestAnswers); err != nil {
			return nil, fmt.Errorf("failed to decode smoke test answers: %w", err)
		}
	}

	return &d, nil
}

package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// CreateComparison groups existing deployments. The first member is the
// reference. Every id must resolve at creation time.
func (h *History) CreateComparison(ctx context.Context, nc NewComparison) (*Comparison, error) {
	if strings.TrimSpace(nc.Label) == "" {
		return nil, fmt.Errorf("comparison label is required")
	}

	if len(nc.Members) < 2 {
		return nil, fmt.Errorf("got %d: %w", len(nc.Members), ErrTooFewDeployments)
	}

	tx, err := h.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var missing []int64
	checked := make(map[int64]bool, len(nc.Members))
	for _, m := range nc.Members {
		if checked[m.DeploymentID] {
			continue
		}
		checked[m.DeploymentID] = true
		var exists bool
		if err := tx.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM deployments WHERE id = ?)`, m.DeploymentID,
		).Scan(&exists); err != nil {
			return nil, fmt.Errorf("failed to check deployment %d: %w", m.DeploymentID, err)
		}
		if !exists {
			missing = append(missing, m.DeploymentID)
		}
	}
	if len(missing) > 0 {
		return nil, &InvalidReferenceError{Missing: missing}
	}

	now, _ := h.timestamp()
	result, err := tx.ExecContext(ctx, `
		INSERT INTO comparisons (label, description, thread_link, created_at)
		VALUES (?, ?, ?, ?)
	`, nc.Label, nullString(nc.Description), nullString(nc.ThreadLink), now)
	if err != nil {
		return nil, fmt.Errorf("failed to insert comparison: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get last insert ID: %w", err)
	}

	for pos, m := range nc.Members {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO comparison_members (comparison_id, position, deployment_id, label)
			VALUES (?, ?, ?, ?)
		`, id, pos, m.DeploymentID, m.Label); err != nil {
			return nil, fmt.Errorf("failed to insert comparison member: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit comparison: %w", err)
	}

	return h.GetComparison(ctx, id)
}

// GetComparison returns a comparison with its members resolved and its
// reports attached.
func (h *History) GetComparison(ctx context.Context, id int64) (*Comparison, error) {
	row := h.db.QueryRowContext(ctx, `
		SELECT id, label, description, thread_link, created_at
		FROM comparisons WHERE id = ?
	`, id)
	c, err := scanComparison(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("comparison %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query comparison: %w", err)
	}

	if c.Members, err = h.comparisonMembers(ctx, id); err != nil {
		return nil, err
	}
	if c.Reports, err = h.comparisonReports(ctx, id); err != nil {
		return nil, err
	}
	if c.Result, err = h.comparisonResult(ctx, id); err != nil {
		return nil, err
	}

	return c, nil
}

// ListComparisons returns all comparisons, oldest first.
func (h *History) ListComparisons(ctx context.Context) ([]Comparison, error) {
	rows, err := h.db.QueryContext(ctx, `
		SELECT id, label, description, thread_link, created_at
		FROM comparisons ORDER BY created_at ASC, id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query comparisons: %w", err)
	}

	var comparisons []Comparison
	for rows.Next() {
		c, err := scanComparison(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan comparison: %w", err)
		}
		comparisons = append(comparisons, *c)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	// The pool has a single connection; release it before loading members.
	rows.Close()

	for i := range comparisons {
		members, err := h.comparisonMembers(ctx, comparisons[i].ID)
		if err != nil {
			return nil, err
		}
		comparisons[i].Members = members
	}

	return comparisons, nil
}

// AppendReport attaches a generated report to a comparison.
func (h *History) AppendReport(ctx context.Context, comparisonID int64, body string) (*ComparisonReport, error) {
	if strings.TrimSpace(body) == "" {
		return nil, fmt.Errorf("report body is empty")
	}

	tx, err := h.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := comparisonExistsTx(ctx, tx, comparisonID); err != nil {
		return nil, err
	}

	now, created := h.timestamp()
	result, err := tx.ExecContext(ctx, `
		INSERT INTO comparison_reports (comparison_id, body, created_at) VALUES (?, ?, ?)
	`, comparisonID, body, now)
	if err != nil {
		return nil, fmt.Errorf("failed to insert report: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get last insert ID: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit report: %w", err)
	}

	return &ComparisonReport{ID: id, Body: body, CreatedAt: created}, nil
}

// RecordComparisonResult stores the window a comparison ran in, its report
// and whether it passed.
func (h *History) RecordComparisonResult(ctx context.Context, comparisonID int64, r ComparisonResult) (*ComparisonResult, error) {
	if r.StartedAt.IsZero() || r.EndedAt.IsZero() {
		return nil, fmt.Errorf("start and end times are required")
	}
	if r.EndedAt.Before(r.StartedAt) {
		return nil, fmt.Errorf("end time %s is before start time %s", formatTime(r.EndedAt), formatTime(r.StartedAt))
	}
	if strings.TrimSpace(r.Report) == "" {
		return nil, fmt.Errorf("report body is empty")
	}

	tx, err := h.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := comparisonExistsTx(ctx, tx, comparisonID); err != nil {
		return nil, err
	}

	now, recorded := h.timestamp()
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO comparison_results (comparison_id, started_at, ended_at, report, passed, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (comparison_id) DO UPDATE SET
			started_at = excluded.started_at,
			ended_at = excluded.ended_at,
			report = excluded.report,
			passed = excluded.passed,
			recorded_at = excluded.recorded_at
	`, comparisonID, formatTime(r.StartedAt), formatTime(r.EndedAt), r.Report, r.Passed, now); err != nil {
		return nil, fmt.Errorf("failed to record comparison result: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit comparison result: %w", err)
	}

	r.StartedAt = r.StartedAt.UTC().Truncate(timeResolution)
	r.EndedAt = r.EndedAt.UTC().Truncate(timeResolution)
	r.RecordedAt = recorded
	return &r, nil
}

// SetThreadLink records where the comparison was discussed.
func (h *History) SetThreadLink(ctx context.Context, comparisonID int64, link string) error {
	res, err := h.db.ExecContext(ctx,
		`UPDATE comparisons SET thread_link = ? WHERE id = ?`, nullString(link), comparisonID)
	if err != nil {
		return fmt.Errorf("failed to set thread link: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("comparison %d: %w", comparisonID, ErrNotFound)
	}
	return nil
}

func (h *History) comparisonMembers(ctx context.Context, comparisonID int64) ([]ComparisonMember, error) {
	rows, err := h.db.QueryContext(ctx, `
		SELECT position, deployment_id, label
		FROM comparison_members WHERE comparison_id = ? ORDER BY position ASC
	`, comparisonID)
	if err != nil {
		return nil, fmt.Errorf("failed to query comparison members: %w", err)
	}

	var members []ComparisonMember
	for rows.Next() {
		var m ComparisonMember
		if err := rows.Scan(&m.Position, &m.DeploymentID, &m.Label); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan comparison member: %w", err)
		}
		members = append(members, m)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	rows.Close()

	for i := range members {
		d, err := h.GetDeployment(ctx, members[i].DeploymentID)
		if err != nil {
			return nil, err
		}
		members[i].Deployment = d
	}
	return members, nil
}

func (h *History) comparisonReports(ctx context.Context, comparisonID int64) ([]ComparisonReport, error) {
	rows, err := h.db.QueryContext(ctx, `
		SELECT id, body, created_at
		FROM comparison_reports WHERE comparison_id = ? ORDER BY id ASC
	`, comparisonID)
	if err != nil {
		return nil, fmt.Errorf("failed to query comparison reports: %w", err)
	}
	defer rows.Close()

	var reports []ComparisonReport
	for rows.Next() {
		var r ComparisonReport
		var createdAt string
		if err := rows.Scan(&r.ID, &r.Body, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan comparison report: %w", err)
		}
		if r.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, fmt.Errorf("failed to parse report created_at: %w", err)
		}
		reports = append(reports, r)
	}
	return reports, rows.Err()
}

func (h *History) comparisonResult(ctx context.Context, comparisonID int64) (*ComparisonResult, error) {
	var r ComparisonResult
	var startedAt, endedAt, recordedAt string
	err := h.db.QueryRowContext(ctx, `
		SELECT started_at, ended_at, report, passed, recorded_at
		FROM comparison_results WHERE comparison_id = ?
	`, comparisonID).Scan(&startedAt, &endedAt, &r.Report, &r.Passed, &recordedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query comparison result: %w", err)
	}

	if r.StartedAt, err = parseTime(startedAt); err != nil {
		return nil, fmt.Errorf("failed to parse result started_at: %w", err)
	}
	if r.EndedAt, err = parseTime(endedAt); err != nil {
		return nil, fmt.Errorf("failed to parse result ended_at: %w", err)
	}
	if r.RecordedAt, err = parseTime(recordedAt); err != nil {
		return nil, fmt.Errorf("failed to parse result recorded_at: %w", err)
	}
	return &r, nil
}

func comparisonExistsTx(ctx context.Context, tx *sql.Tx, id int64) error {
	var exists bool
	if err := tx.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM comparisons WHERE id = ?)`, id,
	).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check comparison: %w", err)
	}
	if !exists {
		return fmt.Errorf("comparison %d: %w", id, ErrNotFound)
	}
	return nil
}

func scanComparison(s scanner) (*Comparison, error) {
	var c Comparison
	var description, threadLink sql.NullString
	var createdAt string

	if err := s.Scan(&c.ID, &c.Label, &description, &threadLink, &createdAt); err != nil {
		return nil, err
	}

	var err error
	if c.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("failed to parse created_at timestamp: %w", err)
	}
	if description.Valid {
		c.Description = &description.String
	}
	if threadLink.Valid {
		c.ThreadLink = &threadLink.String
	}
	return &c, nil
}

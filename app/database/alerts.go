package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"campus-portal/app/models"
	"campus-portal/app/services/proctoring"
)

const alertColumns = `id, session_id, event_id, alert_type, severity, title, message, status,
	acknowledged_by, acknowledged_at, resolved_by, resolved_at, resolution_notes, created_at`

func scanAlert(row rowScanner) (*models.ProctoringAlert, error) {
	var a models.ProctoringAlert
	err := row.Scan(
		&a.ID, &a.SessionID, &a.EventID, &a.AlertType, &a.Severity, &a.Title, &a.Message, &a.Status,
		&a.AcknowledgedBy, &a.AcknowledgedAt, &a.ResolvedBy, &a.ResolvedAt, &a.ResolutionNotes, &a.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func insertAlert(ctx context.Context, tx *sql.Tx, a *models.ProctoringAlert) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO proctoring_alerts (`+alertColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`,
		a.ID, a.SessionID, a.EventID, a.AlertType, a.Severity, a.Title, a.Message, a.Status,
		a.AcknowledgedBy, a.AcknowledgedAt, a.ResolvedBy, a.ResolvedAt, a.ResolutionNotes, a.CreatedAt,
	)
	return wrap("insert alert", err)
}

func (s *ProctoringStore) GetAlert(ctx context.Context, id string) (*models.ProctoringAlert, error) {
	query := `SELECT ` + alertColumns + ` FROM proctoring_alerts WHERE id = $1`
	a, err := scanAlert(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, lookupErr("get alert", "alert", id, err)
	}
	return a, nil
}

// UpdateAlert writes the workflow fields guarded by the expected status.
func (s *ProctoringStore) UpdateAlert(ctx context.Context, a *models.ProctoringAlert, from models.AlertStatus) error {
	query := `
		UPDATE proctoring_alerts
		SET status = $3, acknowledged_by = $4, acknowledged_at = $5, resolved_by = $6,
			resolved_at = $7, resolution_notes = $8
		WHERE id = $1 AND status = $2
	`
	res, err := s.db.ExecContext(ctx, query,
		a.ID, from, a.Status, a.AcknowledgedBy, a.AcknowledgedAt, a.ResolvedBy, a.ResolvedAt, a.ResolutionNotes,
	)
	if err != nil {
		return wrap("update alert", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return wrap("update alert", err)
	}
	if n == 1 {
		return nil
	}

	var current models.AlertStatus
	err = s.db.QueryRowContext(ctx, `SELECT status FROM proctoring_alerts WHERE id = $1`, a.ID).Scan(&current)
	if err != nil {
		return lookupErr("update alert", "alert", a.ID, err)
	}
	return fmt.Errorf("%w: alert %s is %s, expected %s", proctoring.ErrInvalidTransition, a.ID, current, from)
}

// ListAlerts returns alerts newest first. Without AllScopes only alerts for
// exams or quizzes created by the instructor are returned.
func (s *ProctoringStore) ListAlerts(ctx context.Context, f proctoring.AlertFilter) ([]*models.ProctoringAlert, error) {
	query := `SELECT ` + prefixColumns("a", alertColumns) + `
		FROM proctoring_alerts a
		JOIN proctoring_sessions s ON s.id = a.session_id
		LEFT JOIN exams e ON e.id = s.exam_id
		LEFT JOIN quizzes q ON q.id = s.quiz_id`

	var conditions []string
	var args []any
	argIndex := 1

	if f.SessionID != "" {
		conditions = append(conditions, fmt.Sprintf("a.session_id = $%d", argIndex))
		args = append(args, f.SessionID)
		argIndex++
	}
	if !f.AllScopes {
		conditions = append(conditions, fmt.Sprintf("(e.created_by = $%d OR q.created_by = $%d)", argIndex, argIndex))
		args = append(args, f.InstructorID)
		argIndex++
	}
	if len(f.Statuses) > 0 {
		statuses := make([]string, len(f.Statuses))
		for i, st := range f.Statuses {
			statuses[i] = string(st)
		}
		conditions = append(conditions, fmt.Sprintf("a.status = ANY($%d)", argIndex))
		args = append(args, pq.Array(statuses))
		argIndex++
	}

	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY a.created_at DESC, a.id DESC"
	if f.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIndex)
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrap("list alerts", err)
	}
	defer rows.Close()

	var alerts []*models.ProctoringAlert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, wrap("list alerts", err)
		}
		alerts = append(alerts, a)
	}
	return alerts, wrap("list alerts", rows.Err())
}

// prefixColumns qualifies a comma-separated column list with a table alias.
func prefixColumns(alias, columns string) string {
	parts := strings.Split(columns, ",")
	for i, p := range parts {
		parts[i] = alias + "." + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}

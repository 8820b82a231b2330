package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"campus-portal/app/models"
	"campus-portal/app/services/proctoring"
)

const eventColumns = `id, session_id, event_type, severity, description, details, snapshot_url,
	video_url, audio_url, ai_confidence, ai_model_version, flagged_for_review, flagged_by,
	flag_reason, flagged_at, created_at`

func scanEvent(row rowScanner) (*models.ProctoringEvent, error) {
	var e models.ProctoringEvent
	var details []byte
	err := row.Scan(
		&e.ID, &e.SessionID, &e.EventType, &e.Severity, &e.Description, &details, &e.SnapshotURL,
		&e.VideoURL, &e.AudioURL, &e.AIConfidence, &e.AIModelVersion, &e.FlaggedForReview, &e.FlaggedBy,
		&e.FlagReason, &e.FlaggedAt, &e.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if e.Details, err = unmarshalJSONB(details); err != nil {
		return nil, err
	}
	return &e, nil
}

// severityColumn names the per-severity counter column. Info has none.
func severityColumn(sev models.Severity) string {
	switch sev {
	case models.SeverityCritical:
		return "critical_violations_count"
	case models.SeverityHigh:
		return "high_violations_count"
	case models.SeverityMedium:
		return "medium_violations_count"
	case models.SeverityLow:
		return "low_violations_count"
	}
	return ""
}

// AppendEvent inserts the event, bumps the session counters and inserts the
// alert in one transaction, holding the session row lock throughout.
func (s *ProctoringStore) AppendEvent(ctx context.Context, ev *models.ProctoringEvent, alert *models.ProctoringAlert) (*models.ProctoringSession, error) {
	details, err := marshalJSONB(ev.Details)
	if err != nil {
		return nil, fmt.Errorf("%w: details: %v", proctoring.ErrValidation, err)
	}

	var out *models.ProctoringSession
	err = s.inTx(ctx, "append event", func(tx *sql.Tx) error {
		sess, err := lockSession(ctx, tx, ev.SessionID)
		if err != nil {
			return err
		}

		var exists bool
		if err := tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM proctoring_events WHERE id = $1)`, ev.ID).Scan(&exists); err != nil {
			return wrap("append event", err)
		}
		if exists {
			out = sess
			return nil
		}
		if sess.Status.IsTerminal() {
			return fmt.Errorf("%w: session %s is %s", proctoring.ErrSessionClosed, sess.ID, sess.Status)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO proctoring_events (`+eventColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		`,
			ev.ID, ev.SessionID, ev.EventType, ev.Severity, ev.Description, details, ev.SnapshotURL,
			ev.VideoURL, ev.AudioURL, ev.AIConfidence, ev.AIModelVersion, ev.FlaggedForReview, ev.FlaggedBy,
			ev.FlagReason, ev.FlaggedAt, ev.CreatedAt,
		)
		if err != nil {
			return wrap("insert event", err)
		}

		set := []string{"total_violations_count = total_violations_count + 1", "updated_at = GREATEST(updated_at, $2)"}
		if col := severityColumn(ev.Severity); col != "" {
			set = append(set, fmt.Sprintf("%s = %s + 1", col, col))
		}
		query := `UPDATE proctoring_sessions SET ` + strings.Join(set, ", ") + ` WHERE id = $1 RETURNING ` + sessionColumns
		out, err = scanSession(tx.QueryRowContext(ctx, query, ev.SessionID, ev.CreatedAt))
		if err != nil {
			return wrap("count event", err)
		}

		if alert != nil {
			if err := insertAlert(ctx, tx, alert); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *ProctoringStore) GetEvent(ctx context.Context, id string) (*models.ProctoringEvent, error) {
	query := `SELECT ` + eventColumns + ` FROM proctoring_events WHERE id = $1`
	ev, err := scanEvent(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, lookupErr("get event", "event", id, err)
	}
	return ev, nil
}

func (s *ProctoringStore) FlagEvent(ctx context.Context, id, flaggedBy, reason string, at time.Time) (*models.ProctoringEvent, error) {
	query := `
		UPDATE proctoring_events
		SET flagged_for_review = true, flagged_by = $2, flag_reason = $3, flagged_at = $4
		WHERE id = $1
		RETURNING ` + eventColumns
	ev, err := scanEvent(s.db.QueryRowContext(ctx, query, id, flaggedBy, reason, at))
	if err != nil {
		return nil, lookupErr("flag event", "event", id, err)
	}
	return ev, nil
}

// ListEvents returns a session's events newest first.
func (s *ProctoringStore) ListEvents(ctx context.Context, f proctoring.EventFilter) ([]*models.ProctoringEvent, error) {
	conditions := []string{"session_id = $1"}
	args := []any{f.SessionID}
	argIndex := 2

	if f.Severity != "" {
		conditions = append(conditions, fmt.Sprintf("severity = $%d", argIndex))
		args = append(args, f.Severity)
		argIndex++
	}
	if f.EventType != "" {
		conditions = append(conditions, fmt.Sprintf("event_type = $%d", argIndex))
		args = append(args, f.EventType)
		argIndex++
	}

	query := `SELECT ` + eventColumns + ` FROM proctoring_events WHERE ` + strings.Join(conditions, " AND ") +
		` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIndex)
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrap("list events", err)
	}
	defer rows.Close()

	var events []*models.ProctoringEvent
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, wrap("list events", err)
		}
		events = append(events, ev)
	}
	return events, wrap("list events", rows.Err())
}

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"campus-portal/app/models"
	"campus-portal/app/services/proctoring"
)

const sessionColumns = `id, student_id, exam_id, quiz_id, college_id, settings_id, status,
	consent_given, consent_at, identity_verified, identity_verified_at, device_info,
	started_at, ended_at, duration_seconds, total_violations_count, critical_violations_count,
	high_violations_count, medium_violations_count, low_violations_count, ingest_token_hash,
	created_at, updated_at`

func scanSession(row rowScanner) (*models.ProctoringSession, error) {
	var s models.ProctoringSession
	var device []byte
	err := row.Scan(
		&s.ID, &s.StudentID, &s.ExamID, &s.QuizID, &s.CollegeID, &s.SettingsID, &s.Status,
		&s.ConsentGiven, &s.ConsentAt, &s.IdentityVerified, &s.IdentityVerifiedAt, &device,
		&s.StartedAt, &s.EndedAt, &s.DurationSeconds, &s.TotalCount, &s.CriticalCount,
		&s.HighCount, &s.MediumCount, &s.LowCount, &s.IngestTokenHash,
		&s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if s.DeviceInfo, err = unmarshalJSONB(device); err != nil {
		return nil, err
	}
	return &s, nil
}

func (s *ProctoringStore) CreateSession(ctx context.Context, sess *models.ProctoringSession) error {
	device, err := marshalJSONB(sess.DeviceInfo)
	if err != nil {
		return fmt.Errorf("%w: device info: %v", proctoring.ErrValidation, err)
	}
	query := `
		INSERT INTO proctoring_sessions (` + sessionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23)
	`
	_, err = s.db.ExecContext(ctx, query,
		sess.ID, sess.StudentID, sess.ExamID, sess.QuizID, sess.CollegeID, sess.SettingsID, sess.Status,
		sess.ConsentGiven, sess.ConsentAt, sess.IdentityVerified, sess.IdentityVerifiedAt, device,
		sess.StartedAt, sess.EndedAt, sess.DurationSeconds, sess.TotalCount, sess.CriticalCount,
		sess.HighCount, sess.MediumCount, sess.LowCount, sess.IngestTokenHash,
		sess.CreatedAt, sess.UpdatedAt,
	)
	return wrap("create session", err)
}

func (s *ProctoringStore) GetSession(ctx context.Context, id string) (*models.ProctoringSession, error) {
	query := `SELECT ` + sessionColumns + ` FROM proctoring_sessions WHERE id = $1`
	sess, err := scanSession(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, lookupErr("get session", "session", id, err)
	}
	return sess, nil
}

// UpdateSession writes lifecycle fields guarded by the expected status.
// Counters are owned by AppendEvent and never written here.
func (s *ProctoringStore) UpdateSession(ctx context.Context, sess *models.ProctoringSession, from models.SessionStatus) error {
	query := `
		UPDATE proctoring_sessions
		SET status = $3, consent_given = $4, consent_at = $5, identity_verified = $6,
			identity_verified_at = $7, started_at = $8, ended_at = $9, duration_seconds = $10,
			updated_at = $11
		WHERE id = $1 AND status = $2
	`
	res, err := s.db.ExecContext(ctx, query,
		sess.ID, from, sess.Status, sess.ConsentGiven, sess.ConsentAt, sess.IdentityVerified,
		sess.IdentityVerifiedAt, sess.StartedAt, sess.EndedAt, sess.DurationSeconds, sess.UpdatedAt,
	)
	if err != nil {
		return wrap("update session", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return wrap("update session", err)
	}
	if n == 1 {
		return nil
	}

	var current models.SessionStatus
	err = s.db.QueryRowContext(ctx, `SELECT status FROM proctoring_sessions WHERE id = $1`, sess.ID).Scan(&current)
	if err != nil {
		return lookupErr("update session", "session", sess.ID, err)
	}
	return fmt.Errorf("%w: session %s is %s, expected %s", proctoring.ErrInvalidTransition, sess.ID, current, from)
}

func (s *ProctoringStore) querySessions(ctx context.Context, op, where string, args ...any) ([]*models.ProctoringSession, error) {
	query := `SELECT ` + sessionColumns + ` FROM proctoring_sessions WHERE ` + where + ` ORDER BY created_at DESC, id DESC`
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrap(op, err)
	}
	defer rows.Close()

	var sessions []*models.ProctoringSession
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, wrap(op, err)
		}
		sessions = append(sessions, sess)
	}
	return sessions, wrap(op, rows.Err())
}

func (s *ProctoringStore) ListSessionsByStudent(ctx context.Context, studentID string) ([]*models.ProctoringSession, error) {
	return s.querySessions(ctx, "list sessions by student", `student_id = $1`, studentID)
}

func (s *ProctoringStore) ListActiveSessionsByExam(ctx context.Context, examID string) ([]*models.ProctoringSession, error) {
	return s.querySessions(ctx, "list active sessions", `exam_id = $1 AND status IN ('active', 'paused')`, examID)
}

func (s *ProctoringStore) ListIdleSessions(ctx context.Context, before time.Time) ([]*models.ProctoringSession, error) {
	return s.querySessions(ctx, "list idle sessions",
		`status IN ('pending', 'active', 'paused') AND updated_at < $1`, before)
}

func (s *ProctoringStore) SessionOwnedBy(ctx context.Context, sessionID, instructorID string) (bool, error) {
	if instructorID == "" {
		return false, nil
	}
	query := `
		SELECT EXISTS (
			SELECT 1 FROM proctoring_sessions s
			LEFT JOIN exams e ON e.id = s.exam_id
			LEFT JOIN quizzes q ON q.id = s.quiz_id
			WHERE s.id = $1 AND (e.created_by = $2 OR q.created_by = $2)
		)`
	var owned bool
	if err := s.db.QueryRowContext(ctx, query, sessionID, instructorID).Scan(&owned); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "22P02" {
			return false, nil
		}
		return false, wrap("session owner", err)
	}
	return owned, nil
}

// lockSession loads a session row for update inside tx.
func lockSession(ctx context.Context, tx *sql.Tx, id string) (*models.ProctoringSession, error) {
	query := `SELECT ` + sessionColumns + ` FROM proctoring_sessions WHERE id = $1 FOR UPDATE`
	sess, err := scanSession(tx.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, lookupErr("lock session", "session", id, err)
	}
	return sess, nil
}

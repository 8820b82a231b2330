package database

import (
	"context"

	"github.com/lib/pq"

	"campus-portal/app/models"
)

const violationColumns = `id, session_id, event_id, violation_type, severity, title, description,
	evidence_urls, reviewed, reviewed_by, reviewed_at, review_notes, action_taken,
	is_false_positive, created_at`

func scanViolation(row rowScanner) (*models.ProctoringViolation, error) {
	var v models.ProctoringViolation
	err := row.Scan(
		&v.ID, &v.SessionID, &v.EventID, &v.ViolationType, &v.Severity, &v.Title, &v.Description,
		pq.Array(&v.EvidenceURLs), &v.Reviewed, &v.ReviewedBy, &v.ReviewedAt, &v.ReviewNotes, &v.ActionTaken,
		&v.IsFalsePositive, &v.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if v.EvidenceURLs == nil {
		v.EvidenceURLs = []string{}
	}
	return &v, nil
}

func (s *ProctoringStore) CreateViolation(ctx context.Context, v *models.ProctoringViolation) error {
	evidence := v.EvidenceURLs
	if evidence == nil {
		evidence = []string{}
	}
	query := `
		INSERT INTO proctoring_violations (` + violationColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`
	_, err := s.db.ExecContext(ctx, query,
		v.ID, v.SessionID, v.EventID, v.ViolationType, v.Severity, v.Title, v.Description,
		pq.Array(evidence), v.Reviewed, v.ReviewedBy, v.ReviewedAt, v.ReviewNotes, v.ActionTaken,
		v.IsFalsePositive, v.CreatedAt,
	)
	return wrap("create violation", err)
}

func (s *ProctoringStore) GetViolation(ctx context.Context, id string) (*models.ProctoringViolation, error) {
	query := `SELECT ` + violationColumns + ` FROM proctoring_violations WHERE id = $1`
	v, err := scanViolation(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, lookupErr("get violation", "violation", id, err)
	}
	return v, nil
}

func (s *ProctoringStore) UpdateViolationReview(ctx context.Context, v *models.ProctoringViolation) error {
	query := `
		UPDATE proctoring_violations
		SET reviewed = $2, reviewed_by = $3, reviewed_at = $4, review_notes = $5,
			action_taken = $6, is_false_positive = $7
		WHERE id = $1
	`
	res, err := s.db.ExecContext(ctx, query,
		v.ID, v.Reviewed, v.ReviewedBy, v.ReviewedAt, v.ReviewNotes, v.ActionTaken, v.IsFalsePositive,
	)
	if err != nil {
		return wrap("review violation", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return wrap("review violation", err)
	} else if n == 0 {
		return notFound("violation", v.ID)
	}
	return nil
}

func (s *ProctoringStore) ListViolations(ctx context.Context, sessionID string) ([]*models.ProctoringViolation, error) {
	query := `SELECT ` + violationColumns + ` FROM proctoring_violations WHERE session_id = $1 ORDER BY created_at DESC, id DESC`
	rows, err := s.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, wrap("list violations", err)
	}
	defer rows.Close()

	var violations []*models.ProctoringViolation
	for rows.Next() {
		v, err := scanViolation(rows)
		if err != nil {
			return nil, wrap("list violations", err)
		}
		violations = append(violations, v)
	}
	return violations, wrap("list violations", rows.Err())
}

package database

import (
	"context"

	"campus-portal/app/models"
)

func (s *ProctoringStore) CreateIntervention(ctx context.Context, i *models.ProctoringIntervention) error {
	query := `
		INSERT INTO proctoring_interventions (id, session_id, alert_id, intervened_by, intervention_type, message, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := s.db.ExecContext(ctx, query,
		i.ID, i.SessionID, i.AlertID, i.IntervenedBy, i.InterventionType, i.Message, i.CreatedAt,
	)
	return wrap("create intervention", err)
}

func (s *ProctoringStore) ListInterventions(ctx context.Context, sessionID string) ([]*models.ProctoringIntervention, error) {
	query := `
		SELECT id, session_id, alert_id, intervened_by, intervention_type, message, created_at
		FROM proctoring_interventions
		WHERE session_id = $1
		ORDER BY created_at DESC, id DESC
	`
	rows, err := s.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, wrap("list interventions", err)
	}
	defer rows.Close()

	var interventions []*models.ProctoringIntervention
	for rows.Next() {
		var i models.ProctoringIntervention
		if err := rows.Scan(&i.ID, &i.SessionID, &i.AlertID, &i.IntervenedBy, &i.InterventionType, &i.Message, &i.CreatedAt); err != nil {
			return nil, wrap("list interventions", err)
		}
		interventions = append(interventions, &i)
	}
	return interventions, wrap("list interventions", rows.Err())
}

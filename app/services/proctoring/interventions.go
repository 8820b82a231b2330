package proctoring

import (
	"context"
	"fmt"
	"strings"

	"campus-portal/app/models"

	"github.com/google/uuid"
)

// SendInterventionInput is a reviewer action against a live session.
type SendInterventionInput struct {
	SessionID    string                  `json:"session_id"`
	IntervenedBy string                  `json:"intervened_by"`
	Type         models.InterventionType `json:"intervention_type"`
	AlertID      *string                 `json:"alert_id,omitempty"`
	Message      string                  `json:"message,omitempty"`
}

// SendIntervention logs the intervention and then applies its state change:
// pause_exam pauses the session, terminate_exam ends it as terminated.
// Warnings and messages only reach the student client through fan-out.
func (s *Service) SendIntervention(ctx context.Context, in SendInterventionInput) (*models.ProctoringIntervention, error) {
	switch {
	case strings.TrimSpace(in.SessionID) == "":
		return nil, validationf("session_id is required")
	case strings.TrimSpace(in.IntervenedBy) == "":
		return nil, validationf("intervened_by is required")
	case !in.Type.Valid():
		return nil, validationf("unknown intervention type %q", in.Type)
	}

	unlock := s.locks.lock(in.SessionID)
	defer unlock()

	sess, err := s.loadSession(ctx, in.SessionID)
	if err != nil {
		return nil, err
	}
	if sess.Status.IsTerminal() {
		return nil, fmt.Errorf("%w: session already %s", ErrSessionClosed, sess.Status)
	}
	alertID := optionalID(in.AlertID)
	if alertID != nil {
		a, err := retryValue(ctx, s.retry, "load alert", func(ctx context.Context) (*models.ProctoringAlert, error) {
			return s.store.GetAlert(ctx, *alertID)
		})
		if err != nil {
			return nil, err
		}
		if a.SessionID != sess.ID {
			return nil, validationf("alert %s does not belong to session %s", a.ID, sess.ID)
		}
	}

	iv := &models.ProctoringIntervention{
		ID:               uuid.NewString(),
		SessionID:        sess.ID,
		AlertID:          alertID,
		IntervenedBy:     in.IntervenedBy,
		InterventionType: in.Type,
		Message:          in.Message,
		CreatedAt:        s.clock(),
	}
	if err := retry(ctx, s.retry, "log intervention", func(ctx context.Context) error {
		return s.store.CreateIntervention(ctx, iv)
	}); err != nil {
		return nil, err
	}
	s.log.Info("proctoring intervention sent", "session_id", sess.ID, "intervention_id", iv.ID,
		"type", iv.InterventionType, "by", iv.IntervenedBy)
	s.publishSession(sess.ID, "intervention", iv)

	if _, err := s.applyInterventionLocked(ctx, sess, in.Type); err != nil {
		return iv, fmt.Errorf("apply %s: %w", in.Type, err)
	}
	return iv, nil
}

// ListInterventions returns a session's interventions, newest first.
func (s *Service) ListInterventions(ctx context.Context, sessionID string) ([]*models.ProctoringIntervention, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, validationf("session id is required")
	}
	if _, err := s.loadSession(ctx, sessionID); err != nil {
		return nil, err
	}
	return retryValue(ctx, s.retry, "list interventions", func(ctx context.Context) ([]*models.ProctoringIntervention, error) {
		return s.store.ListInterventions(ctx, sessionID)
	})
}

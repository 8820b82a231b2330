package proctoring

import (
	"context"
	"strings"

	"campus-portal/app/models"

	"github.com/google/uuid"
)

// CreateViolationInput promotes an observation into a formal violation.
type CreateViolationInput struct {
	SessionID     string          `json:"session_id"`
	EventID       *string         `json:"event_id,omitempty"`
	ViolationType string          `json:"violation_type"`
	Severity      models.Severity `json:"severity"`
	Title         string          `json:"title"`
	Description   string          `json:"description,omitempty"`
	EvidenceURLs  []string        `json:"evidence_urls,omitempty"`
}

// ReviewInput is a reviewer's verdict on a violation.
type ReviewInput struct {
	ReviewerID      string `json:"reviewer_id"`
	Notes           string `json:"notes,omitempty"`
	ActionTaken     string `json:"action_taken,omitempty"`
	IsFalsePositive bool   `json:"is_false_positive"`
}

// CreateViolation records a violation for a session. Violations may be filed
// after the session has ended.
func (s *Service) CreateViolation(ctx context.Context, in CreateViolationInput) (*models.ProctoringViolation, error) {
	in.Severity = models.Severity(strings.ToLower(strings.TrimSpace(string(in.Severity))))
	switch {
	case strings.TrimSpace(in.SessionID) == "":
		return nil, validationf("session_id is required")
	case strings.TrimSpace(in.ViolationType) == "":
		return nil, validationf("violation_type is required")
	case strings.TrimSpace(in.Title) == "":
		return nil, validationf("title is required")
	case !in.Severity.Valid():
		return nil, validationf("unknown severity %q", in.Severity)
	}

	unlock := s.locks.lock(in.SessionID)
	defer unlock()

	if _, err := s.loadSession(ctx, in.SessionID); err != nil {
		return nil, err
	}
	eventID := optionalID(in.EventID)
	if eventID != nil {
		ev, err := retryValue(ctx, s.retry, "load event", func(ctx context.Context) (*models.ProctoringEvent, error) {
			return s.store.GetEvent(ctx, *eventID)
		})
		if err != nil {
			return nil, err
		}
		if ev.SessionID != in.SessionID {
			return nil, validationf("event %s does not belong to session %s", ev.ID, in.SessionID)
		}
	}

	evidence := make([]string, 0, len(in.EvidenceURLs))
	for _, u := range in.EvidenceURLs {
		if u = strings.TrimSpace(u); u != "" {
			evidence = append(evidence, u)
		}
	}
	v := &models.ProctoringViolation{
		ID:            uuid.NewString(),
		SessionID:     in.SessionID,
		EventID:       eventID,
		ViolationType: strings.TrimSpace(in.ViolationType),
		Severity:      in.Severity,
		Title:         strings.TrimSpace(in.Title),
		Description:   in.Description,
		EvidenceURLs:  evidence,
		CreatedAt:     s.clock(),
	}
	if err := retry(ctx, s.retry, "create violation", func(ctx context.Context) error {
		return s.store.CreateViolation(ctx, v)
	}); err != nil {
		return nil, err
	}
	s.log.Info("proctoring violation recorded", "session_id", v.SessionID, "violation_id", v.ID, "type", v.ViolationType)
	s.publishSession(v.SessionID, "violation", v)
	return v, nil
}

// ReviewViolation records a review. Reviewing again overwrites the previous
// verdict so investigations can be reopened.
func (s *Service) ReviewViolation(ctx context.Context, violationID string, in ReviewInput) (*models.ProctoringViolation, error) {
	switch {
	case strings.TrimSpace(violationID) == "":
		return nil, validationf("violation id is required")
	case strings.TrimSpace(in.ReviewerID) == "":
		return nil, validationf("reviewer_id is required")
	}
	get := func(ctx context.Context) (*models.ProctoringViolation, error) {
		return s.store.GetViolation(ctx, violationID)
	}
	v, err := retryValue(ctx, s.retry, "load violation", get)
	if err != nil {
		return nil, err
	}
	unlock := s.locks.lock(v.SessionID)
	defer unlock()

	if v, err = retryValue(ctx, s.retry, "load violation", get); err != nil {
		return nil, err
	}
	now := s.clock()
	v.Reviewed = true
	v.ReviewedBy = in.ReviewerID
	v.ReviewedAt = &now
	v.ReviewNotes = in.Notes
	v.ActionTaken = in.ActionTaken
	v.IsFalsePositive = in.IsFalsePositive
	if err := retry(ctx, s.retry, "review violation", func(ctx context.Context) error {
		return s.store.UpdateViolationReview(ctx, v)
	}); err != nil {
		return nil, err
	}
	s.log.Info("proctoring violation reviewed", "violation_id", v.ID, "reviewer", in.ReviewerID,
		"false_positive", in.IsFalsePositive)
	return v, nil
}

// ListViolations returns a session's violations, newest first.
func (s *Service) ListViolations(ctx context.Context, sessionID string) ([]*models.ProctoringViolation, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, validationf("session id is required")
	}
	if _, err := s.loadSession(ctx, sessionID); err != nil {
		return nil, err
	}
	return retryValue(ctx, s.retry, "list violations", func(ctx context.Context) ([]*models.ProctoringViolation, error) {
		return s.store.ListViolations(ctx, sessionID)
	})
}

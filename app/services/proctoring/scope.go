package proctoring

import (
	"context"
	"strings"

	"campus-portal/app/models"
)

// ReviewerScope limits what a reviewer may read or act on. Instructors see
// sessions of the exams and quizzes they created; AllScopes lifts that.
type ReviewerScope struct {
	InstructorID string
	AllScopes    bool
}

// AuthorizeReviewer returns the session when it lies within scope. Sessions
// outside scope fail with ErrNotFound so their existence is not disclosed.
func (s *Service) AuthorizeReviewer(ctx context.Context, sessionID string, scope ReviewerScope) (*models.ProctoringSession, error) {
	sess, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	ok, err := s.inScope(ctx, sessionID, scope)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, notFoundf("session %s", sessionID)
	}
	return sess, nil
}

// FilterSessions drops the sessions outside scope, keeping order.
func (s *Service) FilterSessions(ctx context.Context, sessions []*models.ProctoringSession, scope ReviewerScope) ([]*models.ProctoringSession, error) {
	if scope.AllScopes {
		return sessions, nil
	}
	out := make([]*models.ProctoringSession, 0, len(sessions))
	for _, sess := range sessions {
		ok, err := s.inScope(ctx, sess.ID, scope)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, sess)
		}
	}
	return out, nil
}

func (s *Service) inScope(ctx context.Context, sessionID string, scope ReviewerScope) (bool, error) {
	if scope.AllScopes {
		return true, nil
	}
	if strings.TrimSpace(scope.InstructorID) == "" {
		return false, nil
	}
	return retryValue(ctx, s.retry, "check session owner", func(ctx context.Context) (bool, error) {
		return s.store.SessionOwnedBy(ctx, sessionID, scope.InstructorID)
	})
}

// GetEvent returns one event.
func (s *Service) GetEvent(ctx context.Context, id string) (*models.ProctoringEvent, error) {
	if strings.TrimSpace(id) == "" {
		return nil, validationf("event id is required")
	}
	return retryValue(ctx, s.retry, "load event", func(ctx context.Context) (*models.ProctoringEvent, error) {
		return s.store.GetEvent(ctx, id)
	})
}

// GetAlert returns one alert.
func (s *Service) GetAlert(ctx context.Context, id string) (*models.ProctoringAlert, error) {
	if strings.TrimSpace(id) == "" {
		return nil, validationf("alert id is required")
	}
	return retryValue(ctx, s.retry, "load alert", func(ctx context.Context) (*models.ProctoringAlert, error) {
		return s.store.GetAlert(ctx, id)
	})
}

// GetViolation returns one violation.
func (s *Service) GetViolation(ctx context.Context, id string) (*models.ProctoringViolation, error) {
	if strings.TrimSpace(id) == "" {
		return nil, validationf("violation id is required")
	}
	return retryValue(ctx, s.retry, "load violation", func(ctx context.Context) (*models.ProctoringViolation, error) {
		return s.store.GetViolation(ctx, id)
	})
}

package proctoring

import (
	"context"
	"time"

	"campus-portal/app/models"
)

// Store persists proctoring records. Implementations return ErrNotFound for
// unknown ids and wrap retryable backend failures with ErrTransientStorage.
type Store interface {
	CreateSession(ctx context.Context, s *models.ProctoringSession) error
	GetSession(ctx context.Context, id string) (*models.ProctoringSession, error)
	// UpdateSession writes lifecycle fields (never counters). It fails with
	// ErrInvalidTransition when the stored status is no longer from.
	UpdateSession(ctx context.Context, s *models.ProctoringSession, from models.SessionStatus) error
	ListSessionsByStudent(ctx context.Context, studentID string) ([]*models.ProctoringSession, error)
	ListActiveSessionsByExam(ctx context.Context, examID string) ([]*models.ProctoringSession, error)
	// ListIdleSessions returns non-terminal sessions not updated since before.
	ListIdleSessions(ctx context.Context, before time.Time) ([]*models.ProctoringSession, error)
	// SessionOwnedBy reports whether the instructor created the session's
	// exam or quiz. Unknown sessions report false.
	SessionOwnedBy(ctx context.Context, sessionID, instructorID string) (bool, error)

	// AppendEvent records ev, bumps the owning session's counters and stores
	// alert (when non-nil) as one unit. It rejects terminal sessions with
	// ErrSessionClosed. Appending an event id that already exists is a no-op.
	AppendEvent(ctx context.Context, ev *models.ProctoringEvent, alert *models.ProctoringAlert) (*models.ProctoringSession, error)
	GetEvent(ctx context.Context, id string) (*models.ProctoringEvent, error)
	FlagEvent(ctx context.Context, id, flaggedBy, reason string, at time.Time) (*models.ProctoringEvent, error)
	ListEvents(ctx context.Context, f EventFilter) ([]*models.ProctoringEvent, error)

	CreateViolation(ctx context.Context, v *models.ProctoringViolation) error
	GetViolation(ctx context.Context, id string) (*models.ProctoringViolation, error)
	UpdateViolationReview(ctx context.Context, v *models.ProctoringViolation) error
	ListViolations(ctx context.Context, sessionID string) ([]*models.ProctoringViolation, error)

	GetAlert(ctx context.Context, id string) (*models.ProctoringAlert, error)
	// UpdateAlert fails with ErrInvalidTransition when the stored status is no longer from.
	UpdateAlert(ctx context.Context, a *models.ProctoringAlert, from models.AlertStatus) error
	ListAlerts(ctx context.Context, f AlertFilter) ([]*models.ProctoringAlert, error)

	CreateIntervention(ctx context.Context, i *models.ProctoringIntervention) error
	ListInterventions(ctx context.Context, sessionID string) ([]*models.ProctoringIntervention, error)
}

// SettingsSource reads exam proctoring settings owned by exam configuration.
type SettingsSource interface {
	GetSettings(ctx context.Context, id string) (*models.ProctoringSettings, error)
	// FindSettings returns nil, nil when the exam or quiz has no settings.
	FindSettings(ctx context.Context, examID, quizID *string) (*models.ProctoringSettings, error)
}

// EventFilter narrows an event listing. Results are newest first.
type EventFilter struct {
	SessionID string
	Severity  models.Severity
	EventType models.EventType
	Limit     int
}

// AlertFilter narrows an alert listing. Results are newest first.
type AlertFilter struct {
	// InstructorID restricts to sessions for exams or quizzes the instructor owns.
	InstructorID string
	SessionID    string
	Statuses     []models.AlertStatus
	Limit        int
	// AllScopes lifts the instructor restriction (administrators).
	AllScopes bool
}

// Publisher pushes live updates to subscribed monitoring views.
type Publisher interface {
	PublishSession(sessionID, kind string, data any)
	PublishAlert(alert *models.ProctoringAlert)
}

// AlertNotifier hands new alerts to the reviewer notification system.
type AlertNotifier interface {
	NotifyAlert(ctx context.Context, alert *models.ProctoringAlert)
}

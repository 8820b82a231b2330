package proctoring

import (
	"context"
	"fmt"
	"strings"
	"time"

	"campus-portal/app/models"

	"github.com/google/uuid"
)

// sessionTransitions lists every lifecycle move the state machine accepts.
// Ending is allowed from any non-terminal state.
var sessionTransitions = map[models.SessionStatus]map[models.SessionStatus]struct{}{
	models.SessionPending: {
		models.SessionActive:     {},
		models.SessionPaused:     {},
		models.SessionCompleted:  {},
		models.SessionTerminated: {},
		models.SessionFailed:     {},
	},
	models.SessionActive: {
		models.SessionPaused:     {},
		models.SessionCompleted:  {},
		models.SessionTerminated: {},
		models.SessionFailed:     {},
	},
	models.SessionPaused: {
		models.SessionActive:     {},
		models.SessionCompleted:  {},
		models.SessionTerminated: {},
		models.SessionFailed:     {},
	},
	models.SessionCompleted:  {},
	models.SessionTerminated: {},
	models.SessionFailed:     {},
}

// ValidateSessionTransition reports whether from -> to is a legal move.
func ValidateSessionTransition(from, to models.SessionStatus) error {
	next, ok := sessionTransitions[from]
	if !ok {
		return fmt.Errorf("%w: unknown session status %q", ErrInvalidTransition, from)
	}
	if _, ok := next[to]; !ok {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return nil
}

// CreateSessionInput is the proctoring start request.
type CreateSessionInput struct {
	StudentID  string         `json:"student_id"`
	ExamID     *string        `json:"exam_id,omitempty"`
	QuizID     *string        `json:"quiz_id,omitempty"`
	CollegeID  string         `json:"college_id"`
	SettingsID *string        `json:"settings_id,omitempty"`
	DeviceInfo map[string]any `json:"device_info,omitempty"`
}

func optionalID(p *string) *string {
	if p == nil {
		return nil
	}
	v := strings.TrimSpace(*p)
	if v == "" {
		return nil
	}
	return &v
}

// CreateSession registers a pending session and returns it together with the
// detector ingest token. The token is only ever returned here.
func (s *Service) CreateSession(ctx context.Context, in CreateSessionInput) (*models.ProctoringSession, string, error) {
	studentID := strings.TrimSpace(in.StudentID)
	collegeID := strings.TrimSpace(in.CollegeID)
	examID, quizID := optionalID(in.ExamID), optionalID(in.QuizID)
	switch {
	case studentID == "":
		return nil, "", validationf("student_id is required")
	case collegeID == "":
		return nil, "", validationf("college_id is required")
	case examID == nil && quizID == nil:
		return nil, "", validationf("exam_id or quiz_id is required")
	}

	settingsID, err := s.resolveSettings(ctx, optionalID(in.SettingsID), examID, quizID)
	if err != nil {
		return nil, "", err
	}

	token, hash, err := newIngestToken()
	if err != nil {
		return nil, "", fmt.Errorf("issue ingest token: %w", err)
	}

	now := s.clock()
	sess := &models.ProctoringSession{
		ID:              uuid.NewString(),
		StudentID:       studentID,
		ExamID:          examID,
		QuizID:          quizID,
		CollegeID:       collegeID,
		SettingsID:      settingsID,
		Status:          models.SessionPending,
		DeviceInfo:      in.DeviceInfo,
		IngestTokenHash: hash,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := retry(ctx, s.retry, "create session", func(ctx context.Context) error {
		return s.store.CreateSession(ctx, sess)
	}); err != nil {
		return nil, "", err
	}
	s.log.Info("proctoring session created", "session_id", sess.ID, "student_id", studentID)
	return sess, token, nil
}

func (s *Service) resolveSettings(ctx context.Context, settingsID, examID, quizID *string) (*string, error) {
	if s.settings == nil {
		return settingsID, nil
	}
	if settingsID != nil {
		st, err := s.settings.GetSettings(ctx, *settingsID)
		if err != nil {
			return nil, err
		}
		return &st.ID, nil
	}
	st, err := s.settings.FindSettings(ctx, examID, quizID)
	if err != nil {
		// Missing settings never block a session start.
		s.log.Warn("settings lookup failed", "error", err)
		return nil, nil
	}
	if st == nil {
		return nil, nil
	}
	return &st.ID, nil
}

// GetSession returns the session with the given id.
func (s *Service) GetSession(ctx context.Context, id string) (*models.ProctoringSession, error) {
	if strings.TrimSpace(id) == "" {
		return nil, validationf("session id is required")
	}
	return s.loadSession(ctx, id)
}

// GetSessionSummary returns the session with its open alert and unreviewed
// violation counts.
func (s *Service) GetSessionSummary(ctx context.Context, id string) (*models.SessionSummary, error) {
	sess, err := s.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	alerts, err := s.store.ListAlerts(ctx, AlertFilter{
		SessionID: id,
		Statuses:  []models.AlertStatus{models.AlertPending, models.AlertAcknowledged},
		AllScopes: true,
	})
	if err != nil {
		return nil, err
	}
	violations, err := s.store.ListViolations(ctx, id)
	if err != nil {
		return nil, err
	}
	unreviewed := 0
	for _, v := range violations {
		if !v.Reviewed {
			unreviewed++
		}
	}
	return &models.SessionSummary{Session: sess, OpenAlerts: len(alerts), UnreviewedViolations: unreviewed}, nil
}

// ListSessionsByStudent returns every session of one student, newest first.
func (s *Service) ListSessionsByStudent(ctx context.Context, studentID string) ([]*models.ProctoringSession, error) {
	if strings.TrimSpace(studentID) == "" {
		return nil, validationf("student_id is required")
	}
	return retryValue(ctx, s.retry, "list sessions", func(ctx context.Context) ([]*models.ProctoringSession, error) {
		return s.store.ListSessionsByStudent(ctx, studentID)
	})
}

// ListActiveSessionsByExam returns the active and paused sessions of one exam.
func (s *Service) ListActiveSessionsByExam(ctx context.Context, examID string) ([]*models.ProctoringSession, error) {
	if strings.TrimSpace(examID) == "" {
		return nil, validationf("exam_id is required")
	}
	return retryValue(ctx, s.retry, "list active sessions", func(ctx context.Context) ([]*models.ProctoringSession, error) {
		return s.store.ListActiveSessionsByExam(ctx, examID)
	})
}

// StartSession moves a pending session to active and stamps started_at.
func (s *Service) StartSession(ctx context.Context, id string) (*models.ProctoringSession, error) {
	return s.mutateSession(ctx, id, func(sess *models.ProctoringSession, now time.Time) error {
		if sess.Status != models.SessionPending {
			return fmt.Errorf("%w: cannot start a %s session", ErrInvalidTransition, sess.Status)
		}
		sess.Status = models.SessionActive
		sess.StartedAt = &now
		return nil
	})
}

// ResumeSession moves a paused session back to active. A session paused
// before it was started is stamped as started on resume.
func (s *Service) ResumeSession(ctx context.Context, id string) (*models.ProctoringSession, error) {
	return s.mutateSession(ctx, id, func(sess *models.ProctoringSession, now time.Time) error {
		if sess.Status != models.SessionPaused {
			return fmt.Errorf("%w: cannot resume a %s session", ErrInvalidTransition, sess.Status)
		}
		sess.Status = models.SessionActive
		if sess.StartedAt == nil {
			sess.StartedAt = &now
		}
		return nil
	})
}

// RecordConsent stores the student's monitoring consent decision.
func (s *Service) RecordConsent(ctx context.Context, id string, given bool) (*models.ProctoringSession, error) {
	return s.mutateSession(ctx, id, func(sess *models.ProctoringSession, now time.Time) error {
		if sess.Status.IsTerminal() {
			return fmt.Errorf("%w: session is %s", ErrSessionClosed, sess.Status)
		}
		sess.ConsentGiven = given
		sess.ConsentAt = &now
		return nil
	})
}

// VerifyIdentity stores the outcome of the pre-exam identity check.
func (s *Service) VerifyIdentity(ctx context.Context, id string, verified bool) (*models.ProctoringSession, error) {
	return s.mutateSession(ctx, id, func(sess *models.ProctoringSession, now time.Time) error {
		if sess.Status.IsTerminal() {
			return fmt.Errorf("%w: session is %s", ErrSessionClosed, sess.Status)
		}
		sess.IdentityVerified = verified
		if verified {
			sess.IdentityVerifiedAt = &now
		} else {
			sess.IdentityVerifiedAt = nil
		}
		return nil
	})
}

// EndSession moves a session into the terminal state reason. Ending a session
// that is already terminal returns it unchanged.
func (s *Service) EndSession(ctx context.Context, id string, reason models.SessionStatus) (*models.ProctoringSession, error) {
	if !reason.IsTerminal() {
		return nil, validationf("end reason must be completed, terminated or failed, got %q", reason)
	}
	if strings.TrimSpace(id) == "" {
		return nil, validationf("session id is required")
	}
	unlock := s.locks.lock(id)
	defer unlock()

	sess, err := s.loadSession(ctx, id)
	if err != nil {
		return nil, err
	}
	if sess.Status.IsTerminal() {
		return sess, nil
	}
	return s.endLocked(ctx, sess, reason)
}

// endLocked requires the session lock and a non-terminal sess.
func (s *Service) endLocked(ctx context.Context, sess *models.ProctoringSession, reason models.SessionStatus) (*models.ProctoringSession, error) {
	now := s.clock()
	from := sess.Status
	if err := ValidateSessionTransition(from, reason); err != nil {
		return nil, err
	}
	next := sess.Clone()
	next.Status = reason
	next.EndedAt = &now
	next.DurationSeconds = 0
	if sess.StartedAt != nil {
		if d := now.Sub(*sess.StartedAt); d > 0 {
			next.DurationSeconds = int64(d / time.Second)
		}
	}
	next.UpdatedAt = now
	if err := s.saveSession(ctx, next, from); err != nil {
		return nil, err
	}
	s.log.Info("proctoring session ended", "session_id", next.ID, "reason", reason,
		"duration_seconds", next.DurationSeconds, "total_events", next.TotalCount)
	s.publishSession(next.ID, "session", next)
	return next, nil
}

// mutateSession applies fn to the current session under its lock and saves
// the result.
func (s *Service) mutateSession(ctx context.Context, id string, fn func(*models.ProctoringSession, time.Time) error) (*models.ProctoringSession, error) {
	if strings.TrimSpace(id) == "" {
		return nil, validationf("session id is required")
	}
	unlock := s.locks.lock(id)
	defer unlock()

	sess, err := s.loadSession(ctx, id)
	if err != nil {
		return nil, err
	}
	now := s.clock()
	from := sess.Status
	next := sess.Clone()
	if err := fn(next, now); err != nil {
		return nil, err
	}
	if next.Status != from {
		if err := ValidateSessionTransition(from, next.Status); err != nil {
			return nil, err
		}
	}
	next.UpdatedAt = now
	if err := s.saveSession(ctx, next, from); err != nil {
		return nil, err
	}
	if next.Status != from {
		s.log.Info("proctoring session transition", "session_id", id, "from", from, "to", next.Status)
	}
	s.publishSession(id, "session", next)
	return next, nil
}

func (s *Service) saveSession(ctx context.Context, sess *models.ProctoringSession, from models.SessionStatus) error {
	return retry(ctx, s.retry, "update session", func(ctx context.Context) error {
		return s.store.UpdateSession(ctx, sess, from)
	})
}

// applyInterventionLocked performs the state change an intervention implies.
// The caller holds the session lock and has rejected terminal sessions.
func (s *Service) applyInterventionLocked(ctx context.Context, sess *models.ProctoringSession, t models.InterventionType) (*models.ProctoringSession, error) {
	switch t {
	case models.InterventionPause:
		if sess.Status == models.SessionPaused {
			return sess, nil
		}
		from := sess.Status
		if err := ValidateSessionTransition(from, models.SessionPaused); err != nil {
			return nil, err
		}
		next := sess.Clone()
		next.Status = models.SessionPaused
		next.UpdatedAt = s.clock()
		if err := s.saveSession(ctx, next, from); err != nil {
			return nil, err
		}
		s.log.Info("proctoring session paused", "session_id", sess.ID)
		s.publishSession(sess.ID, "session", next)
		return next, nil
	case models.InterventionTerminate:
		return s.endLocked(ctx, sess, models.SessionTerminated)
	default:
		return sess, nil
	}
}

// SweepIdleSessions ends, as failed, every non-terminal session that has not
// changed for longer than idle. It returns how many sessions were ended.
func (s *Service) SweepIdleSessions(ctx context.Context, idle time.Duration) (int, error) {
	if idle <= 0 {
		return 0, nil
	}
	cutoff := s.clock().Add(-idle)
	stale, err := retryValue(ctx, s.retry, "list idle sessions", func(ctx context.Context) ([]*models.ProctoringSession, error) {
		return s.store.ListIdleSessions(ctx, cutoff)
	})
	if err != nil {
		return 0, err
	}
	ended := 0
	for _, candidate := range stale {
		ok, err := s.failIfIdle(ctx, candidate.ID, cutoff)
		if err != nil {
			s.log.Warn("idle session sweep failed", "session_id", candidate.ID, "error", err)
			continue
		}
		if ok {
			ended++
		}
	}
	return ended, nil
}

func (s *Service) failIfIdle(ctx context.Context, id string, cutoff time.Time) (bool, error) {
	unlock := s.locks.lock(id)
	defer unlock()

	sess, err := s.loadSession(ctx, id)
	if err != nil {
		return false, err
	}
	if sess.Status.IsTerminal() || !sess.UpdatedAt.Before(cutoff) {
		return false, nil
	}
	if _, err := s.endLocked(ctx, sess, models.SessionFailed); err != nil {
		return false, err
	}
	return true, nil
}

// GetSessionSettings returns the settings the session was started with, or
// nil when it has none.
func (s *Service) GetSessionSettings(ctx context.Context, id string) (*models.ProctoringSettings, error) {
	sess, err := s.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	if sess.SettingsID == nil || s.settings == nil {
		return nil, nil
	}
	return s.settings.GetSettings(ctx, *sess.SettingsID)
}

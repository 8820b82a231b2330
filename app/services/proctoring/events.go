package proctoring

import (
	"context"
	"fmt"
	"strings"
	"time"

	"campus-portal/app/models"

	"github.com/google/uuid"
)

const (
	defaultEventLimit = 100
	maxEventLimit     = 500
)

// AppendEventInput is one structured submission from the detector.
type AppendEventInput struct {
	SessionID      string           `json:"session_id"`
	EventType      models.EventType `json:"event_type"`
	Severity       models.Severity  `json:"severity"`
	Description    string           `json:"description,omitempty"`
	Details        map[string]any   `json:"details,omitempty"`
	SnapshotURL    string           `json:"snapshot_url,omitempty"`
	VideoURL       string           `json:"video_url,omitempty"`
	AudioURL       string           `json:"audio_url,omitempty"`
	AIConfidence   *float64         `json:"ai_confidence,omitempty"`
	AIModelVersion string           `json:"ai_model_version,omitempty"`
}

// AppendEvent records a detector event. The event, the counter increment and,
// for high and critical severities, the alert are stored together. Terminal
// sessions reject events with ErrSessionClosed and paused sessions with
// ErrSessionPaused.
func (s *Service) AppendEvent(ctx context.Context, in AppendEventInput) (*models.ProctoringEvent, error) {
	in.EventType = models.EventType(strings.TrimSpace(string(in.EventType)))
	in.Severity = models.Severity(strings.ToLower(strings.TrimSpace(string(in.Severity))))
	switch {
	case strings.TrimSpace(in.SessionID) == "":
		return nil, validationf("session_id is required")
	case in.EventType == "":
		return nil, validationf("event_type is required")
	case !in.Severity.Valid():
		return nil, validationf("unknown severity %q", in.Severity)
	}

	unlock := s.locks.lock(in.SessionID)
	defer unlock()

	sess, err := s.loadSession(ctx, in.SessionID)
	if err != nil {
		return nil, err
	}
	switch {
	case sess.Status.IsTerminal():
		return nil, fmt.Errorf("%w: session %s is %s", ErrSessionClosed, sess.ID, sess.Status)
	case sess.Status == models.SessionPaused:
		return nil, fmt.Errorf("%w: session %s is paused", ErrSessionPaused, sess.ID)
	}

	ev := &models.ProctoringEvent{
		ID:             uuid.NewString(),
		SessionID:      sess.ID,
		EventType:      in.EventType,
		Severity:       in.Severity,
		Description:    in.Description,
		Details:        in.Details,
		SnapshotURL:    in.SnapshotURL,
		VideoURL:       in.VideoURL,
		AudioURL:       in.AudioURL,
		AIConfidence:   in.AIConfidence,
		AIModelVersion: in.AIModelVersion,
		CreatedAt:      s.nextStamp(sess),
	}
	var alert *models.ProctoringAlert
	if ShouldAlert(ev.Severity) {
		alert = newAlert(ev)
	}

	if _, err := retryValue(ctx, s.retry, "append event", func(ctx context.Context) (*models.ProctoringSession, error) {
		return s.store.AppendEvent(ctx, ev, alert)
	}); err != nil {
		return nil, err
	}

	s.log.Debug("proctoring event recorded", "session_id", sess.ID, "event_id", ev.ID,
		"type", ev.EventType, "severity", ev.Severity)
	s.publishSession(sess.ID, "event", ev)
	if alert != nil {
		s.log.Info("proctoring alert raised", "session_id", sess.ID, "alert_id", alert.ID,
			"severity", alert.Severity, "title", alert.Title)
		s.publishAlert(ctx, alert, true)
	}
	return ev, nil
}

// nextStamp returns a server timestamp strictly after anything already
// recorded for sess, so per-session arrival order is also timestamp order.
func (s *Service) nextStamp(sess *models.ProctoringSession) time.Time {
	now := s.clock()
	if !now.After(sess.UpdatedAt) {
		now = sess.UpdatedAt.Add(time.Microsecond)
	}
	return now
}

// FlagEvent marks an event for human review. Counters are not affected.
func (s *Service) FlagEvent(ctx context.Context, eventID, flaggedBy, reason string) (*models.ProctoringEvent, error) {
	switch {
	case strings.TrimSpace(eventID) == "":
		return nil, validationf("event id is required")
	case strings.TrimSpace(flaggedBy) == "":
		return nil, validationf("flagged_by is required")
	}
	now := s.clock()
	return retryValue(ctx, s.retry, "flag event", func(ctx context.Context) (*models.ProctoringEvent, error) {
		return s.store.FlagEvent(ctx, eventID, flaggedBy, strings.TrimSpace(reason), now)
	})
}

// ListEvents returns a session's events, newest first.
func (s *Service) ListEvents(ctx context.Context, f EventFilter) ([]*models.ProctoringEvent, error) {
	if strings.TrimSpace(f.SessionID) == "" {
		return nil, validationf("session id is required")
	}
	if f.Severity != "" && !f.Severity.Valid() {
		return nil, validationf("unknown severity %q", f.Severity)
	}
	if f.Limit <= 0 {
		f.Limit = defaultEventLimit
	}
	if f.Limit > maxEventLimit {
		f.Limit = maxEventLimit
	}
	if _, err := s.loadSession(ctx, f.SessionID); err != nil {
		return nil, err
	}
	return retryValue(ctx, s.retry, "list events", func(ctx context.Context) ([]*models.ProctoringEvent, error) {
		return s.store.ListEvents(ctx, f)
	})
}

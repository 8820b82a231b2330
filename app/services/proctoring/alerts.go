package proctoring

import (
	"context"
	"fmt"
	"strings"

	"campus-portal/app/models"

	"github.com/google/uuid"
)

const (
	defaultAlertLimit = 50
	maxAlertLimit     = 200
	genericAlertTitle = "Suspicious Activity Detected"
)

var alertTitles = map[models.EventType]string{
	models.EventMultipleFaces:     "Multiple Faces Detected",
	models.EventNoFace:            "No Face Detected",
	models.EventFaceMismatch:      "Face Mismatch Detected",
	models.EventLookingAway:       "Student Looking Away",
	models.EventObjectDetected:    "Prohibited Object Detected",
	models.EventAudioConversation: "Conversation Detected",
	models.EventAudioUnusual:      "Unusual Audio Detected",
	models.EventTabSwitch:         "Tab Switch Detected",
	models.EventWindowSwitch:      "Window Switch Detected",
	models.EventScreenShare:       "Screen Sharing Detected",
	models.EventFullscreenExit:    "Fullscreen Exited",
	models.EventFocusLost:         "Exam Window Lost Focus",
	models.EventCopyPaste:         "Copy/Paste Attempt",
	models.EventNetworkDisconnect: "Network Disconnected",
	models.EventNetworkReconnect:  "Network Reconnected",
	models.EventSystemInfo:        "System Information",
	models.EventIdentityVerified:  "Identity Verification",
}

// ShouldAlert reports whether an event of this severity pages a reviewer.
func ShouldAlert(sev models.Severity) bool {
	return sev == models.SeverityHigh || sev == models.SeverityCritical
}

// AlertTitle returns the reviewer-facing title for an event type. Unknown
// types get a generic title.
func AlertTitle(t models.EventType) string {
	if title, ok := alertTitles[t]; ok {
		return title
	}
	return genericAlertTitle
}

func newAlert(ev *models.ProctoringEvent) *models.ProctoringAlert {
	msg := strings.TrimSpace(ev.Description)
	if msg == "" {
		msg = fmt.Sprintf("%s event with %s severity", ev.EventType, ev.Severity)
	}
	return &models.ProctoringAlert{
		ID:        uuid.NewString(),
		SessionID: ev.SessionID,
		EventID:   ev.ID,
		AlertType: string(ev.EventType),
		Severity:  ev.Severity,
		Title:     AlertTitle(ev.EventType),
		Message:   msg,
		Status:    models.AlertPending,
		CreatedAt: ev.CreatedAt,
	}
}

// AcknowledgeAlert moves a pending alert to acknowledged.
func (s *Service) AcknowledgeAlert(ctx context.Context, alertID, userID string) (*models.ProctoringAlert, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, validationf("user id is required")
	}
	return s.mutateAlert(ctx, alertID, func(a *models.ProctoringAlert) error {
		if a.Status != models.AlertPending {
			return fmt.Errorf("%w: cannot acknowledge a %s alert", ErrInvalidTransition, a.Status)
		}
		now := s.clock()
		a.Status = models.AlertAcknowledged
		a.AcknowledgedBy = userID
		a.AcknowledgedAt = &now
		return nil
	})
}

// ResolveAlert closes a pending or acknowledged alert.
func (s *Service) ResolveAlert(ctx context.Context, alertID, userID, notes string) (*models.ProctoringAlert, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, validationf("user id is required")
	}
	return s.mutateAlert(ctx, alertID, func(a *models.ProctoringAlert) error {
		if a.Status != models.AlertPending && a.Status != models.AlertAcknowledged {
			return fmt.Errorf("%w: cannot resolve a %s alert", ErrInvalidTransition, a.Status)
		}
		now := s.clock()
		a.Status = models.AlertResolved
		a.ResolvedBy = userID
		a.ResolvedAt = &now
		a.ResolutionNotes = strings.TrimSpace(notes)
		return nil
	})
}

func (s *Service) mutateAlert(ctx context.Context, alertID string, fn func(*models.ProctoringAlert) error) (*models.ProctoringAlert, error) {
	if strings.TrimSpace(alertID) == "" {
		return nil, validationf("alert id is required")
	}
	get := func(ctx context.Context) (*models.ProctoringAlert, error) {
		return s.store.GetAlert(ctx, alertID)
	}
	a, err := retryValue(ctx, s.retry, "load alert", get)
	if err != nil {
		return nil, err
	}
	unlock := s.locks.lock(a.SessionID)
	defer unlock()

	if a, err = retryValue(ctx, s.retry, "load alert", get); err != nil {
		return nil, err
	}
	from := a.Status
	if err := fn(a); err != nil {
		return nil, err
	}
	if err := retry(ctx, s.retry, "update alert", func(ctx context.Context) error {
		return s.store.UpdateAlert(ctx, a, from)
	}); err != nil {
		return nil, err
	}
	s.log.Info("proctoring alert updated", "alert_id", a.ID, "from", from, "to", a.Status)
	s.publishAlert(ctx, a, false)
	return a, nil
}

// ListAlerts returns alerts newest first, open ones (pending or
// acknowledged) unless statuses are given.
func (s *Service) ListAlerts(ctx context.Context, f AlertFilter) ([]*models.ProctoringAlert, error) {
	if !f.AllScopes && strings.TrimSpace(f.InstructorID) == "" {
		return nil, validationf("instructor id is required")
	}
	for _, st := range f.Statuses {
		switch st {
		case models.AlertPending, models.AlertAcknowledged, models.AlertResolved:
		default:
			return nil, validationf("unknown alert status %q", st)
		}
	}
	if len(f.Statuses) == 0 {
		f.Statuses = []models.AlertStatus{models.AlertPending, models.AlertAcknowledged}
	}
	if f.Limit <= 0 {
		f.Limit = defaultAlertLimit
	}
	if f.Limit > maxAlertLimit {
		f.Limit = maxAlertLimit
	}
	return retryValue(ctx, s.retry, "list alerts", func(ctx context.Context) ([]*models.ProctoringAlert, error) {
		return s.store.ListAlerts(ctx, f)
	})
}

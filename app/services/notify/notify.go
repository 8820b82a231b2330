package notify

import (
	"context"
	"errors"
	"fmt"

	"campus-portal/app/models"
)

// Sender delivers one alert to an external reviewer notification system.
type Sender interface {
	Send(ctx context.Context, alert *models.ProctoringAlert) error
	Close() error
}

// Multi delivers every alert to each wrapped sender. One failing sender does
// not stop delivery to the rest.
type Multi struct {
	senders []Sender
}

// NewMulti creates a Multi over senders.
func NewMulti(senders ...Sender) *Multi {
	return &Multi{senders: senders}
}

func (m *Multi) Send(ctx context.Context, alert *models.ProctoringAlert) error {
	var errs []error
	for _, s := range m.senders {
		if err := s.Send(ctx, alert); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *Multi) Close() error {
	var errs []error
	for _, s := range m.senders {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Len returns the number of wrapped senders.
func (m *Multi) Len() int {
	return len(m.senders)
}

func summary(alert *models.ProctoringAlert) string {
	return fmt.Sprintf("[%s] %s (session %s): %s", alert.Severity, alert.Title, alert.SessionID, alert.Message)
}

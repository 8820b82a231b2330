package proctoring

import (
	"context"
	"log/slog"
	"time"

	"campus-portal/app/models"
)

// Service owns session lifecycles and the event, alert, violation and
// intervention bookkeeping attached to them. All writes for one session are
// serialized; different sessions proceed in parallel.
type Service struct {
	store     Store
	settings  SettingsSource
	publisher Publisher
	notifier  AlertNotifier
	locks     *sessionLocks
	retry     RetryPolicy
	now       func() time.Time
	log       *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithSettings sets where exam settings are read from. Without it sessions
// are created without settings resolution.
func WithSettings(src SettingsSource) Option {
	return func(s *Service) { s.settings = src }
}

// WithPublisher sets the live fan-out target.
func WithPublisher(p Publisher) Option {
	return func(s *Service) { s.publisher = p }
}

// WithNotifier sets the reviewer notification target for new alerts.
func WithNotifier(n AlertNotifier) Option {
	return func(s *Service) { s.notifier = n }
}

// WithRetryPolicy overrides DefaultRetryPolicy.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(s *Service) { s.retry = p }
}

// WithClock overrides time.Now. Used by tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithLogger overrides slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.log = l }
}

// NewService creates a Service backed by store.
func NewService(store Store, opts ...Option) *Service {
	s := &Service{
		store: store,
		locks: newSessionLocks(),
		retry: DefaultRetryPolicy,
		now:   time.Now,
		log:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) clock() time.Time {
	return s.now().UTC().Truncate(time.Microsecond)
}

// loadSession reads a session with retries. Callers hold the session lock
// when they intend to write.
func (s *Service) loadSession(ctx context.Context, id string) (*models.ProctoringSession, error) {
	return retryValue(ctx, s.retry, "load session", func(ctx context.Context) (*models.ProctoringSession, error) {
		return s.store.GetSession(ctx, id)
	})
}

func (s *Service) publishSession(sessionID, kind string, data any) {
	if s.publisher == nil {
		return
	}
	s.publisher.PublishSession(sessionID, kind, data)
}

func (s *Service) publishAlert(ctx context.Context, alert *models.ProctoringAlert, isNew bool) {
	if s.publisher != nil {
		s.publisher.PublishAlert(alert)
	}
	if isNew && s.notifier != nil {
		s.notifier.NotifyAlert(ctx, alert)
	}
}

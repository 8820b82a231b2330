package proctoring

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"campus-portal/app/models"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type published struct {
	sessionID string
	kind      string
	data      any
}

type recordingPublisher struct {
	mu       sync.Mutex
	sessions []published
	alerts   []*models.ProctoringAlert
}

func (p *recordingPublisher) PublishSession(sessionID, kind string, data any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sessions = append(p.sessions, published{sessionID, kind, data})
}

func (p *recordingPublisher) PublishAlert(a *models.ProctoringAlert) {
	p.mu.Lock()
	defer p.mu.Unlock()
	c := *a
	p.alerts = append(p.alerts, &c)
}

func (p *recordingPublisher) kinds() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.sessions))
	for i, m := range p.sessions {
		out[i] = m.kind
	}
	return out
}

type recordingNotifier struct {
	mu     sync.Mutex
	alerts []*models.ProctoringAlert
}

func (n *recordingNotifier) NotifyAlert(_ context.Context, a *models.ProctoringAlert) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.alerts = append(n.alerts, a)
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.alerts)
}

type fixture struct {
	svc       *Service
	store     *MemoryStore
	clock     *fakeClock
	publisher *recordingPublisher
	notifier  *recordingNotifier
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	f := &fixture{
		store:     NewMemoryStore(),
		clock:     newFakeClock(),
		publisher: &recordingPublisher{},
		notifier:  &recordingNotifier{},
	}
	base := []Option{
		WithSettings(f.store),
		WithPublisher(f.publisher),
		WithNotifier(f.notifier),
		WithClock(f.clock.Now),
		WithLogger(quietLogger()),
		WithRetryPolicy(RetryPolicy{MaxRetries: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}),
	}
	f.svc = NewService(f.store, append(base, opts...)...)
	return f
}

func strPtr(s string) *string { return &s }

// newSession creates a session for exam-1 and returns it with its ingest token.
func (f *fixture) newSession(t *testing.T) (*models.ProctoringSession, string) {
	t.Helper()
	sess, token, err := f.svc.CreateSession(context.Background(), CreateSessionInput{
		StudentID: "student-1",
		ExamID:    strPtr("exam-1"),
		CollegeID: "college-1",
	})
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	return sess, token
}

// activeSession creates and starts a session.
func (f *fixture) activeSession(t *testing.T) *models.ProctoringSession {
	t.Helper()
	sess, _ := f.newSession(t)
	started, err := f.svc.StartSession(context.Background(), sess.ID)
	if err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	return started
}

func (f *fixture) append(t *testing.T, sessionID string, typ models.EventType, sev models.Severity) *models.ProctoringEvent {
	t.Helper()
	ev, err := f.svc.AppendEvent(context.Background(), AppendEventInput{
		SessionID: sessionID,
		EventType: typ,
		Severity:  sev,
	})
	if err != nil {
		t.Fatalf("AppendEvent(%s, %s): %v", typ, sev, err)
	}
	return ev
}

func (f *fixture) session(t *testing.T, id string) *models.ProctoringSession {
	t.Helper()
	sess, err := f.store.GetSession(context.Background(), id)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	return sess
}

// checkCounters verifies the counters against the stored events.
func checkCounters(t *testing.T, store *MemoryStore, sessionID string) {
	t.Helper()
	ctx := context.Background()
	sess, err := store.GetSession(ctx, sessionID)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	events, err := store.ListEvents(ctx, EventFilter{SessionID: sessionID})
	if err != nil {
		t.Fatalf("ListEvents: %v", err)
	}
	bySev := map[models.Severity]int{}
	for _, ev := range events {
		bySev[ev.Severity]++
	}
	if sess.TotalCount != len(events) {
		t.Fatalf("total counter %d, stored events %d", sess.TotalCount, len(events))
	}
	if sess.CriticalCount != bySev[models.SeverityCritical] ||
		sess.HighCount != bySev[models.SeverityHigh] ||
		sess.MediumCount != bySev[models.SeverityMedium] ||
		sess.LowCount != bySev[models.SeverityLow] {
		t.Fatalf("severity counters %d/%d/%d/%d, stored %v",
			sess.CriticalCount, sess.HighCount, sess.MediumCount, sess.LowCount, bySev)
	}
}

package proctoring

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"campus-portal/app/models"
)

// flakyStore fails the first n calls of the wrapped operations with a
// transient error before delegating.
type flakyStore struct {
	*MemoryStore
	mu       sync.Mutex
	failures int
	calls    int
}

func (s *flakyStore) fail() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.failures > 0 {
		s.failures--
		return fmt.Errorf("connection reset: %w", ErrTransientStorage)
	}
	return nil
}

func (s *flakyStore) AppendEvent(ctx context.Context, ev *models.ProctoringEvent, alert *models.ProctoringAlert) (*models.ProctoringSession, error) {
	if err := s.fail(); err != nil {
		return nil, err
	}
	return s.MemoryStore.AppendEvent(ctx, ev, alert)
}

func (s *flakyStore) setFailures(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = n
	s.calls = 0
}

func (s *flakyStore) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func TestAppendEventRetriesTransientFailures(t *testing.T) {
	t.Parallel()
	mem := NewMemoryStore()
	store := &flakyStore{MemoryStore: mem}
	clock := newFakeClock()
	svc := NewService(store,
		WithClock(clock.Now),
		WithLogger(quietLogger()),
		WithRetryPolicy(RetryPolicy{MaxRetries: 3, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}),
	)
	ctx := context.Background()

	sess, _, err := svc.CreateSession(ctx, CreateSessionInput{StudentID: "s", CollegeID: "c", ExamID: strPtr("e")})
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	in := AppendEventInput{SessionID: sess.ID, EventType: models.EventTabSwitch, Severity: models.SeverityHigh}

	store.setFailures(2)
	if _, err := svc.AppendEvent(ctx, in); err != nil {
		t.Fatalf("AppendEvent should survive two transient failures: %v", err)
	}
	if got := store.callCount(); got != 3 {
		t.Fatalf("expected 3 attempts, got %d", got)
	}

	store.setFailures(10)
	_, err = svc.AppendEvent(ctx, in)
	if !errors.Is(err, ErrTransientStorage) {
		t.Fatalf("expected ErrTransientStorage after exhausting retries, got %v", err)
	}
	if got := store.callCount(); got != 4 {
		t.Fatalf("expected 4 attempts, got %d", got)
	}
	checkCounters(t, mem, sess.ID)
	alerts, _ := mem.ListAlerts(ctx, AlertFilter{SessionID: sess.ID, AllScopes: true})
	if len(alerts) != 1 {
		t.Fatalf("a failed append must not leave an alert behind, got %d alerts", len(alerts))
	}
}

func TestRetryStopsOnPermanentErrorAndContext(t *testing.T) {
	t.Parallel()
	p := RetryPolicy{MaxRetries: 5, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}

	calls := 0
	err := retry(context.Background(), p, "op", func(context.Context) error {
		calls++
		return ErrNotFound
	})
	if !errors.Is(err, ErrNotFound) || calls != 1 {
		t.Fatalf("permanent error: got %v after %d calls", err, calls)
	}

	ctx, cancel := context.WithCancel(context.Background())
	calls = 0
	err = retry(ctx, RetryPolicy{MaxRetries: 5, BaseDelay: time.Hour}, "op", func(context.Context) error {
		calls++
		cancel()
		return ErrTransientStorage
	})
	if !errors.Is(err, context.Canceled) || calls != 1 {
		t.Fatalf("cancelled context: got %v after %d calls", err, calls)
	}
}

func TestRetryPolicyDelay(t *testing.T) {
	t.Parallel()
	p := RetryPolicy{BaseDelay: 50 * time.Millisecond, MaxDelay: 150 * time.Millisecond}

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 50 * time.Millisecond},
		{2, 100 * time.Millisecond},
		{3, 150 * time.Millisecond},
		{10, 150 * time.Millisecond},
	}
	for _, tt := range tests {
		if got := p.delay(tt.attempt); got != tt.want {
			t.Errorf("delay(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

package proctoring

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"campus-portal/app/models"
)

// MemoryStore is a Store and SettingsSource kept in process memory. It backs
// local development (no DATABASE_URL) and tests.
type MemoryStore struct {
	mu            sync.RWMutex
	seq           int64
	sessions      map[string]*memRecord[models.ProctoringSession]
	events        map[string]*memRecord[models.ProctoringEvent]
	violations    map[string]*memRecord[models.ProctoringViolation]
	alerts        map[string]*memRecord[models.ProctoringAlert]
	interventions map[string]*memRecord[models.ProctoringIntervention]
	settings      map[string]*models.ProctoringSettings
	examOwners    map[string]string
	quizOwners    map[string]string
}

type memRecord[T any] struct {
	seq int64
	v   T
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions:      make(map[string]*memRecord[models.ProctoringSession]),
		events:        make(map[string]*memRecord[models.ProctoringEvent]),
		violations:    make(map[string]*memRecord[models.ProctoringViolation]),
		alerts:        make(map[string]*memRecord[models.ProctoringAlert]),
		interventions: make(map[string]*memRecord[models.ProctoringIntervention]),
		settings:      make(map[string]*models.ProctoringSettings),
		examOwners:    make(map[string]string),
		quizOwners:    make(map[string]string),
	}
}

// SetExamOwner records which instructor owns an exam.
func (m *MemoryStore) SetExamOwner(examID, instructorID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.examOwners[examID] = instructorID
}

// SetQuizOwner records which instructor owns a quiz.
func (m *MemoryStore) SetQuizOwner(quizID, instructorID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.quizOwners[quizID] = instructorID
}

// PutSettings stores or replaces exam settings.
func (m *MemoryStore) PutSettings(st *models.ProctoringSettings) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := *st
	m.settings[st.ID] = &c
}

func (m *MemoryStore) next() int64 {
	m.seq++
	return m.seq
}

// newestFirst sorts by creation time, then insertion order, both descending.
func newestFirst[T any](recs []*memRecord[T], created func(*T) time.Time) []*T {
	sort.Slice(recs, func(i, j int) bool {
		ci, cj := created(&recs[i].v), created(&recs[j].v)
		if !ci.Equal(cj) {
			return ci.After(cj)
		}
		return recs[i].seq > recs[j].seq
	})
	out := make([]*T, 0, len(recs))
	for _, r := range recs {
		v := r.v
		out = append(out, &v)
	}
	return out
}

func (m *MemoryStore) CreateSession(_ context.Context, s *models.ProctoringSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[s.ID]; ok {
		return fmt.Errorf("%w: session %s already exists", ErrValidation, s.ID)
	}
	m.sessions[s.ID] = &memRecord[models.ProctoringSession]{seq: m.next(), v: *s.Clone()}
	return nil
}

func (m *MemoryStore) GetSession(_ context.Context, id string) (*models.ProctoringSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.sessions[id]
	if !ok {
		return nil, notFoundf("session %s", id)
	}
	return r.v.Clone(), nil
}

func (m *MemoryStore) UpdateSession(_ context.Context, s *models.ProctoringSession, from models.SessionStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.sessions[s.ID]
	if !ok {
		return notFoundf("session %s", s.ID)
	}
	if r.v.Status != from {
		return fmt.Errorf("%w: session %s is %s, expected %s", ErrInvalidTransition, s.ID, r.v.Status, from)
	}
	cur := &r.v
	cur.Status = s.Status
	cur.ConsentGiven = s.ConsentGiven
	cur.ConsentAt = s.ConsentAt
	cur.IdentityVerified = s.IdentityVerified
	cur.IdentityVerifiedAt = s.IdentityVerifiedAt
	cur.StartedAt = s.StartedAt
	cur.EndedAt = s.EndedAt
	cur.DurationSeconds = s.DurationSeconds
	cur.UpdatedAt = s.UpdatedAt
	return nil
}

func (m *MemoryStore) listSessions(match func(*models.ProctoringSession) bool) []*models.ProctoringSession {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var recs []*memRecord[models.ProctoringSession]
	for _, r := range m.sessions {
		if match(&r.v) {
			c := &memRecord[models.ProctoringSession]{seq: r.seq, v: *r.v.Clone()}
			recs = append(recs, c)
		}
	}
	return newestFirst(recs, func(s *models.ProctoringSession) time.Time { return s.CreatedAt })
}

func (m *MemoryStore) ListSessionsByStudent(_ context.Context, studentID string) ([]*models.ProctoringSession, error) {
	return m.listSessions(func(s *models.ProctoringSession) bool { return s.StudentID == studentID }), nil
}

func (m *MemoryStore) ListActiveSessionsByExam(_ context.Context, examID string) ([]*models.ProctoringSession, error) {
	return m.listSessions(func(s *models.ProctoringSession) bool {
		return s.ExamID != nil && *s.ExamID == examID &&
			(s.Status == models.SessionActive || s.Status == models.SessionPaused)
	}), nil
}

func (m *MemoryStore) ListIdleSessions(_ context.Context, before time.Time) ([]*models.ProctoringSession, error) {
	return m.listSessions(func(s *models.ProctoringSession) bool {
		return !s.Status.IsTerminal() && s.UpdatedAt.Before(before)
	}), nil
}

func (m *MemoryStore) AppendEvent(_ context.Context, ev *models.ProctoringEvent, alert *models.ProctoringAlert) (*models.ProctoringSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.sessions[ev.SessionID]
	if !ok {
		return nil, notFoundf("session %s", ev.SessionID)
	}
	if _, dup := m.events[ev.ID]; dup {
		return r.v.Clone(), nil
	}
	if r.v.Status.IsTerminal() {
		return nil, fmt.Errorf("%w: session %s is %s", ErrSessionClosed, ev.SessionID, r.v.Status)
	}
	m.events[ev.ID] = &memRecord[models.ProctoringEvent]{seq: m.next(), v: *ev.Clone()}
	r.v.CountSeverity(ev.Severity)
	if ev.CreatedAt.After(r.v.UpdatedAt) {
		r.v.UpdatedAt = ev.CreatedAt
	}
	if alert != nil {
		m.alerts[alert.ID] = &memRecord[models.ProctoringAlert]{seq: m.next(), v: *alert}
	}
	return r.v.Clone(), nil
}

func (m *MemoryStore) GetEvent(_ context.Context, id string) (*models.ProctoringEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.events[id]
	if !ok {
		return nil, notFoundf("event %s", id)
	}
	return r.v.Clone(), nil
}

func (m *MemoryStore) FlagEvent(_ context.Context, id, flaggedBy, reason string, at time.Time) (*models.ProctoringEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.events[id]
	if !ok {
		return nil, notFoundf("event %s", id)
	}
	r.v.FlaggedForReview = true
	r.v.FlaggedBy = flaggedBy
	r.v.FlagReason = reason
	r.v.FlaggedAt = &at
	return r.v.Clone(), nil
}

func (m *MemoryStore) ListEvents(_ context.Context, f EventFilter) ([]*models.ProctoringEvent, error) {
	m.mu.RLock()
	var recs []*memRecord[models.ProctoringEvent]
	for _, r := range m.events {
		if r.v.SessionID != f.SessionID {
			continue
		}
		if f.Severity != "" && r.v.Severity != f.Severity {
			continue
		}
		if f.EventType != "" && r.v.EventType != f.EventType {
			continue
		}
		recs = append(recs, &memRecord[models.ProctoringEvent]{seq: r.seq, v: *r.v.Clone()})
	}
	m.mu.RUnlock()
	out := newestFirst(recs, func(e *models.ProctoringEvent) time.Time { return e.CreatedAt })
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (m *MemoryStore) CreateViolation(_ context.Context, v *models.ProctoringViolation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := *v
	c.EvidenceURLs = append([]string(nil), v.EvidenceURLs...)
	m.violations[v.ID] = &memRecord[models.ProctoringViolation]{seq: m.next(), v: c}
	return nil
}

func (m *MemoryStore) GetViolation(_ context.Context, id string) (*models.ProctoringViolation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.violations[id]
	if !ok {
		return nil, notFoundf("violation %s", id)
	}
	v := r.v
	v.EvidenceURLs = append([]string(nil), r.v.EvidenceURLs...)
	return &v, nil
}

func (m *MemoryStore) UpdateViolationReview(_ context.Context, v *models.ProctoringViolation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.violations[v.ID]
	if !ok {
		return notFoundf("violation %s", v.ID)
	}
	r.v.Reviewed = v.Reviewed
	r.v.ReviewedBy = v.ReviewedBy
	r.v.ReviewedAt = v.ReviewedAt
	r.v.ReviewNotes = v.ReviewNotes
	r.v.ActionTaken = v.ActionTaken
	r.v.IsFalsePositive = v.IsFalsePositive
	return nil
}

func (m *MemoryStore) ListViolations(_ context.Context, sessionID string) ([]*models.ProctoringViolation, error) {
	m.mu.RLock()
	var recs []*memRecord[models.ProctoringViolation]
	for _, r := range m.violations {
		if r.v.SessionID == sessionID {
			recs = append(recs, &memRecord[models.ProctoringViolation]{seq: r.seq, v: r.v})
		}
	}
	m.mu.RUnlock()
	return newestFirst(recs, func(v *models.ProctoringViolation) time.Time { return v.CreatedAt }), nil
}

func (m *MemoryStore) GetAlert(_ context.Context, id string) (*models.ProctoringAlert, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.alerts[id]
	if !ok {
		return nil, notFoundf("alert %s", id)
	}
	a := r.v
	return &a, nil
}

func (m *MemoryStore) UpdateAlert(_ context.Context, a *models.ProctoringAlert, from models.AlertStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.alerts[a.ID]
	if !ok {
		return notFoundf("alert %s", a.ID)
	}
	if r.v.Status != from {
		return fmt.Errorf("%w: alert %s is %s, expected %s", ErrInvalidTransition, a.ID, r.v.Status, from)
	}
	r.v = *a
	return nil
}

func (m *MemoryStore) SessionOwnedBy(_ context.Context, sessionID, instructorID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.ownedBy(sessionID, instructorID), nil
}

// ownedBy reports whether the instructor owns the session's exam or quiz. Callers hold mu.
func (m *MemoryStore) ownedBy(sessionID, instructorID string) bool {
	r, ok := m.sessions[sessionID]
	if !ok || instructorID == "" {
		return false
	}
	if r.v.ExamID != nil && m.examOwners[*r.v.ExamID] == instructorID {
		return true
	}
	return r.v.QuizID != nil && m.quizOwners[*r.v.QuizID] == instructorID
}

func (m *MemoryStore) ListAlerts(_ context.Context, f AlertFilter) ([]*models.ProctoringAlert, error) {
	m.mu.RLock()
	var recs []*memRecord[models.ProctoringAlert]
	for _, r := range m.alerts {
		if f.SessionID != "" && r.v.SessionID != f.SessionID {
			continue
		}
		if !f.AllScopes && !m.ownedBy(r.v.SessionID, f.InstructorID) {
			continue
		}
		if len(f.Statuses) > 0 && !containsStatus(f.Statuses, r.v.Status) {
			continue
		}
		recs = append(recs, &memRecord[models.ProctoringAlert]{seq: r.seq, v: r.v})
	}
	m.mu.RUnlock()
	out := newestFirst(recs, func(a *models.ProctoringAlert) time.Time { return a.CreatedAt })
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func containsStatus(list []models.AlertStatus, s models.AlertStatus) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func (m *MemoryStore) CreateIntervention(_ context.Context, i *models.ProctoringIntervention) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.interventions[i.ID] = &memRecord[models.ProctoringIntervention]{seq: m.next(), v: *i}
	return nil
}

func (m *MemoryStore) ListInterventions(_ context.Context, sessionID string) ([]*models.ProctoringIntervention, error) {
	m.mu.RLock()
	var recs []*memRecord[models.ProctoringIntervention]
	for _, r := range m.interventions {
		if r.v.SessionID == sessionID {
			recs = append(recs, &memRecord[models.ProctoringIntervention]{seq: r.seq, v: r.v})
		}
	}
	m.mu.RUnlock()
	return newestFirst(recs, func(i *models.ProctoringIntervention) time.Time { return i.CreatedAt }), nil
}

func (m *MemoryStore) GetSettings(_ context.Context, id string) (*models.ProctoringSettings, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st, ok := m.settings[id]
	if !ok {
		return nil, notFoundf("settings %s", id)
	}
	c := *st
	return &c, nil
}

func (m *MemoryStore) FindSettings(_ context.Context, examID, quizID *string) (*models.ProctoringSettings, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, st := range m.settings {
		if examID != nil && st.ExamID != nil && *st.ExamID == *examID {
			c := *st
			return &c, nil
		}
		if quizID != nil && st.QuizID != nil && *st.QuizID == *quizID {
			c := *st
			return &c, nil
		}
	}
	return nil, nil
}

package proctoring

import (
	"context"
	"errors"
	"testing"

	"campus-portal/app/models"
)

func TestViolationLifecycle(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	sess := f.activeSession(t)
	ev := f.append(t, sess.ID, models.EventObjectDetected, models.SeverityHigh)

	v, err := f.svc.CreateViolation(ctx, CreateViolationInput{
		SessionID:     sess.ID,
		EventID:       &ev.ID,
		ViolationType: "prohibited_object",
		Severity:      "High",
		Title:         " Phone on desk ",
		EvidenceURLs:  []string{"https://evidence.example/1.jpg", " ", ""},
	})
	if err != nil {
		t.Fatalf("CreateViolation: %v", err)
	}
	if v.Severity != models.SeverityHigh || v.Title != "Phone on desk" || len(v.EvidenceURLs) != 1 || v.Reviewed {
		t.Fatalf("unexpected violation %+v", v)
	}

	reviewed, err := f.svc.ReviewViolation(ctx, v.ID, ReviewInput{ReviewerID: "instructor-1", Notes: "seen on video", ActionTaken: "grade_zero"})
	if err != nil {
		t.Fatalf("ReviewViolation: %v", err)
	}
	if !reviewed.Reviewed || reviewed.ReviewedAt == nil || reviewed.ActionTaken != "grade_zero" || reviewed.IsFalsePositive {
		t.Fatalf("unexpected review %+v", reviewed)
	}

	again, err := f.svc.ReviewViolation(ctx, v.ID, ReviewInput{ReviewerID: "admin-1", IsFalsePositive: true})
	if err != nil {
		t.Fatalf("second review: %v", err)
	}
	if again.ReviewedBy != "admin-1" || !again.IsFalsePositive || again.ActionTaken != "" {
		t.Fatalf("second review should overwrite the first, got %+v", again)
	}

	list, err := f.svc.ListViolations(ctx, sess.ID)
	if err != nil {
		t.Fatalf("ListViolations: %v", err)
	}
	if len(list) != 1 || list[0].ReviewedBy != "admin-1" {
		t.Fatalf("unexpected listing %+v", list)
	}
	if got := f.session(t, sess.ID).TotalCount; got != 1 {
		t.Fatalf("violations must not touch event counters, total %d", got)
	}
}

func TestCreateViolationValidation(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	sess := f.activeSession(t)
	other := f.activeSession(t)
	foreign := f.append(t, other.ID, models.EventNoFace, models.SeverityLow)

	valid := func() CreateViolationInput {
		return CreateViolationInput{SessionID: sess.ID, ViolationType: "other", Severity: models.SeverityLow, Title: "t"}
	}
	tests := []struct {
		name   string
		mutate func(*CreateViolationInput)
		want   error
	}{
		{"no type", func(in *CreateViolationInput) { in.ViolationType = "" }, ErrValidation},
		{"no title", func(in *CreateViolationInput) { in.Title = " " }, ErrValidation},
		{"bad severity", func(in *CreateViolationInput) { in.Severity = "severe" }, ErrValidation},
		{"unknown session", func(in *CreateViolationInput) { in.SessionID = "missing" }, ErrNotFound},
		{"unknown event", func(in *CreateViolationInput) { in.EventID = strPtr("missing") }, ErrNotFound},
		{"event of another session", func(in *CreateViolationInput) { in.EventID = &foreign.ID }, ErrValidation},
	}
	for _, tt := range tests {
		in := valid()
		tt.mutate(&in)
		if _, err := f.svc.CreateViolation(ctx, in); !errors.Is(err, tt.want) {
			t.Errorf("%s: expected %v, got %v", tt.name, tt.want, err)
		}
	}

	if _, err := f.svc.EndSession(ctx, sess.ID, models.SessionCompleted); err != nil {
		t.Fatalf("EndSession: %v", err)
	}
	if _, err := f.svc.CreateViolation(ctx, valid()); err != nil {
		t.Fatalf("violations may be filed after the session ended: %v", err)
	}
	if _, err := f.svc.ReviewViolation(ctx, "missing", ReviewInput{ReviewerID: "r"}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("unknown violation: expected ErrNotFound, got %v", err)
	}
	if _, err := f.svc.ReviewViolation(ctx, "x", ReviewInput{}); !errors.Is(err, ErrValidation) {
		t.Fatalf("missing reviewer: expected ErrValidation, got %v", err)
	}
}

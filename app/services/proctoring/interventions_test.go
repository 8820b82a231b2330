package proctoring

import (
	"context"
	"errors"
	"testing"

	"campus-portal/app/models"
)

func TestSendIntervention(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	sess := f.activeSession(t)

	tests := []struct {
		typ    models.InterventionType
		status models.SessionStatus
	}{
		{models.InterventionWarning, models.SessionActive},
		{models.InterventionMessage, models.SessionActive},
		{models.InterventionPause, models.SessionPaused},
		{models.InterventionPause, models.SessionPaused},
		{models.InterventionWarning, models.SessionPaused},
		{models.InterventionTerminate, models.SessionTerminated},
	}
	for i, tt := range tests {
		iv, err := f.svc.SendIntervention(ctx, SendInterventionInput{
			SessionID: sess.ID, IntervenedBy: "proctor-1", Type: tt.typ, Message: "eyes on screen",
		})
		if err != nil {
			t.Fatalf("%d %s: %v", i, tt.typ, err)
		}
		if iv.InterventionType != tt.typ || iv.IntervenedBy != "proctor-1" {
			t.Fatalf("%d: unexpected intervention %+v", i, iv)
		}
		if got := f.session(t, sess.ID).Status; got != tt.status {
			t.Fatalf("%d %s: expected session %s, got %s", i, tt.typ, tt.status, got)
		}
	}

	_, err := f.svc.SendIntervention(ctx, SendInterventionInput{SessionID: sess.ID, IntervenedBy: "proctor-1", Type: models.InterventionWarning})
	if !errors.Is(err, ErrSessionClosed) {
		t.Fatalf("intervention on terminated session: expected ErrSessionClosed, got %v", err)
	}

	list, err := f.svc.ListInterventions(ctx, sess.ID)
	if err != nil {
		t.Fatalf("ListInterventions: %v", err)
	}
	if len(list) != len(tests) {
		t.Fatalf("expected %d logged interventions, got %d", len(tests), len(list))
	}
	if list[0].InterventionType != models.InterventionTerminate {
		t.Fatalf("expected newest first, got %s", list[0].InterventionType)
	}
}

func TestSendInterventionValidation(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	sess := f.activeSession(t)
	other := f.activeSession(t)
	f.append(t, other.ID, models.EventNoFace, models.SeverityCritical)
	alerts, _ := f.svc.ListAlerts(ctx, AlertFilter{SessionID: other.ID, AllScopes: true})

	tests := []struct {
		name string
		in   SendInterventionInput
		want error
	}{
		{"no session", SendInterventionInput{IntervenedBy: "p", Type: models.InterventionWarning}, ErrValidation},
		{"no sender", SendInterventionInput{SessionID: sess.ID, Type: models.InterventionWarning}, ErrValidation},
		{"bad type", SendInterventionInput{SessionID: sess.ID, IntervenedBy: "p", Type: "kick"}, ErrValidation},
		{"unknown session", SendInterventionInput{SessionID: "missing", IntervenedBy: "p", Type: models.InterventionWarning}, ErrNotFound},
		{"unknown alert", SendInterventionInput{SessionID: sess.ID, IntervenedBy: "p", Type: models.InterventionWarning, AlertID: strPtr("missing")}, ErrNotFound},
		{"alert of another session", SendInterventionInput{SessionID: sess.ID, IntervenedBy: "p", Type: models.InterventionWarning, AlertID: &alerts[0].ID}, ErrValidation},
	}
	for _, tt := range tests {
		if _, err := f.svc.SendIntervention(ctx, tt.in); !errors.Is(err, tt.want) {
			t.Errorf("%s: expected %v, got %v", tt.name, tt.want, err)
		}
	}
	if list, _ := f.svc.ListInterventions(ctx, sess.ID); len(list) != 0 {
		t.Fatalf("rejected interventions must not be logged, got %d", len(list))
	}
}

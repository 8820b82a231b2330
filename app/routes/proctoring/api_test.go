package proctoring

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"

	"campus-portal/app/models"
	"campus-portal/app/routes/auth"
	"campus-portal/app/services/fanout"
	ps "campus-portal/app/services/proctoring"
)

const (
	examID       = "exam-1"
	studentID    = "student-1"
	instructorID = "instructor-1"
)

type harness struct {
	t     *testing.T
	app   *fiber.App
	store *ps.MemoryStore
	svc   *ps.Service
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	auth.SetJWTSecret("routes-test-secret")

	store := ps.NewMemoryStore()
	store.SetExamOwner(examID, instructorID)
	hub := fanout.New()
	t.Cleanup(hub.Close)
	svc := ps.NewService(store, ps.WithSettings(store), ps.WithPublisher(hub))

	app := fiber.New()
	SetupProctoringRoutes(app, svc, hub)
	return &harness{t: t, app: app, store: store, svc: svc}
}

func (h *harness) token(userID string, roles ...string) string {
	h.t.Helper()
	tok, err := auth.GenerateJWT(userID, userID+"@example.com", "First", "Last", roles)
	if err != nil {
		h.t.Fatalf("GenerateJWT: %v", err)
	}
	return tok
}

// do sends a request and decodes the JSON envelope.
func (h *harness) do(method, path string, body any, headers map[string]string) (int, map[string]any) {
	h.t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			h.t.Fatalf("marshal: %v", err)
		}
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := h.app.Test(req, -1)
	if err != nil {
		h.t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil && err != io.EOF {
		h.t.Fatalf("%s %s: decode: %v", method, path, err)
	}
	return resp.StatusCode, out
}

func bearer(tok string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + tok}
}

func (h *harness) createSession(studentTok string) (id, ingest string) {
	h.t.Helper()
	status, out := h.do(http.MethodPost, "/api/proctoring/sessions",
		map[string]any{"exam_id": examID, "college_id": "college-1"}, bearer(studentTok))
	if status != fiber.StatusCreated {
		h.t.Fatalf("create session: expected 201, got %d (%v)", status, out)
	}
	sess := out["session"].(map[string]any)
	if sess["student_id"] != studentID {
		h.t.Fatalf("session should belong to the caller, got %v", sess["student_id"])
	}
	return sess["id"].(string), out["ingest_token"].(string)
}

func TestDetectorIngestFlow(t *testing.T) {
	h := newHarness(t)
	studentTok := h.token(studentID, models.RoleStudent)
	adminTok := h.token("admin-1", models.RoleAdmin)

	id, ingest := h.createSession(studentTok)
	if status, out := h.do(http.MethodPost, "/api/proctoring/sessions/"+id+"/start", nil, bearer(studentTok)); status != fiber.StatusOK {
		t.Fatalf("start: expected 200, got %d (%v)", status, out)
	}

	eventsPath := "/api/proctoring/sessions/" + id + "/events"
	ev := map[string]any{"event_type": "tab_switch", "severity": "medium"}

	if status, _ := h.do(http.MethodPost, eventsPath, ev, nil); status != fiber.StatusUnauthorized {
		t.Fatalf("missing ingest token: expected 401, got %d", status)
	}
	if status, _ := h.do(http.MethodPost, eventsPath, ev, map[string]string{"X-Ingest-Token": "nope"}); status != fiber.StatusUnauthorized {
		t.Fatalf("wrong ingest token: expected 401, got %d", status)
	}
	detector := map[string]string{"X-Ingest-Token": ingest}
	if status, out := h.do(http.MethodPost, eventsPath, ev, detector); status != fiber.StatusCreated {
		t.Fatalf("append: expected 201, got %d (%v)", status, out)
	}
	critical := map[string]any{"event_type": "multiple_faces", "severity": "critical", "description": "two faces"}
	if status, out := h.do(http.MethodPost, eventsPath, critical, detector); status != fiber.StatusCreated {
		t.Fatalf("append critical: expected 201, got %d (%v)", status, out)
	}
	if status, out := h.do(http.MethodPost, eventsPath, map[string]any{"event_type": "x", "severity": "extreme"}, detector); status != fiber.StatusBadRequest || out["code"] != "validation_error" {
		t.Fatalf("bad severity: expected 400 validation_error, got %d (%v)", status, out)
	}

	status, out := h.do(http.MethodGet, "/api/proctoring/sessions/"+id, nil, bearer(adminTok))
	if status != fiber.StatusOK {
		t.Fatalf("get session: expected 200, got %d", status)
	}
	sess := out["session"].(map[string]any)
	if sess["total_violations_count"].(float64) != 2 || sess["critical_violations_count"].(float64) != 1 {
		t.Fatalf("unexpected counters: %v", sess)
	}
	if out["open_alerts"].(float64) != 1 {
		t.Fatalf("expected 1 open alert, got %v", out["open_alerts"])
	}

	status, out = h.do(http.MethodGet, "/api/proctoring/alerts", nil, bearer(adminTok))
	if status != fiber.StatusOK {
		t.Fatalf("list alerts: expected 200, got %d", status)
	}
	alerts := out["alerts"].([]any)
	if len(alerts) != 1 {
		t.Fatalf("expected 1 alert, got %d", len(alerts))
	}
	alertID := alerts[0].(map[string]any)["id"].(string)
	if title := alerts[0].(map[string]any)["title"]; title != "Multiple Faces Detected" {
		t.Fatalf("unexpected alert title %v", title)
	}

	if status, _ := h.do(http.MethodPost, "/api/proctoring/alerts/"+alertID+"/resolve", map[string]any{"notes": "ok"}, bearer(adminTok)); status != fiber.StatusOK {
		t.Fatalf("resolve: expected 200, got %d", status)
	}
	if status, out := h.do(http.MethodPost, "/api/proctoring/alerts/"+alertID+"/acknowledge", nil, bearer(adminTok)); status != fiber.StatusConflict || out["code"] != "invalid_transition" {
		t.Fatalf("acknowledge after resolve: expected 409 invalid_transition, got %d (%v)", status, out)
	}

	status, out = h.do(http.MethodGet, "/api/proctoring/sessions/"+id+"/settings", nil, detector)
	if status != fiber.StatusOK {
		t.Fatalf("settings: expected 200, got %d (%v)", status, out)
	}
}

func TestPauseAndTerminateThroughInterventions(t *testing.T) {
	h := newHarness(t)
	studentTok := h.token(studentID, models.RoleStudent)
	proctorTok := h.token("proctor-1", models.RoleProctor)

	id, ingest := h.createSession(studentTok)
	h.do(http.MethodPost, "/api/proctoring/sessions/"+id+"/start", nil, bearer(studentTok))

	base := "/api/proctoring/sessions/" + id
	detector := map[string]string{"X-Ingest-Token": ingest}
	ev := map[string]any{"event_type": "no_face", "severity": "low"}

	if status, out := h.do(http.MethodPost, base+"/interventions", map[string]any{"intervention_type": "pause_exam", "message": "hold on"}, bearer(proctorTok)); status != fiber.StatusCreated {
		t.Fatalf("pause: expected 201, got %d (%v)", status, out)
	}
	if status, out := h.do(http.MethodPost, base+"/events", ev, detector); status != fiber.StatusLocked || out["code"] != "session_paused" {
		t.Fatalf("event while paused: expected 423 session_paused, got %d (%v)", status, out)
	}
	if status, _ := h.do(http.MethodPost, base+"/resume", nil, bearer(proctorTok)); status != fiber.StatusOK {
		t.Fatalf("resume: expected 200, got %d", status)
	}
	if status, _ := h.do(http.MethodPost, base+"/events", ev, detector); status != fiber.StatusCreated {
		t.Fatalf("event after resume: expected 201, got %d", status)
	}

	if status, _ := h.do(http.MethodPost, base+"/interventions", map[string]any{"intervention_type": "terminate_exam"}, bearer(proctorTok)); status != fiber.StatusCreated {
		t.Fatalf("terminate: expected 201, got %d", status)
	}
	if status, out := h.do(http.MethodPost, base+"/events", ev, detector); status != fiber.StatusConflict || out["code"] != "session_closed" {
		t.Fatalf("event after terminate: expected 409 session_closed, got %d (%v)", status, out)
	}

	status, out := h.do(http.MethodGet, base+"/interventions", nil, bearer(proctorTok))
	if status != fiber.StatusOK || len(out["interventions"].([]any)) != 2 {
		t.Fatalf("expected 2 interventions, got %d (%v)", status, out)
	}
}

func TestStudentAccessIsLimited(t *testing.T) {
	h := newHarness(t)
	studentTok := h.token(studentID, models.RoleStudent)
	otherTok := h.token("student-2", models.RoleStudent)

	id, _ := h.createSession(studentTok)
	base := "/api/proctoring/sessions/" + id

	if status, _ := h.do(http.MethodGet, base, nil, bearer(studentTok)); status != fiber.StatusForbidden {
		t.Fatalf("student reading reviewer view: expected 403, got %d", status)
	}
	if status, _ := h.do(http.MethodPost, base+"/start", nil, bearer(otherTok)); status != fiber.StatusNotFound {
		t.Fatalf("other student starting session: expected 404, got %d", status)
	}
	if status, _ := h.do(http.MethodPost, base+"/end", map[string]any{"reason": "terminated"}, bearer(studentTok)); status != fiber.StatusForbidden {
		t.Fatalf("student terminating: expected 403, got %d", status)
	}
	if status, _ := h.do(http.MethodPost, "/api/proctoring/sessions",
		map[string]any{"student_id": "student-2", "exam_id": examID, "college_id": "c"}, bearer(studentTok)); status != fiber.StatusForbidden {
		t.Fatalf("creating a session for someone else: expected 403, got %d", status)
	}
	if status, _ := h.do(http.MethodPost, base+"/consent", map[string]any{}, bearer(studentTok)); status != fiber.StatusBadRequest {
		t.Fatalf("consent without a decision: expected 400, got %d", status)
	}
	if status, _ := h.do(http.MethodPost, base+"/consent", map[string]any{"consent_given": true}, bearer(studentTok)); status != fiber.StatusOK {
		t.Fatalf("consent: expected 200, got %d", status)
	}

	status, out := h.do(http.MethodPost, base+"/end", nil, bearer(studentTok))
	if status != fiber.StatusOK || out["session"].(map[string]any)["status"] != "completed" {
		t.Fatalf("end: expected completed, got %d (%v)", status, out)
	}
	status, out = h.do(http.MethodPost, base+"/end", nil, bearer(studentTok))
	if status != fiber.StatusOK || out["session"].(map[string]any)["status"] != "completed" {
		t.Fatalf("second end should be idempotent, got %d (%v)", status, out)
	}
}

func TestInstructorAlertScope(t *testing.T) {
	h := newHarness(t)
	studentTok := h.token(studentID, models.RoleStudent)
	ownerTok := h.token(instructorID, models.RoleInstructor)
	otherTok := h.token("instructor-2", models.RoleInstructor)

	id, ingest := h.createSession(studentTok)
	h.do(http.MethodPost, "/api/proctoring/sessions/"+id+"/events",
		map[string]any{"event_type": "screen_share", "severity": "high"},
		map[string]string{"X-Ingest-Token": ingest})

	_, out := h.do(http.MethodGet, "/api/proctoring/alerts", nil, bearer(ownerTok))
	if n := len(out["alerts"].([]any)); n != 1 {
		t.Fatalf("owning instructor: expected 1 alert, got %d", n)
	}
	_, out = h.do(http.MethodGet, "/api/proctoring/alerts", nil, bearer(otherTok))
	if n := len(out["alerts"].([]any)); n != 0 {
		t.Fatalf("other instructor: expected 0 alerts, got %d", n)
	}
	if status, _ := h.do(http.MethodGet, "/api/proctoring/alerts?status=bogus", nil, bearer(ownerTok)); status != fiber.StatusBadRequest {
		t.Fatalf("unknown status filter: expected 400, got %d", status)
	}

	status, out := h.do(http.MethodGet, "/api/proctoring/exams/"+examID+"/active-sessions", nil, bearer(ownerTok))
	if status != fiber.StatusOK {
		t.Fatalf("active sessions: expected 200, got %d", status)
	}
	if n := len(out["sessions"].([]any)); n != 0 {
		t.Fatalf("pending session is not active, got %d sessions", n)
	}
}

func TestInstructorCannotActOnOtherExams(t *testing.T) {
	h := newHarness(t)
	studentTok := h.token(studentID, models.RoleStudent)
	ownerTok := h.token(instructorID, models.RoleInstructor)
	otherTok := h.token("instructor-2", models.RoleInstructor)
	adminTok := h.token("admin-1", models.RoleAdmin)

	id, ingest := h.createSession(studentTok)
	h.do(http.MethodPost, "/api/proctoring/sessions/"+id+"/start", nil, bearer(studentTok))
	_, out := h.do(http.MethodPost, "/api/proctoring/sessions/"+id+"/events",
		map[string]any{"event_type": "multiple_faces", "severity": "critical"},
		map[string]string{"X-Ingest-Token": ingest})
	eventID := out["event"].(map[string]any)["id"].(string)

	_, out = h.do(http.MethodGet, "/api/proctoring/alerts", nil, bearer(ownerTok))
	alertID := out["alerts"].([]any)[0].(map[string]any)["id"].(string)
	status, out := h.do(http.MethodPost, "/api/proctoring/sessions/"+id+"/violations",
		map[string]any{"violation_type": "impersonation", "severity": "critical", "title": "Second person"}, bearer(ownerTok))
	if status != fiber.StatusCreated {
		t.Fatalf("create violation: expected 201, got %d (%v)", status, out)
	}
	violationID := out["violation"].(map[string]any)["id"].(string)

	base := "/api/proctoring/sessions/" + id
	tests := []struct {
		name   string
		method string
		path   string
		body   any
	}{
		{"get session", http.MethodGet, base, nil},
		{"list events", http.MethodGet, base + "/events", nil},
		{"list violations", http.MethodGet, base + "/violations", nil},
		{"list interventions", http.MethodGet, base + "/interventions", nil},
		{"session stream", http.MethodGet, base + "/stream", nil},
		{"resume", http.MethodPost, base + "/resume", nil},
		{"terminate", http.MethodPost, base + "/interventions", map[string]any{"intervention_type": "terminate_exam"}},
		{"pause", http.MethodPost, base + "/interventions", map[string]any{"intervention_type": "pause_exam"}},
		{"end as terminated", http.MethodPost, base + "/end", map[string]any{"reason": "terminated"}},
		{"file violation", http.MethodPost, base + "/violations", map[string]any{"violation_type": "x", "severity": "low", "title": "x"}},
		{"flag event", http.MethodPost, "/api/proctoring/events/" + eventID + "/flag", map[string]any{"reason": "x"}},
		{"review violation", http.MethodPost, "/api/proctoring/violations/" + violationID + "/review", map[string]any{"is_false_positive": true}},
		{"acknowledge alert", http.MethodPost, "/api/proctoring/alerts/" + alertID + "/acknowledge", nil},
		{"resolve alert", http.MethodPost, "/api/proctoring/alerts/" + alertID + "/resolve", map[string]any{"notes": "x"}},
	}
	for _, tt := range tests {
		if status, out := h.do(tt.method, tt.path, tt.body, bearer(otherTok)); status != fiber.StatusNotFound {
			t.Fatalf("%s by another instructor: expected 404, got %d (%v)", tt.name, status, out)
		}
	}

	lists := []string{
		"/api/proctoring/sessions?student_id=" + studentID,
		"/api/proctoring/exams/" + examID + "/active-sessions",
	}
	for _, path := range lists {
		status, out := h.do(http.MethodGet, path, nil, bearer(otherTok))
		if status != fiber.StatusOK || len(out["sessions"].([]any)) != 0 {
			t.Fatalf("%s by another instructor: expected no sessions, got %d (%v)", path, status, out)
		}
		status, out = h.do(http.MethodGet, path, nil, bearer(ownerTok))
		if status != fiber.StatusOK || len(out["sessions"].([]any)) != 1 {
			t.Fatalf("%s by the owner: expected 1 session, got %d (%v)", path, status, out)
		}
	}

	// Nothing the other instructor sent took effect.
	_, out = h.do(http.MethodGet, base, nil, bearer(adminTok))
	if sess := out["session"].(map[string]any); sess["status"] != "active" {
		t.Fatalf("session changed by another instructor: %v", sess)
	}
	if out["open_alerts"].(float64) != 1 || out["unreviewed_violations"].(float64) != 1 {
		t.Fatalf("alert or violation changed by another instructor: %v", out)
	}

	owner := []struct {
		name   string
		method string
		path   string
		body   any
		want   int
	}{
		{"get session", http.MethodGet, base, nil, fiber.StatusOK},
		{"flag event", http.MethodPost, "/api/proctoring/events/" + eventID + "/flag", map[string]any{"reason": "x"}, fiber.StatusOK},
		{"acknowledge alert", http.MethodPost, "/api/proctoring/alerts/" + alertID + "/acknowledge", nil, fiber.StatusOK},
		{"review violation", http.MethodPost, "/api/proctoring/violations/" + violationID + "/review", map[string]any{"notes": "ok"}, fiber.StatusOK},
		{"terminate", http.MethodPost, base + "/interventions", map[string]any{"intervention_type": "terminate_exam"}, fiber.StatusCreated},
	}
	for _, tt := range owner {
		if status, out := h.do(tt.method, tt.path, tt.body, bearer(ownerTok)); status != tt.want {
			t.Fatalf("%s by the owner: expected %d, got %d (%v)", tt.name, tt.want, status, out)
		}
	}
}

func TestAlertStreamScope(t *testing.T) {
	h := newHarness(t)
	studentTok := h.token(studentID, models.RoleStudent)
	id, _ := h.createSession(studentTok)

	allow := ownedSessions(h.svc, ps.ReviewerScope{InstructorID: instructorID})
	other := ownedSessions(h.svc, ps.ReviewerScope{InstructorID: "instructor-2"})

	tests := []struct {
		name      string
		sessionID string
		owner     bool
		other     bool
	}{
		{"own exam", id, true, false},
		{"cached answer", id, true, false},
		{"unknown session", "missing", false, false},
	}
	for _, tt := range tests {
		msg := fanout.Message{Topic: fanout.AlertsTopic, Kind: "alert", SessionID: tt.sessionID}
		if got := allow(msg); got != tt.owner {
			t.Fatalf("%s: owner stream admitted = %v, want %v", tt.name, got, tt.owner)
		}
		if got := other(msg); got != tt.other {
			t.Fatalf("%s: other instructor stream admitted = %v, want %v", tt.name, got, tt.other)
		}
	}
}

func TestViolationReviewFlow(t *testing.T) {
	h := newHarness(t)
	studentTok := h.token(studentID, models.RoleStudent)
	reviewerTok := h.token(instructorID, models.RoleInstructor)

	id, ingest := h.createSession(studentTok)
	_, out := h.do(http.MethodPost, "/api/proctoring/sessions/"+id+"/events",
		map[string]any{"event_type": "copy_paste", "severity": "medium"},
		map[string]string{"X-Ingest-Token": ingest})
	eventID := out["event"].(map[string]any)["id"].(string)

	if status, _ := h.do(http.MethodPost, "/api/proctoring/events/"+eventID+"/flag", map[string]any{"reason": "check"}, bearer(reviewerTok)); status != fiber.StatusOK {
		t.Fatalf("flag: expected 200, got %d", status)
	}

	status, out := h.do(http.MethodPost, "/api/proctoring/sessions/"+id+"/violations", map[string]any{
		"event_id":       eventID,
		"violation_type": "copy_paste",
		"severity":       "medium",
		"title":          "Pasted answer",
		"evidence_urls":  []string{"https://evidence.example.com/1.png"},
	}, bearer(reviewerTok))
	if status != fiber.StatusCreated {
		t.Fatalf("create violation: expected 201, got %d (%v)", status, out)
	}
	violationID := out["violation"].(map[string]any)["id"].(string)

	status, out = h.do(http.MethodPost, "/api/proctoring/violations/"+violationID+"/review",
		map[string]any{"notes": "confirmed", "action_taken": "grade_zeroed"}, bearer(reviewerTok))
	if status != fiber.StatusOK {
		t.Fatalf("review: expected 200, got %d (%v)", status, out)
	}
	v := out["violation"].(map[string]any)
	if v["reviewed"] != true || v["reviewed_by"] != instructorID {
		t.Fatalf("unexpected review state %v", v)
	}

	status, out = h.do(http.MethodGet, "/api/proctoring/sessions/"+id+"/violations", nil, bearer(reviewerTok))
	if status != fiber.StatusOK || len(out["violations"].([]any)) != 1 {
		t.Fatalf("list violations: got %d (%v)", status, out)
	}
	if status, _ := h.do(http.MethodGet, "/api/proctoring/sessions/missing/events", nil, bearer(reviewerTok)); status != fiber.StatusNotFound {
		t.Fatalf("events of unknown session: expected 404, got %d", status)
	}
}

func TestStatusFor(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err  error
		want int
	}{
		{ps.ErrValidation, fiber.StatusBadRequest},
		{ps.ErrNotFound, fiber.StatusNotFound},
		{ps.ErrInvalidTransition, fiber.StatusConflict},
		{ps.ErrSessionClosed, fiber.StatusConflict},
		{ps.ErrSessionPaused, fiber.StatusLocked},
		{ps.ErrTransientStorage, fiber.StatusServiceUnavailable},
		{ps.ErrUnauthorized, fiber.StatusUnauthorized},
		{io.ErrUnexpectedEOF, fiber.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := StatusFor(tt.err); got != tt.want {
			t.Errorf("StatusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

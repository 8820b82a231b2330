package proctoring

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"campus-portal/app/models"
	"campus-portal/app/routes/auth"
	ps "campus-portal/app/services/proctoring"
)

func isReviewer(user *models.User) bool {
	return user != nil && user.HasRole(reviewerRoles...)
}

func scopeOf(user *models.User) ps.ReviewerScope {
	return ps.ReviewerScope{
		InstructorID: user.ID,
		AllScopes:    user.HasRole(models.RoleAdmin, models.RoleProctor),
	}
}

// sessionForCaller loads the session and checks the caller is its student
// or a reviewer in scope.
func sessionForCaller(c *fiber.Ctx, svc *ps.Service) (*models.ProctoringSession, error) {
	sess, err := svc.GetSession(c.UserContext(), c.Params("id"))
	if err != nil {
		return nil, err
	}
	user := auth.CurrentUser(c)
	switch {
	case user == nil:
		return nil, ps.ErrNotFound
	case user.ID == sess.StudentID:
		return sess, nil
	case isReviewer(user):
		return svc.AuthorizeReviewer(c.UserContext(), sess.ID, scopeOf(user))
	}
	// Other students' sessions read as missing.
	return nil, ps.ErrNotFound
}

// reviewSession checks the reviewer may act on sessionID. Sessions outside
// an instructor's exams read as missing.
func reviewSession(c *fiber.Ctx, svc *ps.Service, sessionID string) error {
	_, err := svc.AuthorizeReviewer(c.UserContext(), sessionID, scopeOf(auth.CurrentUser(c)))
	return err
}

// AppendEventAPI ingests one detector event
func AppendEventAPI(c *fiber.Ctx, svc *ps.Service) error {
	var in ps.AppendEventInput
	if err := c.BodyParser(&in); err != nil {
		return badRequest(c, "Invalid request body")
	}
	in.SessionID = c.Params("id")

	ev, err := svc.AppendEvent(c.UserContext(), in)
	if err != nil {
		return writeError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"event":   ev,
	})
}

// GetSettingsAPI returns the detector configuration bound to the session
func GetSettingsAPI(c *fiber.Ctx, svc *ps.Service) error {
	st, err := svc.GetSessionSettings(c.UserContext(), c.Params("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(fiber.Map{
		"success":  true,
		"settings": st,
	})
}

// CreateSessionAPI creates a pending session and issues the detector ingest token
func CreateSessionAPI(c *fiber.Ctx, svc *ps.Service) error {
	var in ps.CreateSessionInput
	if err := c.BodyParser(&in); err != nil {
		return badRequest(c, "Invalid request body")
	}
	user := auth.CurrentUser(c)
	if !isReviewer(user) {
		if in.StudentID != "" && in.StudentID != user.ID {
			return forbidden(c)
		}
		in.StudentID = user.ID
	}

	sess, token, err := svc.CreateSession(c.UserContext(), in)
	if err != nil {
		return writeError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success":      true,
		"session":      sess,
		"ingest_token": token,
	})
}

func StartSessionAPI(c *fiber.Ctx, svc *ps.Service) error {
	if _, err := sessionForCaller(c, svc); err != nil {
		return writeError(c, err)
	}
	sess, err := svc.StartSession(c.UserContext(), c.Params("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(fiber.Map{"success": true, "session": sess})
}

func ConsentAPI(c *fiber.Ctx, svc *ps.Service) error {
	var req struct {
		ConsentGiven *bool `json:"consent_given"`
	}
	if err := c.BodyParser(&req); err != nil || req.ConsentGiven == nil {
		return badRequest(c, "consent_given is required")
	}
	if _, err := sessionForCaller(c, svc); err != nil {
		return writeError(c, err)
	}
	sess, err := svc.RecordConsent(c.UserContext(), c.Params("id"), *req.ConsentGiven)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(fiber.Map{"success": true, "session": sess})
}

func IdentityAPI(c *fiber.Ctx, svc *ps.Service) error {
	var req struct {
		Verified *bool `json:"verified"`
	}
	if err := c.BodyParser(&req); err != nil || req.Verified == nil {
		return badRequest(c, "verified is required")
	}
	if _, err := sessionForCaller(c, svc); err != nil {
		return writeError(c, err)
	}
	sess, err := svc.VerifyIdentity(c.UserContext(), c.Params("id"), *req.Verified)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(fiber.Map{"success": true, "session": sess})
}

// EndSessionAPI ends a session. The reason defaults to completed; only
// reviewers may terminate.
func EndSessionAPI(c *fiber.Ctx, svc *ps.Service) error {
	var req struct {
		Reason models.SessionStatus `json:"reason"`
	}
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, "Invalid request body")
		}
	}
	if req.Reason == "" {
		req.Reason = models.SessionCompleted
	}
	if req.Reason == models.SessionTerminated && !isReviewer(auth.CurrentUser(c)) {
		return forbidden(c)
	}
	if _, err := sessionForCaller(c, svc); err != nil {
		return writeError(c, err)
	}
	sess, err := svc.EndSession(c.UserContext(), c.Params("id"), req.Reason)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(fiber.Map{"success": true, "session": sess})
}

// GetSessionAPI returns the session with its open reviewer workload
func GetSessionAPI(c *fiber.Ctx, svc *ps.Service) error {
	if err := reviewSession(c, svc, c.Params("id")); err != nil {
		return writeError(c, err)
	}
	summary, err := svc.GetSessionSummary(c.UserContext(), c.Params("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(fiber.Map{
		"success":               true,
		"session":               summary.Session,
		"open_alerts":           summary.OpenAlerts,
		"unreviewed_violations": summary.UnreviewedViolations,
	})
}

func ListSessionsAPI(c *fiber.Ctx, svc *ps.Service) error {
	sessions, err := svc.ListSessionsByStudent(c.UserContext(), c.Query("student_id"))
	if err == nil {
		sessions, err = svc.FilterSessions(c.UserContext(), sessions, scopeOf(auth.CurrentUser(c)))
	}
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(fiber.Map{"success": true, "sessions": emptyIfNil(sessions)})
}

func ActiveSessionsAPI(c *fiber.Ctx, svc *ps.Service) error {
	sessions, err := svc.ListActiveSessionsByExam(c.UserContext(), c.Params("examId"))
	if err == nil {
		sessions, err = svc.FilterSessions(c.UserContext(), sessions, scopeOf(auth.CurrentUser(c)))
	}
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(fiber.Map{"success": true, "sessions": emptyIfNil(sessions)})
}

func ResumeSessionAPI(c *fiber.Ctx, svc *ps.Service) error {
	if err := reviewSession(c, svc, c.Params("id")); err != nil {
		return writeError(c, err)
	}
	sess, err := svc.ResumeSession(c.UserContext(), c.Params("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(fiber.Map{"success": true, "session": sess})
}

func ListEventsAPI(c *fiber.Ctx, svc *ps.Service) error {
	if err := reviewSession(c, svc, c.Params("id")); err != nil {
		return writeError(c, err)
	}
	events, err := svc.ListEvents(c.UserContext(), ps.EventFilter{
		SessionID: c.Params("id"),
		Severity:  models.Severity(c.Query("severity")),
		EventType: models.EventType(c.Query("type")),
		Limit:     c.QueryInt("limit", 0),
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(fiber.Map{"success": true, "events": emptyIfNil(events)})
}

func FlagEventAPI(c *fiber.Ctx, svc *ps.Service) error {
	var req struct {
		Reason string `json:"reason"`
	}
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	ev, err := svc.GetEvent(c.UserContext(), c.Params("id"))
	if err != nil {
		return writeError(c, err)
	}
	if err := reviewSession(c, svc, ev.SessionID); err != nil {
		return writeError(c, err)
	}
	ev, err = svc.FlagEvent(c.UserContext(), c.Params("id"), auth.CurrentUser(c).ID, req.Reason)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(fiber.Map{"success": true, "event": ev})
}

func ListViolationsAPI(c *fiber.Ctx, svc *ps.Service) error {
	if err := reviewSession(c, svc, c.Params("id")); err != nil {
		return writeError(c, err)
	}
	violations, err := svc.ListViolations(c.UserContext(), c.Params("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(fiber.Map{"success": true, "violations": emptyIfNil(violations)})
}

func CreateViolationAPI(c *fiber.Ctx, svc *ps.Service) error {
	var in ps.CreateViolationInput
	if err := c.BodyParser(&in); err != nil {
		return badRequest(c, "Invalid request body")
	}
	in.SessionID = c.Params("id")
	if err := reviewSession(c, svc, in.SessionID); err != nil {
		return writeError(c, err)
	}

	v, err := svc.CreateViolation(c.UserContext(), in)
	if err != nil {
		return writeError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"success": true, "violation": v})
}

func ReviewViolationAPI(c *fiber.Ctx, svc *ps.Service) error {
	var in ps.ReviewInput
	if err := c.BodyParser(&in); err != nil {
		return badRequest(c, "Invalid request body")
	}
	in.ReviewerID = auth.CurrentUser(c).ID

	v, err := svc.GetViolation(c.UserContext(), c.Params("id"))
	if err != nil {
		return writeError(c, err)
	}
	if err := reviewSession(c, svc, v.SessionID); err != nil {
		return writeError(c, err)
	}
	v, err = svc.ReviewViolation(c.UserContext(), c.Params("id"), in)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(fiber.Map{"success": true, "violation": v})
}

// ListAlertsAPI lists alerts. Instructors see alerts for exams and quizzes
// they created; admins and proctors see all.
func ListAlertsAPI(c *fiber.Ctx, svc *ps.Service) error {
	scope := scopeOf(auth.CurrentUser(c))
	f := ps.AlertFilter{
		InstructorID: scope.InstructorID,
		SessionID:    c.Query("session_id"),
		Limit:        c.QueryInt("limit", 0),
		AllScopes:    scope.AllScopes,
	}
	if raw := c.Query("status"); raw != "" {
		for _, st := range strings.Split(raw, ",") {
			if st = strings.TrimSpace(st); st != "" {
				f.Statuses = append(f.Statuses, models.AlertStatus(st))
			}
		}
	}

	alerts, err := svc.ListAlerts(c.UserContext(), f)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(fiber.Map{"success": true, "alerts": emptyIfNil(alerts)})
}

// alertForReviewer loads the alert and checks its session is in scope.
func alertForReviewer(c *fiber.Ctx, svc *ps.Service) error {
	a, err := svc.GetAlert(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return reviewSession(c, svc, a.SessionID)
}

func AcknowledgeAlertAPI(c *fiber.Ctx, svc *ps.Service) error {
	if err := alertForReviewer(c, svc); err != nil {
		return writeError(c, err)
	}
	a, err := svc.AcknowledgeAlert(c.UserContext(), c.Params("id"), auth.CurrentUser(c).ID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(fiber.Map{"success": true, "alert": a})
}

func ResolveAlertAPI(c *fiber.Ctx, svc *ps.Service) error {
	var req struct {
		Notes string `json:"notes"`
	}
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, "Invalid request body")
		}
	}
	if err := alertForReviewer(c, svc); err != nil {
		return writeError(c, err)
	}
	a, err := svc.ResolveAlert(c.UserContext(), c.Params("id"), auth.CurrentUser(c).ID, req.Notes)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(fiber.Map{"success": true, "alert": a})
}

func ListInterventionsAPI(c *fiber.Ctx, svc *ps.Service) error {
	if err := reviewSession(c, svc, c.Params("id")); err != nil {
		return writeError(c, err)
	}
	interventions, err := svc.ListInterventions(c.UserContext(), c.Params("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(fiber.Map{"success": true, "interventions": emptyIfNil(interventions)})
}

// SendInterventionAPI logs a reviewer action and applies pause or terminate
func SendInterventionAPI(c *fiber.Ctx, svc *ps.Service) error {
	var in ps.SendInterventionInput
	if err := c.BodyParser(&in); err != nil {
		return badRequest(c, "Invalid request body")
	}
	in.SessionID = c.Params("id")
	in.IntervenedBy = auth.CurrentUser(c).ID
	if err := reviewSession(c, svc, in.SessionID); err != nil {
		return writeError(c, err)
	}

	iv, err := svc.SendIntervention(c.UserContext(), in)
	if err != nil {
		return writeError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"success": true, "intervention": iv})
}

func emptyIfNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}

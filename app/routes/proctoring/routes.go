package proctoring

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"campus-portal/app/models"
	"campus-portal/app/routes/auth"
	"campus-portal/app/services/fanout"
	ps "campus-portal/app/services/proctoring"
)

var reviewerRoles = []string{models.RoleInstructor, models.RoleAdmin, models.RoleProctor}

// SetupProctoringRoutes sets up the detector, student and reviewer endpoints.
func SetupProctoringRoutes(app *fiber.App, svc *ps.Service, hub *fanout.Hub) {
	api := app.Group("/api/proctoring")
	reviewer := auth.RoleMiddleware(reviewerRoles...)
	detector := DetectorMiddleware(svc)

	// Detector, authenticated by the session's ingest token
	api.Post("/sessions/:id/events", detector, func(c *fiber.Ctx) error { return AppendEventAPI(c, svc) })
	api.Get("/sessions/:id/settings", detector, func(c *fiber.Ctx) error { return GetSettingsAPI(c, svc) })

	// Student client
	api.Post("/sessions", auth.AuthMiddleware, func(c *fiber.Ctx) error { return CreateSessionAPI(c, svc) })
	api.Post("/sessions/:id/start", auth.AuthMiddleware, func(c *fiber.Ctx) error { return StartSessionAPI(c, svc) })
	api.Post("/sessions/:id/consent", auth.AuthMiddleware, func(c *fiber.Ctx) error { return ConsentAPI(c, svc) })
	api.Post("/sessions/:id/identity", auth.AuthMiddleware, func(c *fiber.Ctx) error { return IdentityAPI(c, svc) })
	api.Post("/sessions/:id/end", auth.AuthMiddleware, func(c *fiber.Ctx) error { return EndSessionAPI(c, svc) })
	api.Get("/sessions/:id/stream", auth.AuthMiddleware, func(c *fiber.Ctx) error { return SessionStreamAPI(c, svc, hub) })

	// Reviewers
	api.Get("/sessions", auth.AuthMiddleware, reviewer, func(c *fiber.Ctx) error { return ListSessionsAPI(c, svc) })
	api.Get("/sessions/:id", auth.AuthMiddleware, reviewer, func(c *fiber.Ctx) error { return GetSessionAPI(c, svc) })
	api.Post("/sessions/:id/resume", auth.AuthMiddleware, reviewer, func(c *fiber.Ctx) error { return ResumeSessionAPI(c, svc) })
	api.Get("/exams/:examId/active-sessions", auth.AuthMiddleware, reviewer, func(c *fiber.Ctx) error { return ActiveSessionsAPI(c, svc) })

	api.Get("/sessions/:id/events", auth.AuthMiddleware, reviewer, func(c *fiber.Ctx) error { return ListEventsAPI(c, svc) })
	api.Post("/events/:id/flag", auth.AuthMiddleware, reviewer, func(c *fiber.Ctx) error { return FlagEventAPI(c, svc) })

	api.Get("/sessions/:id/violations", auth.AuthMiddleware, reviewer, func(c *fiber.Ctx) error { return ListViolationsAPI(c, svc) })
	api.Post("/sessions/:id/violations", auth.AuthMiddleware, reviewer, func(c *fiber.Ctx) error { return CreateViolationAPI(c, svc) })
	api.Post("/violations/:id/review", auth.AuthMiddleware, reviewer, func(c *fiber.Ctx) error { return ReviewViolationAPI(c, svc) })

	api.Get("/alerts", auth.AuthMiddleware, reviewer, func(c *fiber.Ctx) error { return ListAlertsAPI(c, svc) })
	api.Get("/alerts/stream", auth.AuthMiddleware, reviewer, func(c *fiber.Ctx) error { return AlertStreamAPI(c, svc, hub) })
	api.Post("/alerts/:id/acknowledge", auth.AuthMiddleware, reviewer, func(c *fiber.Ctx) error { return AcknowledgeAlertAPI(c, svc) })
	api.Post("/alerts/:id/resolve", auth.AuthMiddleware, reviewer, func(c *fiber.Ctx) error { return ResolveAlertAPI(c, svc) })

	api.Get("/sessions/:id/interventions", auth.AuthMiddleware, reviewer, func(c *fiber.Ctx) error { return ListInterventionsAPI(c, svc) })
	api.Post("/sessions/:id/interventions", auth.AuthMiddleware, reviewer, func(c *fiber.Ctx) error { return SendInterventionAPI(c, svc) })
}

// DetectorMiddleware checks the X-Ingest-Token header against the session.
func DetectorMiddleware(svc *ps.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := c.Get("X-Ingest-Token")
		if token == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"success": false, "error": "Missing ingest token", "code": "unauthorized"})
		}
		if err := svc.AuthorizeDetector(c.UserContext(), c.Params("id"), token); err != nil {
			if errors.Is(err, ps.ErrNotFound) {
				err = ps.ErrUnauthorized
			}
			return writeError(c, err)
		}
		return c.Next()
	}
}

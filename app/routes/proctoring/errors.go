package proctoring

import (
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v2"

	ps "campus-portal/app/services/proctoring"
)

// StatusFor maps a service error to its HTTP status.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, ps.ErrValidation):
		return fiber.StatusBadRequest
	case errors.Is(err, ps.ErrUnauthorized):
		return fiber.StatusUnauthorized
	case errors.Is(err, ps.ErrNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, ps.ErrInvalidTransition), errors.Is(err, ps.ErrSessionClosed):
		return fiber.StatusConflict
	case errors.Is(err, ps.ErrSessionPaused):
		return fiber.StatusLocked
	case errors.Is(err, ps.ErrTransientStorage):
		return fiber.StatusServiceUnavailable
	default:
		return fiber.StatusInternalServerError
	}
}

func writeError(c *fiber.Ctx, err error) error {
	status := StatusFor(err)
	msg := err.Error()
	if status >= fiber.StatusInternalServerError {
		slog.Error("proctoring request failed",
			"method", c.Method(), "path", c.Path(), "status", status, "error", err)
		if status == fiber.StatusInternalServerError {
			msg = "Internal server error"
		}
	}
	return c.Status(status).JSON(fiber.Map{
		"success": false,
		"error":   msg,
		"code":    ps.Kind(err),
	})
}

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"success": false,
		"error":   msg,
		"code":    "validation_error",
	})
}

func forbidden(c *fiber.Ctx) error {
	return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
		"success": false,
		"error":   "Insufficient permissions",
		"code":    "forbidden",
	})
}

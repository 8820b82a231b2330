package auth

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"campus-portal/app/models"
)

func SetupAuthRoutes(app *fiber.App, users Users) {
	auth := app.Group("/auth")

	auth.Post("/login", func(c *fiber.Ctx) error {
		return LoginAPI(c, users)
	})
	auth.Post("/logout", LogoutAPI)

	auth.Get("/me", AuthMiddleware, MeAPI)
}

// bearerToken reads the JWT from the cookie, then the Authorization header.
func bearerToken(c *fiber.Ctx) string {
	if token := c.Cookies("jwt_token"); token != "" {
		return token
	}
	auth := c.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return ""
}

// AuthMiddleware validates JWT and sets user context
func AuthMiddleware(c *fiber.Ctx) error {
	tokenString := bearerToken(c)
	if tokenString == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"success": false, "error": "No token found", "code": "unauthorized"})
	}

	claims, err := ValidateJWT(tokenString)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"success": false, "error": "Invalid token", "code": "unauthorized"})
	}

	user := &models.User{
		ID:        claims.UserID,
		Email:     claims.Email,
		FirstName: claims.FirstName,
		LastName:  claims.LastName,
		IsActive:  true,
	}

	roles := make([]*models.Role, len(claims.Roles))
	for i, roleName := range claims.Roles {
		roles[i] = &models.Role{Name: roleName}
	}
	user.Roles = roles

	c.Locals("user_id", user.ID)
	c.Locals("user_roles", roles)
	c.Locals("user", user)

	return c.Next()
}

// RoleMiddleware checks if user has required role
func RoleMiddleware(allowedRoles ...string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if user := CurrentUser(c); user != nil && user.HasRole(allowedRoles...) {
			return c.Next()
		}
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"success": false, "error": "Insufficient permissions", "code": "forbidden"})
	}
}

// CurrentUser returns the user set by AuthMiddleware, or nil.
func CurrentUser(c *fiber.Ctx) *models.User {
	user, _ := c.Locals("user").(*models.User)
	return user
}

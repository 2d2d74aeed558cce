package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// RequireRoles admits the request only if the token role is one of roles.
// Usage: route(..., RequireRoles("admin"))
func RequireRoles(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			role, _ := c.Get("role").(string)
			if role == "" {
				return c.JSON(http.StatusForbidden, echo.Map{"error": "role missing"})
			}
			for _, r := range roles {
				if role == r {
					return next(c)
				}
			}
			return c.JSON(http.StatusForbidden, echo.Map{"error": "access denied"})
		}
	}
}

// UserID returns the authenticated account id set by JWT.
func UserID(c echo.Context) (string, bool) {
	uid, ok := c.Get("user_id").(string)
	return uid, ok && uid != ""
}

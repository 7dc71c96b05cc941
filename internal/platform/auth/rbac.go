package auth

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// RequireRole rejects actors holding none of roles. Administrators always pass.
func RequireRole(roles ...Role) echo.MiddlewareFunc {
	names := make([]string, len(roles))
	for i, r := range roles {
		names[i] = string(r)
	}
	denied := fmt.Sprintf("required role: %s", strings.Join(names, " or "))

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			actor := ActorFromContext(c.Request().Context())
			if actor == nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
			}
			if actor.IsAdmin() {
				return next(c)
			}
			for _, r := range roles {
				if actor.Role == r {
					return next(c)
				}
			}
			return echo.NewHTTPError(http.StatusForbidden, denied)
		}
	}
}

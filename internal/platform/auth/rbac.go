package auth

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// RequireRole returns middleware that allows the request only when the
// authenticated role is one of roles.
func RequireRole(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			role := RoleFromContext(c.Request().Context())
			for _, required := range roles {
				if role == required {
					return next(c)
				}
			}
			return echo.NewHTTPError(http.StatusForbidden,
				fmt.Sprintf("required role: %s", strings.Join(roles, " or ")))
		}
	}
}

// ClinicianOnlyMessage is the 403 body for routes restricted to clinicians.
const ClinicianOnlyMessage = "Permission denied. Only clinicians can access this endpoint"

// RequireClinician restricts a route to clinician accounts.
func RequireClinician() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if RoleFromContext(c.Request().Context()) != RoleClinician {
				return echo.NewHTTPError(http.StatusForbidden, ClinicianOnlyMessage)
			}
			return next(c)
		}
	}
}

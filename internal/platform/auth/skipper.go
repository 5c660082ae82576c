package auth

import (
	"github.com/labstack/echo/v4"
)

// publicPaths lists route paths reachable without a bearer token.
var publicPaths = map[string]bool{
	"/status":                  true,
	"/health/db":               true,
	"/metrics":                 true,
	"/auth/login":              true,
	"/auth/register/patient":   true,
	"/auth/register/clinician": true,
}

// AuthSkipper returns true for requests whose route should skip
// authentication.
func AuthSkipper(c echo.Context) bool {
	return publicPaths[c.Path()]
}

// IsPublicPath reports whether path is reachable without a token.
func IsPublicPath(path string) bool {
	return publicPaths[path]
}

package middleware

import (
	"github.com/labstack/echo/v4"
)

// reportCSP lets the printable report use its own inline stylesheet and
// nothing else.
const reportCSP = "default-src 'none'; style-src 'unsafe-inline'; frame-ancestors 'none'"

// SecurityHeaders sets security response headers on every request.
// Examination data is never cached.
func SecurityHeaders() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			h := c.Response().Header()

			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("X-Frame-Options", "DENY")
			h.Set("Content-Security-Policy", reportCSP)
			h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
			h.Set("Referrer-Policy", "no-referrer")
			h.Set("Cache-Control", "no-store")

			return next(c)
		}
	}
}

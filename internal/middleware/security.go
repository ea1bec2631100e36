package middleware

import (
	"github.com/labstack/echo/v4"
)

// SecurityHeaders returns an Echo middleware that marks relayed bodies as
// non-sniffable, non-framable and non-cacheable. Provider responses carry
// per-user completions and must not be stored by the browser.
func SecurityHeaders() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			h := c.Response().Header()
			h.Set(echo.HeaderXContentTypeOptions, "nosniff")
			h.Set(echo.HeaderXFrameOptions, "DENY")
			h.Set(echo.HeaderCacheControl, "no-store")
			h.Set("Referrer-Policy", "no-referrer")
			return next(c)
		}
	}
}

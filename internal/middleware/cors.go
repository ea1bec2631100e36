package middleware

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
)

// allowedHeaders are the request headers a browser may send to the relay.
var allowedHeaders = []string{
	echo.HeaderContentType,
	"x-api-key",
	"anthropic-version",
	echo.HeaderAuthorization,
}

// CORS returns an Echo middleware that grants every origin access to every
// response, including errors, and answers OPTIONS preflights with 200 and an
// empty body without routing. A positive maxAge adds Access-Control-Max-Age.
func CORS(maxAge int) echo.MiddlewareFunc {
	allowHeaders := strings.Join(allowedHeaders, ", ")
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			h := c.Response().Header()
			h.Set(echo.HeaderAccessControlAllowOrigin, "*")
			h.Set(echo.HeaderAccessControlAllowMethods, "GET, POST, OPTIONS")
			h.Set(echo.HeaderAccessControlAllowHeaders, allowHeaders)
			if maxAge > 0 {
				h.Set(echo.HeaderAccessControlMaxAge, strconv.Itoa(maxAge))
			}

			if c.Request().Method == http.MethodOptions {
				return c.NoContent(http.StatusOK)
			}
			return next(c)
		}
	}
}

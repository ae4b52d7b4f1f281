package middleware

import (
	"crypto/subtle"
	"log"
	"net/http"

	"github.com/labstack/echo/v4"
)

// SecretHeader carries the operator secret for the reprocess endpoints.
const SecretHeader = "X-Reprocess-Secret"

// RequireSecret returns a middleware that only lets through requests carrying
// the shared operator secret, in the X-Reprocess-Secret header or a "secret"
// form/query value. An empty configured secret disables the routes.
func RequireSecret(secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if secret == "" {
				return echo.NewHTTPError(http.StatusServiceUnavailable, "reprocessing is not configured")
			}

			given := c.Request().Header.Get(SecretHeader)
			if given == "" {
				given = c.FormValue("secret")
			}
			if given == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing secret")
			}

			if subtle.ConstantTimeCompare([]byte(given), []byte(secret)) != 1 {
				log.Printf("[Reprocess] rejected request from %s: bad secret", c.RealIP())
				return echo.NewHTTPError(http.StatusForbidden, "invalid secret")
			}
			return next(c)
		}
	}
}

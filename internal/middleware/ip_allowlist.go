package middleware

import (
	"log"
	"net/http"

	"github.com/labstack/echo/v4"

	"storefront_payments/internal/config"
	"storefront_payments/internal/models"
	"storefront_payments/internal/services"
)

// IPAllowlist checks the client IP against the gateway ranges for mode. When
// enforce is false a miss is only logged.
func IPAllowlist(list *services.IPAllowlist, mode config.Mode, enforce bool) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ip := c.RealIP()
			if list.IsAllowed(ip, mode) {
				return next(c)
			}

			requestID := c.Request().Header.Get("X-Request-Id")
			if !enforce {
				log.Printf("[Webhook] ip %s outside %s ranges (request_id=%s), continuing", ip, mode, requestID)
				return next(c)
			}
			log.Printf("[Webhook] rejected ip=%s outside %s ranges request_id=%s", ip, mode, requestID)
			SetOutcome(c, models.OutcomeIPRejected)
			return echo.NewHTTPError(http.StatusForbidden, "forbidden")
		}
	}
}

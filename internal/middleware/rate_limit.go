package middleware

import (
	"log"
	"net/http"

	"github.com/labstack/echo/v4"

	"storefront_payments/internal/models"
	"storefront_payments/internal/services"
)

// RateLimit rejects a client IP with 429 once its sliding window is full. It
// runs before the body is read. A store failure lets the request through.
func RateLimit(limiter *services.RateLimiter) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ip := c.RealIP()
			allowed, err := limiter.Allow(c.Request().Context(), ip)
			if err != nil {
				log.Printf("[Webhook] rate limiter unavailable, letting %s through: %v", ip, err)
				return next(c)
			}
			if !allowed {
				log.Printf("[Webhook] rate limited ip=%s request_id=%s", ip, c.Request().Header.Get("X-Request-Id"))
				SetOutcome(c, models.OutcomeRateLimited)
				return echo.NewHTTPError(http.StatusTooManyRequests, "rate limit exceeded")
			}
			return next(c)
		}
	}
}

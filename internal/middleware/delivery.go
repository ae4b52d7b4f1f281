package middleware

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"storefront_payments/internal/models"
	"storefront_payments/internal/services"
)

const deliveryKey = "webhookDelivery"

// Delivery returns the delivery record being built for this request, or nil
// outside RecordDelivery.
func Delivery(c echo.Context) *models.WebhookDelivery {
	d, _ := c.Get(deliveryKey).(*models.WebhookDelivery)
	return d
}

// SetOutcome tags the current delivery. A no-op outside RecordDelivery.
func SetOutcome(c echo.Context, outcome models.DeliveryOutcome) {
	if d := Delivery(c); d != nil {
		d.Outcome = outcome
	}
}

// RecordDelivery wraps the webhook route: every inbound call, including the
// ones rejected by later middleware, ends up in the delivery log and the
// webhook.deliveries counter.
func RecordDelivery(deliveries services.DeliveryLog) echo.MiddlewareFunc {
	counter, err := otel.Meter("storefront_payments/internal/middleware").Int64Counter("webhook.deliveries",
		metric.WithDescription("Inbound webhook deliveries by outcome"))
	if err != nil {
		log.Printf("[Webhook] metric init failed: %v", err)
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			d := &models.WebhookDelivery{
				ReceivedAt: time.Now().UTC(),
				RemoteIP:   c.RealIP(),
				RequestID:  req.Header.Get("X-Request-Id"),
			}
			c.Set(deliveryKey, d)

			err := next(c)

			d.StatusCode = statusOf(c, err)
			if d.Outcome == "" {
				d.Outcome = outcomeForStatus(d.StatusCode)
			}
			if counter != nil {
				counter.Add(req.Context(), 1, metric.WithAttributes(attribute.String("outcome", string(d.Outcome))))
			}

			// The request context may already be cancelled by the time we log.
			if deliveries != nil {
				if lerr := deliveries.Append(context.WithoutCancel(req.Context()), *d); lerr != nil {
					log.Printf("[Webhook] failed to record delivery from %s: %v", d.RemoteIP, lerr)
				}
			}
			return err
		}
	}
}

func statusOf(c echo.Context, err error) int {
	if err == nil {
		return c.Response().Status
	}
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he.Code
	}
	return http.StatusInternalServerError
}

func outcomeForStatus(code int) models.DeliveryOutcome {
	switch {
	case code == http.StatusTooManyRequests:
		return models.OutcomeRateLimited
	case code == http.StatusBadRequest:
		return models.OutcomeMalformed
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return models.OutcomeSignatureInvalid
	case code >= http.StatusInternalServerError:
		return models.OutcomeFailed
	default:
		return models.OutcomeIgnored
	}
}

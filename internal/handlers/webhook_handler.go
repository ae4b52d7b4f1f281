package handlers

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"storefront_payments/internal/middleware"
	"storefront_payments/internal/models"
	"storefront_payments/internal/services"
)

const maxWebhookBody = 1 << 20

// PaymentProcessor is the part of services.PaymentService the HTTP layer
// drives.
type PaymentProcessor interface {
	ProcessPayment(ctx context.Context, paymentID string, actor models.HistoryActor) (*services.ReconcileResult, error)
	ProcessChargeback(ctx context.Context, chargebackID, action string) ([]services.ChargebackResult, error)
}

type WebhookHandler struct {
	verifier  *services.SignatureVerifier
	processor PaymentProcessor
	tracer    trace.Tracer
}

func NewWebhookHandler(verifier *services.SignatureVerifier, processor PaymentProcessor) *WebhookHandler {
	return &WebhookHandler{
		verifier:  verifier,
		processor: processor,
		tracer:    otel.Tracer("storefront_payments/internal/handlers"),
	}
}

// Probe answers the gateway's GET connectivity check.
func (h *WebhookHandler) Probe(c echo.Context) error {
	return c.String(http.StatusOK, "OK")
}

// HandleNotification authenticates a gateway notification and routes it by
// type. Anything the service understood but will not act on is answered 200
// so the gateway stops retrying.
func (h *WebhookHandler) HandleNotification(c echo.Context) error {
	req := c.Request()
	ip := c.RealIP()
	requestID := req.Header.Get("X-Request-Id")

	ctx, span := h.tracer.Start(req.Context(), "webhook.receive", trace.WithAttributes(
		attribute.String("client.ip", ip),
		attribute.String("request.id", requestID),
	))
	defer span.End()

	body, err := io.ReadAll(io.LimitReader(req.Body, maxWebhookBody))
	if err != nil {
		middleware.SetOutcome(c, models.OutcomeMalformed)
		return echo.NewHTTPError(http.StatusBadRequest, "unreadable body")
	}

	n, err := services.ParseNotification(body, c.QueryParams())
	if d := middleware.Delivery(c); d != nil {
		d.Body = string(body)
		d.Type = n.RawType
		d.Action = n.Action
		d.EntityID = n.EntityID
	}
	if err != nil {
		log.Printf("[Webhook] rejected ip=%s request_id=%s: %v", ip, requestID, err)
		middleware.SetOutcome(c, models.OutcomeMalformed)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid notification")
	}
	span.SetAttributes(
		attribute.String("notification.type", string(n.Type)),
		attribute.String("notification.id", n.EntityID),
	)

	if err := h.verifier.Check(n.DataID, requestID, req.Header.Get("X-Signature")); err != nil {
		log.Printf("[Webhook] rejected ip=%s request_id=%s id=%s: %v", ip, requestID, n.EntityID, err)
		switch {
		case errors.Is(err, services.ErrSignatureStale):
			middleware.SetOutcome(c, models.OutcomeTimestampStale)
			return echo.NewHTTPError(http.StatusUnauthorized, "stale signature")
		case errors.Is(err, services.ErrSignatureMismatch):
			middleware.SetOutcome(c, models.OutcomeSignatureInvalid)
			return echo.NewHTTPError(http.StatusForbidden, "invalid signature")
		default:
			middleware.SetOutcome(c, models.OutcomeSignatureInvalid)
			return echo.NewHTTPError(http.StatusUnauthorized, "missing signature")
		}
	}

	switch n.Type {
	case services.NotificationPayment:
		return h.handlePayment(ctx, c, n)
	case services.NotificationChargeback:
		return h.handleChargeback(ctx, c, n)
	case services.NotificationMerchantOrder:
		log.Printf("[Webhook] merchant order %s (%s) logged, no action", n.EntityID, n.Action)
	default:
		log.Printf("[Webhook] unhandled notification type %q id=%s, acknowledged", n.RawType, n.EntityID)
	}
	middleware.SetOutcome(c, models.OutcomeIgnored)
	return c.String(http.StatusOK, "OK")
}

func (h *WebhookHandler) handlePayment(ctx context.Context, c echo.Context, n services.Notification) error {
	result, err := h.processor.ProcessPayment(ctx, n.EntityID, models.ActorWebhook)
	if err != nil {
		if errors.Is(err, services.ErrPaymentNotFound) {
			log.Printf("[Webhook] payment %s not found at gateway, acknowledged", n.EntityID)
			middleware.SetOutcome(c, models.OutcomeUnresolved)
			return c.String(http.StatusOK, "payment not found")
		}
		log.Printf("[Webhook] payment %s failed, asking gateway to retry: %v", n.EntityID, err)
		middleware.SetOutcome(c, models.OutcomeFailed)
		return echo.NewHTTPError(http.StatusInternalServerError, "processing failed")
	}

	middleware.SetOutcome(c, outcomeForResult(result.Outcome))
	return c.String(http.StatusOK, "OK")
}

func (h *WebhookHandler) handleChargeback(ctx context.Context, c echo.Context, n services.Notification) error {
	results, err := h.processor.ProcessChargeback(ctx, n.EntityID, n.Action)
	if err != nil {
		if errors.Is(err, services.ErrPaymentNotFound) {
			log.Printf("[Webhook] chargeback %s not found at gateway, acknowledged", n.EntityID)
			middleware.SetOutcome(c, models.OutcomeUnresolved)
			return c.String(http.StatusOK, "chargeback not found")
		}
		log.Printf("[Webhook] chargeback %s failed, asking gateway to retry: %v", n.EntityID, err)
		middleware.SetOutcome(c, models.OutcomeFailed)
		return echo.NewHTTPError(http.StatusInternalServerError, "processing failed")
	}

	outcome := models.OutcomeUnresolved
	for _, r := range results {
		if r.Recorded {
			outcome = models.OutcomeApplied
			break
		}
		if r.OrderID != "" && r.Note == "already recorded" {
			outcome = models.OutcomeNoop
		}
	}
	middleware.SetOutcome(c, outcome)
	return c.String(http.StatusOK, "OK")
}

func outcomeForResult(o services.ReconcileOutcome) models.DeliveryOutcome {
	switch o {
	case services.ReconcileApplied:
		return models.OutcomeApplied
	case services.ReconcileAlreadyApplied, services.ReconcileStale:
		return models.OutcomeNoop
	default:
		return models.OutcomeUnresolved
	}
}

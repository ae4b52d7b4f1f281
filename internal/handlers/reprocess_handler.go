package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"storefront_payments/internal/models"
	"storefront_payments/internal/services"
)

type ReprocessHandler struct {
	processor  PaymentProcessor
	deliveries services.DeliveryLog
}

func NewReprocessHandler(processor PaymentProcessor, deliveries services.DeliveryLog) *ReprocessHandler {
	return &ReprocessHandler{processor: processor, deliveries: deliveries}
}

type reprocessRequest struct {
	PaymentID json.Number `json:"payment_id" form:"payment_id" query:"payment_id"`
}

// Reprocess re-runs reconciliation for one payment. The operator secret has
// already been checked by middleware.
func (h *ReprocessHandler) Reprocess(c echo.Context) error {
	var req reprocessRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request")
	}
	paymentID := req.PaymentID.String()
	if paymentID == "" {
		paymentID = c.QueryParam("payment_id")
	}
	if _, err := strconv.ParseUint(paymentID, 10, 64); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "payment_id must be numeric")
	}

	log.Printf("[Reprocess] payment %s requested from %s", paymentID, c.RealIP())
	result, err := h.processor.ProcessPayment(c.Request().Context(), paymentID, models.ActorReprocess)
	if err != nil {
		var gwErr *services.GatewayError
		switch {
		case errors.Is(err, services.ErrPaymentNotFound):
			return echo.NewHTTPError(http.StatusNotFound, "payment not found")
		case errors.As(err, &gwErr):
			return echo.NewHTTPError(http.StatusBadGateway, "gateway error: "+gwErr.Error())
		default:
			log.Printf("[Reprocess] payment %s failed: %v", paymentID, err)
			return echo.NewHTTPError(http.StatusInternalServerError, "reprocess failed")
		}
	}

	log.Printf("[Reprocess] payment %s -> %s (order %s, status %s)", paymentID, result.Outcome, result.OrderID, result.Status)
	return c.JSON(http.StatusOK, result)
}

// Deliveries lists the most recent raw webhook deliveries.
func (h *ReprocessHandler) Deliveries(c echo.Context) error {
	limit := 20
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "limit must be a positive integer")
		}
		limit = n
	}

	deliveries, err := h.deliveries.Recent(c.Request().Context(), limit)
	if err != nil {
		log.Printf("[Reprocess] failed to list deliveries: %v", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to list deliveries")
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"deliveries": deliveries,
	})
}

package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"storefront_payments/internal/models"
)

// Chargeback actions that force the order to cancelada.
var forcingChargebackActions = map[string]bool{
	"created": true,
	"lost":    true,
}

// ChargebackResult summarises what a chargeback notification did to one order.
type ChargebackResult struct {
	ChargebackID string             `json:"chargeback_id"`
	Action       string             `json:"action"`
	PaymentID    string             `json:"payment_id"`
	OrderID      string             `json:"order_id,omitempty"`
	Recorded     bool               `json:"recorded"`
	Status       models.OrderStatus `json:"status,omitempty"`
	StockAction  string             `json:"stock_action"`
	AlertSent    bool               `json:"alert_sent"`
	Note         string             `json:"note,omitempty"`
}

// ProcessChargeback records a dispute on every order it touches and alerts
// the shop owner. On created/lost the order is forced to cancelada and its
// stock restored; this bypasses the payment status table.
func (s *PaymentService) ProcessChargeback(ctx context.Context, chargebackID, action string) ([]ChargebackResult, error) {
	ctx, span := s.tracer.Start(ctx, "chargeback.process", trace.WithAttributes(
		attribute.String("chargeback.id", chargebackID),
		attribute.String("chargeback.action", action),
	))
	defer span.End()

	cb, err := s.gateway.GetChargeback(ctx, chargebackID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if len(cb.Payments) == 0 {
		log.Printf("[Chargeback] ANOMALY chargeback %s lists no payments", chargebackID)
		return nil, nil
	}

	results := make([]ChargebackResult, 0, len(cb.Payments))
	for _, pid := range cb.Payments {
		res, err := s.applyChargeback(ctx, cb, action, strconv.FormatInt(pid, 10))
		if err != nil {
			span.RecordError(err)
			return results, err
		}
		results = append(results, res)
	}
	return results, nil
}

func (s *PaymentService) applyChargeback(ctx context.Context, cb *models.Chargeback, action, paymentID string) (ChargebackResult, error) {
	res := ChargebackResult{
		ChargebackID: cb.ID.String(),
		Action:       action,
		PaymentID:    paymentID,
		StockAction:  StockNone.String(),
	}

	payment, err := s.gateway.GetPayment(ctx, paymentID)
	if err != nil {
		if errors.Is(err, ErrPaymentNotFound) {
			log.Printf("[Chargeback] ANOMALY payment %s of chargeback %s not found at gateway", paymentID, res.ChargebackID)
			res.Note = "payment not found"
			return res, nil
		}
		return res, err
	}
	if payment.ExternalReference == "" {
		log.Printf("[Chargeback] ANOMALY payment %s of chargeback %s has no external_reference", paymentID, res.ChargebackID)
		res.Note = "no external reference"
		return res, nil
	}
	res.OrderID = payment.ExternalReference

	var alertOrder models.Order
	var movements []StockMovement
	err = s.orders.UpdateOrder(ctx, payment.ExternalReference, func(o *models.Order) error {
		res.Status = o.Status
		if o.HasChargeback(res.ChargebackID, action) {
			res.Note = "already recorded"
			return errNoChange
		}

		now := s.now().UTC()
		o.Chargebacks = append(o.Chargebacks, models.ChargebackRecord{
			ID:         res.ChargebackID,
			Action:     action,
			PaymentID:  paymentID,
			Amount:     cb.Amount,
			CurrencyID: cb.CurrencyID,
			Date:       now,
		})
		res.Recorded = true

		if forcingChargebackActions[action] {
			if o.Status != models.OrderStatusCancelled {
				o.AppendHistory(models.StatusHistoryEntry{
					Status:        models.OrderStatusCancelled,
					Date:          now,
					Actor:         models.ActorChargeback,
					PaymentStatus: string(payment.Status),
					Note:          fmt.Sprintf("chargeback %s %s", res.ChargebackID, action),
				})
			}
			if o.StockReduced {
				mv, rerr := s.stock.Restore(ctx, o.Items)
				if rerr != nil {
					return fmt.Errorf("restore stock: %w", rerr)
				}
				movements = mv
				o.StockReduced = false
				res.StockAction = StockRestore.String()
			}
		}

		res.Status = o.Status
		alertOrder = *o
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrOrderNotFound) {
			log.Printf("[Chargeback] ANOMALY order %s for chargeback %s not found", payment.ExternalReference, res.ChargebackID)
			res.Note = "order not found"
			return res, nil
		}
		if len(movements) > 0 {
			if rerr := s.stock.Revert(ctx, movements); rerr != nil {
				log.Printf("[Chargeback] CRITICAL order %s: stock restored but order not saved and revert failed: %v", res.OrderID, rerr)
			}
		}
		return res, fmt.Errorf("persist chargeback on order %s: %w", payment.ExternalReference, err)
	}

	if !res.Recorded {
		log.Printf("[Chargeback] %s/%s already recorded on order %s", res.ChargebackID, action, res.OrderID)
		return res, nil
	}

	log.Printf("[Chargeback] recorded %s/%s on order %s (status %s, stock %s)", res.ChargebackID, action, res.OrderID, res.Status, res.StockAction)
	res.AlertSent = s.notifier.Send(ctx, models.NotifyChargebackAlert, &alertOrder, map[string]string{
		"chargeback_id": res.ChargebackID,
		"action":        action,
		"payment_id":    paymentID,
	})
	return res, nil
}

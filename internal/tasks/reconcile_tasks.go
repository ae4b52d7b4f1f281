package tasks

import (
	"context"
	"errors"
	"log"

	"storefront_payments/internal/models"
	"storefront_payments/internal/services"
)

// OrderLister is the read side of the order store the sweep needs.
type OrderLister interface {
	List(ctx context.Context, match func(models.Order) bool) ([]models.Order, error)
}

// PaymentReprocessor re-runs reconciliation for one payment.
type PaymentReprocessor interface {
	ProcessPayment(ctx context.Context, paymentID string, actor models.HistoryActor) (*services.ReconcileResult, error)
}

// ReconcilePendingTaskDef re-fetches every pendiente order that already has a
// payment id, catching transitions whose webhook never arrived.
type ReconcilePendingTaskDef struct {
	Orders    OrderLister
	Processor PaymentReprocessor
}

// TaskID returns the unique identifier for this task
func (t *ReconcilePendingTaskDef) TaskID() string {
	return "reconcile_pending"
}

// HandleExecution runs one sweep. The optional "limit" argument caps how many
// orders are checked.
func (t *ReconcilePendingTaskDef) HandleExecution(ctx context.Context, args map[string]interface{}) (map[string]interface{}, error) {
	pending, err := t.Orders.List(ctx, func(o models.Order) bool {
		return o.Status == models.OrderStatusPending && o.PaymentID != ""
	})
	if err != nil {
		return nil, err
	}

	if limit, ok := intArg(args, "limit"); ok && limit > 0 && limit < len(pending) {
		pending = pending[:limit]
	}

	checked, applied, unchanged, failed := 0, 0, 0, 0
	var errs []error
	for _, o := range pending {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		checked++

		result, err := t.Processor.ProcessPayment(ctx, o.PaymentID, models.ActorSweep)
		if err != nil {
			failed++
			if !errors.Is(err, services.ErrPaymentNotFound) {
				errs = append(errs, err)
			}
			log.Printf("[Task: %s] order %s payment %s: %v", t.TaskID(), o.ID, o.PaymentID, err)
			continue
		}
		if result.Outcome == services.ReconcileApplied {
			applied++
		} else {
			unchanged++
		}
	}

	log.Printf("[Task: %s] checked=%d applied=%d unchanged=%d failed=%d", t.TaskID(), checked, applied, unchanged, failed)
	return map[string]interface{}{
		"checked":   checked,
		"applied":   applied,
		"unchanged": unchanged,
		"failed":    failed,
	}, errors.Join(errs...)
}

func intArg(args map[string]interface{}, key string) (int, bool) {
	switch v := args[key].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	}
	return 0, false
}

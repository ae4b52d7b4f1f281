package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"storefront_payments/internal/models"
)

const instrumentationName = "storefront_payments/internal/services"

// StockAction is the inventory side effect of a transition.
type StockAction int

const (
	StockNone StockAction = iota
	StockReduce
	StockRestore
)

func (a StockAction) String() string {
	switch a {
	case StockReduce:
		return "reduce"
	case StockRestore:
		return "restore"
	default:
		return "none"
	}
}

// Transition is the order-side consequence of a gateway payment status.
type Transition struct {
	Status  models.OrderStatus
	Stock   StockAction
	Dispute bool
}

// MapPaymentStatus is the gateway status table. The second result is false
// for statuses outside the table; callers must not mutate anything then.
func MapPaymentStatus(status models.PaymentStatus) (Transition, bool) {
	switch status {
	case models.PaymentStatusApproved:
		return Transition{Status: models.OrderStatusPaid, Stock: StockReduce}, true
	case models.PaymentStatusAuthorized, models.PaymentStatusPending, models.PaymentStatusInProcess:
		return Transition{Status: models.OrderStatusPending, Stock: StockNone}, true
	case models.PaymentStatusInMediation:
		return Transition{Status: models.OrderStatusPending, Stock: StockNone, Dispute: true}, true
	case models.PaymentStatusRejected, models.PaymentStatusCancelled:
		return Transition{Status: models.OrderStatusRejected, Stock: StockRestore}, true
	case models.PaymentStatusRefunded, models.PaymentStatusChargedBack:
		return Transition{Status: models.OrderStatusCancelled, Stock: StockRestore}, true
	default:
		return Transition{}, false
	}
}

// notificationsFor lists the messages a new order status triggers. Cancelled
// orders are covered by the chargeback alert path instead.
func notificationsFor(status models.OrderStatus) []models.NotificationKind {
	switch status {
	case models.OrderStatusPaid:
		return []models.NotificationKind{models.NotifyPaymentApproved, models.NotifyAdminNewOrder}
	case models.OrderStatusPending:
		return []models.NotificationKind{models.NotifyPaymentPending}
	case models.OrderStatusRejected:
		return []models.NotificationKind{models.NotifyPaymentRejected, models.NotifyAdminRejected}
	}
	return nil
}

// ReconcileOutcome says what a reconciliation run did.
type ReconcileOutcome string

const (
	ReconcileApplied        ReconcileOutcome = "applied"
	ReconcileAlreadyApplied ReconcileOutcome = "already_applied"
	ReconcileStale          ReconcileOutcome = "stale"
	ReconcileUnknownStatus  ReconcileOutcome = "unknown_status"
	ReconcileNoReference    ReconcileOutcome = "no_reference"
	ReconcileOrderNotFound  ReconcileOutcome = "order_not_found"
)

// NotificationResult records one dispatch attempt.
type NotificationResult struct {
	Kind models.NotificationKind `json:"kind"`
	Sent bool                    `json:"sent"`
}

// ReconcileResult is the summary of one reconciliation, shared by the
// webhook response log, the reprocess endpoint and the CLI.
type ReconcileResult struct {
	Outcome        ReconcileOutcome     `json:"outcome"`
	Actor          models.HistoryActor  `json:"actor"`
	PaymentID      string               `json:"payment_id"`
	PaymentStatus  models.PaymentStatus `json:"payment_status"`
	OrderID        string               `json:"order_id,omitempty"`
	PreviousStatus models.OrderStatus   `json:"previous_status,omitempty"`
	Status         models.OrderStatus   `json:"status,omitempty"`
	StockAction    string               `json:"stock_action"`
	StockReduced   bool                 `json:"stock_reduced"`
	Movements      []StockMovement      `json:"movements,omitempty"`
	Notifications  []NotificationResult `json:"notifications,omitempty"`
	Note           string               `json:"note,omitempty"`
}

// PaymentService is the status reconciler. The webhook endpoint, the manual
// reprocess tool and the sweep worker all go through ProcessPayment, so a
// given payment snapshot produces the same order mutation on every path.
type PaymentService struct {
	gateway  PaymentGateway
	orders   OrderRepository
	stock    *StockAdjuster
	notifier Notifier
	now      func() time.Time

	tracer      trace.Tracer
	transitions metric.Int64Counter
}

func NewPaymentService(gateway PaymentGateway, orders OrderRepository, stock *StockAdjuster, notifier Notifier) *PaymentService {
	transitions, err := otel.Meter(instrumentationName).Int64Counter("reconcile.transitions",
		metric.WithDescription("Order status transitions applied by the reconciler"))
	if err != nil {
		log.Printf("[Reconcile] metric init failed: %v", err)
	}
	return &PaymentService{
		gateway:     gateway,
		orders:      orders,
		stock:       stock,
		notifier:    notifier,
		now:         time.Now,
		tracer:      otel.Tracer(instrumentationName),
		transitions: transitions,
	}
}

// ProcessPayment fetches the payment from the gateway and reconciles it.
// Gateway failures leave every order untouched.
func (s *PaymentService) ProcessPayment(ctx context.Context, paymentID string, actor models.HistoryActor) (*ReconcileResult, error) {
	ctx, span := s.tracer.Start(ctx, "payment.process", trace.WithAttributes(
		attribute.String("payment.id", paymentID),
		attribute.String("actor", string(actor)),
	))
	defer span.End()

	payment, err := s.gateway.GetPayment(ctx, paymentID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "gateway fetch failed")
		return nil, err
	}

	result, err := s.Reconcile(ctx, payment, actor)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "reconcile failed")
		return nil, err
	}
	span.SetAttributes(attribute.String("reconcile.outcome", string(result.Outcome)))
	return result, nil
}

// Reconcile brings the order referenced by payment in line with it. Running
// it again with the same snapshot is a no-op. Only persistence failures are
// returned as errors; every other anomaly is reported in the result.
func (s *PaymentService) Reconcile(ctx context.Context, payment *models.Payment, actor models.HistoryActor) (*ReconcileResult, error) {
	result := &ReconcileResult{
		Actor:         actor,
		PaymentID:     payment.IDString(),
		PaymentStatus: payment.Status,
		OrderID:       payment.ExternalReference,
		StockAction:   StockNone.String(),
	}

	tr, known := MapPaymentStatus(payment.Status)
	if !known {
		log.Printf("[Reconcile] payment %s has unknown status %q, leaving order %s alone", result.PaymentID, payment.Status, payment.ExternalReference)
		result.Outcome = ReconcileUnknownStatus
		return result, nil
	}
	if payment.ExternalReference == "" {
		log.Printf("[Reconcile] ANOMALY payment %s has no external_reference; reprocess manually once resolved", result.PaymentID)
		result.Outcome = ReconcileNoReference
		return result, nil
	}
	if tr.Dispute {
		log.Printf("[Reconcile] payment %s for order %s is in mediation", result.PaymentID, payment.ExternalReference)
	}

	var notifyOrder models.Order
	err := s.orders.UpdateOrder(ctx, payment.ExternalReference, func(o *models.Order) error {
		result.PreviousStatus = o.Status
		result.StockReduced = o.StockReduced

		if o.Status == tr.Status {
			result.Outcome = ReconcileAlreadyApplied
			result.Status = o.Status
			return errNoChange
		}
		if reason := staleReason(o, payment, tr); reason != "" {
			result.Outcome = ReconcileStale
			result.Status = o.Status
			result.Note = reason
			return errNoChange
		}

		o.PaymentStatus = string(payment.Status)
		o.PaymentStatusDetail = payment.StatusDetail
		o.PaymentID = payment.IDString()
		o.GatewayData = models.NewGatewayData(payment)
		o.AppendHistory(models.StatusHistoryEntry{
			Status:        tr.Status,
			Date:          s.now().UTC(),
			Actor:         actor,
			PaymentStatus: string(payment.Status),
			Note:          payment.StatusDetail,
		})

		if err := s.applyStock(ctx, o, tr.Stock, result); err != nil {
			return err
		}

		result.Outcome = ReconcileApplied
		result.Status = o.Status
		result.StockReduced = o.StockReduced
		notifyOrder = *o
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrOrderNotFound) {
			log.Printf("[Reconcile] ANOMALY order %s referenced by payment %s not found", payment.ExternalReference, result.PaymentID)
			result.Outcome = ReconcileOrderNotFound
			return result, nil
		}
		s.compensate(ctx, result)
		return nil, fmt.Errorf("persist order %s: %w", payment.ExternalReference, err)
	}

	switch result.Outcome {
	case ReconcileAlreadyApplied:
		log.Printf("[Reconcile] order %s already %s for payment %s, nothing to do", result.OrderID, result.Status, result.PaymentID)
		return result, nil
	case ReconcileStale:
		log.Printf("[Reconcile] order %s ignoring stale payment %s snapshot: %s", result.OrderID, result.PaymentID, result.Note)
		return result, nil
	}

	log.Printf("[Reconcile] order %s %s -> %s (payment %s %s, stock %s, actor %s)",
		result.OrderID, result.PreviousStatus, result.Status, result.PaymentID, payment.Status, result.StockAction, actor)
	s.recordTransition(ctx, result)

	for _, kind := range notificationsFor(result.Status) {
		sent := s.notifier.Send(ctx, kind, &notifyOrder, nil)
		result.Notifications = append(result.Notifications, NotificationResult{Kind: kind, Sent: sent})
	}
	return result, nil
}

// applyStock performs the stock action at most once per direction, guarded
// by the order's stock_reduced flag.
func (s *PaymentService) applyStock(ctx context.Context, o *models.Order, action StockAction, result *ReconcileResult) error {
	var (
		movements []StockMovement
		err       error
	)
	switch {
	case action == StockReduce && !o.StockReduced:
		movements, err = s.stock.Reduce(ctx, o.Items)
		if err != nil {
			return fmt.Errorf("reduce stock: %w", err)
		}
		o.StockReduced = true
	case action == StockRestore && o.StockReduced:
		movements, err = s.stock.Restore(ctx, o.Items)
		if err != nil {
			return fmt.Errorf("restore stock: %w", err)
		}
		o.StockReduced = false
	default:
		return nil
	}
	result.StockAction = action.String()
	result.Movements = movements
	return nil
}

// compensate reverses stock already written when the order write failed, so
// a gateway retry does not double-apply it.
func (s *PaymentService) compensate(ctx context.Context, result *ReconcileResult) {
	if len(result.Movements) == 0 {
		return
	}
	if err := s.stock.Revert(ctx, result.Movements); err != nil {
		log.Printf("[Reconcile] CRITICAL order %s: stock %s applied but order not saved and revert failed: %v",
			result.OrderID, result.StockAction, err)
		return
	}
	log.Printf("[Reconcile] order %s: reverted stock %s after failed order write", result.OrderID, result.StockAction)
	result.Movements = nil
}

// staleReason rejects snapshots that would move an order backwards:
//   - a paid order only leaves cobrada through the payment that paid it;
//   - a terminal order never returns to pendiente, except a rejected order
//     that a new payment attempt is now pending on;
//   - an older snapshot of the same payment never overwrites a newer one.
func staleReason(o *models.Order, p *models.Payment, tr Transition) string {
	gd := o.GatewayData
	samePayment := gd == nil || gd.PaymentID == p.IDString()

	if o.Status == models.OrderStatusPaid && !samePayment {
		return fmt.Sprintf("order already paid by payment %s", gd.PaymentID)
	}
	if o.Status.IsTerminal() && tr.Status == models.OrderStatusPending {
		if o.Status != models.OrderStatusRejected || samePayment {
			return fmt.Sprintf("order is %s, refusing to move back to %s", o.Status, tr.Status)
		}
	}
	if gd == nil || !samePayment || gd.DateLastUpdated == nil || p.DateLastUpdated == nil {
		return ""
	}
	if p.DateLastUpdated.Before(*gd.DateLastUpdated) {
		return fmt.Sprintf("snapshot last updated %s is older than stored %s",
			p.DateLastUpdated.Format(time.RFC3339), gd.DateLastUpdated.Format(time.RFC3339))
	}
	return ""
}

func (s *PaymentService) recordTransition(ctx context.Context, result *ReconcileResult) {
	if s.transitions == nil {
		return
	}
	s.transitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("from", string(result.PreviousStatus)),
		attribute.String("to", string(result.Status)),
		attribute.String("origin", string(result.Actor)),
	))
}

package services

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront_payments/internal/models"
)

func paidEnv(t *testing.T) *testEnv {
	t.Helper()
	env := newTestEnv(t, []models.Order{pendingOrder("o1")}, defaultProducts())
	env.gateway.put(testPayment(1001, models.PaymentStatusApproved, "o1"))
	_, err := env.svc.ProcessPayment(context.Background(), "1001", models.ActorWebhook)
	require.NoError(t, err)
	env.notifier.sent = nil

	env.gateway.chargebacks["77"] = &models.Chargeback{
		ID:         json.Number("77"),
		Payments:   []int64{1001},
		Amount:     decimal.RequireFromString("1500"),
		CurrencyID: "ARS",
	}
	return env
}

func TestChargebackCreatedCancelsAndRestores(t *testing.T) {
	env := paidEnv(t)

	results, err := env.svc.ProcessChargeback(context.Background(), "77", "created")
	require.NoError(t, err)
	require.Len(t, results, 1)
	r := results[0]
	assert.True(t, r.Recorded)
	assert.Equal(t, "o1", r.OrderID)
	assert.Equal(t, models.OrderStatusCancelled, r.Status)
	assert.Equal(t, "restore", r.StockAction)
	assert.True(t, r.AlertSent)

	o := env.order(t, "o1")
	assert.Equal(t, models.OrderStatusCancelled, o.Status)
	assert.False(t, o.StockReduced)
	require.Len(t, o.Chargebacks, 1)
	assert.Equal(t, "77", o.Chargebacks[0].ID)
	assert.Equal(t, "1001", o.Chargebacks[0].PaymentID)
	last := o.StatusHistory[len(o.StatusHistory)-1]
	assert.Equal(t, models.ActorChargeback, last.Actor)
	assert.Equal(t, models.OrderStatusCancelled, last.Status)

	assert.Equal(t, 10, env.stock(t, "p1"))
	require.Len(t, env.notifier.sent, 1)
	assert.Equal(t, models.NotifyChargebackAlert, env.notifier.sent[0].Kind)
	assert.Equal(t, "77", env.notifier.sent[0].Extra["chargeback_id"])
}

func TestChargebackIsRecordedOncePerAction(t *testing.T) {
	env := paidEnv(t)
	ctx := context.Background()

	_, err := env.svc.ProcessChargeback(ctx, "77", "created")
	require.NoError(t, err)
	results, err := env.svc.ProcessChargeback(ctx, "77", "created")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.False(t, results[0].Recorded)

	o := env.order(t, "o1")
	assert.Len(t, o.Chargebacks, 1)
	assert.Equal(t, 10, env.stock(t, "p1"))
	assert.Len(t, env.notifier.sent, 1)
}

func TestChargebackNonForcingActionOnlyRecords(t *testing.T) {
	env := paidEnv(t)

	results, err := env.svc.ProcessChargeback(context.Background(), "77", "won")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.True(t, results[0].Recorded)
	assert.Equal(t, "none", results[0].StockAction)

	o := env.order(t, "o1")
	assert.Equal(t, models.OrderStatusPaid, o.Status)
	assert.True(t, o.StockReduced)
	assert.Len(t, o.Chargebacks, 1)
	assert.Equal(t, 8, env.stock(t, "p1"))
}

func TestChargebackUnresolvedPayment(t *testing.T) {
	env := paidEnv(t)
	env.gateway.chargebacks["78"] = &models.Chargeback{ID: json.Number("78"), Payments: []int64{5555}}

	results, err := env.svc.ProcessChargeback(context.Background(), "78", "created")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.False(t, results[0].Recorded)
	assert.Equal(t, "payment not found", results[0].Note)
	assert.Equal(t, models.OrderStatusPaid, env.order(t, "o1").Status)
}

func TestChargebackNotFoundAtGateway(t *testing.T) {
	env := paidEnv(t)
	_, err := env.svc.ProcessChargeback(context.Background(), "999", "created")
	assert.ErrorIs(t, err, ErrPaymentNotFound)
}

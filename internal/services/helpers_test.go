package services

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"storefront_payments/internal/models"
)

type fakeGateway struct {
	mu          sync.Mutex
	payments    map[string]*models.Payment
	chargebacks map[string]*models.Chargeback
	err         error
	calls       int
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		payments:    make(map[string]*models.Payment),
		chargebacks: make(map[string]*models.Chargeback),
	}
}

func (g *fakeGateway) put(p *models.Payment) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.payments[p.IDString()] = p
}

func (g *fakeGateway) GetPayment(ctx context.Context, id string) (*models.Payment, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	if g.err != nil {
		return nil, g.err
	}
	p, ok := g.payments[id]
	if !ok {
		return nil, ErrPaymentNotFound
	}
	cp := *p
	return &cp, nil
}

func (g *fakeGateway) GetChargeback(ctx context.Context, id string) (*models.Chargeback, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return nil, g.err
	}
	cb, ok := g.chargebacks[id]
	if !ok {
		return nil, ErrPaymentNotFound
	}
	return cb, nil
}

type sentNotification struct {
	Kind    models.NotificationKind
	OrderID string
	Extra   map[string]string
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []sentNotification
	ok   bool
}

func (n *recordingNotifier) Send(ctx context.Context, kind models.NotificationKind, order *models.Order, extra map[string]string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sentNotification{Kind: kind, OrderID: order.ID, Extra: extra})
	return n.ok
}

func (n *recordingNotifier) kinds() []models.NotificationKind {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]models.NotificationKind, 0, len(n.sent))
	for _, s := range n.sent {
		out = append(out, s.Kind)
	}
	return out
}

func writeJSONFile(t *testing.T, path string, v interface{}) {
	t.Helper()
	data, err := json.MarshalIndent(v, "", "  ")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o644))
}

// testEnv is a reconciler over JSON stores in a temp dir.
type testEnv struct {
	dir      string
	orders   *OrderStore
	products *ProductStore
	gateway  *fakeGateway
	notifier *recordingNotifier
	svc      *PaymentService
}

func newTestEnv(t *testing.T, orders []models.Order, products []models.Product) *testEnv {
	t.Helper()
	dir := t.TempDir()
	writeJSONFile(t, filepath.Join(dir, "orders.json"), models.OrderCollection{Orders: orders})
	writeJSONFile(t, filepath.Join(dir, "products.json"), models.ProductCollection{Products: products})

	env := &testEnv{
		dir:      dir,
		orders:   NewOrderStore(filepath.Join(dir, "orders.json")),
		products: NewProductStore(filepath.Join(dir, "products.json")),
		gateway:  newFakeGateway(),
		notifier: &recordingNotifier{ok: true},
	}
	env.svc = NewPaymentService(env.gateway, env.orders, NewStockAdjuster(env.products), env.notifier)
	env.svc.now = func() time.Time { return time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC) }
	return env
}

func (e *testEnv) order(t *testing.T, id string) *models.Order {
	t.Helper()
	o, err := e.orders.FindByID(context.Background(), id)
	require.NoError(t, err)
	return o
}

func (e *testEnv) stock(t *testing.T, id string) int {
	t.Helper()
	p, ok, err := e.products.Get(context.Background(), id)
	require.NoError(t, err)
	require.True(t, ok, "product %s missing", id)
	return p.Stock
}

func pendingOrder(id string) models.Order {
	return models.Order{
		ID:            id,
		OrderNumber:   "N-" + id,
		TrackingToken: "tok-" + id,
		Status:        models.OrderStatusPending,
		Customer: models.Customer{
			Name:              "Ana",
			Email:             "ana@example.com",
			ContactPreference: models.ContactEmail,
		},
		Items: []models.OrderItem{
			{ProductID: "p1", Quantity: 2},
			{ProductID: "p2", Quantity: 1},
		},
		StatusHistory: []models.StatusHistoryEntry{
			{Status: models.OrderStatusPending, Date: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC), Actor: "checkout"},
		},
	}
}

func defaultProducts() []models.Product {
	return []models.Product{
		{ID: "p1", Name: "Taza", Stock: 10},
		{ID: "p2", Name: "Remera", Stock: 5},
	}
}

func testPayment(id int64, status models.PaymentStatus, orderID string) *models.Payment {
	updated := time.Date(2024, 3, 1, 11, 0, 0, 0, time.UTC)
	net := decimal.RequireFromString("1400.50")
	return &models.Payment{
		ID:                id,
		Status:            status,
		StatusDetail:      "accredited",
		ExternalReference: orderID,
		TransactionAmount: decimal.RequireFromString("1500.00"),
		CurrencyID:        "ARS",
		FeeDetails: []models.FeeDetail{
			{Type: "mercadopago_fee", Amount: decimal.RequireFromString("99.50")},
		},
		TransactionDetails: models.TransactionDetails{NetReceivedAmount: &net},
		PaymentMethodID:    "visa",
		PaymentTypeID:      "credit_card",
		Installments:       1,
		Payer: models.PaymentPayer{
			Email:     "ana@example.com",
			FirstName: "Ana",
		},
		Card: models.PaymentCard{
			FirstSixDigits: "450995",
			LastFourDigits: "3704",
		},
		DateLastUpdated: &updated,
	}
}

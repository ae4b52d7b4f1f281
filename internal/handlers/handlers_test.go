package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/labstack/echo/v4"

	"storefront_payments/internal/middleware"
	"storefront_payments/internal/models"
	"storefront_payments/internal/services"
)

const testSecret = "whsec_test"

type processorCall struct {
	kind   string
	id     string
	action string
	actor  models.HistoryActor
}

// fakeProcessor records calls and answers with canned results.
type fakeProcessor struct {
	mu          sync.Mutex
	calls       []processorCall
	result      *services.ReconcileResult
	chargebacks []services.ChargebackResult
	err         error
}

func (f *fakeProcessor) ProcessPayment(ctx context.Context, paymentID string, actor models.HistoryActor) (*services.ReconcileResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, processorCall{kind: "payment", id: paymentID, actor: actor})
	if f.err != nil {
		return nil, f.err
	}
	if f.result != nil {
		return f.result, nil
	}
	return &services.ReconcileResult{Outcome: services.ReconcileApplied, PaymentID: paymentID}, nil
}

func (f *fakeProcessor) ProcessChargeback(ctx context.Context, chargebackID, action string) ([]services.ChargebackResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, processorCall{kind: "chargeback", id: chargebackID, action: action})
	if f.err != nil {
		return nil, f.err
	}
	return f.chargebacks, nil
}

func (f *fakeProcessor) Calls() []processorCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]processorCall(nil), f.calls...)
}

type memoryDeliveryLog struct {
	mu    sync.Mutex
	items []models.WebhookDelivery
	err   error
}

func (m *memoryDeliveryLog) Append(ctx context.Context, d models.WebhookDelivery) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items = append(m.items, d)
	return nil
}

func (m *memoryDeliveryLog) Recent(ctx context.Context, limit int) ([]models.WebhookDelivery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	out := make([]models.WebhookDelivery, 0, len(m.items))
	for i := len(m.items) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.items[i])
	}
	return out, nil
}

func (m *memoryDeliveryLog) last() models.WebhookDelivery {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.items) == 0 {
		return models.WebhookDelivery{}
	}
	return m.items[len(m.items)-1]
}

// signedHeader builds an X-Signature value for dataID at ts.
func signedHeader(dataID, requestID string, ts time.Time) string {
	tsStr := strconv.FormatInt(ts.Unix(), 10)
	v := services.NewSignatureVerifier(testSecret, 5*time.Minute)
	return "ts=" + tsStr + ",v1=" + v.Sign(dataID, requestID, tsStr)
}

func newWebhookServer(p *fakeProcessor, deliveries *memoryDeliveryLog) *echo.Echo {
	h := NewWebhookHandler(services.NewSignatureVerifier(testSecret, 5*time.Minute), p)
	e := echo.New()
	e.HTTPErrorHandler = middleware.CustomErrorHandler
	e.GET("/webhooks/payments", h.Probe)
	e.POST("/webhooks/payments", h.HandleNotification, middleware.RecordDelivery(deliveries))
	return e
}

func postWebhook(e *echo.Echo, target, body string, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

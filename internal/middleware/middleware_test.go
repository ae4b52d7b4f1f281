package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront_payments/internal/config"
	"storefront_payments/internal/models"
	"storefront_payments/internal/services"
)

type memoryDeliveryLog struct {
	mu    sync.Mutex
	items []models.WebhookDelivery
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
	out := make([]models.WebhookDelivery, len(m.items))
	copy(out, m.items)
	return out, nil
}

func (m *memoryDeliveryLog) last(t *testing.T) models.WebhookDelivery {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	require.NotEmpty(t, m.items)
	return m.items[len(m.items)-1]
}

func newEcho() *echo.Echo {
	e := echo.New()
	e.HTTPErrorHandler = CustomErrorHandler
	return e
}

func serve(e *echo.Echo, method, target, remoteIP string, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	req.RemoteAddr = remoteIP + ":40000"
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func ok(c echo.Context) error { return c.String(http.StatusOK, "OK") }

func TestRateLimitRejectsOverLimit(t *testing.T) {
	limiter := services.NewRateLimiter(services.NewFileTimestampStore(filepath.Join(t.TempDir(), "rate_limit.json")), 100, time.Minute)
	log := &memoryDeliveryLog{}

	e := newEcho()
	e.POST("/webhooks/payments", ok, RecordDelivery(log), RateLimit(limiter))

	for i := 0; i < 100; i++ {
		rec := serve(e, http.MethodPost, "/webhooks/payments", "203.0.113.7", nil)
		require.Equal(t, http.StatusOK, rec.Code, "request %d", i+1)
	}

	rec := serve(e, http.MethodPost, "/webhooks/payments", "203.0.113.7", nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "rate limit exceeded", rec.Body.String())
	last := log.last(t)
	assert.Equal(t, models.OutcomeRateLimited, last.Outcome)
	assert.Equal(t, http.StatusTooManyRequests, last.StatusCode)
	assert.Equal(t, "203.0.113.7", last.RemoteIP)

	rec = serve(e, http.MethodPost, "/webhooks/payments", "203.0.113.8", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestIPAllowlist(t *testing.T) {
	list, err := services.NewIPAllowlist([]string{"127.0.0.0/8"}, []string{"209.225.49.0/24"})
	require.NoError(t, err)

	tests := []struct {
		name     string
		mode     config.Mode
		enforce  bool
		ip       string
		wantCode int
	}{
		{"production inside range", config.ModeProduction, true, "209.225.49.10", http.StatusOK},
		{"production outside range enforced", config.ModeProduction, true, "198.51.100.1", http.StatusForbidden},
		{"production outside range log only", config.ModeProduction, false, "198.51.100.1", http.StatusOK},
		{"sandbox loopback", config.ModeSandbox, true, "127.0.0.1", http.StatusOK},
		{"sandbox ignores production ranges", config.ModeSandbox, true, "209.225.49.10", http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			log := &memoryDeliveryLog{}
			e := newEcho()
			e.POST("/webhooks/payments", ok, RecordDelivery(log), IPAllowlist(list, tt.mode, tt.enforce))

			rec := serve(e, http.MethodPost, "/webhooks/payments", tt.ip, nil)
			assert.Equal(t, tt.wantCode, rec.Code)
			if tt.wantCode == http.StatusForbidden {
				assert.Equal(t, models.OutcomeIPRejected, log.last(t).Outcome)
			}
		})
	}
}

func TestRequireSecret(t *testing.T) {
	tests := []struct {
		name     string
		secret   string
		target   string
		header   string
		wantCode int
	}{
		{"not configured", "", "/op", "s3cret", http.StatusServiceUnavailable},
		{"missing", "s3cret", "/op", "", http.StatusUnauthorized},
		{"wrong header", "s3cret", "/op", "nope", http.StatusForbidden},
		{"header", "s3cret", "/op", "s3cret", http.StatusOK},
		{"query value", "s3cret", "/op?secret=s3cret", "", http.StatusOK},
		{"wrong query value", "s3cret", "/op?secret=nope", "", http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEcho()
			e.GET("/op", ok, RequireSecret(tt.secret))

			header := http.Header{}
			if tt.header != "" {
				header.Set(SecretHeader, tt.header)
			}
			rec := serve(e, http.MethodGet, tt.target, "192.0.2.1", header)
			assert.Equal(t, tt.wantCode, rec.Code)
		})
	}
}

func TestRecordDeliveryOutcomes(t *testing.T) {
	tests := []struct {
		name        string
		handler     echo.HandlerFunc
		wantCode    int
		wantOutcome models.DeliveryOutcome
	}{
		{
			name:        "handler tags outcome",
			handler:     func(c echo.Context) error { SetOutcome(c, models.OutcomeApplied); return ok(c) },
			wantCode:    http.StatusOK,
			wantOutcome: models.OutcomeApplied,
		},
		{
			name:        "untagged success",
			handler:     ok,
			wantCode:    http.StatusOK,
			wantOutcome: models.OutcomeIgnored,
		},
		{
			name:        "bad request",
			handler:     func(c echo.Context) error { return echo.NewHTTPError(http.StatusBadRequest, "invalid notification") },
			wantCode:    http.StatusBadRequest,
			wantOutcome: models.OutcomeMalformed,
		},
		{
			name:        "forbidden",
			handler:     func(c echo.Context) error { return echo.NewHTTPError(http.StatusForbidden, "invalid signature") },
			wantCode:    http.StatusForbidden,
			wantOutcome: models.OutcomeSignatureInvalid,
		},
		{
			name:        "plain error",
			handler:     func(c echo.Context) error { return assert.AnError },
			wantCode:    http.StatusInternalServerError,
			wantOutcome: models.OutcomeFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			log := &memoryDeliveryLog{}
			e := newEcho()
			e.POST("/webhooks/payments", tt.handler, RecordDelivery(log))

			header := http.Header{}
			header.Set("X-Request-Id", "req-1")
			rec := serve(e, http.MethodPost, "/webhooks/payments", "192.0.2.10", header)
			assert.Equal(t, tt.wantCode, rec.Code)

			d := log.last(t)
			assert.Equal(t, tt.wantOutcome, d.Outcome)
			assert.Equal(t, tt.wantCode, d.StatusCode)
			assert.Equal(t, "req-1", d.RequestID)
			assert.Equal(t, "192.0.2.10", d.RemoteIP)
			assert.False(t, d.ReceivedAt.IsZero())
		})
	}
}

func TestCustomErrorHandler(t *testing.T) {
	e := newEcho()
	e.GET("/teapot", func(c echo.Context) error { return echo.NewHTTPError(http.StatusTeapot) })
	e.GET("/boom", func(c echo.Context) error { return assert.AnError })
	e.HEAD("/boom", func(c echo.Context) error { return assert.AnError })

	rec := serve(e, http.MethodGet, "/teapot", "192.0.2.1", nil)
	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Equal(t, http.StatusText(http.StatusTeapot), rec.Body.String())

	rec = serve(e, http.MethodGet, "/boom", "192.0.2.1", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Internal Server Error", rec.Body.String())
	assert.Contains(t, rec.Header().Get(echo.HeaderContentType), "text/plain")

	rec = serve(e, http.MethodHead, "/boom", "192.0.2.1", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Empty(t, rec.Body.String())
}

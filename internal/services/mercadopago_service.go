package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-resty/resty/v2"

	"storefront_payments/internal/config"
	"storefront_payments/internal/models"
)

// ErrPaymentNotFound means the gateway answered 404 for a payment or
// chargeback id. Sandbox traffic produces this routinely.
var ErrPaymentNotFound = errors.New("gateway resource not found")

// GatewayError is a non-404 error status from the gateway API.
type GatewayError struct {
	StatusCode int
	Body       string
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("gateway returned status %d: %s", e.StatusCode, e.Body)
}

// PaymentGateway fetches authoritative payment state.
type PaymentGateway interface {
	GetPayment(ctx context.Context, paymentID string) (*models.Payment, error)
	GetChargeback(ctx context.Context, chargebackID string) (*models.Chargeback, error)
}

// MercadoPagoService talks to the payments REST API with the bearer token of
// the configured mode.
type MercadoPagoService struct {
	client *resty.Client
}

var _ PaymentGateway = (*MercadoPagoService)(nil)

func NewMercadoPagoService(cfg config.GatewayConfig) *MercadoPagoService {
	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetAuthToken(cfg.AccessToken()).
		SetTimeout(cfg.Timeout).
		SetHeader("Accept", "application/json")

	return &MercadoPagoService{client: client}
}

// GetPayment fetches GET /v1/payments/{id}.
func (s *MercadoPagoService) GetPayment(ctx context.Context, paymentID string) (*models.Payment, error) {
	var payment models.Payment
	if err := s.get(ctx, "/v1/payments/{id}", paymentID, &payment); err != nil {
		return nil, fmt.Errorf("fetch payment %s: %w", paymentID, err)
	}
	return &payment, nil
}

// GetChargeback fetches GET /v1/chargebacks/{id}.
func (s *MercadoPagoService) GetChargeback(ctx context.Context, chargebackID string) (*models.Chargeback, error) {
	var cb models.Chargeback
	if err := s.get(ctx, "/v1/chargebacks/{id}", chargebackID, &cb); err != nil {
		return nil, fmt.Errorf("fetch chargeback %s: %w", chargebackID, err)
	}
	return &cb, nil
}

func (s *MercadoPagoService) get(ctx context.Context, path, id string, result interface{}) error {
	resp, err := s.client.R().
		SetContext(ctx).
		SetPathParam("id", id).
		SetResult(result).
		Get(path)
	if err != nil {
		return err
	}

	switch {
	case resp.StatusCode() == 404:
		return ErrPaymentNotFound
	case resp.IsError():
		return &GatewayError{StatusCode: resp.StatusCode(), Body: truncate(string(resp.Body()), 512)}
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

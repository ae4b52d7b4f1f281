package models

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// PaymentStatus is the gateway-side state of a payment.
type PaymentStatus string

const (
	PaymentStatusApproved    PaymentStatus = "approved"
	PaymentStatusAuthorized  PaymentStatus = "authorized"
	PaymentStatusPending     PaymentStatus = "pending"
	PaymentStatusInProcess   PaymentStatus = "in_process"
	PaymentStatusInMediation PaymentStatus = "in_mediation"
	PaymentStatusRejected    PaymentStatus = "rejected"
	PaymentStatusCancelled   PaymentStatus = "cancelled"
	PaymentStatusRefunded    PaymentStatus = "refunded"
	PaymentStatusChargedBack PaymentStatus = "charged_back"
)

type FeeDetail struct {
	Type     string          `json:"type"`
	Amount   decimal.Decimal `json:"amount"`
	FeePayer string          `json:"fee_payer,omitempty"`
}

type Identification struct {
	Type   string `json:"type,omitempty"`
	Number string `json:"number,omitempty"`
}

type PaymentPayer struct {
	Email          string         `json:"email,omitempty"`
	FirstName      string         `json:"first_name,omitempty"`
	LastName       string         `json:"last_name,omitempty"`
	Identification Identification `json:"identification"`
}

type PaymentCard struct {
	FirstSixDigits string `json:"first_six_digits,omitempty"`
	LastFourDigits string `json:"last_four_digits,omitempty"`
	Cardholder     struct {
		Name string `json:"name,omitempty"`
	} `json:"cardholder"`
}

type TransactionDetails struct {
	NetReceivedAmount *decimal.Decimal `json:"net_received_amount"`
	TotalPaidAmount   decimal.Decimal  `json:"total_paid_amount"`
}

// Payment is the authoritative gateway record fetched by id. It is never
// mutated locally.
type Payment struct {
	ID                 int64              `json:"id"`
	Status             PaymentStatus      `json:"status"`
	StatusDetail       string             `json:"status_detail"`
	ExternalReference  string             `json:"external_reference"`
	TransactionAmount  decimal.Decimal    `json:"transaction_amount"`
	CurrencyID         string             `json:"currency_id"`
	FeeDetails         []FeeDetail        `json:"fee_details"`
	TransactionDetails TransactionDetails `json:"transaction_details"`
	PaymentMethodID    string             `json:"payment_method_id"`
	PaymentTypeID      string             `json:"payment_type_id"`
	Installments       int                `json:"installments"`
	Payer              PaymentPayer       `json:"payer"`
	Card               PaymentCard        `json:"card"`
	DateCreated        *time.Time         `json:"date_created"`
	DateApproved       *time.Time         `json:"date_approved"`
	DateLastUpdated    *time.Time         `json:"date_last_updated"`
}

// IDString returns the payment id in the form stored on orders.
func (p *Payment) IDString() string {
	return strconv.FormatInt(p.ID, 10)
}

// TotalFees sums the fee breakdown.
func (p *Payment) TotalFees() decimal.Decimal {
	total := decimal.Zero
	for _, fee := range p.FeeDetails {
		total = total.Add(fee.Amount)
	}
	return total
}

// NetReceivedAmount is the gateway-reported net, or the transaction amount
// minus fees when the gateway omits it.
func (p *Payment) NetReceivedAmount() decimal.Decimal {
	if p.TransactionDetails.NetReceivedAmount != nil {
		return *p.TransactionDetails.NetReceivedAmount
	}
	return p.TransactionAmount.Sub(p.TotalFees())
}

// GatewayPayer is the payer identity fragment kept on the order.
type GatewayPayer struct {
	Email          string         `json:"email,omitempty"`
	FirstName      string         `json:"first_name,omitempty"`
	LastName       string         `json:"last_name,omitempty"`
	Identification Identification `json:"identification"`
}

// GatewayCard is the card fragment kept on the order.
type GatewayCard struct {
	FirstSixDigits string `json:"first_six_digits,omitempty"`
	LastFourDigits string `json:"last_four_digits,omitempty"`
	HolderName     string `json:"holder_name,omitempty"`
}

// GatewayData is the normalized snapshot of a payment stored on the order.
// It is a pure function of the Payment it was built from.
type GatewayData struct {
	PaymentID         string          `json:"payment_id"`
	Status            PaymentStatus   `json:"status"`
	StatusDetail      string          `json:"status_detail"`
	TransactionAmount decimal.Decimal `json:"transaction_amount"`
	CurrencyID        string          `json:"currency_id"`
	TotalFees         decimal.Decimal `json:"total_fees"`
	NetReceivedAmount decimal.Decimal `json:"net_received_amount"`
	FeeDetails        []FeeDetail     `json:"fee_details,omitempty"`
	PaymentMethodID   string          `json:"payment_method_id,omitempty"`
	PaymentTypeID     string          `json:"payment_type_id,omitempty"`
	Installments      int             `json:"installments,omitempty"`
	Payer             GatewayPayer    `json:"payer"`
	Card              GatewayCard     `json:"card"`
	DateCreated       *time.Time      `json:"date_created,omitempty"`
	DateApproved      *time.Time      `json:"date_approved,omitempty"`
	DateLastUpdated   *time.Time      `json:"date_last_updated,omitempty"`
}

// NewGatewayData normalizes a gateway payment into the stored snapshot.
func NewGatewayData(p *Payment) *GatewayData {
	var fees []FeeDetail
	if len(p.FeeDetails) > 0 {
		fees = append(fees, p.FeeDetails...)
	}
	return &GatewayData{
		PaymentID:         p.IDString(),
		Status:            p.Status,
		StatusDetail:      p.StatusDetail,
		TransactionAmount: p.TransactionAmount,
		CurrencyID:        p.CurrencyID,
		TotalFees:         p.TotalFees(),
		NetReceivedAmount: p.NetReceivedAmount(),
		FeeDetails:        fees,
		PaymentMethodID:   p.PaymentMethodID,
		PaymentTypeID:     p.PaymentTypeID,
		Installments:      p.Installments,
		Payer: GatewayPayer{
			Email:          p.Payer.Email,
			FirstName:      p.Payer.FirstName,
			LastName:       p.Payer.LastName,
			Identification: p.Payer.Identification,
		},
		Card: GatewayCard{
			FirstSixDigits: p.Card.FirstSixDigits,
			LastFourDigits: p.Card.LastFourDigits,
			HolderName:     p.Card.Cardholder.Name,
		},
		DateCreated:     p.DateCreated,
		DateApproved:    p.DateApproved,
		DateLastUpdated: p.DateLastUpdated,
	}
}

// Chargeback is the gateway dispute resource.
type Chargeback struct {
	ID          json.Number     `json:"id"`
	Payments    []int64         `json:"payments"`
	Amount      decimal.Decimal `json:"amount"`
	CurrencyID  string          `json:"currency"`
	DateCreated *time.Time      `json:"date_created"`
}

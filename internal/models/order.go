package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus is the storefront lifecycle state of an order.
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pendiente"
	OrderStatusPaid      OrderStatus = "cobrada"
	OrderStatusRejected  OrderStatus = "rechazada"
	OrderStatusCancelled OrderStatus = "cancelada"
)

// IsTerminal reports whether no further automatic forward progress is
// expected from s. Terminal orders can still be moved by a chargeback.
func (s OrderStatus) IsTerminal() bool {
	switch s {
	case OrderStatusPaid, OrderStatusRejected, OrderStatusCancelled:
		return true
	}
	return false
}

// HistoryActor identifies who appended a status history entry.
type HistoryActor string

const (
	ActorWebhook    HistoryActor = "webhook"
	ActorReprocess  HistoryActor = "manual_reprocess"
	ActorSweep      HistoryActor = "sweep"
	ActorChargeback HistoryActor = "chargeback"
)

// ContactPreference is the channel a customer wants to be reached on.
type ContactPreference string

const (
	ContactEmail    ContactPreference = "email"
	ContactTelegram ContactPreference = "telegram"
)

type Customer struct {
	Name              string            `json:"name,omitempty"`
	Email             string            `json:"email,omitempty"`
	TelegramChatID    string            `json:"telegram_chat_id,omitempty"`
	ContactPreference ContactPreference `json:"contact_preference,omitempty"`

	extra extraFields
}

func (c *Customer) UnmarshalJSON(data []byte) error {
	type alias Customer
	var a alias
	extra, err := decodeWithExtras(data, &a)
	if err != nil {
		return err
	}
	*c = Customer(a)
	c.extra = extra
	return nil
}

func (c Customer) MarshalJSON() ([]byte, error) {
	type alias Customer
	return encodeWithExtras(alias(c), c.extra)
}

type OrderItem struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`

	extra extraFields
}

func (i *OrderItem) UnmarshalJSON(data []byte) error {
	type alias OrderItem
	var a alias
	extra, err := decodeWithExtras(data, &a)
	if err != nil {
		return err
	}
	*i = OrderItem(a)
	i.extra = extra
	return nil
}

func (i OrderItem) MarshalJSON() ([]byte, error) {
	type alias OrderItem
	return encodeWithExtras(alias(i), i.extra)
}

// StatusHistoryEntry is one append-only record of a status change.
type StatusHistoryEntry struct {
	Status        OrderStatus  `json:"status"`
	Date          time.Time    `json:"date"`
	Actor         HistoryActor `json:"actor"`
	PaymentStatus string       `json:"payment_status,omitempty"`
	Note          string       `json:"note,omitempty"`
}

// ChargebackRecord is one dispute event recorded against an order.
type ChargebackRecord struct {
	ID         string          `json:"id"`
	Action     string          `json:"action"`
	PaymentID  string          `json:"payment_id"`
	Amount     decimal.Decimal `json:"amount"`
	CurrencyID string          `json:"currency_id,omitempty"`
	Date       time.Time       `json:"date"`
}

// Order is the durable storefront order. Only the reconciler mutates it once
// checkout has created it.
type Order struct {
	ID                  string               `json:"id"`
	OrderNumber         string               `json:"order_number"`
	TrackingToken       string               `json:"tracking_token,omitempty"`
	Status              OrderStatus          `json:"status"`
	PaymentStatus       string               `json:"payment_status,omitempty"`
	PaymentStatusDetail string               `json:"payment_status_detail,omitempty"`
	PaymentID           string               `json:"payment_id,omitempty"`
	StockReduced        bool                 `json:"stock_reduced"`
	Customer            Customer             `json:"customer"`
	Items               []OrderItem          `json:"items"`
	StatusHistory       []StatusHistoryEntry `json:"status_history"`
	GatewayData         *GatewayData         `json:"gateway_data,omitempty"`
	Chargebacks         []ChargebackRecord   `json:"chargebacks,omitempty"`

	extra extraFields
}

func (o *Order) UnmarshalJSON(data []byte) error {
	type alias Order
	var a alias
	extra, err := decodeWithExtras(data, &a)
	if err != nil {
		return err
	}
	*o = Order(a)
	o.extra = extra
	return nil
}

func (o Order) MarshalJSON() ([]byte, error) {
	type alias Order
	return encodeWithExtras(alias(o), o.extra)
}

// AppendHistory records a status change and keeps Status in step with the
// last history entry.
func (o *Order) AppendHistory(entry StatusHistoryEntry) {
	o.Status = entry.Status
	o.StatusHistory = append(o.StatusHistory, entry)
}

// HasChargeback reports whether the (id, action) dispute event was already
// recorded.
func (o *Order) HasChargeback(id, action string) bool {
	for _, cb := range o.Chargebacks {
		if cb.ID == id && cb.Action == action {
			return true
		}
	}
	return false
}

// OrderCollection is the on-disk shape of the orders document.
type OrderCollection struct {
	Orders []Order `json:"orders"`
}

package services

import (
	"context"
	"fmt"
	"log"
	"strings"

	"storefront_payments/internal/config"
	"storefront_payments/internal/models"
)

// EmailSender sends a plain-text email.
type EmailSender interface {
	SendEmail(to []string, subject, body string) error
}

// ChatSender sends a chat message.
type ChatSender interface {
	SendMessage(ctx context.Context, chatID, text string) error
}

// Notifier sends one kind of message about an order. It reports success and
// never returns an error; failures are logged for manual follow-up.
type Notifier interface {
	Send(ctx context.Context, kind models.NotificationKind, order *models.Order, extra map[string]string) bool
}

type messageTemplate struct {
	subject string
	body    string
}

var messageTemplates = map[models.NotificationKind]messageTemplate{
	models.NotifyPaymentApproved: {
		subject: "Pago recibido - pedido $order_number",
		body:    "Hola $name, recibimos el pago de tu pedido $order_number. Podés seguirlo con el código $tracking_token.",
	},
	models.NotifyPaymentPending: {
		subject: "Pago pendiente - pedido $order_number",
		body:    "Hola $name, tu pago del pedido $order_number está pendiente de acreditación ($payment_status_detail).",
	},
	models.NotifyPaymentRejected: {
		subject: "Pago rechazado - pedido $order_number",
		body:    "Hola $name, el pago del pedido $order_number fue rechazado ($payment_status_detail). Podés intentar nuevamente.",
	},
	models.NotifyAdminNewOrder: {
		subject: "Nuevo pedido cobrado $order_number",
		body:    "Pedido $order_number cobrado. Pago $payment_id por $amount $currency.",
	},
	models.NotifyAdminRejected: {
		subject: "Pago rechazado en pedido $order_number",
		body:    "Pedido $order_number: pago $payment_id rechazado ($payment_status_detail).",
	},
	models.NotifyChargebackAlert: {
		subject: "Contracargo en pedido $order_number",
		body:    "Contracargo $chargeback_id ($action) sobre el pago $payment_id del pedido $order_number. Estado actual: $status.",
	},
}

// NotificationService routes messages to the customer's preferred channel or
// to every configured admin channel.
type NotificationService struct {
	email EmailSender
	chat  ChatSender
	admin config.AdminConfig
}

var _ Notifier = (*NotificationService)(nil)

func NewNotificationService(email EmailSender, chat ChatSender, admin config.AdminConfig) *NotificationService {
	return &NotificationService{email: email, chat: chat, admin: admin}
}

func (s *NotificationService) Send(ctx context.Context, kind models.NotificationKind, order *models.Order, extra map[string]string) bool {
	tmpl, ok := messageTemplates[kind]
	if !ok {
		log.Printf("[Notify] no template for %s (order %s)", kind, order.ID)
		return false
	}
	subject := replacePlaceholders(tmpl.subject, order, extra)
	body := replacePlaceholders(tmpl.body, order, extra)

	if kind.Audience() == models.AudienceAdmin {
		return s.sendAdmin(ctx, kind, order, subject, body)
	}
	return s.sendCustomer(ctx, kind, order, subject, body)
}

func (s *NotificationService) sendCustomer(ctx context.Context, kind models.NotificationKind, order *models.Order, subject, body string) bool {
	c := order.Customer
	if c.ContactPreference == models.ContactTelegram && c.TelegramChatID != "" {
		return s.deliver(ctx, kind, order, models.NotificationChannelTelegram, c.TelegramChatID, subject, body)
	}
	if c.Email == "" {
		log.Printf("[Notify] order %s has no customer contact for %s", order.ID, kind)
		return false
	}
	return s.deliver(ctx, kind, order, models.NotificationChannelEmail, c.Email, subject, body)
}

func (s *NotificationService) sendAdmin(ctx context.Context, kind models.NotificationKind, order *models.Order, subject, body string) bool {
	attempted, sent := false, false
	if s.admin.Email != "" {
		attempted = true
		if s.deliver(ctx, kind, order, models.NotificationChannelEmail, s.admin.Email, subject, body) {
			sent = true
		}
	}
	if s.admin.TelegramChatID != "" {
		attempted = true
		if s.deliver(ctx, kind, order, models.NotificationChannelTelegram, s.admin.TelegramChatID, subject, body) {
			sent = true
		}
	}
	if !attempted {
		log.Printf("[Notify] no admin channel configured for %s (order %s)", kind, order.ID)
	}
	return sent
}

func (s *NotificationService) deliver(ctx context.Context, kind models.NotificationKind, order *models.Order, channel models.NotificationChannel, recipient, subject, body string) bool {
	var err error
	switch channel {
	case models.NotificationChannelEmail:
		if s.email == nil {
			err = fmt.Errorf("email channel not configured")
		} else {
			err = s.email.SendEmail([]string{recipient}, subject, body)
		}
	case models.NotificationChannelTelegram:
		if s.chat == nil {
			err = fmt.Errorf("telegram channel not configured")
		} else {
			err = s.chat.SendMessage(ctx, recipient, subject+"\n\n"+body)
		}
	default:
		err = fmt.Errorf("unsupported channel %s", channel)
	}

	if err != nil {
		log.Printf("[Notify] FAILED kind=%s order=%s channel=%s recipient=%s: %v", kind, order.ID, channel, recipient, err)
		return false
	}
	log.Printf("[Notify] sent kind=%s order=%s channel=%s recipient=%s", kind, order.ID, channel, recipient)
	return true
}

// replacePlaceholders fills $name style tokens. extra entries come first so
// they win over the order's own fields.
func replacePlaceholders(template string, order *models.Order, extra map[string]string) string {
	pairs := make([]string, 0, 2*len(extra)+16)
	for k, v := range extra {
		pairs = append(pairs, "$"+k, v)
	}
	pairs = append(pairs,
		"$order_number", order.OrderNumber,
		"$tracking_token", order.TrackingToken,
		"$name", order.Customer.Name,
		"$status", string(order.Status),
		"$payment_status_detail", order.PaymentStatusDetail,
		"$payment_id", order.PaymentID,
	)
	if gd := order.GatewayData; gd != nil {
		pairs = append(pairs, "$amount", gd.TransactionAmount.StringFixed(2), "$currency", gd.CurrencyID)
	}
	return strings.NewReplacer(pairs...).Replace(template)
}

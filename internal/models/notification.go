package models

// NotificationKind selects the message a dispatcher sends.
type NotificationKind string

const (
	NotifyPaymentApproved NotificationKind = "payment_approved"
	NotifyPaymentPending  NotificationKind = "payment_pending"
	NotifyPaymentRejected NotificationKind = "payment_rejected"
	NotifyChargebackAlert NotificationKind = "chargeback_alert"
	NotifyAdminNewOrder   NotificationKind = "admin_new_order"
	NotifyAdminRejected   NotificationKind = "admin_payment_rejected"
)

// NotificationChannel is the transport a message goes out on.
type NotificationChannel string

const (
	NotificationChannelEmail    NotificationChannel = "email"
	NotificationChannelTelegram NotificationChannel = "telegram"
)

// Audience says whether a notification is for the buyer or the shop owner.
type Audience string

const (
	AudienceCustomer Audience = "customer"
	AudienceAdmin    Audience = "admin"
)

// Audience returns who a kind is addressed to.
func (k NotificationKind) Audience() Audience {
	switch k {
	case NotifyChargebackAlert, NotifyAdminNewOrder, NotifyAdminRejected:
		return AudienceAdmin
	}
	return AudienceCustomer
}

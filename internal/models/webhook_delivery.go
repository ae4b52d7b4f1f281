package models

import "time"

// DeliveryOutcome is how the endpoint disposed of a webhook delivery.
type DeliveryOutcome string

const (
	OutcomeRateLimited      DeliveryOutcome = "rate_limited"
	OutcomeIPRejected       DeliveryOutcome = "ip_rejected"
	OutcomeMalformed        DeliveryOutcome = "malformed"
	OutcomeSignatureInvalid DeliveryOutcome = "signature_invalid"
	OutcomeTimestampStale   DeliveryOutcome = "timestamp_stale"
	OutcomeIgnored          DeliveryOutcome = "ignored"
	OutcomeApplied          DeliveryOutcome = "applied"
	OutcomeNoop             DeliveryOutcome = "noop"
	OutcomeUnresolved       DeliveryOutcome = "unresolved"
	OutcomeFailed           DeliveryOutcome = "failed"
)

// WebhookDelivery is one raw inbound gateway call kept for diagnostics.
type WebhookDelivery struct {
	ID         string          `gorm:"type:varchar(36);primaryKey" json:"id"`
	ReceivedAt time.Time       `gorm:"index" json:"received_at"`
	RemoteIP   string          `gorm:"type:varchar(64)" json:"remote_ip"`
	RequestID  string          `gorm:"type:varchar(128)" json:"request_id"`
	Type       string          `gorm:"type:varchar(50)" json:"type"`
	Action     string          `gorm:"type:varchar(100)" json:"action"`
	EntityID   string          `gorm:"type:varchar(64);index" json:"entity_id"`
	Outcome    DeliveryOutcome `gorm:"type:varchar(30)" json:"outcome"`
	StatusCode int             `json:"status_code"`
	Body       string          `gorm:"type:text" json:"body,omitempty"`
}

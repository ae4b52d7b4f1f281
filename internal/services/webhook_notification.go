package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"path"
	"strconv"
	"strings"
)

// ErrNotificationMalformed is wrapped by every ParseError.
var ErrNotificationMalformed = errors.New("malformed notification")

// ParseError says why a webhook body could not be normalized.
type ParseError struct {
	Reason string
}

func (e *ParseError) Error() string { return "malformed notification: " + e.Reason }

func (e *ParseError) Unwrap() error { return ErrNotificationMalformed }

// NotificationType is the normalized kind of a webhook.
type NotificationType string

const (
	NotificationPayment       NotificationType = "payment"
	NotificationChargeback    NotificationType = "chargeback"
	NotificationMerchantOrder NotificationType = "merchant_order"
	NotificationUnknown       NotificationType = "unknown"
)

// Notification is a webhook after the loose gateway shapes have been folded
// into one. RawType keeps what the gateway actually sent.
type Notification struct {
	Type     NotificationType
	RawType  string
	Action   string
	EntityID string
	// DataID is the value the gateway signed. A query data.id that differs
	// from EntityID is rejected, so the two are always equal.
	DataID string
}

func resolveType(raw string) NotificationType {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "payment", "payments":
		return NotificationPayment
	case "chargeback", "chargebacks":
		return NotificationChargeback
	case "merchant_order", "merchant_orders":
		return NotificationMerchantOrder
	default:
		return NotificationUnknown
	}
}

type rawNotification struct {
	Type     string          `json:"type"`
	Topic    string          `json:"topic"`
	Action   string          `json:"action"`
	ID       json.RawMessage `json:"id"`
	Resource string          `json:"resource"`
	Data     struct {
		ID json.RawMessage `json:"id"`
	} `json:"data"`
}

// ParseNotification normalizes a webhook from its body and query string. The
// type comes from "type" or the legacy "topic"; the entity id from data.id,
// then id, then the basename of resource. Query parameters fill in whatever
// the body lacks, which covers the legacy IPN form of the call.
//
// Unknown types still parse; only a missing or non-numeric id is an error.
func ParseNotification(body []byte, query url.Values) (Notification, error) {
	var raw rawNotification
	if len(strings.TrimSpace(string(body))) > 0 {
		if err := json.Unmarshal(body, &raw); err != nil {
			return Notification{}, &ParseError{Reason: fmt.Sprintf("invalid JSON: %v", err)}
		}
	}

	rawType := firstNonEmpty(raw.Type, raw.Topic, query.Get("type"), query.Get("topic"))
	n := Notification{
		Type:    resolveType(rawType),
		RawType: rawType,
		Action:  raw.Action,
	}

	n.EntityID = firstNonEmpty(
		rawID(raw.Data.ID),
		rawID(raw.ID),
		resourceID(raw.Resource),
		query.Get("data.id"),
		query.Get("id"),
	)
	if n.EntityID == "" {
		return n, &ParseError{Reason: "no data.id, id or resource"}
	}
	if _, err := strconv.ParseUint(n.EntityID, 10, 64); err != nil {
		return n, &ParseError{Reason: fmt.Sprintf("id %q is not numeric", n.EntityID)}
	}

	// The gateway signs the query data.id; it must name the entity we act on.
	if signed := query.Get("data.id"); signed != "" && signed != n.EntityID {
		return n, &ParseError{Reason: fmt.Sprintf("query data.id %q does not match notification id %q", signed, n.EntityID)}
	}
	n.DataID = n.EntityID
	return n, nil
}

// rawID accepts both "123" and 123.
func rawID(msg json.RawMessage) string {
	if len(msg) == 0 || string(msg) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(msg, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var num json.Number
	if err := json.Unmarshal(msg, &num); err == nil {
		return num.String()
	}
	return strings.TrimSpace(string(msg))
}

// resourceID returns resource itself, or its path basename when it is a URL.
func resourceID(resource string) string {
	resource = strings.TrimSpace(resource)
	if resource == "" {
		return ""
	}
	if u, err := url.Parse(resource); err == nil && u.Scheme != "" && u.Host != "" {
		return path.Base(strings.TrimRight(u.Path, "/"))
	}
	return resource
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

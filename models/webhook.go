package models

import "encoding/json"

// Типы событий шлюза
const (
	EventPaymentUpdated = "payment.updated"
	EventOrderAttempts  = "order.payment_attempts"
)

type WebhookEvent struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// PaymentEventData is the payload of a single-payment event.
type PaymentEventData struct {
	PaymentID string `json:"payment_id"`
	OrderRef  string `json:"order"`
	Status    string `json:"status"`
}

type PaymentAttempt struct {
	PaymentID string `json:"payment_id"`
	Status    string `json:"status"`
}

// OrderAttemptsData is the payload of an aggregate event listing every
// payment attempt accumulated by one order.
type OrderAttemptsData struct {
	OrderRef string           `json:"order"`
	Attempts []PaymentAttempt `json:"attempts"`
}

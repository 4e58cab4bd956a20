package models

import (
	"time"
)

type PaymentStatus string

// Возможные значения статусов оплаты заказа
const (
	OrderPending   PaymentStatus = "pending"
	OrderCompleted PaymentStatus = "completed"
	OrderFailed    PaymentStatus = "failed"
)

// Terminal reports whether no further transition may change the status.
func (s PaymentStatus) Terminal() bool {
	return s == OrderCompleted || s == OrderFailed
}

type OrderItem struct {
	CourseUUID string `json:"course_id"`
	UnitPrice  int64  `json:"unit_price"`
}

type Order struct {
	UUID              string          `json:"uuid"`
	OrderNumber       string          `json:"number"`
	BuyerUUID         string          `json:"buyer_id"`
	Items             []OrderItem     `json:"items"`
	TotalAmount       int64           `json:"total_amount"`
	Currency          string          `json:"currency"`
	PaymentMethod     string          `json:"payment_method"`
	PaymentStatus     PaymentStatus   `json:"payment_status"`
	ProviderPaymentID string          `json:"provider_payment_id,omitempty"`
	RejectionReason   RejectionReason `json:"rejection_reason,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

package models

// MaxTransactionIDLength bounds the opaque buyer-supplied transaction id.
const MaxTransactionIDLength = 64

type ConfirmationRequest struct {
	OrderID       string `json:"orderId"`
	PaymentMethod string `json:"paymentMethod"`
	TransactionID string `json:"transactionId"`
}

type ConfirmationResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

type CheckoutRequest struct {
	Items         []OrderItem `json:"items"`
	PaymentMethod string      `json:"payment_method"`
	Currency      string      `json:"currency"`
}

type StatusResponse struct {
	PaymentStatus   PaymentStatus   `json:"payment_status"`
	RejectionReason RejectionReason `json:"rejection_reason,omitempty"`
	Message         string          `json:"message,omitempty"`
}

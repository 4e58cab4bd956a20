package db

import (
	"errors"
	"time"

	"github.com/Kjfer/peri-craft-campus-sub001/models"
)

var (
	// ErrNotFound means no order matched the reference.
	ErrNotFound = errors.New("order not found")
	// ErrValidation means the caller supplied an unusable order.
	ErrValidation = errors.New("order validation failed")
)

type Database interface {
	PutUniqueUserData(user models.User) error
	GetUserData(login string) (models.User, error)

	CreatePendingOrder(buyerUUID string, items []models.OrderItem, method string, amount int64, currency string) (*models.Order, error)
	// FindOrder resolves a reference by order uuid, order number or a known
	// provider payment id, in that priority.
	FindOrder(reference string) (*models.Order, error)
	// ApplyStatusTransition performs a single conditional update guarded by
	// payment_status = 'pending'. It reports whether a row changed; an order
	// already in a terminal state is a no-op, not an error.
	ApplyStatusTransition(orderID string, status models.PaymentStatus, providerPaymentID string, reason models.RejectionReason) (bool, error)
	UpsertPayment(orderID, provider, providerPaymentID string, amount int64, currency, method string) error
	// InsertEnrollment reports whether a new row was created; an existing
	// (buyer, course) pair leaves the store untouched.
	InsertEnrollment(buyerUUID, courseUUID string) (bool, error)
	ReceiptUsedByOther(providerPaymentID, orderID string) (bool, error)
	// ExpirePendingOrdersBefore bulk-fails stale pending orders and returns
	// them, so the caller can emit the same lifecycle signals a rejection
	// does.
	ExpirePendingOrdersBefore(cutoff time.Time) ([]models.Order, error)

	Close() error
}

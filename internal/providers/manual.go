package providers

import (
	"fmt"
	"time"
	"unicode"

	"github.com/Kjfer/peri-craft-campus-sub001/internal/db"
	"github.com/Kjfer/peri-craft-campus-sub001/models"
	"go.uber.org/zap"
)

const ProviderManual = "manual"

// ReceiptVerifier decides whether a buyer-submitted receipt is acceptable for
// an order. An empty reason means the receipt passed every check the verifier
// can perform; a non-empty reason is a terminal rejection code.
type ReceiptVerifier interface {
	Verify(order *models.Order, method, transactionID string) (models.RejectionReason, error)
}

// ManualAdapter normalizes a synchronous buyer submission of a provider
// transaction id (Yape/Plin style transfer receipt). This channel carries no
// provider-side callback, so it is the least trustworthy signal and every
// rejection must map to a distinct reason code.
type ManualAdapter struct {
	Database db.Database
	Verifier ReceiptVerifier
	Logger   *zap.SugaredLogger
}

func NewManualAdapter(database db.Database, verifier ReceiptVerifier, logger *zap.SugaredLogger) *ManualAdapter {
	return &ManualAdapter{
		Database: database,
		Verifier: verifier,
		Logger:   logger,
	}
}

func (a *ManualAdapter) Normalize(req models.ConfirmationRequest) (*models.PaymentOutcome, error) {
	order, err := a.Database.FindOrder(req.OrderID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve order for confirmation: %w", err)
	}

	outcome := &models.PaymentOutcome{
		OrderReference:    order.UUID,
		ProviderPaymentID: req.TransactionID,
		RawStatus:         "manual_confirmation",
		Provider:          ProviderManual,
	}

	reason, err := a.Verifier.Verify(order, req.PaymentMethod, req.TransactionID)
	if err != nil {
		a.Logger.Errorw("receipt verifier failed", "order", order.UUID, "error", err)
		outcome.Outcome = models.OutcomeRejected
		outcome.Reason = models.ReasonValidatorError
		return outcome, nil
	}
	if reason != "" {
		outcome.Outcome = models.OutcomeRejected
		outcome.Reason = reason
		return outcome, nil
	}

	outcome.Outcome = models.OutcomeApproved
	return outcome, nil
}

// StructuralVerifier performs the checks possible without a provider
// round-trip: the receipt is readable, matches the order's payment method,
// has not been used by another order and arrived inside the validation
// window. Amount/sender matching against a provider statement plugs in as a
// different ReceiptVerifier.
type StructuralVerifier struct {
	Database db.Database
	Window   time.Duration
}

func (v *StructuralVerifier) Verify(order *models.Order, method, transactionID string) (models.RejectionReason, error) {
	if !readableTransactionID(transactionID) {
		return models.ReasonReceiptUnreadable, nil
	}
	if method != order.PaymentMethod {
		return models.ReasonWrongMethod, nil
	}
	if v.Window > 0 && time.Since(order.CreatedAt) > v.Window {
		return models.ReasonValidationExpired, nil
	}

	used, err := v.Database.ReceiptUsedByOther(transactionID, order.UUID)
	if err != nil {
		return "", err
	}
	if used {
		return models.ReasonReceiptAlreadyUsed, nil
	}

	return "", nil
}

func readableTransactionID(transactionID string) bool {
	if transactionID == "" || len(transactionID) > models.MaxTransactionIDLength {
		return false
	}
	for _, r := range transactionID {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '-' && r != '_' {
			return false
		}
	}
	return true
}

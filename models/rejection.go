package models

type RejectionReason string

func (r RejectionReason) String() string {
	return string(r)
}

// Причины отклонения, видимые покупателю
const (
	ReasonAmountMismatch     RejectionReason = "amount_mismatch"
	ReasonReceiptUnreadable  RejectionReason = "receipt_unreadable"
	ReasonReceiptAlreadyUsed RejectionReason = "receipt_already_used"
	ReasonValidatorError     RejectionReason = "validator_error"
	ReasonWrongMethod        RejectionReason = "wrong_method"
	ReasonValidationExpired  RejectionReason = "validation_expired"
	ReasonPaymentRejected    RejectionReason = "payment_rejected"
	ReasonPaymentCancelled   RejectionReason = "payment_cancelled"
)

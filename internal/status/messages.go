package status

import (
	"fmt"

	"github.com/Kjfer/peri-craft-campus-sub001/models"
)

var reasonMessages = map[models.RejectionReason]string{
	models.ReasonAmountMismatch:     "The receipt amount does not match the order total.",
	models.ReasonReceiptUnreadable:  "We could not read the submitted receipt. Please check the transaction id.",
	models.ReasonReceiptAlreadyUsed: "This receipt was already used for another order.",
	models.ReasonValidatorError:     "We could not validate the payment. Please try again or contact support.",
	models.ReasonWrongMethod:        "The payment was made with a different method than the one selected.",
	models.ReasonValidationExpired:  "The payment validation window expired. Please place a new order.",
	models.ReasonPaymentRejected:    "The payment was declined by the provider.",
	models.ReasonPaymentCancelled:   "The payment was cancelled.",
}

// MessageFor maps an internal rejection code to buyer-facing text. Unknown
// codes keep the raw code visible for support escalation.
func MessageFor(reason models.RejectionReason) string {
	if reason == "" {
		return ""
	}
	if msg, ok := reasonMessages[reason]; ok {
		return msg
	}
	return fmt.Sprintf("The payment could not be completed (code: %s). Please contact support.", reason)
}

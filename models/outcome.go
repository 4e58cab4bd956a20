package models

type Outcome string

func (o Outcome) String() string {
	return string(o)
}

const (
	OutcomeApproved  Outcome = "approved"
	OutcomeRejected  Outcome = "rejected"
	OutcomeCancelled Outcome = "cancelled"
	OutcomePending   Outcome = "pending"
)

// PaymentOutcome is the normalized result a provider adapter hands to the
// reconciliation engine. OrderReference may be an order uuid, an order number
// or a previously recorded provider payment id.
type PaymentOutcome struct {
	OrderReference    string
	ProviderPaymentID string
	Outcome           Outcome
	RawStatus         string
	Provider          string
	Reason            RejectionReason
}

package providers

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/Kjfer/peri-craft-campus-sub001/internal/metrics"
	"github.com/Kjfer/peri-craft-campus-sub001/models"
	"go.uber.org/zap"
)

const ProviderGateway = "izipay"

// ErrMalformed means the payload could not be parsed at all. The handler
// answers non-200 and the event never reaches the engine.
var ErrMalformed = errors.New("malformed provider payload")

type GatewayAdapter struct {
	Metrics *metrics.Registry
	Logger  *zap.SugaredLogger
}

func NewGatewayAdapter(registry *metrics.Registry, logger *zap.SugaredLogger) *GatewayAdapter {
	return &GatewayAdapter{Metrics: registry, Logger: logger}
}

// Normalize translates a webhook body into a canonical outcome. Unrecognized
// event kinds return (nil, nil): the delivery is acknowledged and dropped.
func (a *GatewayAdapter) Normalize(body []byte) (*models.PaymentOutcome, error) {
	var event models.WebhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		a.Metrics.WebhookEvents.WithLabelValues("unknown", "malformed").Inc()
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if event.Event == "" {
		a.Metrics.WebhookEvents.WithLabelValues("unknown", "malformed").Inc()
		return nil, fmt.Errorf("%w: missing event kind", ErrMalformed)
	}

	var outcome *models.PaymentOutcome
	var err error
	switch event.Event {
	case models.EventPaymentUpdated:
		outcome, err = a.normalizePayment(event.Data)
	case models.EventOrderAttempts:
		outcome, err = a.normalizeAttempts(event.Data)
	default:
		a.Logger.Infow("dropping unrecognized webhook event", "event", event.Event)
		a.Metrics.WebhookEvents.WithLabelValues(event.Event, "dropped").Inc()
		return nil, nil
	}

	if err != nil {
		a.Metrics.WebhookEvents.WithLabelValues(event.Event, "malformed").Inc()
		return nil, err
	}
	a.Metrics.WebhookEvents.WithLabelValues(event.Event, "normalized").Inc()

	return outcome, nil
}

func (a *GatewayAdapter) normalizePayment(data json.RawMessage) (*models.PaymentOutcome, error) {
	var payment models.PaymentEventData
	if err := json.Unmarshal(data, &payment); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if payment.PaymentID == "" && payment.OrderRef == "" {
		return nil, fmt.Errorf("%w: payment event has no reference", ErrMalformed)
	}

	reference := payment.OrderRef
	if reference == "" {
		// лукап по ранее записанному id платежа
		reference = payment.PaymentID
	}

	return &models.PaymentOutcome{
		OrderReference:    reference,
		ProviderPaymentID: payment.PaymentID,
		Outcome:           CanonicalStatus(payment.Status),
		RawStatus:         payment.Status,
		Provider:          ProviderGateway,
	}, nil
}

// normalizeAttempts folds an aggregate multi-attempt event: any approved
// attempt wins with its own payment id; all attempts rejected or cancelled
// means rejected; anything else is still pending.
func (a *GatewayAdapter) normalizeAttempts(data json.RawMessage) (*models.PaymentOutcome, error) {
	var aggregate models.OrderAttemptsData
	if err := json.Unmarshal(data, &aggregate); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if aggregate.OrderRef == "" {
		return nil, fmt.Errorf("%w: aggregate event has no order reference", ErrMalformed)
	}

	outcome := &models.PaymentOutcome{
		OrderReference: aggregate.OrderRef,
		Outcome:        models.OutcomePending,
		Provider:       ProviderGateway,
	}

	allSettledNegative := len(aggregate.Attempts) > 0
	for _, attempt := range aggregate.Attempts {
		status := CanonicalStatus(attempt.Status)
		if status == models.OutcomeApproved {
			outcome.Outcome = models.OutcomeApproved
			outcome.ProviderPaymentID = attempt.PaymentID
			outcome.RawStatus = attempt.Status
			return outcome, nil
		}
		if status != models.OutcomeRejected && status != models.OutcomeCancelled {
			allSettledNegative = false
		}
	}

	if allSettledNegative {
		outcome.Outcome = models.OutcomeRejected
		last := aggregate.Attempts[len(aggregate.Attempts)-1]
		outcome.ProviderPaymentID = last.PaymentID
		outcome.RawStatus = last.Status
	}

	return outcome, nil
}

// CanonicalStatus maps the provider status vocabulary onto the canonical set.
// Unknown statuses count as pending so they can never complete an order.
func CanonicalStatus(raw string) models.Outcome {
	switch strings.ToLower(raw) {
	case "approved", "accredited", "paid":
		return models.OutcomeApproved
	case "rejected", "declined":
		return models.OutcomeRejected
	case "cancelled", "canceled", "voided":
		return models.OutcomeCancelled
	default:
		return models.OutcomePending
	}
}

package providers

import (
	"testing"

	"github.com/Kjfer/peri-craft-campus-sub001/internal/metrics"
	"github.com/Kjfer/peri-craft-campus-sub001/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestGateway() *GatewayAdapter {
	return NewGatewayAdapter(metrics.NewRegistry(), zap.NewNop().Sugar())
}

func TestNormalizeSinglePaymentEvent(t *testing.T) {
	adapter := newTestGateway()

	body := []byte(`{"event":"payment.updated","data":{"payment_id":"pay_1","order":"PI-000001","status":"approved"}}`)
	outcome, err := adapter.Normalize(body)

	require.NoError(t, err)
	require.NotNil(t, outcome)
	assert.Equal(t, "PI-000001", outcome.OrderReference)
	assert.Equal(t, "pay_1", outcome.ProviderPaymentID)
	assert.Equal(t, models.OutcomeApproved, outcome.Outcome)
	assert.Equal(t, ProviderGateway, outcome.Provider)
}

func TestNormalizePaymentEventWithoutOrderRef(t *testing.T) {
	adapter := newTestGateway()

	body := []byte(`{"event":"payment.updated","data":{"payment_id":"pay_9","status":"rejected"}}`)
	outcome, err := adapter.Normalize(body)

	require.NoError(t, err)
	require.NotNil(t, outcome)
	assert.Equal(t, "pay_9", outcome.OrderReference)
	assert.Equal(t, models.OutcomeRejected, outcome.Outcome)
}

func TestNormalizeAggregateEvent(t *testing.T) {
	adapter := newTestGateway()

	tests := []struct {
		name      string
		body      string
		outcome   models.Outcome
		paymentID string
	}{
		{
			name:      "approved attempt wins",
			body:      `{"event":"order.payment_attempts","data":{"order":"ord_3","attempts":[{"payment_id":"pay_1","status":"rejected"},{"payment_id":"pay_2","status":"approved"}]}}`,
			outcome:   models.OutcomeApproved,
			paymentID: "pay_2",
		},
		{
			name:      "all attempts negative",
			body:      `{"event":"order.payment_attempts","data":{"order":"ord_3","attempts":[{"payment_id":"pay_1","status":"rejected"},{"payment_id":"pay_2","status":"cancelled"}]}}`,
			outcome:   models.OutcomeRejected,
			paymentID: "pay_2",
		},
		{
			name:    "open attempt keeps order pending",
			body:    `{"event":"order.payment_attempts","data":{"order":"ord_3","attempts":[{"payment_id":"pay_1","status":"rejected"},{"payment_id":"pay_2","status":"in_process"}]}}`,
			outcome: models.OutcomePending,
		},
		{
			name:    "no attempts yet",
			body:    `{"event":"order.payment_attempts","data":{"order":"ord_3","attempts":[]}}`,
			outcome: models.OutcomePending,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			outcome, err := adapter.Normalize([]byte(tt.body))
			require.NoError(t, err)
			require.NotNil(t, outcome)
			assert.Equal(t, "ord_3", outcome.OrderReference)
			assert.Equal(t, tt.outcome, outcome.Outcome)
			assert.Equal(t, tt.paymentID, outcome.ProviderPaymentID)
		})
	}
}

func TestNormalizeDropsUnrecognizedEvent(t *testing.T) {
	adapter := newTestGateway()

	outcome, err := adapter.Normalize([]byte(`{"event":"customer.updated","data":{"id":"cus_1"}}`))

	require.NoError(t, err)
	assert.Nil(t, outcome)
}

func TestNormalizeRejectsMalformedPayloads(t *testing.T) {
	adapter := newTestGateway()

	tests := []struct {
		name string
		body string
	}{
		{"not json", `{{{`},
		{"missing event kind", `{"data":{}}`},
		{"payment event without references", `{"event":"payment.updated","data":{"status":"approved"}}`},
		{"aggregate event without order", `{"event":"order.payment_attempts","data":{"attempts":[]}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := adapter.Normalize([]byte(tt.body))
			assert.ErrorIs(t, err, ErrMalformed)
		})
	}
}

func TestCanonicalStatus(t *testing.T) {
	assert.Equal(t, models.OutcomeApproved, CanonicalStatus("APPROVED"))
	assert.Equal(t, models.OutcomeApproved, CanonicalStatus("accredited"))
	assert.Equal(t, models.OutcomeRejected, CanonicalStatus("declined"))
	assert.Equal(t, models.OutcomeCancelled, CanonicalStatus("voided"))
	assert.Equal(t, models.OutcomePending, CanonicalStatus("in_process"))
	assert.Equal(t, models.OutcomePending, CanonicalStatus("whatever"))
}

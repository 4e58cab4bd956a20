package reconcile

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/Kjfer/peri-craft-campus-sub001/internal/db"
	"github.com/Kjfer/peri-craft-campus-sub001/internal/enrollment"
	"github.com/Kjfer/peri-craft-campus-sub001/internal/metrics"
	"github.com/Kjfer/peri-craft-campus-sub001/internal/notify"
	"github.com/Kjfer/peri-craft-campus-sub001/internal/status"
	"github.com/Kjfer/peri-craft-campus-sub001/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeDatabase struct {
	mu          sync.Mutex
	orders      map[string]*models.Order
	payments    map[string]string
	enrollments map[string]bool
	missFinds   int
}

func newFakeDatabase() *fakeDatabase {
	return &fakeDatabase{
		orders:      make(map[string]*models.Order),
		payments:    make(map[string]string),
		enrollments: make(map[string]bool),
	}
}

func (f *fakeDatabase) addOrder(order models.Order) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.orders[order.UUID] = &order
}

func (f *fakeDatabase) PutUniqueUserData(user models.User) error { return nil }
func (f *fakeDatabase) GetUserData(login string) (models.User, error) {
	return models.User{}, nil
}

func (f *fakeDatabase) CreatePendingOrder(buyerUUID string, items []models.OrderItem, method string, amount int64, currency string) (*models.Order, error) {
	return nil, nil
}

func (f *fakeDatabase) FindOrder(reference string) (*models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.missFinds > 0 {
		f.missFinds--
		return nil, db.ErrNotFound
	}

	if order, ok := f.orders[reference]; ok {
		copied := *order
		return &copied, nil
	}
	for _, order := range f.orders {
		if order.OrderNumber == reference {
			copied := *order
			return &copied, nil
		}
	}
	for orderID, paymentID := range f.payments {
		if paymentID == reference {
			copied := *f.orders[orderID]
			return &copied, nil
		}
	}

	return nil, db.ErrNotFound
}

func (f *fakeDatabase) ApplyStatusTransition(orderID string, newStatus models.PaymentStatus, providerPaymentID string, reason models.RejectionReason) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	order, ok := f.orders[orderID]
	if !ok {
		return false, nil
	}
	if order.PaymentStatus.Terminal() {
		return false, nil
	}

	order.PaymentStatus = newStatus
	if providerPaymentID != "" {
		order.ProviderPaymentID = providerPaymentID
	}
	order.RejectionReason = reason
	order.UpdatedAt = time.Now()

	return true, nil
}

func (f *fakeDatabase) UpsertPayment(orderID, provider, providerPaymentID string, amount int64, currency, method string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.payments[orderID] = providerPaymentID
	return nil
}

func (f *fakeDatabase) InsertEnrollment(buyerUUID, courseUUID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := buyerUUID + "|" + courseUUID
	if f.enrollments[key] {
		return false, nil
	}
	f.enrollments[key] = true
	return true, nil
}

func (f *fakeDatabase) ReceiptUsedByOther(providerPaymentID, orderID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, paymentID := range f.payments {
		if paymentID == providerPaymentID && id != orderID {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeDatabase) ExpirePendingOrdersBefore(cutoff time.Time) ([]models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var expired []models.Order
	for _, order := range f.orders {
		if order.PaymentStatus == models.OrderPending && order.CreatedAt.Before(cutoff) {
			order.PaymentStatus = models.OrderFailed
			order.RejectionReason = models.ReasonValidationExpired
			order.UpdatedAt = time.Now()
			expired = append(expired, *order)
		}
	}
	return expired, nil
}

func (f *fakeDatabase) Close() error { return nil }

type recordingNotifier struct {
	mu     sync.Mutex
	events []notify.Event
}

func (n *recordingNotifier) OrderSettled(event notify.Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
}

func (n *recordingNotifier) settled() []notify.Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]notify.Event(nil), n.events...)
}

func (f *fakeDatabase) enrollmentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.enrollments)
}

func newTestEngine(database db.Database) *Engine {
	logger := zap.NewNop().Sugar()
	registry := metrics.NewRegistry()
	granter := enrollment.NewGranter(database, registry, logger)
	return NewEngine(database, granter, &notify.LogNotifier{Logger: logger}, status.NewHub(), registry, logger, 10*time.Millisecond)
}

func pendingOrder(uuid, number string) models.Order {
	return models.Order{
		UUID:          uuid,
		OrderNumber:   number,
		BuyerUUID:     "buyer-1",
		Items:         []models.OrderItem{{CourseUUID: "course-1", UnitPrice: 4900}},
		TotalAmount:   4900,
		Currency:      "USD",
		PaymentMethod: "card",
		PaymentStatus: models.OrderPending,
		CreatedAt:     time.Now(),
	}
}

func TestApprovedCompletesOrderAndGrantsEnrollment(t *testing.T) {
	database := newFakeDatabase()
	database.addOrder(pendingOrder("ord_1", "PI-000001"))
	engine := newTestEngine(database)

	result, err := engine.Apply(context.Background(), models.PaymentOutcome{
		OrderReference:    "ord_1",
		ProviderPaymentID: "pay_123",
		Outcome:           models.OutcomeApproved,
		Provider:          "izipay",
	})

	require.NoError(t, err)
	assert.Equal(t, Applied, result.Disposition)
	assert.Equal(t, models.OrderCompleted, result.Status)
	assert.Equal(t, 1, database.enrollmentCount())
	assert.Equal(t, "pay_123", database.payments["ord_1"])
}

func TestDuplicateApprovedIsNoOp(t *testing.T) {
	database := newFakeDatabase()
	database.addOrder(pendingOrder("ord_1", "PI-000001"))
	engine := newTestEngine(database)

	outcome := models.PaymentOutcome{
		OrderReference:    "ord_1",
		ProviderPaymentID: "pay_123",
		Outcome:           models.OutcomeApproved,
		Provider:          "izipay",
	}

	_, err := engine.Apply(context.Background(), outcome)
	require.NoError(t, err)

	result, err := engine.Apply(context.Background(), outcome)
	require.NoError(t, err)
	assert.Equal(t, NoOp, result.Disposition)
	assert.Equal(t, models.OrderCompleted, result.Status)
	assert.Equal(t, 1, database.enrollmentCount())
}

func TestRejectedFailsOrderWithReason(t *testing.T) {
	database := newFakeDatabase()
	database.addOrder(pendingOrder("ord_2", "PI-000002"))
	engine := newTestEngine(database)

	result, err := engine.Apply(context.Background(), models.PaymentOutcome{
		OrderReference: "ord_2",
		Outcome:        models.OutcomeRejected,
		Reason:         models.ReasonAmountMismatch,
		Provider:       "manual",
	})

	require.NoError(t, err)
	assert.Equal(t, Applied, result.Disposition)
	assert.Equal(t, models.OrderFailed, result.Status)
	assert.Equal(t, models.ReasonAmountMismatch, result.Reason)
	assert.Equal(t, 0, database.enrollmentCount())
}

func TestCancelledUsesCancellationReason(t *testing.T) {
	database := newFakeDatabase()
	database.addOrder(pendingOrder("ord_2", "PI-000002"))
	engine := newTestEngine(database)

	result, err := engine.Apply(context.Background(), models.PaymentOutcome{
		OrderReference: "ord_2",
		Outcome:        models.OutcomeCancelled,
	})

	require.NoError(t, err)
	assert.Equal(t, models.ReasonPaymentCancelled, result.Reason)
}

func TestOutOfOrderDeliveryConvergesOnApproved(t *testing.T) {
	database := newFakeDatabase()
	database.addOrder(pendingOrder("ord_3", "PI-000003"))
	engine := newTestEngine(database)

	sequence := []models.Outcome{models.OutcomePending, models.OutcomeApproved, models.OutcomePending}
	for _, outcome := range sequence {
		_, err := engine.Apply(context.Background(), models.PaymentOutcome{
			OrderReference:    "ord_3",
			ProviderPaymentID: "pay_777",
			Outcome:           outcome,
		})
		require.NoError(t, err)
	}

	order, err := database.FindOrder("ord_3")
	require.NoError(t, err)
	assert.Equal(t, models.OrderCompleted, order.PaymentStatus)
	assert.Equal(t, 1, database.enrollmentCount())
}

func TestLateApprovalAfterFailureIsStale(t *testing.T) {
	database := newFakeDatabase()
	database.addOrder(pendingOrder("ord_4", "PI-000004"))
	engine := newTestEngine(database)

	_, err := engine.Apply(context.Background(), models.PaymentOutcome{
		OrderReference: "ord_4",
		Outcome:        models.OutcomeRejected,
	})
	require.NoError(t, err)

	result, err := engine.Apply(context.Background(), models.PaymentOutcome{
		OrderReference:    "ord_4",
		ProviderPaymentID: "pay_late",
		Outcome:           models.OutcomeApproved,
	})
	require.NoError(t, err)

	assert.Equal(t, Stale, result.Disposition)
	assert.Equal(t, models.OrderFailed, result.Status)
	assert.Equal(t, 0, database.enrollmentCount())
	// денежный след сохраняется для поддержки
	assert.Equal(t, "pay_late", database.payments["ord_4"])
}

func TestReplayAfterFailureIsNoOp(t *testing.T) {
	database := newFakeDatabase()
	database.addOrder(pendingOrder("ord_5", "PI-000005"))
	engine := newTestEngine(database)

	_, err := engine.Apply(context.Background(), models.PaymentOutcome{
		OrderReference: "ord_5",
		Outcome:        models.OutcomeRejected,
		Reason:         models.ReasonReceiptUnreadable,
	})
	require.NoError(t, err)

	result, err := engine.Apply(context.Background(), models.PaymentOutcome{
		OrderReference: "ord_5",
		Outcome:        models.OutcomeRejected,
	})
	require.NoError(t, err)

	assert.Equal(t, NoOp, result.Disposition)
	assert.Equal(t, models.ReasonReceiptUnreadable, result.Reason)
}

func TestLookupRetryCatchesLateOrderWrite(t *testing.T) {
	database := newFakeDatabase()
	database.addOrder(pendingOrder("ord_6", "PI-000042"))
	database.missFinds = 1
	engine := newTestEngine(database)

	result, err := engine.Apply(context.Background(), models.PaymentOutcome{
		OrderReference:    "PI-000042",
		ProviderPaymentID: "pay_42",
		Outcome:           models.OutcomeApproved,
	})

	require.NoError(t, err)
	assert.Equal(t, Applied, result.Disposition)
	assert.Equal(t, models.OrderCompleted, result.Status)
}

func TestUnresolvableReferenceIsOrphan(t *testing.T) {
	database := newFakeDatabase()
	engine := newTestEngine(database)

	result, err := engine.Apply(context.Background(), models.PaymentOutcome{
		OrderReference: "no-such-order",
		Outcome:        models.OutcomeApproved,
	})

	require.NoError(t, err)
	assert.Equal(t, Orphan, result.Disposition)
}

func TestPendingOutcomeRecordsProviderReference(t *testing.T) {
	database := newFakeDatabase()
	database.addOrder(pendingOrder("ord_7", "PI-000007"))
	engine := newTestEngine(database)

	result, err := engine.Apply(context.Background(), models.PaymentOutcome{
		OrderReference:    "ord_7",
		ProviderPaymentID: "pay_007",
		Outcome:           models.OutcomePending,
	})
	require.NoError(t, err)
	assert.Equal(t, NoOp, result.Disposition)

	order, err := database.FindOrder("ord_7")
	require.NoError(t, err)
	assert.Equal(t, models.OrderPending, order.PaymentStatus)
	assert.Equal(t, "pay_007", order.ProviderPaymentID)
}

func TestResolveByProviderPaymentID(t *testing.T) {
	database := newFakeDatabase()
	database.addOrder(pendingOrder("ord_8", "PI-000008"))
	engine := newTestEngine(database)

	_, err := engine.Apply(context.Background(), models.PaymentOutcome{
		OrderReference:    "ord_8",
		ProviderPaymentID: "pay_888",
		Outcome:           models.OutcomeApproved,
	})
	require.NoError(t, err)

	// повторная доставка ссылается только на id платежа
	result, err := engine.Apply(context.Background(), models.PaymentOutcome{
		OrderReference:    "pay_888",
		ProviderPaymentID: "pay_888",
		Outcome:           models.OutcomeApproved,
	})
	require.NoError(t, err)
	assert.Equal(t, NoOp, result.Disposition)
	assert.Equal(t, models.OrderCompleted, result.Status)
}

func TestExpirePendingNotifiesObservers(t *testing.T) {
	database := newFakeDatabase()
	stale := pendingOrder("ord_9", "PI-000009")
	stale.CreatedAt = time.Now().Add(-48 * time.Hour)
	database.addOrder(stale)
	database.addOrder(pendingOrder("ord_10", "PI-000010"))

	logger := zap.NewNop().Sugar()
	registry := metrics.NewRegistry()
	notifier := &recordingNotifier{}
	engine := NewEngine(database, enrollment.NewGranter(database, registry, logger), notifier, status.NewHub(), registry, logger, 10*time.Millisecond)

	updates, cancel := engine.Hub.Subscribe("ord_9")
	defer cancel()

	expired, err := engine.ExpirePending(time.Now().Add(-24 * time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, expired)

	events := notifier.settled()
	require.Len(t, events, 1)
	assert.Equal(t, "ord_9", events[0].OrderID)
	assert.Equal(t, "PI-000009", events[0].OrderNumber)
	assert.Equal(t, models.OrderFailed, events[0].Status)
	assert.Equal(t, models.ReasonValidationExpired, events[0].Reason)

	select {
	case pushed := <-updates:
		assert.Equal(t, models.OrderFailed, pushed)
	default:
		t.Fatal("expired order produced no push update")
	}

	fresh, err := database.FindOrder("ord_10")
	require.NoError(t, err)
	assert.Equal(t, models.OrderPending, fresh.PaymentStatus)
}

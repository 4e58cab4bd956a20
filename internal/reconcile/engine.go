package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Kjfer/peri-craft-campus-sub001/internal/db"
	"github.com/Kjfer/peri-craft-campus-sub001/internal/enrollment"
	"github.com/Kjfer/peri-craft-campus-sub001/internal/metrics"
	"github.com/Kjfer/peri-craft-campus-sub001/internal/notify"
	"github.com/Kjfer/peri-craft-campus-sub001/internal/status"
	"github.com/Kjfer/peri-craft-campus-sub001/models"
	"go.uber.org/zap"
)

type Disposition string

const (
	// Applied means the outcome moved the order to a new status.
	Applied Disposition = "applied"
	// NoOp covers duplicates, replays after a terminal state and pending
	// outcomes that change nothing.
	NoOp Disposition = "noop"
	// Stale is an approval arriving after the order already failed. Terminal
	// states never reopen; the money trail is kept in the payments row.
	Stale Disposition = "stale"
	// Orphan means no order matched the reference even after the bounded
	// retry. Redelivery will not help, the event is acknowledged and logged.
	Orphan Disposition = "orphan"
)

// Result separates terminal domain outcomes from infrastructure failures:
// only the latter are returned as errors and are worth a retry.
type Result struct {
	Disposition Disposition
	Status      models.PaymentStatus
	Reason      models.RejectionReason
	Order       *models.Order
}

type Engine struct {
	Database         db.Database
	Granter          *enrollment.Granter
	Notifier         notify.Notifier
	Hub              *status.Hub
	Metrics          *metrics.Registry
	Logger           *zap.SugaredLogger
	LookupRetryDelay time.Duration
}

func NewEngine(database db.Database, granter *enrollment.Granter, notifier notify.Notifier, hub *status.Hub, registry *metrics.Registry, logger *zap.SugaredLogger, lookupRetryDelay time.Duration) *Engine {
	return &Engine{
		Database:         database,
		Granter:          granter,
		Notifier:         notifier,
		Hub:              hub,
		Metrics:          registry,
		Logger:           logger,
		LookupRetryDelay: lookupRetryDelay,
	}
}

// Apply resolves the referenced order and applies the canonical outcome.
// Safe to execute more than once for the same input: every provider delivers
// at least once and in no particular order.
func (e *Engine) Apply(ctx context.Context, outcome models.PaymentOutcome) (Result, error) {
	order, err := e.resolveOrder(ctx, outcome.OrderReference)
	if errors.Is(err, db.ErrNotFound) {
		e.Logger.Errorw("no order matches event reference",
			"reference", outcome.OrderReference, "provider", outcome.Provider)
		e.Metrics.OrphanEvents.Inc()
		return Result{Disposition: Orphan}, nil
	}
	if err != nil {
		return Result{}, err
	}

	result, err := e.transition(order, outcome)
	if err != nil {
		return Result{}, err
	}

	e.Metrics.Transitions.WithLabelValues(outcome.Outcome.String(), string(result.Disposition)).Inc()
	return result, nil
}

// resolveOrder retries one lookup miss after a short fixed delay: a webhook
// can land before the order-creation write is visible.
func (e *Engine) resolveOrder(ctx context.Context, reference string) (*models.Order, error) {
	order, err := e.Database.FindOrder(reference)
	if !errors.Is(err, db.ErrNotFound) {
		return order, err
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(e.LookupRetryDelay):
	}

	return e.Database.FindOrder(reference)
}

func (e *Engine) transition(order *models.Order, outcome models.PaymentOutcome) (Result, error) {
	if order.PaymentStatus.Terminal() {
		return e.replayAfterTerminal(order, outcome)
	}

	switch outcome.Outcome {
	case models.OutcomeApproved:
		return e.complete(order, outcome)
	case models.OutcomeRejected, models.OutcomeCancelled:
		return e.fail(order, outcome)
	default:
		return e.stillPending(order, outcome)
	}
}

func (e *Engine) replayAfterTerminal(order *models.Order, outcome models.PaymentOutcome) (Result, error) {
	if order.PaymentStatus == models.OrderFailed && outcome.Outcome == models.OutcomeApproved {
		e.Logger.Warnw("late approval for failed order, kept failed",
			"order", order.UUID, "number", order.OrderNumber,
			"provider", outcome.Provider, "payment", outcome.ProviderPaymentID)
		e.Metrics.StaleApprovals.Inc()
		// хвост для аудита: деньги пришли, заказ уже провален
		if err := e.recordPayment(order, outcome); err != nil {
			return Result{}, err
		}
		return Result{Disposition: Stale, Status: order.PaymentStatus, Reason: order.RejectionReason, Order: order}, nil
	}

	return Result{Disposition: NoOp, Status: order.PaymentStatus, Reason: order.RejectionReason, Order: order}, nil
}

func (e *Engine) complete(order *models.Order, outcome models.PaymentOutcome) (Result, error) {
	applied, err := e.Database.ApplyStatusTransition(order.UUID, models.OrderCompleted, outcome.ProviderPaymentID, "")
	if err != nil {
		return Result{}, fmt.Errorf("failed to complete order %s: %w", order.UUID, err)
	}
	if !applied {
		// параллельная доставка успела раньше
		return e.reloadAsNoOp(order.UUID)
	}

	order.PaymentStatus = models.OrderCompleted
	order.ProviderPaymentID = outcome.ProviderPaymentID

	if err = e.recordPayment(order, outcome); err != nil {
		return Result{}, err
	}

	e.Granter.GrantEnrollments(order)
	e.Hub.Publish(order.UUID, models.OrderCompleted)
	e.Notifier.OrderSettled(notify.Event{
		OrderID:     order.UUID,
		OrderNumber: order.OrderNumber,
		BuyerUUID:   order.BuyerUUID,
		Status:      models.OrderCompleted,
		At:          time.Now(),
	})

	return Result{Disposition: Applied, Status: models.OrderCompleted, Order: order}, nil
}

func (e *Engine) fail(order *models.Order, outcome models.PaymentOutcome) (Result, error) {
	reason := outcome.Reason
	if reason == "" {
		reason = models.ReasonPaymentRejected
		if outcome.Outcome == models.OutcomeCancelled {
			reason = models.ReasonPaymentCancelled
		}
	}

	applied, err := e.Database.ApplyStatusTransition(order.UUID, models.OrderFailed, outcome.ProviderPaymentID, reason)
	if err != nil {
		return Result{}, fmt.Errorf("failed to reject order %s: %w", order.UUID, err)
	}
	if !applied {
		return e.reloadAsNoOp(order.UUID)
	}

	order.PaymentStatus = models.OrderFailed
	order.RejectionReason = reason

	e.Hub.Publish(order.UUID, models.OrderFailed)
	e.Notifier.OrderSettled(notify.Event{
		OrderID:     order.UUID,
		OrderNumber: order.OrderNumber,
		BuyerUUID:   order.BuyerUUID,
		Status:      models.OrderFailed,
		Reason:      reason,
		At:          time.Now(),
	})

	return Result{Disposition: Applied, Status: models.OrderFailed, Reason: reason, Order: order}, nil
}

func (e *Engine) stillPending(order *models.Order, outcome models.PaymentOutcome) (Result, error) {
	if outcome.ProviderPaymentID != "" && order.ProviderPaymentID == "" {
		_, err := e.Database.ApplyStatusTransition(order.UUID, models.OrderPending, outcome.ProviderPaymentID, "")
		if err != nil {
			return Result{}, fmt.Errorf("failed to record provider reference for order %s: %w", order.UUID, err)
		}
		order.ProviderPaymentID = outcome.ProviderPaymentID
	}

	return Result{Disposition: NoOp, Status: models.OrderPending, Order: order}, nil
}

// ExpirePending fails pending orders older than the cutoff. Each expired
// order goes through the same lifecycle boundary a provider rejection does:
// a hub push for waiting observers and a settlement event for downstream
// consumers.
func (e *Engine) ExpirePending(cutoff time.Time) (int, error) {
	expired, err := e.Database.ExpirePendingOrdersBefore(cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to expire pending orders: %w", err)
	}

	for i := range expired {
		order := &expired[i]
		e.Hub.Publish(order.UUID, models.OrderFailed)
		e.Notifier.OrderSettled(notify.Event{
			OrderID:     order.UUID,
			OrderNumber: order.OrderNumber,
			BuyerUUID:   order.BuyerUUID,
			Status:      models.OrderFailed,
			Reason:      models.ReasonValidationExpired,
			At:          time.Now(),
		})
	}

	e.Metrics.ExpiredOrders.Add(float64(len(expired)))
	return len(expired), nil
}

func (e *Engine) recordPayment(order *models.Order, outcome models.PaymentOutcome) error {
	err := e.Database.UpsertPayment(order.UUID, outcome.Provider, outcome.ProviderPaymentID, order.TotalAmount, order.Currency, order.PaymentMethod)
	if err != nil {
		return fmt.Errorf("failed to record payment for order %s: %w", order.UUID, err)
	}
	return nil
}

func (e *Engine) reloadAsNoOp(orderID string) (Result, error) {
	order, err := e.Database.FindOrder(orderID)
	if err != nil {
		return Result{}, fmt.Errorf("failed to reload order %s: %w", orderID, err)
	}
	return Result{Disposition: NoOp, Status: order.PaymentStatus, Reason: order.RejectionReason, Order: order}, nil
}

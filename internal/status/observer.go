package status

import (
	"context"
	"fmt"
	"time"

	"github.com/Kjfer/peri-craft-campus-sub001/internal/db"
	"github.com/Kjfer/peri-craft-campus-sub001/models"
	"go.uber.org/zap"
)

const StillPendingMessage = "Your payment is still being processed, check back later."

// Observer answers buyer-facing status queries. Terminal-state detection runs
// two independent paths against the same predicate: a push subscription on
// the hub and a bounded poll against the store.
type Observer struct {
	Database     db.Database
	Hub          *Hub
	PollInterval time.Duration
	MaxWait      time.Duration
	Logger       *zap.SugaredLogger
}

func NewObserver(database db.Database, hub *Hub, pollInterval, maxWait time.Duration, logger *zap.SugaredLogger) *Observer {
	return &Observer{
		Database:     database,
		Hub:          hub,
		PollInterval: pollInterval,
		MaxWait:      maxWait,
		Logger:       logger,
	}
}

func (o *Observer) GetOrderStatus(orderID string) (models.StatusResponse, error) {
	order, err := o.Database.FindOrder(orderID)
	if err != nil {
		return models.StatusResponse{}, fmt.Errorf("failed to get order status: %w", err)
	}

	return o.response(order.PaymentStatus, order.RejectionReason), nil
}

// WaitForTerminal blocks until the order reaches a terminal status, the wait
// budget runs out or ctx is cancelled. On timeout it reports the order as
// still pending rather than fabricating a failure.
func (o *Observer) WaitForTerminal(ctx context.Context, orderID string) (models.StatusResponse, error) {
	current, err := o.GetOrderStatus(orderID)
	if err != nil {
		return models.StatusResponse{}, err
	}
	if current.PaymentStatus.Terminal() {
		return current, nil
	}

	changes, cancel := o.Hub.Subscribe(orderID)
	defer cancel()

	ticker := time.NewTicker(o.PollInterval)
	defer ticker.Stop()
	deadline := time.NewTimer(o.MaxWait)
	defer deadline.Stop()

	for {
		select {
		case <-ctx.Done():
			return models.StatusResponse{}, ctx.Err()
		case <-deadline.C:
			o.Logger.Infow("status wait exceeded budget", "order", orderID)
			current.Message = StillPendingMessage
			return current, nil
		case pushed := <-changes:
			if pushed.Terminal() {
				// перечитываем заказ ради причины отклонения
				return o.GetOrderStatus(orderID)
			}
		case <-ticker.C:
			polled, err := o.GetOrderStatus(orderID)
			if err != nil {
				o.Logger.Warnw("status poll failed", "order", orderID, "error", err)
				continue
			}
			if polled.PaymentStatus.Terminal() {
				return polled, nil
			}
			current = polled
		}
	}
}

func (o *Observer) response(status models.PaymentStatus, reason models.RejectionReason) models.StatusResponse {
	return models.StatusResponse{
		PaymentStatus:   status,
		RejectionReason: reason,
		Message:         MessageFor(reason),
	}
}

package notify

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/Kjfer/peri-craft-campus-sub001/models"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Event describes an order reaching a terminal state. Consumed by the email
// dispatcher and other downstream collaborators.
type Event struct {
	OrderID     string                 `json:"order_id"`
	OrderNumber string                 `json:"order_number"`
	BuyerUUID   string                 `json:"buyer_id"`
	Status      models.PaymentStatus   `json:"status"`
	Reason      models.RejectionReason `json:"reason,omitempty"`
	At          time.Time              `json:"at"`
}

// Notifier is fire-and-forget: a failed notification never rolls back the
// order transition that produced it.
type Notifier interface {
	OrderSettled(event Event)
}

type kafkaMessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

type KafkaNotifier struct {
	writer  kafkaMessageWriter
	timeout time.Duration
	logger  *zap.SugaredLogger
}

func NewKafkaNotifier(brokers, topic string, logger *zap.SugaredLogger) *KafkaNotifier {
	return &KafkaNotifier{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(strings.Split(brokers, ",")...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireOne,
		},
		timeout: 5 * time.Second,
		logger:  logger,
	}
}

func NewKafkaNotifierWith(w kafkaMessageWriter, logger *zap.SugaredLogger) *KafkaNotifier {
	return &KafkaNotifier{writer: w, timeout: 5 * time.Second, logger: logger}
}

func (n *KafkaNotifier) OrderSettled(event Event) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), n.timeout)
		defer cancel()

		value, err := json.Marshal(event)
		if err != nil {
			n.logger.Errorw("failed to marshal lifecycle event", "order", event.OrderID, "error", err)
			return
		}

		err = n.writer.WriteMessages(ctx, kafka.Message{
			Key:   []byte(event.OrderID),
			Value: value,
		})
		if err != nil {
			n.logger.Warnw("failed to publish lifecycle event", "order", event.OrderID, "error", err)
		}
	}()
}

// LogNotifier is the fallback when no broker is configured.
type LogNotifier struct {
	Logger *zap.SugaredLogger
}

func (n *LogNotifier) OrderSettled(event Event) {
	n.Logger.Infow("order settled",
		"order", event.OrderID, "number", event.OrderNumber,
		"status", event.Status, "reason", event.Reason)
}

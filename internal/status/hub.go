package status

import (
	"sync"

	"github.com/Kjfer/peri-craft-campus-sub001/models"
)

// Hub is the push side of status delivery: the engine publishes every status
// change here and waiting observers get notified without polling.
type Hub struct {
	mu   sync.Mutex
	subs map[string][]chan models.PaymentStatus
}

func NewHub() *Hub {
	return &Hub{
		subs: make(map[string][]chan models.PaymentStatus),
	}
}

// Subscribe returns a channel of status changes for one order and a cancel
// function the caller must invoke when done.
func (h *Hub) Subscribe(orderID string) (<-chan models.PaymentStatus, func()) {
	ch := make(chan models.PaymentStatus, 1)

	h.mu.Lock()
	h.subs[orderID] = append(h.subs[orderID], ch)
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		subs := h.subs[orderID]
		for i, sub := range subs {
			if sub == ch {
				h.subs[orderID] = append(subs[:i], subs[i+1:]...)
				break
			}
		}
		if len(h.subs[orderID]) == 0 {
			delete(h.subs, orderID)
		}
	}

	return ch, cancel
}

// Publish never blocks: a subscriber that already has a buffered notification
// will catch up through its poll fallback instead.
func (h *Hub) Publish(orderID string, status models.PaymentStatus) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.subs[orderID] {
		select {
		case ch <- status:
		default:
		}
	}
}

package services

import (
	"log/slog"
	"sync"
	"time"

	"github.com/labelhive/labelhive/internal/core/domain"
	"github.com/labelhive/labelhive/internal/core/ports"
)

// AssignmentEvent tells a worker an item was handed to them.
type AssignmentEvent struct {
	WorkerID  domain.WorkerID
	ItemID    domain.ItemID
	PoolID    domain.PoolID
	Timestamp int64
}

// NotificationBus is the in-process NotificationSink: per-worker fanout for
// whatever delivery mechanism the surrounding service attaches (push, email,
// websocket). Delivery is fire-and-forget; a slow or absent subscriber never
// blocks or fails an assignment.
type NotificationBus struct {
	logger *slog.Logger
	mu     sync.RWMutex
	subs   map[domain.WorkerID][]chan AssignmentEvent
}

var _ ports.NotificationSink = (*NotificationBus)(nil)

func NewNotificationBus(logger *slog.Logger) *NotificationBus {
	return &NotificationBus{
		logger: logger,
		subs:   make(map[domain.WorkerID][]chan AssignmentEvent),
	}
}

// Subscribe returns a channel receiving assignment events for one worker.
// The returned func unsubscribes and closes the channel.
func (b *NotificationBus) Subscribe(workerID domain.WorkerID) (<-chan AssignmentEvent, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan AssignmentEvent, 16)
	b.subs[workerID] = append(b.subs[workerID], ch)

	unsub := func() {
		b.mu.Lock()
		defer b.mu.Unlock()

		subscribers := b.subs[workerID]
		for i, sub := range subscribers {
			if sub == ch {
				close(ch)
				b.subs[workerID] = append(subscribers[:i], subscribers[i+1:]...)
				break
			}
		}
		if len(b.subs[workerID]) == 0 {
			delete(b.subs, workerID)
		}
	}

	return ch, unsub
}

// NotifyAssigned publishes to all of the worker's subscribers, dropping the
// event when a channel is full.
func (b *NotificationBus) NotifyAssigned(workerID domain.WorkerID, itemID domain.ItemID, poolID domain.PoolID) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	subscribers, ok := b.subs[workerID]
	if !ok {
		return
	}

	e := AssignmentEvent{
		WorkerID:  workerID,
		ItemID:    itemID,
		PoolID:    poolID,
		Timestamp: time.Now().Unix(),
	}
	for _, ch := range subscribers {
		select {
		case ch <- e:
		default:
			b.logger.Warn("notification channel full, dropping event",
				"worker_id", workerID, "item_id", itemID)
		}
	}
}

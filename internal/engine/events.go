package engine

import (
	"sync"
	"sync/atomic"
	"time"

	"tradecore/internal/models"
)

// EventBus раздаёт уведомления движка подписчикам (WebSocket hub, логи).
//
// Очередь каждого подписчика ограничена: при переполнении вытесняется
// самое старое событие, новое встаёт в хвост. Медленный подписчик
// теряет историю, но всегда видит свежие события.
type EventBus struct {
	mu          sync.RWMutex
	subscribers []chan models.Notification
	capacity    int
	seq         atomic.Int64
	dropped     atomic.Int64
}

// NewEventBus создаёт шину с заданной ёмкостью очереди подписчика
func NewEventBus(capacity int) *EventBus {
	if capacity < 1 {
		capacity = 1
	}
	return &EventBus{capacity: capacity}
}

// Subscribe возвращает канал событий нового подписчика
func (b *EventBus) Subscribe() <-chan models.Notification {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan models.Notification, b.capacity)
	b.subscribers = append(b.subscribers, ch)
	return ch
}

// Publish рассылает событие всем подписчикам.
// Никогда не блокируется: переполненная очередь теряет самое старое событие.
func (b *EventBus) Publish(n models.Notification) {
	n.ID = b.seq.Add(1)
	if n.Timestamp.IsZero() {
		n.Timestamp = time.Now()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.subscribers {
		for {
			select {
			case ch <- n:
			default:
				// Очередь полна: вытесняем голову и пробуем снова
				select {
				case <-ch:
					b.dropped.Add(1)
					EventsDropped.Inc()
				default:
				}
				continue
			}
			break
		}
	}
}

// Dropped возвращает общее число вытесненных событий
func (b *EventBus) Dropped() int64 {
	return b.dropped.Load()
}

// Close закрывает каналы всех подписчиков
func (b *EventBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, ch := range b.subscribers {
		close(ch)
	}
	b.subscribers = nil
}

// internal/handler/event_bus.go
package handler

import (
	"context"
	"slices"
	"sync"

	"go.uber.org/zap"

	"pino/internal/model"
)

const (
	eventQueueSize      = 1000
	subscriberQueueSize = 100
)

// EventBus fans board events out to subscribers. Publish never blocks: a
// full queue or a slow subscriber drops the event.
type EventBus struct {
	subscribers map[int]*subscription
	nextID      int
	events      chan *model.BoardEvent
	mutex       sync.RWMutex
	logger      *zap.Logger
}

type subscription struct {
	types []model.EventType
	ch    chan *model.BoardEvent
}

func (s *subscription) wants(t model.EventType) bool {
	return len(s.types) == 0 || slices.Contains(s.types, t)
}

// NewEventBus creates a new event bus
func NewEventBus(logger *zap.Logger) *EventBus {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventBus{
		subscribers: make(map[int]*subscription),
		events:      make(chan *model.BoardEvent, eventQueueSize),
		logger:      logger.With(zap.String("component", "event-bus")),
	}
}

// Start distributes published events until ctx is done
func (eb *EventBus) Start(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event := <-eb.events:
			eb.distributeEvent(event)
		}
	}
}

// Publish queues an event for distribution
func (eb *EventBus) Publish(event *model.BoardEvent) {
	select {
	case eb.events <- event:
	default:
		eb.logger.Warn("Event bus full, dropping event",
			zap.String("event_type", string(event.EventType)),
		)
	}
}

// Subscribe returns a channel receiving events of the given types, or of
// every type when none are given, and a function that ends the
// subscription and closes the channel
func (eb *EventBus) Subscribe(types ...model.EventType) (<-chan *model.BoardEvent, func()) {
	eb.mutex.Lock()
	defer eb.mutex.Unlock()

	id := eb.nextID
	eb.nextID++
	sub := &subscription{types: types, ch: make(chan *model.BoardEvent, subscriberQueueSize)}
	eb.subscribers[id] = sub

	var once sync.Once
	return sub.ch, func() {
		once.Do(func() {
			eb.mutex.Lock()
			delete(eb.subscribers, id)
			eb.mutex.Unlock()
			close(sub.ch)
		})
	}
}

// distributeEvent distributes an event to subscribers
func (eb *EventBus) distributeEvent(event *model.BoardEvent) {
	eb.mutex.RLock()
	defer eb.mutex.RUnlock()

	for _, sub := range eb.subscribers {
		if !sub.wants(event.EventType) {
			continue
		}
		select {
		case sub.ch <- event:
		default:
			// Subscriber is slow, skip
		}
	}
}

// internal/bus/event_bus.go
package bus

import (
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"obd-service/internal/model"
)

// EventBus fans engine events out to subscribers. Delivery coalesces: each
// subscriber holds at most one pending event per coalesce key, and a newer
// event for the same key replaces the older one. A slow reader therefore
// catches up to the latest value of every key it missed instead of working
// through a backlog, and the publisher never blocks.
type EventBus struct {
	subscribers map[string]*Subscription
	mutex       sync.RWMutex
	logger      *zap.Logger
	closed      bool
}

// NewEventBus creates a new event bus
func NewEventBus(logger *zap.Logger) *EventBus {
	return &EventBus{
		subscribers: make(map[string]*Subscription),
		logger:      logger,
	}
}

// Publish delivers an event to every subscriber without blocking the caller.
func (eb *EventBus) Publish(event model.Event) {
	eb.mutex.RLock()
	defer eb.mutex.RUnlock()

	if eb.closed {
		return
	}
	for _, sub := range eb.subscribers {
		sub.push(event)
	}
}

// Subscribe registers a subscriber. The name only appears in logs.
func (eb *EventBus) Subscribe(name string) *Subscription {
	eb.mutex.Lock()
	defer eb.mutex.Unlock()

	sub := &Subscription{
		id:      uuid.New().String(),
		name:    name,
		pending: make(map[string]model.Event),
		signal:  make(chan struct{}, 1),
	}
	eb.subscribers[sub.id] = sub

	if eb.logger != nil {
		eb.logger.Debug("Event bus subscriber registered",
			zap.String("subscriber", name),
			zap.Int("total", len(eb.subscribers)),
		)
	}
	return sub
}

// Unsubscribe removes a subscriber. Pending events are discarded and further
// publishes no longer reach it.
func (eb *EventBus) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}

	eb.mutex.Lock()
	delete(eb.subscribers, sub.id)
	remaining := len(eb.subscribers)
	eb.mutex.Unlock()

	sub.close()

	if eb.logger != nil {
		eb.logger.Debug("Event bus subscriber removed",
			zap.String("subscriber", sub.name),
			zap.Int("total", remaining),
		)
	}
}

// SubscriberCount returns the number of registered subscribers.
func (eb *EventBus) SubscriberCount() int {
	eb.mutex.RLock()
	defer eb.mutex.RUnlock()
	return len(eb.subscribers)
}

// Close drops all subscribers and rejects further publishes.
func (eb *EventBus) Close() {
	eb.mutex.Lock()
	defer eb.mutex.Unlock()

	eb.closed = true
	for id, sub := range eb.subscribers {
		sub.close()
		delete(eb.subscribers, id)
	}
}

// Subscription is one subscriber's coalescing queue. Keys keep their arrival
// order, so a connection-state change queued before a metric update is also
// drained before it.
type Subscription struct {
	id        string
	name      string
	mutex     sync.Mutex
	pending   map[string]model.Event
	order     []string
	signal    chan struct{}
	coalesced uint64
	closed    bool
}

// Name returns the label the subscriber registered under.
func (s *Subscription) Name() string {
	return s.name
}

// Ready signals when at least one event is pending. Consumers select on it
// together with their own shutdown channel and then call Drain.
func (s *Subscription) Ready() <-chan struct{} {
	return s.signal
}

// Drain pops every pending event in key arrival order. It returns nil when
// nothing is pending.
func (s *Subscription) Drain() []model.Event {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if len(s.order) == 0 {
		return nil
	}
	out := make([]model.Event, 0, len(s.order))
	for _, key := range s.order {
		out = append(out, s.pending[key])
		delete(s.pending, key)
	}
	s.order = s.order[:0]
	return out
}

// Coalesced returns how many pending events were superseded by a newer value
// for the same key before the subscriber drained them.
func (s *Subscription) Coalesced() uint64 {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.coalesced
}

func (s *Subscription) push(event model.Event) {
	s.mutex.Lock()
	if s.closed {
		s.mutex.Unlock()
		return
	}
	key := event.CoalesceKey()
	if _, waiting := s.pending[key]; waiting {
		s.coalesced++
	} else {
		s.order = append(s.order, key)
	}
	s.pending[key] = event
	s.mutex.Unlock()

	select {
	case s.signal <- struct{}{}:
	default:
	}
}

func (s *Subscription) close() {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.closed = true
	s.pending = make(map[string]model.Event)
	s.order = nil
}

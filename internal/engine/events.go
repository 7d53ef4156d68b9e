package engine

import (
	"sync"

	"go.uber.org/zap"
)

// Wildcard subscribes to every event; wildcard subscribers run last.
const Wildcard = "*"

// EventHandler receives an emitted event.
type EventHandler func(name string, data map[string]interface{})

// Event is one emitted engine event.
type Event struct {
	Name string
	Data map[string]interface{}
}

type subscription struct {
	id      int
	handler EventHandler
}

// Emitter is the pub-sub table: event name to ordered subscriber list.
// Delivery is synchronous in registration order; handler panics are caught
// per subscriber.
type Emitter struct {
	mu     sync.Mutex
	subs   map[string][]*subscription
	nextID int
	logger *zap.Logger
}

// NewEmitter creates an emitter.
func NewEmitter(logger *zap.Logger) *Emitter {
	return &Emitter{
		subs:   make(map[string][]*subscription),
		logger: logger,
	}
}

// Subscribe registers a handler for an event name (or Wildcard) and returns
// a subscription id.
func (em *Emitter) Subscribe(name string, handler EventHandler) int {
	em.mu.Lock()
	defer em.mu.Unlock()
	em.nextID++
	em.subs[name] = append(em.subs[name], &subscription{id: em.nextID, handler: handler})
	return em.nextID
}

// Unsubscribe removes a subscription by id.
func (em *Emitter) Unsubscribe(id int) {
	em.mu.Lock()
	defer em.mu.Unlock()
	for name, subs := range em.subs {
		for i, s := range subs {
			if s.id == id {
				em.subs[name] = append(subs[:i], subs[i+1:]...)
				return
			}
		}
	}
}

// Emit delivers an event to its subscribers in registration order, then to
// wildcard subscribers.
func (em *Emitter) Emit(name string, data map[string]interface{}) {
	em.mu.Lock()
	targets := make([]*subscription, 0, len(em.subs[name])+len(em.subs[Wildcard]))
	targets = append(targets, em.subs[name]...)
	if name != Wildcard {
		targets = append(targets, em.subs[Wildcard]...)
	}
	em.mu.Unlock()

	for _, s := range targets {
		em.deliver(s, name, data)
	}
}

func (em *Emitter) deliver(s *subscription, name string, data map[string]interface{}) {
	defer func() {
		if r := recover(); r != nil {
			em.logger.Error("event handler panicked",
				zap.String("event", name),
				zap.Any("panic", r))
		}
	}()
	s.handler(name, data)
}

package services

import (
	"log"
	"sync"

	"github.com/MWest2020/openregister/internal/models"
	"github.com/MWest2020/openregister/internal/types"
)

// Lifecycle event names.
const (
	EventObjectCreated  = "object.created"
	EventObjectUpdated  = "object.updated"
	EventObjectDeleted  = "object.deleted"
	EventObjectLocked   = "object.locked"
	EventObjectUnlocked = "object.unlocked"
	EventObjectReverted = "object.reverted"
)

// Event is a typed lifecycle notification. The store only emits; it never
// consumes a return value, so a failing subscriber cannot fail a mutation.
type Event interface {
	EventName() string
}

// ObjectCreated is emitted after a new object row is persisted.
type ObjectCreated struct {
	Object  *models.Object
	Session *types.Session
}

func (ObjectCreated) EventName() string { return EventObjectCreated }

// ObjectUpdated carries both states so subscribers can diff them.
type ObjectUpdated struct {
	Old     *models.Object
	New     *models.Object
	Session *types.Session
}

func (ObjectUpdated) EventName() string { return EventObjectUpdated }

// ObjectDeleted is emitted after a hard row removal.
type ObjectDeleted struct {
	Object  *models.Object
	Session *types.Session
}

func (ObjectDeleted) EventName() string { return EventObjectDeleted }

// ObjectLocked is emitted after a lock is attached or extended.
type ObjectLocked struct {
	Object  *models.Object
	Session *types.Session
}

func (ObjectLocked) EventName() string { return EventObjectLocked }

// ObjectUnlocked is emitted after a lock is cleared.
type ObjectUnlocked struct {
	Object  *models.Object
	Session *types.Session
}

func (ObjectUnlocked) EventName() string { return EventObjectUnlocked }

// ObjectReverted is emitted after a reconstructed prior state is persisted.
type ObjectReverted struct {
	Old     *models.Object
	New     *models.Object
	Until   string
	Session *types.Session
}

func (ObjectReverted) EventName() string { return EventObjectReverted }

// Dispatcher is an in-process, fire-and-forget event bus. Subscribers run
// synchronously in registration order; a panicking subscriber is recovered
// and logged so the emitting mutation still completes. A crash between the
// object write and a subscriber's own write is an accepted consistency gap.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[string][]func(Event)
}

// NewDispatcher creates an empty dispatcher.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{handlers: make(map[string][]func(Event))}
}

// Subscribe registers a handler for the named event.
func (d *Dispatcher) Subscribe(name string, handler func(Event)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[name] = append(d.handlers[name], handler)
}

// Dispatch delivers the event to every subscriber of its name.
func (d *Dispatcher) Dispatch(event Event) {
	if d == nil {
		return
	}
	d.mu.RLock()
	handlers := d.handlers[event.EventName()]
	d.mu.RUnlock()

	for _, handler := range handlers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.Printf("event subscriber panic on %s: %v", event.EventName(), r)
				}
			}()
			handler(event)
		}()
	}
}

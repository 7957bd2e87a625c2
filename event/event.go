// Package event provides a small typed event bus. authkit publishes session
// state transitions through it; host applications register their own buses on
// the same broker for unrelated events.
package event

import (
	"context"
	"fmt"
	"reflect"
	"sync"
)

// Publisher is the type-erased face of a Bus, keyed by its event type.
type Publisher interface {
	Publish(ctx context.Context, event any) error
	Key() string
}

// Broker routes events to the bus registered for their concrete type.
type Broker struct {
	mu    sync.RWMutex
	buses map[string]Publisher
}

func NewBroker() *Broker {
	return &Broker{
		buses: make(map[string]Publisher),
	}
}

func (r *Broker) RegisterBus(bus Publisher) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.buses[bus.Key()] = bus
}

func (r *Broker) Publish(ctx context.Context, event any) error {
	if event == nil {
		return fmt.Errorf("event is nil")
	}

	t := reflect.TypeOf(event).String()

	r.mu.RLock()
	bus, ok := r.buses[t]
	r.mu.RUnlock()

	if !ok {
		return fmt.Errorf("event bus [%s] not found", t)
	}

	return bus.Publish(ctx, event)
}

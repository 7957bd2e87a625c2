package event

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
)

// Handler consumes a published event of type T.
type Handler[T any] func(context.Context, T) error

// Bus is a typed publish/subscribe channel for a single event type.
// Session screens subscribe to it to observe state transitions without
// polling the session manager.
type Bus[T any] struct {
	mu       sync.RWMutex
	handlers []Handler[T]
	evt      T
	onError  func(error)
}

func NewBus[T any]() *Bus[T] {
	return &Bus[T]{}
}

// Subscribe registers a synchronous handler. Handlers run in publish order;
// a failing handler does not stop the others.
func (b *Bus[T]) Subscribe(h Handler[T]) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = append(b.handlers, h)
}

// SubscribeAsync registers a handler that runs on its own goroutine.
// Errors and panics are reported through OnError instead of crashing
// the publisher.
func (b *Bus[T]) SubscribeAsync(h Handler[T]) {
	b.Subscribe(func(ctx context.Context, evt T) error {
		go func() {
			defer func() {
				if r := recover(); r != nil {
					b.reportError(fmt.Errorf("async event handler panic: %v", r))
				}
			}()
			if err := h(ctx, evt); err != nil {
				b.reportError(err)
			}
		}()
		return nil
	})
}

// OnError sets the sink for async handler failures. Nil restores the default
// (discard).
func (b *Bus[T]) OnError(fn func(error)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onError = fn
}

func (b *Bus[T]) reportError(err error) {
	b.mu.RLock()
	fn := b.onError
	b.mu.RUnlock()
	if fn != nil {
		fn(err)
	}
}

// Publish delivers evt to every subscriber. It implements Publisher, so a Bus
// can be registered on a Broker.
func (b *Bus[T]) Publish(ctx context.Context, evt any) error {
	b.mu.RLock()
	handlers := append([]Handler[T]{}, b.handlers...)
	b.mu.RUnlock()

	if len(handlers) == 0 {
		return nil
	}

	e, ok := evt.(T)
	if !ok {
		return fmt.Errorf("invalid event type: %T", evt)
	}

	var errs []error
	for _, handle := range handlers {
		if err := handle(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// Key identifies the event type this bus carries.
func (b *Bus[T]) Key() string {
	return reflect.TypeOf(b.evt).String()
}

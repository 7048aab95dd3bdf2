package domovoy

import (
	"context"
	"sync"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
)

// Observer is notified of engine lifecycle events. Events use the
// CloudEvents specification for standardized format and interoperability.
type Observer interface {
	// OnEvent is called for each event the observer subscribed to.
	// Observers should return quickly; errors are logged, not propagated.
	OnEvent(ctx context.Context, event cloudevents.Event) error

	// ObserverID returns a unique identifier for registration tracking.
	ObserverID() string
}

// Subject is implemented by event emitters; the Engine is one.
type Subject interface {
	// RegisterObserver subscribes an observer, optionally filtered to the
	// given event types. An empty filter receives everything.
	RegisterObserver(observer Observer, eventTypes ...string) error

	// UnregisterObserver removes an observer. Idempotent.
	UnregisterObserver(observer Observer) error

	// NotifyObservers delivers an event to all matching observers without
	// blocking the caller.
	NotifyObservers(ctx context.Context, event cloudevents.Event) error
}

// FunctionalObserver wraps a handler func as an Observer, for quick
// observer creation without defining a struct.
type FunctionalObserver struct {
	id      string
	handler func(ctx context.Context, event cloudevents.Event) error
}

// NewFunctionalObserver creates an Observer backed by handler.
func NewFunctionalObserver(id string, handler func(ctx context.Context, event cloudevents.Event) error) *FunctionalObserver {
	return &FunctionalObserver{id: id, handler: handler}
}

func (f *FunctionalObserver) OnEvent(ctx context.Context, event cloudevents.Event) error {
	return f.handler(ctx, event)
}

func (f *FunctionalObserver) ObserverID() string { return f.id }

// observerRegistration tracks one registered observer and its type filter.
type observerRegistration struct {
	observer   Observer
	eventTypes map[string]struct{}
}

// subject is the embedded Subject implementation used by the Engine.
type subject struct {
	mu        sync.RWMutex
	observers map[string]*observerRegistration
	logger    Logger
}

func newSubject(logger Logger) *subject {
	return &subject{observers: make(map[string]*observerRegistration), logger: logger}
}

func (s *subject) RegisterObserver(observer Observer, eventTypes ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	filter := make(map[string]struct{}, len(eventTypes))
	for _, et := range eventTypes {
		filter[et] = struct{}{}
	}
	s.observers[observer.ObserverID()] = &observerRegistration{observer: observer, eventTypes: filter}
	return nil
}

func (s *subject) UnregisterObserver(observer Observer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.observers, observer.ObserverID())
	return nil
}

func (s *subject) NotifyObservers(ctx context.Context, event cloudevents.Event) error {
	if event.Time().IsZero() {
		event.SetTime(time.Now())
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, reg := range s.observers {
		if len(reg.eventTypes) > 0 {
			if _, ok := reg.eventTypes[event.Type()]; !ok {
				continue
			}
		}
		reg := reg
		go func() {
			if err := reg.observer.OnEvent(ctx, event); err != nil {
				s.logger.Debug("observer returned error",
					"observer", reg.observer.ObserverID(), "eventType", event.Type(), "error", err)
			}
		}()
	}
	return nil
}

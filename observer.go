package webmod

import (
	"context"
	"errors"
	"sync"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
)

// ErrObserverNil is returned when registering a nil observer.
var ErrObserverNil = errors.New("observer is nil")

// Observer receives framework events.
type Observer interface {
	// OnEvent handles one event. It runs on its own goroutine; errors are
	// logged and otherwise ignored.
	OnEvent(ctx context.Context, event cloudevents.Event) error

	// ObserverID identifies the observer for unregistration and logs.
	ObserverID() string
}

// Subject fans events out to registered observers.
type Subject interface {
	RegisterObserver(observer Observer, eventTypes ...string) error
	UnregisterObserver(observer Observer) error
	NotifyObservers(ctx context.Context, event cloudevents.Event) error
	GetObservers() []ObserverInfo
}

// ObserverInfo describes a registered observer.
type ObserverInfo struct {
	ID           string    `json:"id"`
	EventTypes   []string  `json:"eventTypes"`
	RegisteredAt time.Time `json:"registeredAt"`
}

// Event types emitted by the framework.
const (
	EventTypeApplicationStarted = "com.webmod.application.started"
	EventTypeApplicationStopped = "com.webmod.application.stopped"
	EventTypeApplicationFailed  = "com.webmod.application.failed"
	EventTypeProviderResolved   = "com.webmod.provider.resolved"
	EventTypeConfigLoaded       = "com.webmod.config.loaded"
	EventTypeRequestPanicked    = "com.webmod.request.panicked"
	EventTypeRequestTimeout     = "com.webmod.request.timeout"
)

// FunctionalObserver adapts a function to Observer.
type FunctionalObserver struct {
	id      string
	handler func(ctx context.Context, event cloudevents.Event) error
}

// NewFunctionalObserver wraps handler as an Observer named id.
func NewFunctionalObserver(id string, handler func(ctx context.Context, event cloudevents.Event) error) Observer {
	return &FunctionalObserver{id: id, handler: handler}
}

func (f *FunctionalObserver) OnEvent(ctx context.Context, event cloudevents.Event) error {
	return f.handler(ctx, event)
}

func (f *FunctionalObserver) ObserverID() string {
	return f.id
}

type observerRegistration struct {
	observer     Observer
	eventTypes   map[string]bool
	registeredAt time.Time
}

// EventBus is the Subject used by Application and Pipeline.
type EventBus struct {
	mu        sync.RWMutex
	observers map[string]*observerRegistration
	logger    Logger
	source    string
}

// NewEventBus creates a bus stamping events with source.
func NewEventBus(source string, logger Logger) *EventBus {
	if logger == nil {
		logger = NopLogger{}
	}
	return &EventBus{
		observers: make(map[string]*observerRegistration),
		logger:    logger,
		source:    source,
	}
}

// RegisterObserver subscribes observer to eventTypes, or to everything when
// none are given. Registering the same ID again replaces the subscription.
func (b *EventBus) RegisterObserver(observer Observer, eventTypes ...string) error {
	if observer == nil {
		return ErrObserverNil
	}
	types := make(map[string]bool, len(eventTypes))
	for _, t := range eventTypes {
		types[t] = true
	}
	b.mu.Lock()
	b.observers[observer.ObserverID()] = &observerRegistration{
		observer:     observer,
		eventTypes:   types,
		registeredAt: time.Now(),
	}
	b.mu.Unlock()
	b.logger.Debug("Registered observer", "observerID", observer.ObserverID(), "eventTypes", eventTypes)
	return nil
}

// UnregisterObserver removes observer.
func (b *EventBus) UnregisterObserver(observer Observer) error {
	if observer == nil {
		return ErrObserverNil
	}
	b.mu.Lock()
	delete(b.observers, observer.ObserverID())
	b.mu.Unlock()
	return nil
}

// NotifyObservers validates event and hands it to each interested observer
// on its own goroutine.
func (b *EventBus) NotifyObservers(ctx context.Context, event cloudevents.Event) error {
	if event.Time().IsZero() {
		event.SetTime(time.Now())
	}
	if err := ValidateCloudEvent(event); err != nil {
		b.logger.Error("Invalid CloudEvent", "eventType", event.Type(), "error", err)
		return err
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, registration := range b.observers {
		if len(registration.eventTypes) > 0 && !registration.eventTypes[event.Type()] {
			continue
		}
		go func() {
			defer func() {
				if r := recover(); r != nil {
					b.logger.Error("Observer panicked", "observerID", registration.observer.ObserverID(), "event", event.Type(), "panic", r)
				}
			}()
			if err := registration.observer.OnEvent(ctx, event); err != nil {
				b.logger.Error("Observer error", "observerID", registration.observer.ObserverID(), "event", event.Type(), "error", err)
			}
		}()
	}
	return nil
}

// GetObservers lists registered observers.
func (b *EventBus) GetObservers() []ObserverInfo {
	b.mu.RLock()
	defer b.mu.RUnlock()
	infos := make([]ObserverInfo, 0, len(b.observers))
	for id, reg := range b.observers {
		types := make([]string, 0, len(reg.eventTypes))
		for t := range reg.eventTypes {
			types = append(types, t)
		}
		infos = append(infos, ObserverInfo{ID: id, EventTypes: types, RegisteredAt: reg.registeredAt})
	}
	return infos
}

// emit builds and sends an event, logging failures.
func (b *EventBus) emit(ctx context.Context, eventType string, data any) {
	if b == nil {
		return
	}
	if ctx == nil || ctx.Err() != nil {
		ctx = context.Background()
	}
	event := NewCloudEvent(eventType, b.source, data, nil)
	if err := b.NotifyObservers(ctx, event); err != nil {
		b.logger.Error("Failed to notify observers", "event", eventType, "error", err)
	}
}

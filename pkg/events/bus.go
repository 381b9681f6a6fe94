package events

import (
	"errors"
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
)

// DefaultShutdownGrace bounds how long Shutdown waits for in-flight handlers.
const DefaultShutdownGrace = 3 * time.Second

// historyCap bounds the recent-event buffer kept for observability.
const historyCap = 256

// ErrShutdownTimeout reports that some handlers were still running when the
// shutdown grace expired and were abandoned.
var ErrShutdownTimeout = errors.New("event bus shutdown timed out")

// EventHandler event handler function
type EventHandler func(event Event) error

// Bus is a per-connection publish/subscribe dispatcher keyed by event subject.
//
// Publishing never blocks the caller: handlers run in their own goroutines.
// Events on the same subject are delivered one after another in publish
// order, so a subject's handlers never see reordered messages; events on
// different subjects dispatch independently. Handler failures are contained
// and re-emitted once as error.occurred events.
type Bus struct {
	mu             sync.Mutex
	handlers       map[string][]EventHandler
	tails          map[string]chan struct{} // per-subject dispatch chain
	publishedTypes map[string]time.Time     // first publish time per subject
	history        *lru.Cache[string, Event]
	closed         bool
	inflight       sync.WaitGroup
	logger         *zap.Logger
}

// NewBus creates an event bus for one connection.
func NewBus(logger *zap.Logger) *Bus {
	if logger == nil {
		logger = zap.L()
	}
	history, _ := lru.New[string, Event](historyCap)
	return &Bus{
		handlers:       make(map[string][]EventHandler),
		tails:          make(map[string]chan struct{}),
		publishedTypes: make(map[string]time.Time),
		history:        history,
		logger:         logger,
	}
}

// Subscribe registers a handler for an event subject. Per subject, handlers
// are started in subscription order. The wildcard subject "*" receives every
// event after the subject's own handlers.
func (bus *Bus) Subscribe(eventType string, handler EventHandler) {
	bus.mu.Lock()
	defer bus.mu.Unlock()

	bus.handlers[eventType] = append(bus.handlers[eventType], handler)
	bus.logger.Debug("event handler subscribed",
		zap.String("eventType", eventType))
}

// SubscriberCount reports the number of handlers for a subject.
func (bus *Bus) SubscriberCount(eventType string) int {
	bus.mu.Lock()
	defer bus.mu.Unlock()
	return len(bus.handlers[eventType])
}

// Publish schedules an event for delivery and returns immediately. The return
// value reports scheduling success; false means the bus is already closed.
func (bus *Bus) Publish(event Event) bool {
	return bus.publish(event, false)
}

// PublishWait schedules an event and blocks until every handler has returned.
func (bus *Bus) PublishWait(event Event) bool {
	return bus.publish(event, true)
}

func (bus *Bus) publish(event Event, wait bool) bool {
	if event.ID == "" || event.Timestamp.IsZero() {
		stamped := New(event.Type, event.Source, event.Data)
		if event.ID == "" {
			event.ID = stamped.ID
		}
		if event.Timestamp.IsZero() {
			event.Timestamp = stamped.Timestamp
		}
	}

	bus.mu.Lock()
	if bus.closed {
		bus.mu.Unlock()
		bus.logger.Warn("event dropped: bus closed",
			zap.String("eventType", event.Type),
			zap.String("errorType", ErrTypeEventBusPublish))
		return false
	}
	if _, exists := bus.publishedTypes[event.Type]; !exists {
		bus.publishedTypes[event.Type] = event.Timestamp
	}
	bus.history.Add(event.ID, event)

	handlers := make([]EventHandler, 0, len(bus.handlers[event.Type])+len(bus.handlers["*"]))
	handlers = append(handlers, bus.handlers[event.Type]...)
	handlers = append(handlers, bus.handlers["*"]...)

	// Rotate the subject's chain link. This publish delivers only after the
	// previous publish on the same subject finished delivering, which keeps
	// per-subject order on a runtime with no goroutine scheduling order.
	prev := bus.tails[event.Type]
	next := make(chan struct{})
	bus.tails[event.Type] = next

	bus.inflight.Add(len(handlers))
	bus.mu.Unlock()

	var joined *sync.WaitGroup
	if wait {
		joined = new(sync.WaitGroup)
		joined.Add(len(handlers))
	}

	go func() {
		if prev != nil {
			<-prev
		}
		var delivered sync.WaitGroup
		delivered.Add(len(handlers))
		for _, handler := range handlers {
			h := handler
			go func() {
				defer delivered.Done()
				defer bus.inflight.Done()
				if joined != nil {
					defer joined.Done()
				}
				bus.invoke(h, event)
			}()
		}
		delivered.Wait()
		close(next)
	}()

	if joined != nil {
		joined.Wait()
	}
	return true
}

// invoke runs one handler with panic and error containment.
func (bus *Bus) invoke(handler EventHandler, event Event) {
	defer func() {
		if r := recover(); r != nil {
			bus.reportHandlerFailure(event, fmt.Errorf("handler panic: %v", r))
		}
	}()
	if err := handler(event); err != nil {
		bus.reportHandlerFailure(event, err)
	}
}

// reportHandlerFailure logs a handler failure and derives a single
// error.occurred event. Failures while handling error.occurred itself are
// logged only, so one bad error handler cannot start a storm.
func (bus *Bus) reportHandlerFailure(event Event, err error) {
	bus.logger.Error("event handler failed",
		zap.String("eventType", event.Type),
		zap.String("eventID", event.ID),
		zap.Error(err))

	if event.Type == ErrorOccurred {
		return
	}
	bus.Publish(NewError("event_bus", ErrTypeEventHandler, err.Error(), "event_bus",
		map[string]interface{}{
			"event_type": event.Type,
			"event_id":   event.ID,
		}))
}

// Shutdown waits up to grace for in-flight handlers, abandons stragglers, and
// clears the subscriber table. Publishing after Shutdown returns false.
func (bus *Bus) Shutdown(grace time.Duration) error {
	if grace <= 0 {
		grace = DefaultShutdownGrace
	}

	bus.mu.Lock()
	if bus.closed {
		bus.mu.Unlock()
		return nil
	}
	bus.closed = true
	bus.mu.Unlock()

	done := make(chan struct{})
	go func() {
		bus.inflight.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
	case <-time.After(grace):
		bus.logger.Warn("event bus shutdown grace expired, abandoning in-flight handlers",
			zap.Duration("grace", grace))
		err = ErrShutdownTimeout
	}

	bus.mu.Lock()
	bus.handlers = make(map[string][]EventHandler)
	bus.tails = make(map[string]chan struct{})
	bus.mu.Unlock()

	bus.logger.Debug("event bus shut down")
	return err
}

// RecentEvents returns the buffered recent events, oldest first.
func (bus *Bus) RecentEvents() []Event {
	return bus.history.Values()
}

// PublishedTypes returns all subjects seen so far with their first publish
// time.
func (bus *Bus) PublishedTypes() map[string]time.Time {
	bus.mu.Lock()
	defer bus.mu.Unlock()

	result := make(map[string]time.Time, len(bus.publishedTypes))
	for k, v := range bus.publishedTypes {
		result[k] = v
	}
	return result
}

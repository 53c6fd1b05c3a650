// Package eventbus fans run events out to subscribers asynchronously.
package eventbus

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ChannelEventBus is an implementation of EventBus using Go channels
type ChannelEventBus struct {
	// subscribers maps event types to subscription IDs to handlers
	subscribers map[EventType]map[string]EventHandler

	// allSubscribers receive every event regardless of type
	allSubscribers map[string]EventHandler

	eventChan chan eventWithContext
	closed    atomic.Bool
	wg        sync.WaitGroup
	mutex     sync.RWMutex // guards the subscriber maps
	sendMu    sync.RWMutex // held by senders; Close takes it exclusively

	// Configuration
	bufferSize    int
	workerCount   int
	maxRetries    int
	retryInterval time.Duration
	logger        *zap.Logger
}

// eventWithContext bundles an event with its context for processing
type eventWithContext struct {
	ctx   context.Context
	event Event
}

// ChannelEventBusOption configures the channel-based event bus
type ChannelEventBusOption func(*ChannelEventBus)

// WithBufferSize sets the event channel buffer size
func WithBufferSize(size int) ChannelEventBusOption {
	return func(eb *ChannelEventBus) {
		eb.bufferSize = size
	}
}

// WithWorkerCount sets the number of event processing workers
func WithWorkerCount(count int) ChannelEventBusOption {
	return func(eb *ChannelEventBus) {
		eb.workerCount = count
	}
}

// WithRetries configures the retry behavior for event handlers
func WithRetries(maxRetries int, retryInterval time.Duration) ChannelEventBusOption {
	return func(eb *ChannelEventBus) {
		eb.maxRetries = maxRetries
		eb.retryInterval = retryInterval
	}
}

// WithLogger sets the logger used to report handler failures
func WithLogger(logger *zap.Logger) ChannelEventBusOption {
	return func(eb *ChannelEventBus) {
		if logger != nil {
			eb.logger = logger
		}
	}
}

// NewChannelEventBus creates a new channel-based event bus and starts its workers
func NewChannelEventBus(options ...ChannelEventBusOption) *ChannelEventBus {
	eb := &ChannelEventBus{
		subscribers:    make(map[EventType]map[string]EventHandler),
		allSubscribers: make(map[string]EventHandler),

		bufferSize:    100,
		workerCount:   2,
		maxRetries:    3,
		retryInterval: time.Millisecond * 100,
		logger:        zap.NewNop(),
	}

	for _, option := range options {
		option(eb)
	}
	if eb.workerCount < 1 {
		eb.workerCount = 1
	}
	if eb.bufferSize < 0 {
		eb.bufferSize = 0
	}

	eb.eventChan = make(chan eventWithContext, eb.bufferSize)
	for i := 0; i < eb.workerCount; i++ {
		eb.wg.Add(1)
		go eb.worker()
	}

	return eb
}

// worker processes events until the channel is closed
func (eb *ChannelEventBus) worker() {
	defer eb.wg.Done()
	for evt := range eb.eventChan {
		eb.processEvent(evt)
	}
}

// processEvent handles the event dispatch to all relevant subscribers
func (eb *ChannelEventBus) processEvent(evt eventWithContext) {
	if evt.ctx.Err() != nil {
		return
	}

	// Copy handlers so none run under the lock; handlers may subscribe or unsubscribe.
	eb.mutex.RLock()
	handlers := make([]EventHandler, 0, len(eb.subscribers[evt.event.Type()])+len(eb.allSubscribers))
	for _, handler := range eb.subscribers[evt.event.Type()] {
		handlers = append(handlers, handler)
	}
	for _, handler := range eb.allSubscribers {
		handlers = append(handlers, handler)
	}
	eb.mutex.RUnlock()

	for _, handler := range handlers {
		eb.executeHandler(evt.ctx, evt.event, handler)
	}
}

// executeHandler runs a handler with retry logic
func (eb *ChannelEventBus) executeHandler(ctx context.Context, event Event, handler EventHandler) {
	var err error
	for attempt := 0; attempt <= eb.maxRetries; attempt++ {
		if ctx.Err() != nil {
			return
		}

		err = handler(ctx, event)
		if err == nil {
			return
		}

		if attempt == eb.maxRetries {
			break
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(eb.retryInterval):
		}
	}

	eb.logger.Warn("event handler failed",
		zap.String("event_type", string(event.Type())),
		zap.String("event_id", event.ID()),
		zap.Int("retries", eb.maxRetries),
		zap.Error(err))
}

// Publish queues an event for delivery. It blocks while the buffer is full
// and returns early if ctx is done.
func (eb *ChannelEventBus) Publish(ctx context.Context, event Event) error {
	if event == nil {
		return fmt.Errorf("event cannot be nil")
	}

	// The read lock keeps Close from closing the channel mid-send.
	eb.sendMu.RLock()
	defer eb.sendMu.RUnlock()
	if eb.closed.Load() {
		return fmt.Errorf("event bus is closed")
	}

	// Handlers run after Publish returns, so they must not inherit the
	// caller's cancellation.
	select {
	case <-ctx.Done():
		return ctx.Err()
	case eb.eventChan <- eventWithContext{ctx: context.WithoutCancel(ctx), event: event}:
		return nil
	}
}

// Subscribe registers a handler for specific event types
func (eb *ChannelEventBus) Subscribe(eventTypes []EventType, handler EventHandler) (string, error) {
	if handler == nil {
		return "", fmt.Errorf("handler cannot be nil")
	}
	if len(eventTypes) == 0 {
		return "", fmt.Errorf("at least one event type is required")
	}

	eb.mutex.Lock()
	defer eb.mutex.Unlock()
	if eb.closed.Load() {
		return "", fmt.Errorf("event bus is closed")
	}

	subscriptionID := uuid.NewString()
	for _, eventType := range eventTypes {
		if _, exists := eb.subscribers[eventType]; !exists {
			eb.subscribers[eventType] = make(map[string]EventHandler)
		}
		eb.subscribers[eventType][subscriptionID] = handler
	}

	return subscriptionID, nil
}

// SubscribeAll registers a handler for all event types
func (eb *ChannelEventBus) SubscribeAll(handler EventHandler) (string, error) {
	if handler == nil {
		return "", fmt.Errorf("handler cannot be nil")
	}

	eb.mutex.Lock()
	defer eb.mutex.Unlock()
	if eb.closed.Load() {
		return "", fmt.Errorf("event bus is closed")
	}

	subscriptionID := uuid.NewString()
	eb.allSubscribers[subscriptionID] = handler
	return subscriptionID, nil
}

// Unsubscribe removes a subscription by ID
func (eb *ChannelEventBus) Unsubscribe(subscriptionID string) error {
	eb.mutex.Lock()
	defer eb.mutex.Unlock()
	if eb.closed.Load() {
		return fmt.Errorf("event bus is closed")
	}

	delete(eb.allSubscribers, subscriptionID)
	for _, subscribers := range eb.subscribers {
		delete(subscribers, subscriptionID)
	}
	return nil
}

// Close stops accepting events, lets the workers drain the queue and waits
// for them to exit. Calling Close more than once is a no-op.
func (eb *ChannelEventBus) Close() error {
	eb.sendMu.Lock()
	if eb.closed.Load() {
		eb.sendMu.Unlock()
		return nil
	}
	eb.closed.Store(true)
	close(eb.eventChan)
	eb.sendMu.Unlock()

	eb.wg.Wait()
	return nil
}

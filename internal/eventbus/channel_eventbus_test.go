package eventbus

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestChannelEventBus_PublishAndSubscribe(t *testing.T) {
	eb := NewChannelEventBus(
		WithBufferSize(1),
		WithWorkerCount(1),
		WithRetries(1, 10*time.Millisecond),
	)
	defer eb.Close()

	received := make(chan Event, 1)
	handler := func(ctx context.Context, event Event) error {
		received <- event
		return nil
	}
	_, err := eb.Subscribe([]EventType{EventToolCallSucceeded}, handler)
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	evt := NewEvent(EventToolCallSucceeded, "calculator", "test", nil).WithMetadata("attempt", 1)
	err = eb.Publish(context.Background(), evt)
	if err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	select {
	case got := <-received:
		if got.Type() != EventToolCallSucceeded {
			t.Errorf("expected event type %v, got %v", EventToolCallSucceeded, got.Type())
		}
		if got.Payload() != "calculator" {
			t.Errorf("expected payload calculator, got %v", got.Payload())
		}
		if got.Metadata()["attempt"] != 1 {
			t.Errorf("expected attempt metadata, got %v", got.Metadata())
		}
		if got.ID() == "" || got.Source() != "test" {
			t.Errorf("unexpected event identity: id=%q source=%q", got.ID(), got.Source())
		}
	case <-time.After(time.Second):
		t.Error("timeout waiting for event handler")
	}
}

func TestChannelEventBus_TypeFiltering(t *testing.T) {
	eb := NewChannelEventBus(WithWorkerCount(1))

	var mu sync.Mutex
	var filtered, all []EventType
	_, err := eb.Subscribe([]EventType{EventRunCompleted}, func(ctx context.Context, event Event) error {
		mu.Lock()
		defer mu.Unlock()
		filtered = append(filtered, event.Type())
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	_, err = eb.SubscribeAll(func(ctx context.Context, event Event) error {
		mu.Lock()
		defer mu.Unlock()
		all = append(all, event.Type())
		return nil
	})
	if err != nil {
		t.Fatalf("SubscribeAll failed: %v", err)
	}

	ctx := context.Background()
	for _, typ := range []EventType{EventPlanCreated, EventCacheHit, EventRunCompleted} {
		if err := eb.Publish(ctx, NewEvent(typ, nil, "test", nil)); err != nil {
			t.Fatalf("Publish failed: %v", err)
		}
	}

	// Close drains the queue before returning.
	if err := eb.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(filtered) != 1 || filtered[0] != EventRunCompleted {
		t.Errorf("expected only run_completed, got %v", filtered)
	}
	if len(all) != 3 {
		t.Errorf("expected 3 events for SubscribeAll, got %v", all)
	}
}

func TestChannelEventBus_HandlerRetry(t *testing.T) {
	eb := NewChannelEventBus(
		WithBufferSize(1),
		WithWorkerCount(1),
		WithRetries(2, 10*time.Millisecond),
	)

	var mu sync.Mutex
	calls := 0
	handler := func(ctx context.Context, event Event) error {
		mu.Lock()
		defer mu.Unlock()
		calls++
		if calls < 2 {
			return errors.New("subscriber unavailable")
		}
		return nil
	}
	_, err := eb.Subscribe([]EventType{EventToolCallFailed}, handler)
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	err = eb.Publish(context.Background(), NewEvent(EventToolCallFailed, nil, "test", nil))
	if err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	eb.Close()

	mu.Lock()
	defer mu.Unlock()
	if calls != 2 {
		t.Errorf("expected 2 calls, got %d", calls)
	}
}

func TestChannelEventBus_Unsubscribe(t *testing.T) {
	eb := NewChannelEventBus(WithWorkerCount(1))

	var mu sync.Mutex
	calls := 0
	id, err := eb.SubscribeAll(func(ctx context.Context, event Event) error {
		mu.Lock()
		defer mu.Unlock()
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("SubscribeAll failed: %v", err)
	}
	if err := eb.Unsubscribe(id); err != nil {
		t.Fatalf("Unsubscribe failed: %v", err)
	}

	if err := eb.Publish(context.Background(), NewEvent(EventRunStarted, nil, "test", nil)); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	eb.Close()

	mu.Lock()
	defer mu.Unlock()
	if calls != 0 {
		t.Errorf("expected no calls after Unsubscribe, got %d", calls)
	}
}

func TestChannelEventBus_CancelledPublish(t *testing.T) {
	eb := NewChannelEventBus(
		WithBufferSize(0),
		WithWorkerCount(1),
	)
	defer eb.Close()

	block := make(chan struct{})
	_, err := eb.Subscribe([]EventType{EventRunStarted}, func(ctx context.Context, event Event) error {
		<-block
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	// Occupy the only worker so the unbuffered channel has no receiver.
	if err := eb.Publish(context.Background(), NewEvent(EventRunStarted, nil, "test", nil)); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	err = eb.Publish(ctx, NewEvent(EventRunStarted, nil, "test", nil))
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
	close(block)
}

func TestChannelEventBus_Closed(t *testing.T) {
	eb := NewChannelEventBus()
	if err := eb.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := eb.Close(); err != nil {
		t.Errorf("second Close should be a no-op, got %v", err)
	}

	if err := eb.Publish(context.Background(), NewEvent(EventRunStarted, nil, "test", nil)); err == nil {
		t.Error("expected Publish to fail after Close")
	}
	if _, err := eb.SubscribeAll(func(context.Context, Event) error { return nil }); err == nil {
		t.Error("expected SubscribeAll to fail after Close")
	}
}

func TestChannelEventBus_InvalidArguments(t *testing.T) {
	eb := NewChannelEventBus()
	defer eb.Close()

	if err := eb.Publish(context.Background(), nil); err == nil {
		t.Error("expected error for nil event")
	}
	if _, err := eb.Subscribe(nil, func(context.Context, Event) error { return nil }); err == nil {
		t.Error("expected error for empty event types")
	}
	if _, err := eb.Subscribe([]EventType{EventRunStarted}, nil); err == nil {
		t.Error("expected error for nil handler")
	}
}

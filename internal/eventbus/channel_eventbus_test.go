package eventbus

import (
	"context"
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

	received := make(chan string, 1)
	handler := func(ctx context.Context, event Event) error {
		received <- string(event.Type())
		return nil
	}
	_, err := eb.Subscribe([]EventType{EventToolExecutionSuccess}, handler)
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	evt := NewEvent(EventToolExecutionSuccess, nil, "test", nil)
	err = eb.Publish(context.Background(), evt)
	if err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	select {
	case typ := <-received:
		if typ != string(EventToolExecutionSuccess) {
			t.Errorf("expected event type %v, got %v", EventToolExecutionSuccess, typ)
		}
	case <-time.After(100 * time.Millisecond):
		t.Error("timeout waiting for event handler")
	}
}

func TestChannelEventBus_HandlerRetry(t *testing.T) {
	eb := NewChannelEventBus(
		WithBufferSize(1),
		WithWorkerCount(1),
		WithRetries(2, 10*time.Millisecond),
	)
	defer eb.Close()

	var mu sync.Mutex
	calls := 0
	handler := func(ctx context.Context, event Event) error {
		mu.Lock()
		defer mu.Unlock()
		calls++
		if calls < 2 {
			return context.DeadlineExceeded
		}
		return nil
	}
	_, err := eb.Subscribe([]EventType{EventToolExecutionFailure}, handler)
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	err = eb.Publish(context.Background(), NewEvent(EventToolExecutionFailure, nil, "test", nil))
	if err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	time.Sleep(50 * time.Millisecond)
	mu.Lock()
	if calls < 2 {
		t.Errorf("expected at least 2 calls, got %d", calls)
	}
	mu.Unlock()
}

func TestChannelEventBus_SubscribeAllAndUnsubscribe(t *testing.T) {
	eb := NewChannelEventBus(WithBufferSize(4), WithWorkerCount(1))
	defer eb.Close()

	received := make(chan EventType, 4)
	subID, err := eb.SubscribeAll(func(ctx context.Context, event Event) error {
		received <- event.Type()
		return nil
	})
	if err != nil {
		t.Fatalf("SubscribeAll failed: %v", err)
	}

	if err := eb.Publish(context.Background(), NewEvent(EventPlanningSuccess, nil, "test", nil)); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	select {
	case typ := <-received:
		if typ != EventPlanningSuccess {
			t.Errorf("expected %v, got %v", EventPlanningSuccess, typ)
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatal("timeout waiting for all-subscriber")
	}

	if err := eb.Unsubscribe(subID); err != nil {
		t.Fatalf("Unsubscribe failed: %v", err)
	}
	if err := eb.Publish(context.Background(), NewEvent(EventPlanningFailure, nil, "test", nil)); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	select {
	case typ := <-received:
		t.Errorf("expected no delivery after unsubscribe, got %v", typ)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestChannelEventBus_PublishAfterClose(t *testing.T) {
	eb := NewChannelEventBus(WithBufferSize(1), WithWorkerCount(1))
	if err := eb.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := eb.Publish(context.Background(), NewEvent(EventSystemInfo, nil, "test", nil)); err == nil {
		t.Error("expected error publishing on a closed bus")
	}
}

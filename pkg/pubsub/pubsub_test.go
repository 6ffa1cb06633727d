package pubsub

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestPublishTaskEvent(t *testing.T) {
	ps := NewPubSub()
	defer ps.Shutdown()

	sub, err := ps.Subscribe(context.Background(), TopicTaskLifecycle)
	if err != nil {
		t.Fatalf("Failed to subscribe: %v", err)
	}
	defer sub.Unsubscribe()

	want := TaskEvent{TaskID: "t-1", Status: "EXECUTING", Directive: "EXECUTE"}
	ps.Publish(TopicTaskLifecycle, want)

	select {
	case msg := <-sub.Channel():
		got, ok := msg.(TaskEvent)
		if !ok || got != want {
			t.Errorf("received %v, want %v", msg, want)
		}
	case <-time.After(time.Second):
		t.Fatal("Timeout waiting for task event")
	}
}

func TestTopicIsolation(t *testing.T) {
	ps := NewPubSub()
	defer ps.Shutdown()

	ctx := context.Background()
	tasks, _ := ps.Subscribe(ctx, TopicTaskLifecycle)
	endpoints, _ := ps.Subscribe(ctx, TopicEndpointLiveness)
	defer tasks.Unsubscribe()
	defer endpoints.Unsubscribe()

	ps.Publish(TopicEndpointLiveness, EndpointEvent{Name: "plant-a-0", Live: true})

	select {
	case msg := <-endpoints.Channel():
		if ev, ok := msg.(EndpointEvent); !ok || ev.Name != "plant-a-0" {
			t.Errorf("unexpected endpoint message %v", msg)
		}
	case <-time.After(time.Second):
		t.Fatal("Timeout waiting for endpoint event")
	}

	select {
	case msg := <-tasks.Channel():
		t.Errorf("task topic received %v", msg)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestMultipleSubscribers(t *testing.T) {
	ps := NewPubSub()
	defer ps.Shutdown()

	const n = 5
	subs := make([]*Subscription, n)
	for i := range subs {
		sub, err := ps.Subscribe(context.Background(), TopicParticipantChange)
		if err != nil {
			t.Fatalf("Failed to subscribe %d: %v", i, err)
		}
		defer sub.Unsubscribe()
		subs[i] = sub
	}

	ps.Publish(TopicParticipantChange, ParticipantEvent{Name: "plant-a.ingest", Change: "registered"})

	for i, sub := range subs {
		select {
		case <-sub.Channel():
		case <-time.After(time.Second):
			t.Fatalf("Subscriber %d: timeout waiting for message", i)
		}
	}
}

func TestUnsubscribeAndCount(t *testing.T) {
	ps := NewPubSub()
	defer ps.Shutdown()

	ctx := context.Background()
	sub1, _ := ps.Subscribe(ctx, TopicTaskLifecycle)
	sub2, _ := ps.Subscribe(ctx, TopicTaskLifecycle)

	if got := ps.GetSubscriberCount(TopicTaskLifecycle); got != 2 {
		t.Errorf("Expected 2 subscribers, got %d", got)
	}

	sub1.Unsubscribe()
	sub1.Unsubscribe()
	if got := ps.GetSubscriberCount(TopicTaskLifecycle); got != 1 {
		t.Errorf("Expected 1 subscriber after unsubscribe, got %d", got)
	}
	if _, open := <-sub1.Channel(); open {
		t.Error("unsubscribed channel should be closed")
	}

	sub2.Unsubscribe()
	if got := ps.GetSubscriberCount(TopicTaskLifecycle); got != 0 {
		t.Errorf("Expected 0 subscribers, got %d", got)
	}
}

func TestContextCancellation(t *testing.T) {
	ps := NewPubSub()
	defer ps.Shutdown()

	ctx, cancel := context.WithCancel(context.Background())
	sub, _ := ps.Subscribe(ctx, TopicTaskLifecycle)

	done := make(chan struct{})
	go func() {
		for range sub.Channel() {
		}
		close(done)
	}()

	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Subscription channel did not close on context cancellation")
	}
}

func TestListen(t *testing.T) {
	ps := NewPubSub()
	defer ps.Shutdown()

	var mu sync.Mutex
	var got []string
	done := make(chan struct{}, 3)

	err := ps.Listen(context.Background(), TopicEndpointLiveness, func(msg any) {
		mu.Lock()
		got = append(got, msg.(EndpointEvent).Name)
		mu.Unlock()
		done <- struct{}{}
	})
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}

	for _, name := range []string{"a", "b", "c"} {
		ps.Publish(TopicEndpointLiveness, EndpointEvent{Name: name})
	}
	for i := 0; i < 3; i++ {
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("Timeout waiting for listener")
		}
	}

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 3 || got[0] != "a" || got[2] != "c" {
		t.Errorf("listener saw %v, want [a b c] in order", got)
	}
}

func TestFullBufferDrops(t *testing.T) {
	ps := NewPubSubWithBuffer(2)
	defer ps.Shutdown()

	sub, _ := ps.Subscribe(context.Background(), TopicTaskLifecycle)
	defer sub.Unsubscribe()

	for i := 0; i < 5; i++ {
		ps.Publish(TopicTaskLifecycle, i)
	}

	if got := ps.Dropped(); got != 3 {
		t.Errorf("Dropped = %d, want 3", got)
	}
	if got := <-sub.Channel(); got != 0 {
		t.Errorf("first buffered message = %v, want 0", got)
	}
}

func TestShutdown(t *testing.T) {
	ps := NewPubSub()
	sub, _ := ps.Subscribe(context.Background(), TopicTaskLifecycle)

	done := make(chan struct{})
	go func() {
		for range sub.Channel() {
		}
		close(done)
	}()

	ps.Shutdown()
	ps.Shutdown()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Subscription channel did not close on shutdown")
	}

	if _, err := ps.Subscribe(context.Background(), TopicTaskLifecycle); !errors.Is(err, ErrShutdown) {
		t.Errorf("Subscribe after shutdown = %v, want ErrShutdown", err)
	}
	ps.Publish(TopicTaskLifecycle, "ignored")
}

func TestOrNop(t *testing.T) {
	OrNop(nil).Publish(TopicTaskLifecycle, "discarded")
	ps := NewPubSub()
	defer ps.Shutdown()
	if OrNop(ps) != Publisher(ps) {
		t.Error("OrNop should return the given publisher")
	}
}

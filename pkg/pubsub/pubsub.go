// Package pubsub is the in-process event bus that carries task lifecycle,
// endpoint liveness and participant registry events between components.
package pubsub

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

// ErrShutdown is returned by Subscribe once the bus has been shut down
var ErrShutdown = errors.New("pubsub: bus is shut down")

// DefaultBufferSize is the per-subscription channel capacity
const DefaultBufferSize = 100

// Publisher is the publishing half of the bus.
type Publisher interface {
	Publish(topic string, message any)
}

// PubSub provides topic-based publish/subscribe. Publishing never blocks:
// messages for a full subscription are dropped and counted.
type PubSub struct {
	subscribers map[string]map[*Subscription]bool
	mu          sync.RWMutex
	shutdown    chan struct{}
	shutdownMu  sync.Mutex
	isShutdown  bool
	bufferSize  int
	dropped     atomic.Uint64
}

// Subscription represents a subscription to a topic
type Subscription struct {
	topic     string
	channel   chan any
	ps        *PubSub
	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once // Ensures channel is only closed once
}

// NewPubSub creates a new PubSub instance
func NewPubSub() *PubSub {
	return NewPubSubWithBuffer(DefaultBufferSize)
}

// NewPubSubWithBuffer creates a bus whose subscriptions buffer size messages
func NewPubSubWithBuffer(size int) *PubSub {
	if size <= 0 {
		size = DefaultBufferSize
	}
	return &PubSub{
		subscribers: make(map[string]map[*Subscription]bool),
		shutdown:    make(chan struct{}),
		bufferSize:  size,
	}
}

// Subscribe creates a new subscription to a topic. The subscription ends when
// ctx is cancelled, Unsubscribe is called or the bus shuts down.
func (ps *PubSub) Subscribe(ctx context.Context, topic string) (*Subscription, error) {
	ps.shutdownMu.Lock()
	if ps.isShutdown {
		ps.shutdownMu.Unlock()
		return nil, ErrShutdown
	}
	ps.shutdownMu.Unlock()

	subCtx, cancel := context.WithCancel(ctx)
	sub := &Subscription{
		topic:   topic,
		channel: make(chan any, ps.bufferSize),
		ps:      ps,
		ctx:     subCtx,
		cancel:  cancel,
	}

	ps.mu.Lock()
	if ps.subscribers[topic] == nil {
		ps.subscribers[topic] = make(map[*Subscription]bool)
	}
	ps.subscribers[topic][sub] = true
	ps.mu.Unlock()

	go func() {
		select {
		case <-subCtx.Done():
			sub.Unsubscribe()
		case <-ps.shutdown:
			sub.close()
		}
	}()

	return sub, nil
}

// Listen subscribes to topic and calls fn for each message on its own
// goroutine until ctx is cancelled or the bus shuts down.
func (ps *PubSub) Listen(ctx context.Context, topic string, fn func(message any)) error {
	sub, err := ps.Subscribe(ctx, topic)
	if err != nil {
		return err
	}
	go func() {
		for msg := range sub.Channel() {
			fn(msg)
		}
	}()
	return nil
}

// Publish sends a message to all subscribers of a topic.
// Uses a snapshot copy to avoid holding lock during channel sends.
func (ps *PubSub) Publish(topic string, message any) {
	ps.shutdownMu.Lock()
	if ps.isShutdown {
		ps.shutdownMu.Unlock()
		return
	}
	ps.shutdownMu.Unlock()

	ps.mu.RLock()
	topicSubs := ps.subscribers[topic]
	if len(topicSubs) == 0 {
		ps.mu.RUnlock()
		return
	}
	subs := make([]*Subscription, 0, len(topicSubs))
	for sub := range topicSubs {
		subs = append(subs, sub)
	}
	ps.mu.RUnlock()

	for _, sub := range subs {
		sub.send(message, &ps.dropped)
	}
}

// Dropped returns how many messages were discarded because a subscriber's
// buffer was full.
func (ps *PubSub) Dropped() uint64 {
	return ps.dropped.Load()
}

// GetSubscriberCount returns the number of subscribers for a topic
func (ps *PubSub) GetSubscriberCount(topic string) int {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	return len(ps.subscribers[topic])
}

// Shutdown closes all subscriptions and shuts down the PubSub
func (ps *PubSub) Shutdown() {
	ps.shutdownMu.Lock()
	if ps.isShutdown {
		ps.shutdownMu.Unlock()
		return
	}
	ps.isShutdown = true
	ps.shutdownMu.Unlock()

	close(ps.shutdown)

	ps.mu.Lock()
	for topic := range ps.subscribers {
		for sub := range ps.subscribers[topic] {
			sub.close()
		}
		delete(ps.subscribers, topic)
	}
	ps.mu.Unlock()
}

// Channel returns the subscription's message channel
func (s *Subscription) Channel() <-chan any {
	return s.channel
}

// Unsubscribe removes the subscription
func (s *Subscription) Unsubscribe() {
	s.cancel()

	s.ps.mu.Lock()
	defer s.ps.mu.Unlock()

	if s.ps.subscribers[s.topic] != nil {
		delete(s.ps.subscribers[s.topic], s)
		if len(s.ps.subscribers[s.topic]) == 0 {
			delete(s.ps.subscribers, s.topic)
		}
	}

	s.close()
}

// send delivers without blocking. A send racing with close is treated as a
// drop.
func (s *Subscription) send(message any, dropped *atomic.Uint64) {
	defer func() {
		if recover() != nil {
			dropped.Add(1)
		}
	}()
	select {
	case s.channel <- message:
	default:
		dropped.Add(1)
	}
}

// close closes the subscription channel safely (idempotent)
func (s *Subscription) close() {
	s.closeOnce.Do(func() {
		close(s.channel)
	})
}

package pubsub

import "time"

// Topics
const (
	TopicTaskLifecycle     = "task.lifecycle"
	TopicEndpointLiveness  = "endpoint.liveness"
	TopicParticipantChange = "participant.change"
)

// TaskEvent is published on TopicTaskLifecycle for every applied transition.
type TaskEvent struct {
	TaskID        string
	Status        string
	Directive     string
	FulfillmentID string
	Instant       time.Time
}

// EndpointEvent is published on TopicEndpointLiveness when an endpoint's
// liveness changes or it is added or removed.
type EndpointEvent struct {
	Name    string
	Service string
	Address string
	Live    bool
	Removed bool
	Instant time.Time
}

// ParticipantEvent is published on TopicParticipantChange.
type ParticipantEvent struct {
	Name    string
	Change  string // registered, updated, deregistered, remote-subscriber
	Instant time.Time
}

// NopPublisher discards all messages.
type NopPublisher struct{}

func (NopPublisher) Publish(string, any) {}

// OrNop returns p, or a NopPublisher when p is nil.
func OrNop(p Publisher) Publisher {
	if p == nil {
		return NopPublisher{}
	}
	return p
}

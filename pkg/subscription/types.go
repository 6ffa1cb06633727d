// Package subscription requests data-parcel subscriptions from publisher
// services on behalf of local participants and keeps re-requesting them
// until a provider accepts.
package subscription

import (
	"slices"
	"time"

	"github.com/dd0wney/cluso-petasos/pkg/parcel"
)

// ServiceStatus is the status of a subscription to a publisher service
type ServiceStatus string

const (
	StatusPendingNoProviders ServiceStatus = "PENDING_NO_PROVIDERS"
	StatusActive             ServiceStatus = "ACTIVE"
	StatusFailed             ServiceStatus = "FAILED"
)

// InstanceStatus is the status of a subscription at one publisher instance
type InstanceStatus string

const (
	InstanceRegistered  InstanceStatus = "REGISTERED"
	InstanceActive      InstanceStatus = "ACTIVE"
	InstanceUnreachable InstanceStatus = "UNREACHABLE"
)

// InstanceRegistration tracks one publisher instance
type InstanceRegistration struct {
	Name               string         `json:"name"`
	Address            string         `json:"address"`
	Status             InstanceStatus `json:"status"`
	LastRequestInstant time.Time      `json:"lastRequestInstant,omitempty"`
	Commentary         string         `json:"commentary,omitempty"`
}

// NeedsRequest reports whether a subscription request should be (re)issued
func (i InstanceRegistration) NeedsRequest() bool {
	return i.Status == InstanceRegistered || i.Status == InstanceUnreachable
}

// ServiceRegistration is the subscription this plant holds with one
// publisher service. Masks is the union of every local participant's masks
// naming that service.
type ServiceRegistration struct {
	PublisherService string                 `json:"publisherService"`
	Subscriber       string                 `json:"subscriber"`
	Participants     []string               `json:"participants,omitempty"`
	Masks            []parcel.Mask          `json:"masks"`
	Status           ServiceStatus          `json:"status"`
	Instances        []InstanceRegistration `json:"instances,omitempty"`
	UpdateInstant    time.Time              `json:"updateInstant"`
}

// Clone returns a deep copy
func (s *ServiceRegistration) Clone() ServiceRegistration {
	cp := *s
	cp.Participants = slices.Clone(s.Participants)
	cp.Masks = slices.Clone(s.Masks)
	cp.Instances = slices.Clone(s.Instances)
	return cp
}

func (s *ServiceRegistration) instance(name string) *InstanceRegistration {
	for i := range s.Instances {
		if s.Instances[i].Name == name {
			return &s.Instances[i]
		}
	}
	return nil
}

func (s *ServiceRegistration) deriveStatus() {
	for _, inst := range s.Instances {
		if inst.Status == InstanceActive {
			s.Status = StatusActive
			return
		}
	}
	s.Status = StatusPendingNoProviders
}

// Package participant keeps the per-node table of data-parcel publishers and
// subscribers and derives, for a given parcel, who wants it.
package participant

import (
	"slices"
	"time"

	"github.com/dd0wney/cluso-petasos/pkg/parcel"
)

// Kind classifies a participant
type Kind string

const (
	KindProcessingPlant   Kind = "PROCESSING_PLANT"
	KindWorkUnitProcessor Kind = "WORK_UNIT_PROCESSOR"
	KindRemoteSubscriber  Kind = "REMOTE_SUBSCRIBER"
)

// Status is the registration status of a participant
type Status string

const (
	StatusRegistered   Status = "REGISTERED"
	StatusActive       Status = "ACTIVE"
	StatusIdle         Status = "IDLE"
	StatusDeregistered Status = "DEREGISTERED"
)

// Participant is a named publisher and/or subscriber. Subscriptions are the
// masks honoured by the local subscription map; RemoteSubscriptions name a
// publisher in another service and are satisfied by a subscription request
// to that service.
type Participant struct {
	Name                string            `json:"name" validate:"required,pname"`
	Kind                Kind              `json:"kind" validate:"required"`
	ProcessingPlant     string            `json:"processingPlant,omitempty"`
	Service             string            `json:"service,omitempty"`
	Address             string            `json:"address,omitempty"`
	Published           []parcel.Manifest `json:"published,omitempty"`
	Subscriptions       []parcel.Mask     `json:"subscriptions,omitempty"`
	RemoteSubscriptions []parcel.Mask     `json:"remoteSubscriptions,omitempty"`
	Status              Status            `json:"status"`
	UpdateInstant       time.Time         `json:"updateInstant"`
}

// Clone returns a deep copy
func (p *Participant) Clone() *Participant {
	if p == nil {
		return nil
	}
	cp := *p
	cp.Published = parcel.CloneAll(p.Published)
	cp.Subscriptions = slices.Clone(p.Subscriptions)
	cp.RemoteSubscriptions = slices.Clone(p.RemoteSubscriptions)
	return &cp
}

// Wants reports whether any of p's masks accepts m.
func (p *Participant) Wants(m parcel.Manifest) bool {
	for _, k := range p.Subscriptions {
		if k.Matches(m) {
			return true
		}
	}
	for _, k := range p.RemoteSubscriptions {
		if k.Matches(m) {
			return true
		}
	}
	return false
}

// Registration is the form a participant takes in the authoritative registry
type Registration struct {
	Participant         Participant `json:"participant"`
	Status              Status      `json:"status"`
	RegistrationInstant time.Time   `json:"registrationInstant"`
}

// Name is the registered participant's name
func (r Registration) Name() string {
	return r.Participant.Name
}

// Clone returns a deep copy
func (r Registration) Clone() Registration {
	r.Participant = *r.Participant.Clone()
	return r
}

// SubscriptionRequest asks a publisher service to forward the parcels
// matching Masks to Subscriber.
type SubscriptionRequest struct {
	Subscriber        string        `json:"subscriber" validate:"required,pname"`
	SubscriberPlant   string        `json:"subscriberPlant,omitempty"`
	SubscriberService string        `json:"subscriberService" validate:"required,pname"`
	SubscriberAddress string        `json:"subscriberAddress,omitempty"`
	PublisherService  string        `json:"publisherService" validate:"required,pname"`
	Masks             []parcel.Mask `json:"masks" validate:"required,min=1,dive"`
	Instant           time.Time     `json:"instant"`
}

// SubscriptionResponse answers a SubscriptionRequest
type SubscriptionResponse struct {
	Successful    bool      `json:"successful"`
	Commentary    string    `json:"commentary,omitempty"`
	NetworkStatus string    `json:"networkStatus,omitempty"`
	Instant       time.Time `json:"instant"`
}

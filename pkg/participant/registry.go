package participant

import (
	"context"
	"sync"
	"time"

	"github.com/dd0wney/cluso-petasos/pkg/logging"
	"github.com/dd0wney/cluso-petasos/pkg/parcel"
	"github.com/dd0wney/cluso-petasos/pkg/pubsub"
	"github.com/dd0wney/cluso-petasos/pkg/validation"
)

// RepositoryClient is the authoritative participant registry
type RepositoryClient interface {
	RegisterParticipant(ctx context.Context, reg Registration) (*Registration, error)
	UpdateParticipant(ctx context.Context, reg Registration) (*Registration, error)
	DeregisterParticipant(ctx context.Context, reg Registration) (*Registration, error)
	UpdateParticipantRegistrationSet(ctx context.Context, plant string, set []Registration) ([]Registration, error)
	UpdateParticipantStatusSet(ctx context.Context, plant string, set map[string]Status) (map[string]Status, error)
}

// SubscriptionHandoff receives masks that name a publisher in another
// service, so that they can be requested from that service.
type SubscriptionHandoff interface {
	AddSubscription(subscriber string, masks []parcel.Mask)
}

// Config identifies the local processing plant
type Config struct {
	Plant   string // service.component name of this node
	Address string // RPC address peers use to reach this node
}

// Registry is the participant table of one processing plant.
//
// Concurrent Safety:
// 1. mu guards participants and order
// 2. Repository pushes happen after mu is released
// 3. Returned participants are clones
type Registry struct {
	plant   string
	service string
	address string

	participants map[string]*Participant
	order        []string
	mu           sync.RWMutex

	repo    RepositoryClient
	handoff SubscriptionHandoff
	events  pubsub.Publisher
	logger  logging.Logger
	now     func() time.Time
}

// NewRegistry creates a registry for the plant in cfg. repo may be nil for a
// standalone node.
func NewRegistry(cfg Config, repo RepositoryClient, events pubsub.Publisher, logger logging.Logger) *Registry {
	return &Registry{
		plant:        cfg.Plant,
		service:      parcel.ServiceOf(cfg.Plant),
		address:      cfg.Address,
		participants: make(map[string]*Participant),
		repo:         repo,
		events:       pubsub.OrNop(events),
		logger:       logging.OrDefault(logger).With(logging.Component("participant-registry")),
		now:          time.Now,
	}
}

// SetSubscriptionHandoff installs the receiver for remote-sourced masks
func (r *Registry) SetSubscriptionHandoff(h SubscriptionHandoff) {
	r.mu.Lock()
	r.handoff = h
	r.mu.Unlock()
}

// Plant returns the local plant name
func (r *Registry) Plant() string { return r.plant }

// Service returns the local service name
func (r *Registry) Service() string { return r.service }

// Address returns the local RPC address
func (r *Registry) Address() string { return r.address }

// IsLocal reports whether k can be satisfied without asking another
// service: its source is a wildcard or belongs to this service.
func (r *Registry) IsLocal(k parcel.Mask) bool {
	return k.AnySource() || k.SourceService() == r.service
}

// RegisterParticipant records a participant with what it publishes and what
// it subscribes to. Masks naming a publisher in another service are handed
// to the subscription handoff instead of the local subscription map.
// Registering an existing name merges the new manifests and masks.
func (r *Registry) RegisterParticipant(ctx context.Context, name string, kind Kind, published []parcel.Manifest, subscribed []parcel.Mask) *Participant {
	if err := validation.ValidateName("participant", name); err != nil {
		r.logger.Debug("ignoring participant registration", logging.Error(err))
		return nil
	}

	var local, remote []parcel.Mask
	for _, k := range subscribed {
		if r.IsLocal(k) {
			local = append(local, k)
		} else {
			remote = append(remote, k)
		}
	}

	now := r.now()
	r.mu.Lock()
	p, exists := r.participants[name]
	if !exists {
		p = &Participant{
			Name:            name,
			Kind:            kind,
			ProcessingPlant: r.plant,
			Service:         r.service,
			Address:         r.address,
			Status:          StatusRegistered,
		}
		r.participants[name] = p
		r.order = append(r.order, name)
	}
	p.Published, _ = parcel.Union(p.Published, published)
	p.Subscriptions, _ = parcel.UnionMasks(p.Subscriptions, local)
	p.RemoteSubscriptions, _ = parcel.UnionMasks(p.RemoteSubscriptions, remote)
	p.UpdateInstant = now
	snapshot := p.Clone()
	handoff := r.handoff
	r.mu.Unlock()

	if len(remote) > 0 {
		if handoff != nil {
			handoff.AddSubscription(name, remote)
		} else {
			r.logger.Warn("remote subscriptions recorded without a subscription manager",
				logging.Participant(name), logging.Count(len(remote)))
		}
	}

	change := "registered"
	if exists {
		change = "updated"
	}
	r.publish(name, change, now)
	r.logger.Info("participant "+change,
		logging.Participant(name),
		logging.Int("published", len(snapshot.Published)),
		logging.Int("local_masks", len(snapshot.Subscriptions)),
		logging.Int("remote_masks", len(snapshot.RemoteSubscriptions)))

	if r.repo != nil {
		reg := r.registrationOf(snapshot)
		var err error
		if exists {
			_, err = r.repo.UpdateParticipant(ctx, reg)
		} else {
			_, err = r.repo.RegisterParticipant(ctx, reg)
		}
		if err != nil {
			r.logger.Warn("failed to push participant registration",
				logging.Participant(name), logging.Error(err))
		}
	}
	return snapshot
}

// GetSubscriberSet returns, in registration order, the participants with a
// mask accepting m. The publisher itself is never included.
func (r *Registry) GetSubscriberSet(m parcel.Manifest) []*Participant {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*Participant
	for _, name := range r.order {
		p := r.participants[name]
		if p.Name == m.Source || p.Status == StatusDeregistered {
			continue
		}
		if p.Wants(m) {
			out = append(out, p.Clone())
		}
	}
	return out
}

// UpdateProducedWorkItems merges manifests into what name publishes and
// pushes the change to the repository. It reports whether anything new was
// added.
func (r *Registry) UpdateProducedWorkItems(ctx context.Context, name string, manifests []parcel.Manifest) bool {
	if name == "" || len(manifests) == 0 {
		r.logger.Debug("ignoring empty produced work item update", logging.Participant(name))
		return false
	}

	r.mu.Lock()
	p, ok := r.participants[name]
	if !ok {
		r.mu.Unlock()
		r.logger.Debug("produced work items for unknown participant", logging.Participant(name))
		return false
	}
	merged, changed := parcel.Union(p.Published, manifests)
	if !changed {
		r.mu.Unlock()
		return false
	}
	p.Published = merged
	p.UpdateInstant = r.now()
	snapshot := p.Clone()
	r.mu.Unlock()

	r.publish(name, "updated", snapshot.UpdateInstant)
	if r.repo != nil {
		if _, err := r.repo.UpdateParticipant(ctx, r.registrationOf(snapshot)); err != nil {
			r.logger.Warn("failed to push produced work items",
				logging.Participant(name), logging.Error(err))
		}
	}
	return true
}

// DeregisterParticipant removes name together with its masks and returns
// the removed participant, or nil.
func (r *Registry) DeregisterParticipant(ctx context.Context, name string) *Participant {
	r.mu.Lock()
	p, ok := r.participants[name]
	if !ok {
		r.mu.Unlock()
		return nil
	}
	delete(r.participants, name)
	for i, n := range r.order {
		if n == name {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	p.Status = StatusDeregistered
	p.UpdateInstant = r.now()
	removed := p.Clone()
	r.mu.Unlock()

	r.publish(name, "deregistered", removed.UpdateInstant)
	r.logger.Info("participant deregistered", logging.Participant(name))
	if r.repo != nil {
		if _, err := r.repo.DeregisterParticipant(ctx, r.registrationOf(removed)); err != nil {
			r.logger.Warn("failed to push participant deregistration",
				logging.Participant(name), logging.Error(err))
		}
	}
	return removed
}

// AddRemoteSubscriber handles a subscription request from another service:
// the subscriber is recorded as a REMOTE_SUBSCRIBER participant whose masks
// feed GetSubscriberSet.
func (r *Registry) AddRemoteSubscriber(req SubscriptionRequest) SubscriptionResponse {
	now := r.now()
	if err := validation.Struct(req); err != nil {
		return SubscriptionResponse{Commentary: err.Error(), NetworkStatus: string(StatusRegistered), Instant: now}
	}
	if req.PublisherService != r.service {
		return SubscriptionResponse{
			Commentary:    ErrWrongPublisher.Error() + ": " + req.PublisherService,
			NetworkStatus: string(StatusRegistered),
			Instant:       now,
		}
	}

	r.mu.Lock()
	p, ok := r.participants[req.Subscriber]
	if !ok {
		p = &Participant{
			Name:            req.Subscriber,
			Kind:            KindRemoteSubscriber,
			ProcessingPlant: req.SubscriberPlant,
			Service:         req.SubscriberService,
		}
		r.participants[req.Subscriber] = p
		r.order = append(r.order, req.Subscriber)
	}
	p.Address = req.SubscriberAddress
	p.Subscriptions, _ = parcel.UnionMasks(p.Subscriptions, req.Masks)
	p.Status = StatusActive
	p.UpdateInstant = now
	r.mu.Unlock()

	r.publish(req.Subscriber, "remote-subscriber", now)
	r.logger.Info("remote subscriber accepted",
		logging.Participant(req.Subscriber),
		logging.Service(req.SubscriberService),
		logging.Count(len(req.Masks)))

	return SubscriptionResponse{
		Successful:    true,
		Commentary:    "subscription accepted by " + r.plant,
		NetworkStatus: string(StatusActive),
		Instant:       now,
	}
}

// SetStatus changes name's status and pushes it to the repository
func (r *Registry) SetStatus(ctx context.Context, name string, status Status) error {
	r.mu.Lock()
	p, ok := r.participants[name]
	if !ok {
		r.mu.Unlock()
		return ErrUnknownParticipant
	}
	p.Status = status
	p.UpdateInstant = r.now()
	r.mu.Unlock()

	if r.repo == nil {
		return nil
	}
	if _, err := r.repo.UpdateParticipantStatusSet(ctx, r.plant, map[string]Status{name: status}); err != nil {
		r.logger.Warn("failed to push participant status",
			logging.Participant(name), logging.Status(string(status)), logging.Error(err))
	}
	return nil
}

// Synchronise pushes every local registration to the repository in one call
// and adopts the statuses it returns.
func (r *Registry) Synchronise(ctx context.Context) error {
	if r.repo == nil {
		return nil
	}
	regs := r.Registrations()
	answer, err := r.repo.UpdateParticipantRegistrationSet(ctx, r.plant, regs)
	if err != nil {
		r.logger.Warn("participant synchronisation failed", logging.Count(len(regs)), logging.Error(err))
		return err
	}

	r.mu.Lock()
	for _, reg := range answer {
		if p, ok := r.participants[reg.Name()]; ok && reg.Status != "" && reg.Status != StatusDeregistered {
			p.Status = reg.Status
		}
	}
	r.mu.Unlock()
	r.logger.Debug("participants synchronised", logging.Count(len(regs)))
	return nil
}

// Get returns a copy of the participant, or nil
func (r *Registry) Get(name string) *Participant {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.participants[name].Clone()
}

// Participants returns copies of every participant in registration order
func (r *Registry) Participants() []*Participant {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Participant, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.participants[name].Clone())
	}
	return out
}

// Registration returns the registration form of name, or nil
func (r *Registry) Registration(name string) *Registration {
	p := r.Get(name)
	if p == nil {
		return nil
	}
	reg := r.registrationOf(p)
	return &reg
}

// Registrations returns every local participant except remote subscribers
func (r *Registry) Registrations() []Registration {
	var out []Registration
	for _, p := range r.Participants() {
		if p.Kind == KindRemoteSubscriber {
			continue
		}
		out = append(out, r.registrationOf(p))
	}
	return out
}

// Size returns the number of participants
func (r *Registry) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.participants)
}

func (r *Registry) registrationOf(p *Participant) Registration {
	return Registration{
		Participant:         *p.Clone(),
		Status:              p.Status,
		RegistrationInstant: p.UpdateInstant,
	}
}

func (r *Registry) publish(name, change string, at time.Time) {
	r.events.Publish(pubsub.TopicParticipantChange, pubsub.ParticipantEvent{
		Name:    name,
		Change:  change,
		Instant: at,
	})
}

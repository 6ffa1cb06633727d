package cluster

import (
	"slices"
	"sync"

	"github.com/dd0wney/cluso-petasos/pkg/logging"
	"github.com/dd0wney/cluso-petasos/pkg/pubsub"
)

// Lock returns the per-endpoint mutex, creating it if needed
func (r *EndpointRegistry) Lock(name string) *sync.Mutex {
	r.mu.RLock()
	l, ok := r.locks[name]
	r.mu.RUnlock()
	if ok {
		return l
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if l, ok = r.locks[name]; !ok {
		l = &sync.Mutex{}
		r.locks[name] = l
	}
	return l
}

// UpsertEndpoint adds or refreshes an endpoint and, when it names a
// service, moves it into that service's membership. A refresh with an empty
// address or service name keeps the stored one. It reports whether the
// endpoint was new.
func (r *EndpointRegistry) UpsertEndpoint(summary EndpointSummary) bool {
	if summary.Name == "" {
		r.logger.Debug("ignoring endpoint without a name")
		return false
	}

	r.mu.Lock()
	existing, ok := r.endpoints[summary.Name]
	stored := summary
	if ok {
		stored.Live = existing.Live
		stored.LastChecked = existing.LastChecked
		if stored.Address == "" {
			stored.Address = existing.Address
		}
		if stored.ServiceName == "" {
			stored.ServiceName = existing.ServiceName
		}
	}
	stored.LastRefresh = r.now()
	r.endpoints[summary.Name] = &stored
	if summary.ServiceName != "" {
		r.joinLocked(summary.ServiceName, summary.Name)
	}
	total, live := r.countsLocked()
	r.mu.Unlock()

	if !ok {
		r.logger.Info("endpoint added",
			logging.Endpoint(summary.Name),
			logging.Service(summary.ServiceName),
			logging.Address(summary.Address),
			logging.Count(total),
			logging.Int("live", live))
	}
	return !ok
}

// RemoveEndpoint forgets an endpoint, its membership and its lock.
func (r *EndpointRegistry) RemoveEndpoint(name string) *EndpointSummary {
	r.mu.Lock()
	existing, ok := r.endpoints[name]
	if !ok {
		r.mu.Unlock()
		return nil
	}
	delete(r.endpoints, name)
	if svc, member := r.serviceOf[name]; member {
		r.leaveLocked(svc, name)
	}
	removed := *existing
	r.mu.Unlock()

	r.events.Publish(pubsub.TopicEndpointLiveness, pubsub.EndpointEvent{
		Name:    removed.Name,
		Service: removed.ServiceName,
		Address: removed.Address,
		Removed: true,
		Instant: r.now(),
	})
	r.logger.Info("endpoint removed", logging.Endpoint(name))
	return &removed
}

// SetLive records a probe result. A change of liveness is published on the
// event bus; it reports whether liveness changed.
func (r *EndpointRegistry) SetLive(name string, live bool) bool {
	r.mu.Lock()
	ep, ok := r.endpoints[name]
	if !ok {
		r.mu.Unlock()
		return false
	}
	changed := ep.Live != live
	ep.Live = live
	ep.LastChecked = r.now()
	event := pubsub.EndpointEvent{
		Name:    ep.Name,
		Service: ep.ServiceName,
		Address: ep.Address,
		Live:    live,
		Instant: ep.LastChecked,
	}
	r.mu.Unlock()

	if changed {
		r.events.Publish(pubsub.TopicEndpointLiveness, event)
		r.logger.Info("endpoint liveness changed", logging.Endpoint(name), logging.Bool("live", live))
	}
	return changed
}

// UpdateServiceNameMembership makes endpoint a member of service, removing
// it from any other service first.
func (r *EndpointRegistry) UpdateServiceNameMembership(service, endpoint string) {
	if service == "" || endpoint == "" {
		r.logger.Debug("ignoring membership update with empty identifier",
			logging.Service(service), logging.Endpoint(endpoint))
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.joinLocked(service, endpoint)
	if ep, ok := r.endpoints[endpoint]; ok {
		ep.ServiceName = service
	}
}

// RemoveServiceNameMembership drops endpoint from service.
func (r *EndpointRegistry) RemoveServiceNameMembership(service, endpoint string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.serviceOf[endpoint] == service {
		r.leaveLocked(service, endpoint)
	}
}

func (r *EndpointRegistry) joinLocked(service, endpoint string) {
	if prev, ok := r.serviceOf[endpoint]; ok {
		if prev == service {
			return
		}
		r.leaveLocked(prev, endpoint)
	}
	r.members[service] = append(r.members[service], endpoint)
	r.serviceOf[endpoint] = service
}

func (r *EndpointRegistry) leaveLocked(service, endpoint string) {
	names := r.members[service]
	if i := slices.Index(names, endpoint); i >= 0 {
		names = slices.Delete(names, i, i+1)
	}
	if len(names) == 0 {
		delete(r.members, service)
	} else {
		r.members[service] = names
	}
	delete(r.serviceOf, endpoint)
}

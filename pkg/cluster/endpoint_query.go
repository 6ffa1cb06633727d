package cluster

import (
	"slices"
	"sort"
)

// GetEndpoint returns a copy of the endpoint summary, or nil
func (r *EndpointRegistry) GetEndpoint(name string) *EndpointSummary {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ep, ok := r.endpoints[name]
	if !ok {
		return nil
	}
	cp := *ep
	return &cp
}

// GetServiceNameMembership returns the endpoint names of service in the
// order they joined
func (r *EndpointRegistry) GetServiceNameMembership(service string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.members[service])
}

// GetLiveServiceMembers returns copies of service's live endpoints
func (r *EndpointRegistry) GetLiveServiceMembers(service string) []EndpointSummary {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var live []EndpointSummary
	for _, name := range r.members[service] {
		if ep, ok := r.endpoints[name]; ok && ep.Live {
			live = append(live, *ep)
		}
	}
	return live
}

// Resolve returns the address of the first live member of service
func (r *EndpointRegistry) Resolve(service string) (string, bool) {
	for _, ep := range r.GetLiveServiceMembers(service) {
		if ep.Address != "" {
			return ep.Address, true
		}
	}
	return "", false
}

// Services returns the known service names, sorted
func (r *EndpointRegistry) Services() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.members))
	for svc := range r.members {
		out = append(out, svc)
	}
	sort.Strings(out)
	return out
}

// Endpoints returns copies of every endpoint, sorted by name
func (r *EndpointRegistry) Endpoints() []EndpointSummary {
	r.mu.RLock()
	out := make([]EndpointSummary, 0, len(r.endpoints))
	for _, ep := range r.endpoints {
		out = append(out, *ep)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Counts returns the number of known and live endpoints
func (r *EndpointRegistry) Counts() (total, live int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.countsLocked()
}

func (r *EndpointRegistry) countsLocked() (total, live int) {
	for _, ep := range r.endpoints {
		if ep.Live {
			live++
		}
	}
	return len(r.endpoints), live
}
